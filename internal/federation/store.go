package federation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence collaborator. The sync engine, inbox dispatcher and
// upsert transformers never touch storage directly, only through this
// interface. Lookups return a copy; mutating a returned record does nothing
// until it is passed back to an update call.
type Store interface {
	HostByID(id uuid.UUID) (*Host, bool)
	HostByURL(url string) (*Host, bool)
	UpsertHost(host *Host) error

	AuthorByID(id uuid.UUID) (*Author, bool)
	AuthorByExternalURL(url string) (*Author, bool)
	CreateAuthor(author *Author) error
	UpdateAuthor(author *Author) error
	RemoteAuthorsByHost(hostID uuid.UUID) []Author
	PostsByAuthor(authorID uuid.UUID) []Post
	CommentsByPost(postID uuid.UUID) []Comment

	PostByID(id uuid.UUID) (*Post, bool)
	PostByExternalURL(url string) (*Post, bool)
	CreatePost(post *Post) error
	UpdatePost(post *Post) error

	CommentByID(id uuid.UUID) (*Comment, bool)
	CommentByExternalURL(url string) (*Comment, bool)
	CreateComment(comment *Comment) error
	UpdateComment(comment *Comment) error

	PostLikeByID(id uuid.UUID) (*PostLike, bool)
	PostLikeByPair(authorID, postID uuid.UUID) (*PostLike, bool)
	CreatePostLike(like *PostLike) error
	UpdatePostLike(like *PostLike) error

	CommentLikeByID(id uuid.UUID) (*CommentLike, bool)
	CommentLikeByPair(authorID, commentID uuid.UUID) (*CommentLike, bool)
	CreateCommentLike(like *CommentLike) error
	UpdateCommentLike(like *CommentLike) error

	FollowByPair(followerID, followingID uuid.UUID) (*Follow, bool)
	CreateFollow(follow *Follow) error

	FollowRequestByID(id uuid.UUID) (*FollowRequest, bool)
	FollowRequestByPair(fromID, toID uuid.UUID) (*FollowRequest, bool)
	CreateFollowRequest(request *FollowRequest) error

	AddInboxEntry(entry *InboxEntry) error
	AppendEvent(kind, action, recordID, url string)
}

// InboxEntryHook is invoked after an inbox entry is stored, outside the store
// lock. The bridge wires this to outbound delivery so the dependency from
// persistence to delivery is explicit rather than a hidden save hook.
type InboxEntryHook func(entry InboxEntry)

type StateBackend interface {
	Load() (*persistedState, error)
	Save(state *persistedState) error
}

type stateBackendCloser interface {
	Close() error
}

type persistedState struct {
	EventCounter   uint64                       `json:"eventCounter"`
	Hosts          map[string]*Host             `json:"hosts"`
	Authors        map[string]*Author           `json:"authors"`
	Posts          map[string]*Post             `json:"posts"`
	Comments       map[string]*Comment          `json:"comments"`
	PostLikes      map[string]*PostLike         `json:"postLikes"`
	CommentLikes   map[string]*CommentLike      `json:"commentLikes"`
	Follows        map[string]*Follow           `json:"follows"`
	FollowRequests map[string]*FollowRequest    `json:"followRequests"`
	InboxEntries   map[string]*InboxEntry       `json:"inboxEntries"`
	Events         []Event                      `json:"events"`
}

type MemoryStoreOptions struct {
	StateFile    string
	StateBackend StateBackend
	MaxEvents    int
	OnInboxEntry InboxEntryHook
	Logger       Logger
}

// MemoryStore keeps all canonical records in memory, snapshotting through an
// optional StateBackend after every mutation.
type MemoryStore struct {
	mu             sync.RWMutex
	eventCounter   uint64
	hosts          map[uuid.UUID]*Host
	authors        map[uuid.UUID]*Author
	posts          map[uuid.UUID]*Post
	comments       map[uuid.UUID]*Comment
	postLikes      map[uuid.UUID]*PostLike
	commentLikes   map[uuid.UUID]*CommentLike
	follows        map[uuid.UUID]*Follow
	followRequests map[uuid.UUID]*FollowRequest
	inboxEntries   map[uuid.UUID]*InboxEntry
	events         []Event
	maxEvents      int

	backend      StateBackend
	onInboxEntry InboxEntryHook
	logger       Logger

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithOptions(MemoryStoreOptions{})
}

func NewMemoryStoreWithOptions(opts MemoryStoreOptions) *MemoryStore {
	backend := opts.StateBackend
	if backend == nil && strings.TrimSpace(opts.StateFile) != "" {
		backend = NewJSONFileStateBackend(opts.StateFile)
	}
	maxEvents := opts.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	s := &MemoryStore{
		hosts:          map[uuid.UUID]*Host{},
		authors:        map[uuid.UUID]*Author{},
		posts:          map[uuid.UUID]*Post{},
		comments:       map[uuid.UUID]*Comment{},
		postLikes:      map[uuid.UUID]*PostLike{},
		commentLikes:   map[uuid.UUID]*CommentLike{},
		follows:        map[uuid.UUID]*Follow{},
		followRequests: map[uuid.UUID]*FollowRequest{},
		inboxEntries:   map[uuid.UUID]*InboxEntry{},
		maxEvents:      maxEvents,
		backend:        backend,
		onInboxEntry:   opts.OnInboxEntry,
		logger:         opts.Logger,
		subscribers:    map[chan Event]struct{}{},
	}
	if err := s.loadFromBackend(); err != nil {
		logf(s.logger, "could not load state snapshot: %v", err)
	}
	return s
}

// SetInboxEntryHook replaces the delivery hook. The bridge calls this once at
// startup after the deliverer is constructed.
func (s *MemoryStore) SetInboxEntryHook(hook InboxEntryHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInboxEntry = hook
}

func (s *MemoryStore) Close() {
	if closer, ok := s.backend.(stateBackendCloser); ok && closer != nil {
		_ = closer.Close()
	}
}

func (s *MemoryStore) loadFromBackend() error {
	if s.backend == nil {
		return nil
	}
	snapshot, err := s.backend.Load()
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	s.eventCounter = snapshot.EventCounter
	loadByID(s.hosts, snapshot.Hosts, func(h *Host) uuid.UUID { return h.ID })
	loadByID(s.authors, snapshot.Authors, func(a *Author) uuid.UUID { return a.ID })
	loadByID(s.posts, snapshot.Posts, func(p *Post) uuid.UUID { return p.ID })
	loadByID(s.comments, snapshot.Comments, func(c *Comment) uuid.UUID { return c.ID })
	loadByID(s.postLikes, snapshot.PostLikes, func(l *PostLike) uuid.UUID { return l.ID })
	loadByID(s.commentLikes, snapshot.CommentLikes, func(l *CommentLike) uuid.UUID { return l.ID })
	loadByID(s.follows, snapshot.Follows, func(f *Follow) uuid.UUID { return f.ID })
	loadByID(s.followRequests, snapshot.FollowRequests, func(r *FollowRequest) uuid.UUID { return r.ID })
	loadByID(s.inboxEntries, snapshot.InboxEntries, func(e *InboxEntry) uuid.UUID { return e.ID })
	s.events = append(s.events, snapshot.Events...)
	return nil
}

func loadByID[T any](dst map[uuid.UUID]*T, src map[string]*T, id func(*T) uuid.UUID) {
	for _, record := range src {
		if record == nil {
			continue
		}
		copied := *record
		dst[id(&copied)] = &copied
	}
}

func (s *MemoryStore) saveLocked() {
	if s.backend == nil {
		return
	}
	snapshot := &persistedState{
		EventCounter:   s.eventCounter,
		Hosts:          keyByString(s.hosts),
		Authors:        keyByString(s.authors),
		Posts:          keyByString(s.posts),
		Comments:       keyByString(s.comments),
		PostLikes:      keyByString(s.postLikes),
		CommentLikes:   keyByString(s.commentLikes),
		Follows:        keyByString(s.follows),
		FollowRequests: keyByString(s.followRequests),
		InboxEntries:   keyByString(s.inboxEntries),
		Events:         append([]Event(nil), s.events...),
	}
	if err := s.backend.Save(snapshot); err != nil {
		logf(s.logger, "could not save state snapshot: %v", err)
	}
}

func keyByString[T any](src map[uuid.UUID]*T) map[string]*T {
	out := make(map[string]*T, len(src))
	for id, record := range src {
		copied := *record
		out[id.String()] = &copied
	}
	return out
}

func (s *MemoryStore) HostByID(id uuid.UUID) (*Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, ok := s.hosts[id]
	if !ok {
		return nil, false
	}
	copied := *host
	return &copied, true
}

func (s *MemoryStore) HostByURL(url string) (*Host, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, host := range s.hosts {
		if strings.TrimRight(host.URL, "/") == trimmed {
			copied := *host
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) Hosts() []Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]Host, 0, len(s.hosts))
	for _, host := range s.hosts {
		hosts = append(hosts, *host)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].URL < hosts[j].URL })
	return hosts
}

// UpsertHost matches on URL so a config reload keeps existing host IDs stable
// (authors reference hosts by ID).
func (s *MemoryStore) UpsertHost(host *Host) error {
	if host == nil || strings.TrimSpace(host.URL) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	trimmed := strings.TrimRight(host.URL, "/")
	for id, existing := range s.hosts {
		if strings.TrimRight(existing.URL, "/") == trimmed {
			host.ID = id
			copied := *host
			s.hosts[id] = &copied
			s.saveLocked()
			return nil
		}
	}
	if host.ID == uuid.Nil {
		host.ID = uuid.New()
	}
	copied := *host
	s.hosts[host.ID] = &copied
	s.saveLocked()
	return nil
}

func (s *MemoryStore) AuthorByID(id uuid.UUID) (*Author, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	author, ok := s.authors[id]
	if !ok {
		return nil, false
	}
	copied := *author
	return &copied, true
}

func (s *MemoryStore) AuthorByExternalURL(url string) (*Author, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, author := range s.authors {
		if author.ExternalURL != "" && author.ExternalURL == url {
			copied := *author
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) CreateAuthor(author *Author) error {
	if author == nil {
		return ErrInvalidInput
	}
	if author.ID == uuid.Nil {
		author.ID = uuid.New()
	}
	s.mu.Lock()
	copied := *author
	s.authors[author.ID] = &copied
	s.appendEventLocked("author", "created", author.ID.String(), author.ExternalURL)
	s.saveLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdateAuthor(author *Author) error {
	return updateRecord(s, s.authors, author, author.ID, "author", author.ExternalURL)
}

func (s *MemoryStore) LocalAuthors() []Author {
	s.mu.RLock()
	defer s.mu.RUnlock()
	authors := make([]Author, 0)
	for _, author := range s.authors {
		if author.ExternalURL == "" {
			authors = append(authors, *author)
		}
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i].ID.String() < authors[j].ID.String() })
	return authors
}

func (s *MemoryStore) RemoteAuthorsByHost(hostID uuid.UUID) []Author {
	s.mu.RLock()
	defer s.mu.RUnlock()
	authors := make([]Author, 0)
	for _, author := range s.authors {
		if author.HostID != nil && *author.HostID == hostID {
			authors = append(authors, *author)
		}
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i].ExternalURL < authors[j].ExternalURL })
	return authors
}

func (s *MemoryStore) PostByID(id uuid.UUID) (*Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	copied := *post
	return &copied, true
}

func (s *MemoryStore) PostByExternalURL(url string) (*Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, post := range s.posts {
		if post.ExternalURL != "" && post.ExternalURL == url {
			copied := *post
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) CreatePost(post *Post) error {
	if post == nil {
		return ErrInvalidInput
	}
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	s.mu.Lock()
	copied := *post
	s.posts[post.ID] = &copied
	s.appendEventLocked("post", "created", post.ID.String(), post.ExternalURL)
	s.saveLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdatePost(post *Post) error {
	return updateRecord(s, s.posts, post, post.ID, "post", post.ExternalURL)
}

func (s *MemoryStore) PostsByAuthor(authorID uuid.UUID) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make([]Post, 0)
	for _, post := range s.posts {
		if post.AuthorID == authorID {
			posts = append(posts, *post)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID.String() < posts[j].ID.String() })
	return posts
}

func (s *MemoryStore) CommentByID(id uuid.UUID) (*Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.comments[id]
	if !ok {
		return nil, false
	}
	copied := *comment
	return &copied, true
}

func (s *MemoryStore) CommentByExternalURL(url string) (*Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, comment := range s.comments {
		if comment.ExternalURL != "" && comment.ExternalURL == url {
			copied := *comment
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) CreateComment(comment *Comment) error {
	if comment == nil {
		return ErrInvalidInput
	}
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	s.mu.Lock()
	copied := *comment
	s.comments[comment.ID] = &copied
	s.appendEventLocked("comment", "created", comment.ID.String(), comment.ExternalURL)
	s.saveLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdateComment(comment *Comment) error {
	return updateRecord(s, s.comments, comment, comment.ID, "comment", comment.ExternalURL)
}

func (s *MemoryStore) CommentsByPost(postID uuid.UUID) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := make([]Comment, 0)
	for _, comment := range s.comments {
		if comment.PostID == postID {
			comments = append(comments, *comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID.String() < comments[j].ID.String() })
	return comments
}

func (s *MemoryStore) PostLikeByID(id uuid.UUID) (*PostLike, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	like, ok := s.postLikes[id]
	if !ok {
		return nil, false
	}
	copied := *like
	return &copied, true
}

func (s *MemoryStore) PostLikeByPair(authorID, postID uuid.UUID) (*PostLike, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, like := range s.postLikes {
		if like.AuthorID == authorID && like.PostID == postID {
			copied := *like
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) CreatePostLike(like *PostLike) error {
	if like == nil {
		return ErrInvalidInput
	}
	if like.ID == uuid.Nil {
		like.ID = uuid.New()
	}
	s.mu.Lock()
	copied := *like
	s.postLikes[like.ID] = &copied
	s.appendEventLocked("postlike", "created", like.ID.String(), "")
	s.saveLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdatePostLike(like *PostLike) error {
	return updateRecord(s, s.postLikes, like, like.ID, "postlike", "")
}

func (s *MemoryStore) PostLikesByPost(postID uuid.UUID) []PostLike {
	s.mu.RLock()
	defer s.mu.RUnlock()
	likes := make([]PostLike, 0)
	for _, like := range s.postLikes {
		if like.PostID == postID {
			likes = append(likes, *like)
		}
	}
	sort.Slice(likes, func(i, j int) bool { return likes[i].ID.String() < likes[j].ID.String() })
	return likes
}

func (s *MemoryStore) CommentLikeByID(id uuid.UUID) (*CommentLike, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	like, ok := s.commentLikes[id]
	if !ok {
		return nil, false
	}
	copied := *like
	return &copied, true
}

func (s *MemoryStore) CommentLikeByPair(authorID, commentID uuid.UUID) (*CommentLike, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, like := range s.commentLikes {
		if like.AuthorID == authorID && like.CommentID == commentID {
			copied := *like
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) CreateCommentLike(like *CommentLike) error {
	if like == nil {
		return ErrInvalidInput
	}
	if like.ID == uuid.Nil {
		like.ID = uuid.New()
	}
	s.mu.Lock()
	copied := *like
	s.commentLikes[like.ID] = &copied
	s.appendEventLocked("commentlike", "created", like.ID.String(), "")
	s.saveLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdateCommentLike(like *CommentLike) error {
	return updateRecord(s, s.commentLikes, like, like.ID, "commentlike", "")
}

func (s *MemoryStore) CommentLikesByComment(commentID uuid.UUID) []CommentLike {
	s.mu.RLock()
	defer s.mu.RUnlock()
	likes := make([]CommentLike, 0)
	for _, like := range s.commentLikes {
		if like.CommentID == commentID {
			likes = append(likes, *like)
		}
	}
	sort.Slice(likes, func(i, j int) bool { return likes[i].ID.String() < likes[j].ID.String() })
	return likes
}

func (s *MemoryStore) FollowByPair(followerID, followingID uuid.UUID) (*Follow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, follow := range s.follows {
		if follow.FollowerID == followerID && follow.FollowingID == followingID {
			copied := *follow
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) CreateFollow(follow *Follow) error {
	if follow == nil {
		return ErrInvalidInput
	}
	if follow.ID == uuid.Nil {
		follow.ID = uuid.New()
	}
	s.mu.Lock()
	copied := *follow
	s.follows[follow.ID] = &copied
	s.appendEventLocked("follow", "created", follow.ID.String(), "")
	s.saveLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FollowersOf(authorID uuid.UUID) []Follow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	follows := make([]Follow, 0)
	for _, follow := range s.follows {
		if follow.FollowingID == authorID {
			follows = append(follows, *follow)
		}
	}
	sort.Slice(follows, func(i, j int) bool { return follows[i].ID.String() < follows[j].ID.String() })
	return follows
}

func (s *MemoryStore) FollowRequestByID(id uuid.UUID) (*FollowRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.followRequests[id]
	if !ok {
		return nil, false
	}
	copied := *request
	return &copied, true
}

func (s *MemoryStore) FollowRequestByPair(fromID, toID uuid.UUID) (*FollowRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, request := range s.followRequests {
		if request.FromID == fromID && request.ToID == toID {
			copied := *request
			return &copied, true
		}
	}
	return nil, false
}

func (s *MemoryStore) CreateFollowRequest(request *FollowRequest) error {
	if request == nil {
		return ErrInvalidInput
	}
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	s.mu.Lock()
	copied := *request
	s.followRequests[request.ID] = &copied
	s.appendEventLocked("followrequest", "created", request.ID.String(), "")
	s.saveLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AddInboxEntry(entry *InboxEntry) error {
	if entry == nil || entry.OwnerID == uuid.Nil {
		return ErrInvalidInput
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Added.IsZero() {
		entry.Added = time.Now().UTC()
	}
	s.mu.Lock()
	copied := *entry
	s.inboxEntries[entry.ID] = &copied
	s.appendEventLocked("inbox", string(entry.Kind), entry.ObjectID.String(), "")
	s.saveLocked()
	hook := s.onInboxEntry
	s.mu.Unlock()
	if hook != nil {
		hook(*entry)
	}
	return nil
}

func (s *MemoryStore) InboxOf(ownerID uuid.UUID) []InboxEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]InboxEntry, 0)
	for _, entry := range s.inboxEntries {
		if entry.OwnerID == ownerID {
			entries = append(entries, *entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Added.Equal(entries[j].Added) {
			return entries[i].ID.String() < entries[j].ID.String()
		}
		return entries[i].Added.Before(entries[j].Added)
	})
	return entries
}

func (s *MemoryStore) AppendEvent(kind, action, recordID, url string) {
	s.mu.Lock()
	s.appendEventLocked(kind, action, recordID, url)
	s.saveLocked()
	s.mu.Unlock()
}

func (s *MemoryStore) appendEventLocked(kind, action, recordID, url string) {
	s.eventCounter++
	event := Event{
		EventID:   fmt.Sprintf("evt_%d", s.eventCounter),
		Kind:      kind,
		Action:    action,
		RecordID:  recordID,
		URL:       url,
		Timestamp: time.Now().UTC(),
	}
	s.events = append(s.events, event)
	if len(s.events) > s.maxEvents {
		s.events = s.events[len(s.events)-s.maxEvents:]
	}
	s.notifySubscribers(event)
}

// GetEvents pages the event feed by event ID cursor, oldest first.
func (s *MemoryStore) GetEvents(cursor string, limit int) EventFeed {
	if limit <= 0 {
		limit = 200
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events
	start := 0
	if cursor != "" {
		for i := range events {
			if events[i].EventID == cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(events) {
		return EventFeed{Events: []Event{}}
	}
	end := start + limit
	if end > len(events) {
		end = len(events)
	}
	chunk := append([]Event(nil), events[start:end]...)
	var next *string
	if end < len(events) {
		cursorValue := events[end-1].EventID
		next = &cursorValue
	}
	return EventFeed{Events: chunk, NextCursor: next}
}

// Subscribe returns a channel that receives every event appended after the
// call. Slow subscribers drop events rather than block mutations.
func (s *MemoryStore) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	cancel := func() {
		s.subMu.Lock()
		delete(s.subscribers, ch)
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *MemoryStore) notifySubscribers(event Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func updateRecord[T any](s *MemoryStore, records map[uuid.UUID]*T, record *T, id uuid.UUID, kind, url string) error {
	if record == nil || id == uuid.Nil {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := records[id]; !ok {
		return ErrNotFound
	}
	copied := *record
	records[id] = &copied
	s.appendEventLocked(kind, "updated", id.String(), url)
	s.saveLocked()
	return nil
}

type JSONFileStateBackend struct {
	Path string
}

func NewJSONFileStateBackend(path string) *JSONFileStateBackend {
	return &JSONFileStateBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileStateBackend) Load() (*persistedState, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot persistedState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (b *JSONFileStateBackend) Save(state *persistedState) error {
	if b == nil || strings.TrimSpace(b.Path) == "" || state == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}
