package federation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type DelivererOptions struct {
	Store        Store
	Transport    Transport
	Queue        DeliveryQueue
	LocalBaseURL string
	Workers      int
	Logger       Logger
}

// Deliverer pushes locally created activity to remote inbox owners. A push
// is attempted once per task; a failed push is logged and dropped, never
// retried. A per (owner, record) key serializes concurrent pushes of the
// same record to the same destination.
type Deliverer struct {
	store        Store
	transport    Transport
	queue        DeliveryQueue
	localBaseURL string
	workers      int
	logger       Logger

	keyMu    sync.Mutex
	inFlight map[string]*inFlightLock
}

func NewDeliverer(opts DelivererOptions) (*Deliverer, error) {
	if opts.Store == nil || opts.Transport == nil {
		return nil, ErrInvalidInput
	}
	queue := opts.Queue
	if queue == nil {
		queue = NewMemoryDeliveryQueue(0)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Deliverer{
		store:        opts.Store,
		transport:    opts.Transport,
		queue:        queue,
		localBaseURL: strings.TrimRight(strings.TrimSpace(opts.LocalBaseURL), "/"),
		workers:      workers,
		logger:       opts.Logger,
		inFlight:     map[string]*inFlightLock{},
	}, nil
}

// OnInboxEntry is the hook the store calls after filing an inbox entry.
// Entries owned by local authors need no push and are dropped here.
func (d *Deliverer) OnInboxEntry(entry InboxEntry) {
	owner, ok := d.store.AuthorByID(entry.OwnerID)
	if !ok || !owner.IsRemote() || owner.HostID == nil {
		return
	}
	task := DeliveryTask{
		EntryID:  entry.ID.String(),
		OwnerID:  entry.OwnerID.String(),
		Kind:     string(entry.Kind),
		ObjectID: entry.ObjectID.String(),
	}
	if !d.queue.TryEnqueue(task) {
		logf(d.logger, "delivery queue full, dropping push for %s", owner.ExternalURL)
	}
}

// Run consumes the queue until the context is cancelled.
func (d *Deliverer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := d.queue.Dequeue(ctx)
				if !ok {
					return
				}
				if err := d.Deliver(ctx, task); err != nil {
					logf(d.logger, "delivery failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()
}

// Deliver performs one push synchronously.
func (d *Deliverer) Deliver(ctx context.Context, task DeliveryTask) error {
	ownerID, err := uuid.Parse(task.OwnerID)
	if err != nil {
		return fmt.Errorf("bad owner id %q: %w", task.OwnerID, err)
	}
	objectID, err := uuid.Parse(task.ObjectID)
	if err != nil {
		return fmt.Errorf("bad object id %q: %w", task.ObjectID, err)
	}
	owner, ok := d.store.AuthorByID(ownerID)
	if !ok || !owner.IsRemote() || owner.HostID == nil {
		return fmt.Errorf("%w: delivery owner %s", ErrNotFound, task.OwnerID)
	}
	host, ok := d.store.HostByID(*owner.HostID)
	if !ok {
		return fmt.Errorf("%w: host for %s", ErrNotFound, owner.ExternalURL)
	}
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		return err
	}

	unlock := d.lockPair(task.OwnerID, task.ObjectID)
	defer unlock()

	wire, err := d.buildEnvelope(dialect, InboxKind(task.Kind), objectID)
	if err != nil {
		return err
	}
	endpoint := dialect.InboxURL(owner.ExternalURL)
	status, err := d.transport.Post(ctx, endpoint, map[string]any(wire), host.AuthB64)
	if err != nil {
		d.store.AppendEvent("delivery", "failed", task.EntryID, endpoint)
		return fmt.Errorf("push to %s: %w", endpoint, err)
	}
	if status < 200 || status > 299 {
		d.store.AppendEvent("delivery", "failed", task.EntryID, endpoint)
		return statusError(status, endpoint)
	}
	d.store.AppendEvent("delivery", "delivered", task.EntryID, endpoint)
	return nil
}

func (d *Deliverer) buildEnvelope(dialect Dialect, kind InboxKind, objectID uuid.UUID) (Wire, error) {
	switch kind {
	case InboxPost:
		post, ok := d.store.PostByID(objectID)
		if !ok {
			return nil, fmt.Errorf("%w: post %s", ErrNotFound, objectID)
		}
		author, ok := d.store.AuthorByID(post.AuthorID)
		if !ok {
			return nil, fmt.Errorf("%w: author of post %s", ErrNotFound, objectID)
		}
		d.fillPostURL(post, author)
		d.fillAuthorURL(author)
		return dialect.MapPostOut(*post, *author), nil

	case InboxComment:
		comment, ok := d.store.CommentByID(objectID)
		if !ok {
			return nil, fmt.Errorf("%w: comment %s", ErrNotFound, objectID)
		}
		post, ok := d.store.PostByID(comment.PostID)
		if !ok {
			return nil, fmt.Errorf("%w: post of comment %s", ErrNotFound, objectID)
		}
		postAuthor, ok := d.store.AuthorByID(post.AuthorID)
		if !ok {
			return nil, fmt.Errorf("%w: author of post %s", ErrNotFound, post.ID)
		}
		author, ok := d.store.AuthorByID(comment.AuthorID)
		if !ok {
			return nil, fmt.Errorf("%w: author of comment %s", ErrNotFound, objectID)
		}
		d.fillPostURL(post, postAuthor)
		d.fillAuthorURL(author)
		d.fillCommentURL(comment, post)
		return dialect.MapCommentOut(*comment, *author, *post), nil

	case InboxLike:
		like, ok := d.store.PostLikeByID(objectID)
		if !ok {
			return nil, fmt.Errorf("%w: post like %s", ErrNotFound, objectID)
		}
		post, ok := d.store.PostByID(like.PostID)
		if !ok {
			return nil, fmt.Errorf("%w: liked post %s", ErrNotFound, like.PostID)
		}
		postAuthor, ok := d.store.AuthorByID(post.AuthorID)
		if !ok {
			return nil, fmt.Errorf("%w: author of post %s", ErrNotFound, post.ID)
		}
		author, ok := d.store.AuthorByID(like.AuthorID)
		if !ok {
			return nil, fmt.Errorf("%w: author of like %s", ErrNotFound, objectID)
		}
		d.fillPostURL(post, postAuthor)
		d.fillAuthorURL(author)
		return dialect.MapLikeOut(like.Summary, *author, post.ExternalURL), nil

	case InboxCommentLike:
		like, ok := d.store.CommentLikeByID(objectID)
		if !ok {
			return nil, fmt.Errorf("%w: comment like %s", ErrNotFound, objectID)
		}
		comment, ok := d.store.CommentByID(like.CommentID)
		if !ok {
			return nil, fmt.Errorf("%w: liked comment %s", ErrNotFound, like.CommentID)
		}
		post, ok := d.store.PostByID(comment.PostID)
		if !ok {
			return nil, fmt.Errorf("%w: post of comment %s", ErrNotFound, comment.ID)
		}
		postAuthor, ok := d.store.AuthorByID(post.AuthorID)
		if !ok {
			return nil, fmt.Errorf("%w: author of post %s", ErrNotFound, post.ID)
		}
		author, ok := d.store.AuthorByID(like.AuthorID)
		if !ok {
			return nil, fmt.Errorf("%w: author of like %s", ErrNotFound, objectID)
		}
		d.fillPostURL(post, postAuthor)
		d.fillCommentURL(comment, post)
		d.fillAuthorURL(author)
		return dialect.MapLikeOut(like.Summary, *author, comment.ExternalURL), nil

	case InboxFollow:
		request, ok := d.store.FollowRequestByID(objectID)
		if !ok {
			return nil, fmt.Errorf("%w: follow request %s", ErrNotFound, objectID)
		}
		follower, ok := d.store.AuthorByID(request.FromID)
		if !ok {
			return nil, fmt.Errorf("%w: follower %s", ErrNotFound, request.FromID)
		}
		following, ok := d.store.AuthorByID(request.ToID)
		if !ok {
			return nil, fmt.Errorf("%w: followee %s", ErrNotFound, request.ToID)
		}
		d.fillAuthorURL(follower)
		d.fillAuthorURL(following)
		return dialect.MapFollowOut(*follower, *following), nil

	default:
		return nil, validationErrorf("delivery", "unsupported kind %q", kind)
	}
}

// Local records carry no external URL; mint their canonical address under
// the bridge's own base URL before rendering.
func (d *Deliverer) fillAuthorURL(author *Author) {
	if author.ExternalURL == "" {
		author.ExternalURL = fmt.Sprintf("%s/api/authors/%s", d.localBaseURL, author.ID)
	}
}

func (d *Deliverer) fillPostURL(post *Post, author *Author) {
	d.fillAuthorURL(author)
	if post.ExternalURL == "" {
		post.ExternalURL = fmt.Sprintf("%s/posts/%s", author.ExternalURL, post.ID)
	}
}

func (d *Deliverer) fillCommentURL(comment *Comment, post *Post) {
	if comment.ExternalURL == "" {
		comment.ExternalURL = fmt.Sprintf("%s/comments/%s", post.ExternalURL, comment.ID)
	}
}

type inFlightLock struct {
	mu   sync.Mutex
	refs int
}

// lockPair serializes pushes sharing an (owner, record) key. The map entry is
// evicted when the last holder releases it.
func (d *Deliverer) lockPair(ownerID, objectID string) func() {
	key := ownerID + "|" + objectID
	d.keyMu.Lock()
	lock, ok := d.inFlight[key]
	if !ok {
		lock = &inFlightLock{}
		d.inFlight[key] = lock
	}
	lock.refs++
	d.keyMu.Unlock()
	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		d.keyMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(d.inFlight, key)
		}
		d.keyMu.Unlock()
	}
}
