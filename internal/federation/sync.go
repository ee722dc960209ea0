package federation

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultPageSize = 100

type SyncerOptions struct {
	Transport    Transport
	Store        Store
	PageSize     int
	Workers      int
	HostDeadline time.Duration
	Logger       Logger
}

// Syncer pulls remote collections page by page and merges every item into
// the store through the upsert transformers. A failing item is logged and
// skipped; a failing page fetch ends that collection only.
type Syncer struct {
	transport    Transport
	store        Store
	upserter     *Upserter
	pageSize     int
	workers      int
	hostDeadline time.Duration
	logger       Logger
}

func NewSyncer(opts SyncerOptions) (*Syncer, error) {
	if opts.Transport == nil || opts.Store == nil {
		return nil, ErrInvalidInput
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	hostDeadline := opts.HostDeadline
	if hostDeadline <= 0 {
		hostDeadline = 2 * time.Minute
	}
	return &Syncer{
		transport:    opts.Transport,
		store:        opts.Store,
		upserter:     NewUpserter(opts.Store),
		pageSize:     pageSize,
		workers:      workers,
		hostDeadline: hostDeadline,
		logger:       opts.Logger,
	}, nil
}

// fetchCollection runs the pull loop for one collection. Stop conditions:
// an empty page, a non-success status on a paginated endpoint (the
// protocol's end-of-collection signal), any status failure on an
// unpaginated endpoint, or a body that cannot be parsed. Item handler
// failures never stop the loop. The returned flag reports whether the
// remote answered the first fetch at all.
func (s *Syncer) fetchCollection(ctx context.Context, host *Host, endpoint string, kind CollectionKind, handle func(item Wire) error) bool {
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		logf(s.logger, "sync %s: %v", endpoint, err)
		return false
	}
	paginated := dialect.Traits().Paginates(kind)
	reached := false

	for page := 1; ; page++ {
		var query url.Values
		if paginated {
			query = url.Values{
				"page": []string{strconv.Itoa(page)},
				"size": []string{strconv.Itoa(s.pageSize)},
			}
		}
		status, body, err := s.transport.Get(ctx, endpoint, query, host.AuthB64)
		if err != nil {
			logf(s.logger, "sync %s: could not reach endpoint: %v", endpoint, err)
			return reached
		}
		reached = true
		if status != 200 {
			if !paginated {
				logf(s.logger, "sync %s: status %d on unpaginated endpoint", endpoint, status)
			}
			return reached
		}

		var parsed any
		if err := json.Unmarshal(body, &parsed); err != nil {
			logf(s.logger, "sync %s: could not parse body: %v", endpoint, err)
			return reached
		}
		items, err := dialect.Items(parsed, kind)
		if err != nil {
			logf(s.logger, "sync %s: could not locate item list: %v", endpoint, err)
			return reached
		}
		if len(items) == 0 {
			return reached
		}

		for _, item := range items {
			if err := handle(item); err != nil {
				logf(s.logger, "sync %s: skipping item: %v", endpoint, err)
			}
		}

		if !paginated {
			return reached
		}
	}
}

// SyncAuthors pulls the host's author directory. Authors discovered here are
// bound to the host.
func (s *Syncer) SyncAuthors(ctx context.Context, host *Host) bool {
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		logf(s.logger, "sync authors: %v", err)
		return false
	}
	endpoint := cleanURL(host.URL) + "/authors"
	return s.fetchCollection(ctx, host, endpoint, CollectionAuthors, func(item Wire) error {
		fields, err := dialect.MapAuthorIn(item)
		if err != nil {
			return err
		}
		_, err = s.upserter.UpsertAuthor(fields, host)
		return err
	})
}

func (s *Syncer) SyncAuthorPosts(ctx context.Context, host *Host, author *Author) {
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		logf(s.logger, "sync posts: %v", err)
		return
	}
	endpoint := cleanURL(author.ExternalURL) + "/posts"
	s.fetchCollection(ctx, host, endpoint, CollectionPosts, func(item Wire) error {
		fields, err := dialect.MapPostIn(item)
		if err != nil {
			return err
		}
		_, err = s.upserter.UpsertPost(fields, author)
		return err
	})
}

// SyncFollowers treats each item as an author record; the relationship
// itself carries no fields.
func (s *Syncer) SyncFollowers(ctx context.Context, host *Host, author *Author) {
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		logf(s.logger, "sync followers: %v", err)
		return
	}
	endpoint := cleanURL(author.ExternalURL) + "/followers"
	s.fetchCollection(ctx, host, endpoint, CollectionFollowers, func(item Wire) error {
		fields, err := dialect.MapAuthorIn(item)
		if err != nil {
			return err
		}
		follower, err := s.upserter.UpsertAuthor(fields, nil)
		if err != nil {
			return err
		}
		_, err = s.upserter.UpsertFollower(follower, author)
		return err
	})
}

func (s *Syncer) SyncPostComments(ctx context.Context, host *Host, post *Post) {
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		logf(s.logger, "sync comments: %v", err)
		return
	}
	endpoint := cleanURL(post.ExternalURL) + "/comments"
	s.fetchCollection(ctx, host, endpoint, CollectionComments, func(item Wire) error {
		author, err := s.resolveItemAuthor(item, dialect)
		if err != nil {
			return err
		}
		fields, err := dialect.MapCommentIn(item)
		if err != nil {
			return err
		}
		_, err = s.upserter.UpsertComment(fields, post, author)
		return err
	})
}

func (s *Syncer) SyncPostLikes(ctx context.Context, host *Host, post *Post) {
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		logf(s.logger, "sync post likes: %v", err)
		return
	}
	endpoint := cleanURL(post.ExternalURL) + "/likes"
	s.fetchCollection(ctx, host, endpoint, CollectionPostLikes, func(item Wire) error {
		author, err := s.resolveItemAuthor(item, dialect)
		if err != nil {
			return err
		}
		fields, err := dialect.MapPostLikeIn(item)
		if err != nil {
			return err
		}
		_, err = s.upserter.UpsertPostLike(fields, post, author)
		return err
	})
}

func (s *Syncer) SyncCommentLikes(ctx context.Context, host *Host, comment *Comment) {
	dialect, err := ForTag(host.Dialect)
	if err != nil {
		logf(s.logger, "sync comment likes: %v", err)
		return
	}
	endpoint := cleanURL(comment.ExternalURL) + "/likes"
	s.fetchCollection(ctx, host, endpoint, CollectionCommentLikes, func(item Wire) error {
		author, err := s.resolveItemAuthor(item, dialect)
		if err != nil {
			return err
		}
		fields, err := dialect.MapCommentLikeIn(item)
		if err != nil {
			return err
		}
		_, err = s.upserter.UpsertCommentLike(fields, comment, author)
		return err
	})
}

// resolveItemAuthor upserts the author embedded under the item's "author"
// key. Failure here skips only the one item that embedded it.
func (s *Syncer) resolveItemAuthor(item Wire, dialect Dialect) (*Author, error) {
	raw, err := item.Object("author")
	if err != nil {
		return nil, err
	}
	fields, err := dialect.MapAuthorIn(raw)
	if err != nil {
		return nil, err
	}
	return s.upserter.UpsertAuthor(fields, nil)
}

// SyncHost refreshes everything known about one host: its author directory,
// then per remote author the posts and followers, then per post the comments
// and likes, then per comment the likes. Ping bookkeeping records whether the
// host answered at all.
func (s *Syncer) SyncHost(ctx context.Context, host *Host) {
	reached := s.SyncAuthors(ctx, host)
	s.recordPing(host, reached)
	if !reached {
		return
	}
	for _, author := range s.store.RemoteAuthorsByHost(host.ID) {
		if ctx.Err() != nil {
			return
		}
		author := author
		s.SyncAuthorPosts(ctx, host, &author)
		s.SyncFollowers(ctx, host, &author)
		for _, post := range s.store.PostsByAuthor(author.ID) {
			if ctx.Err() != nil {
				return
			}
			post := post
			s.SyncPostComments(ctx, host, &post)
			s.SyncPostLikes(ctx, host, &post)
			for _, comment := range s.store.CommentsByPost(post.ID) {
				if ctx.Err() != nil {
					return
				}
				comment := comment
				s.SyncCommentLikes(ctx, host, &comment)
			}
		}
	}
}

func (s *Syncer) recordPing(host *Host, ok bool) {
	now := time.Now().UTC()
	host.LastPing = &now
	host.LastPingOK = ok
	if ok {
		host.LastSuccessfulPing = &now
	}
	if err := s.store.UpsertHost(host); err != nil {
		logf(s.logger, "sync %s: could not record ping: %v", host.URL, err)
	}
}

// SyncAll fans hosts out over a bounded worker pool with a per-host
// deadline, so one hung remote cannot stall the others.
func (s *Syncer) SyncAll(ctx context.Context, hosts []Host) {
	jobs := make(chan Host)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for host := range jobs {
				hostCtx, cancel := context.WithTimeout(ctx, s.hostDeadline)
				host := host
				s.SyncHost(hostCtx, &host)
				cancel()
			}
		}()
	}
	for _, host := range hosts {
		select {
		case jobs <- host:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

func cleanURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
