package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"
)

// fakeTransport serves canned responses keyed by full URL including the
// query string, recording every fetch in order.
type fakeTransport struct {
	mu         sync.Mutex
	responses  map[string]fakeResponse
	calls      []string
	posts      []fakePost
	postStatus int
}

type fakeResponse struct {
	status int
	body   string
	err    error
}

type fakePost struct {
	url  string
	body any
	auth string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string]fakeResponse{}}
}

func (f *fakeTransport) respond(fullURL string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[fullURL] = fakeResponse{status: status, body: body}
}

func (f *fakeTransport) fail(fullURL string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[fullURL] = fakeResponse{err: err}
}

func (f *fakeTransport) Get(ctx context.Context, rawURL string, query url.Values, authB64 string) (int, []byte, error) {
	fullURL := rawURL
	if len(query) > 0 {
		fullURL = rawURL + "?" + query.Encode()
	}
	f.mu.Lock()
	f.calls = append(f.calls, fullURL)
	resp, ok := f.responses[fullURL]
	f.mu.Unlock()
	if !ok {
		return 404, nil, nil
	}
	if resp.err != nil {
		return 0, nil, resp.err
	}
	return resp.status, []byte(resp.body), nil
}

func (f *fakeTransport) Post(ctx context.Context, rawURL string, body any, authB64 string) (int, error) {
	f.mu.Lock()
	f.posts = append(f.posts, fakePost{url: rawURL, body: body, auth: authB64})
	status := f.postStatus
	f.mu.Unlock()
	if status == 0 {
		status = 200
	}
	return status, nil
}

func (f *fakeTransport) sentPosts() []fakePost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePost(nil), f.posts...)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func pageURL(endpoint string, page, size int) string {
	return fmt.Sprintf("%s?page=%d&size=%d", endpoint, page, size)
}

func internalAuthorsPage(urls ...string) string {
	items := make([]map[string]any, 0, len(urls))
	for _, u := range urls {
		items = append(items, map[string]any{
			"type":        "author",
			"url":         u,
			"id":          u,
			"displayName": "Author at " + u,
		})
	}
	data, _ := json.Marshal(map[string]any{"type": "authors", "items": items})
	return string(data)
}

func newTestSyncer(t *testing.T, transport Transport, store Store, pageSize int) *Syncer {
	t.Helper()
	syncer, err := NewSyncer(SyncerOptions{
		Transport: transport,
		Store:     store,
		PageSize:  pageSize,
		Workers:   1,
	})
	if err != nil {
		t.Fatalf("new syncer failed: %v", err)
	}
	return syncer
}

func TestSyncAuthorsPaginatesUntilEmptyPage(t *testing.T) {
	transport := newFakeTransport()
	store := NewMemoryStore()
	host := &Host{URL: "http://node", Dialect: DialectInternal}
	if err := store.UpsertHost(host); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}

	endpoint := "http://node/authors"
	transport.respond(pageURL(endpoint, 1, 2), 200, internalAuthorsPage("http://node/authors/1", "http://node/authors/2"))
	transport.respond(pageURL(endpoint, 2, 2), 200, internalAuthorsPage("http://node/authors/3"))
	transport.respond(pageURL(endpoint, 3, 2), 200, internalAuthorsPage())

	syncer := newTestSyncer(t, transport, store, 2)
	if !syncer.SyncAuthors(context.Background(), host) {
		t.Fatalf("expected host to be reached")
	}

	if got := transport.callCount(); got != 3 {
		t.Fatalf("expected 3 page fetches, got %d", got)
	}
	for _, u := range []string{"http://node/authors/1", "http://node/authors/2", "http://node/authors/3"} {
		if _, ok := store.AuthorByExternalURL(u); !ok {
			t.Fatalf("expected author %s stored", u)
		}
	}
}

func TestSyncAuthorsStopsOnErrorStatus(t *testing.T) {
	transport := newFakeTransport()
	store := NewMemoryStore()
	host := &Host{URL: "http://node", Dialect: DialectInternal}
	if err := store.UpsertHost(host); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}

	endpoint := "http://node/authors"
	transport.respond(pageURL(endpoint, 1, 2), 200, internalAuthorsPage("http://node/authors/1"))
	// page 2 is not configured, so the fake answers 404: the paginated
	// end-of-collection signal

	syncer := newTestSyncer(t, transport, store, 2)
	if !syncer.SyncAuthors(context.Background(), host) {
		t.Fatalf("expected host to be reached")
	}
	if got := transport.callCount(); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
	if _, ok := store.AuthorByExternalURL("http://node/authors/1"); !ok {
		t.Fatalf("page 1 results must survive the stop")
	}
}

func TestSyncAuthorsSkipsBadItems(t *testing.T) {
	transport := newFakeTransport()
	store := NewMemoryStore()
	host := &Host{URL: "http://node", Dialect: DialectInternal}
	if err := store.UpsertHost(host); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}

	page, _ := json.Marshal(map[string]any{
		"type": "authors",
		"items": []any{
			map[string]any{"url": "http://node/authors/1", "displayName": "One"},
			map[string]any{"displayName": "No URL"},
			map[string]any{"url": "http://node/authors/3", "displayName": "Three"},
		},
	})
	endpoint := "http://node/authors"
	transport.respond(pageURL(endpoint, 1, 100), 200, string(page))
	transport.respond(pageURL(endpoint, 2, 100), 200, internalAuthorsPage())

	syncer := newTestSyncer(t, transport, store, 0)
	syncer.SyncAuthors(context.Background(), host)

	if _, ok := store.AuthorByExternalURL("http://node/authors/1"); !ok {
		t.Fatalf("item before the bad one must be stored")
	}
	if _, ok := store.AuthorByExternalURL("http://node/authors/3"); !ok {
		t.Fatalf("item after the bad one must be stored")
	}
}

func TestSyncFollowersNotPaginatedForActivityDialect(t *testing.T) {
	transport := newFakeTransport()
	store := NewMemoryStore()
	host := &Host{URL: "http://node", Dialect: DialectActivity}
	if err := store.UpsertHost(host); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}
	hostID := host.ID
	author := &Author{ExternalURL: "http://node/authors/1", DisplayName: "Alice", HostID: &hostID}
	if err := store.CreateAuthor(author); err != nil {
		t.Fatalf("create author failed: %v", err)
	}

	// unpaginated endpoint: whole collection in one unqueried fetch
	transport.respond("http://node/authors/1/followers", 200, internalAuthorsPage("http://node/authors/2"))

	syncer := newTestSyncer(t, transport, store, 2)
	syncer.SyncFollowers(context.Background(), host, author)

	if got := transport.callCount(); got != 1 {
		t.Fatalf("expected a single fetch for an unpaginated collection, got %d", got)
	}
	follower, ok := store.AuthorByExternalURL("http://node/authors/2")
	if !ok {
		t.Fatalf("expected follower author stored")
	}
	if _, ok := store.FollowByPair(follower.ID, author.ID); !ok {
		t.Fatalf("expected follow edge follower->author")
	}
	if _, ok := store.FollowByPair(author.ID, follower.ID); ok {
		t.Fatalf("follow edge must not be symmetric")
	}
}

func TestSyncPostCommentsResolvesEmbeddedAuthor(t *testing.T) {
	transport := newFakeTransport()
	store := NewMemoryStore()
	host := &Host{URL: "http://node", Dialect: DialectInternal}
	if err := store.UpsertHost(host); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}
	hostID := host.ID
	author := &Author{ExternalURL: "http://node/authors/1", DisplayName: "Alice", HostID: &hostID}
	if err := store.CreateAuthor(author); err != nil {
		t.Fatalf("create author failed: %v", err)
	}
	post := &Post{ExternalURL: "http://node/authors/1/posts/1", AuthorID: author.ID, ContentType: "text/plain"}
	if err := store.CreatePost(post); err != nil {
		t.Fatalf("create post failed: %v", err)
	}

	page, _ := json.Marshal(map[string]any{
		"type": "comments",
		"comments": []any{
			map[string]any{
				"id":          "http://node/authors/1/posts/1/comments/1",
				"comment":     "nice",
				"contentType": "text/plain",
				"author": map[string]any{
					"url":         "http://other/authors/9",
					"displayName": "Visitor",
				},
			},
		},
	})
	endpoint := "http://node/authors/1/posts/1/comments"
	transport.respond(pageURL(endpoint, 1, 100), 200, string(page))
	transport.respond(pageURL(endpoint, 2, 100), 200, `{"type":"comments","comments":[]}`)

	syncer := newTestSyncer(t, transport, store, 0)
	syncer.SyncPostComments(context.Background(), host, post)

	commenter, ok := store.AuthorByExternalURL("http://other/authors/9")
	if !ok {
		t.Fatalf("expected embedded comment author upserted")
	}
	comments := store.CommentsByPost(post.ID)
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	if comments[0].AuthorID != commenter.ID {
		t.Fatalf("comment bound to wrong author")
	}
}

func TestSyncHostRecordsPing(t *testing.T) {
	transport := newFakeTransport()
	store := NewMemoryStore()
	host := &Host{URL: "http://down", Dialect: DialectInternal}
	if err := store.UpsertHost(host); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}
	transport.fail(pageURL("http://down/authors", 1, 100), fmt.Errorf("connection refused"))

	syncer := newTestSyncer(t, transport, store, 0)
	syncer.SyncHost(context.Background(), host)

	stored, ok := store.HostByID(host.ID)
	if !ok {
		t.Fatalf("host lost")
	}
	if stored.LastPing == nil || stored.LastPingOK {
		t.Fatalf("expected failed ping recorded, got %+v", stored)
	}
	if stored.LastSuccessfulPing != nil {
		t.Fatalf("unsuccessful ping must not update the success timestamp")
	}
}

func TestSyncAllHonorsContextCancel(t *testing.T) {
	transport := newFakeTransport()
	store := NewMemoryStore()
	hosts := make([]Host, 0, 3)
	for i := 1; i <= 3; i++ {
		host := Host{URL: fmt.Sprintf("http://node%d", i), Dialect: DialectInternal}
		if err := store.UpsertHost(&host); err != nil {
			t.Fatalf("upsert host failed: %v", err)
		}
		hosts = append(hosts, host)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	syncer := newTestSyncer(t, transport, store, 0)
	done := make(chan struct{})
	go func() {
		syncer.SyncAll(ctx, hosts)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("SyncAll did not return after cancellation")
	}
}
