package federation

import (
	"errors"
	"testing"
)

func newInboxFixture(t *testing.T) (*MemoryStore, *Dispatcher, *Author) {
	t.Helper()
	store := NewMemoryStore()
	owner := &Author{DisplayName: "Owner"}
	if err := store.CreateAuthor(owner); err != nil {
		t.Fatalf("create owner failed: %v", err)
	}
	return store, NewDispatcher(store, nil), owner
}

func wireAuthor(url, name string) map[string]any {
	return map[string]any{
		"type":        "author",
		"url":         url,
		"id":          url,
		"displayName": name,
	}
}

func TestDispatchPost(t *testing.T) {
	store, dispatcher, owner := newInboxFixture(t)

	entry, err := dispatcher.Dispatch(owner, nil, Wire{
		"type":   "post",
		"author": wireAuthor("http://other/authors/1", "Sender"),
		"object": map[string]any{
			"id":          "http://other/authors/1/posts/1",
			"title":       "hello",
			"content":     "body",
			"contentType": "text/plain",
		},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if entry.Kind != InboxPost {
		t.Fatalf("expected post entry, got %s", entry.Kind)
	}
	post, ok := store.PostByID(entry.ObjectID)
	if !ok {
		t.Fatalf("filed object missing from store")
	}
	if post.ExternalURL != "http://other/authors/1/posts/1" {
		t.Fatalf("unexpected post url %q", post.ExternalURL)
	}
	sender, ok := store.AuthorByExternalURL("http://other/authors/1")
	if !ok || post.AuthorID != sender.ID {
		t.Fatalf("post must be bound to the envelope author")
	}
}

func TestDispatchTypeIsCaseInsensitive(t *testing.T) {
	_, dispatcher, owner := newInboxFixture(t)
	entry, err := dispatcher.Dispatch(owner, nil, Wire{
		"type":   "Post",
		"author": wireAuthor("http://other/authors/1", "Sender"),
		"object": map[string]any{
			"id":          "http://other/authors/1/posts/1",
			"contentType": "text/plain",
		},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if entry.Kind != InboxPost {
		t.Fatalf("expected post entry, got %s", entry.Kind)
	}
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	_, dispatcher, owner := newInboxFixture(t)
	_, err := dispatcher.Dispatch(owner, nil, Wire{"type": "party"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation rejection, got %v", err)
	}
	if _, err := dispatcher.Dispatch(owner, nil, Wire{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation rejection for missing type, got %v", err)
	}
}

func TestDispatchComment(t *testing.T) {
	store, dispatcher, owner := newInboxFixture(t)

	author := &Author{ExternalURL: "http://node/authors/1", DisplayName: "Alice"}
	if err := store.CreateAuthor(author); err != nil {
		t.Fatalf("create author failed: %v", err)
	}
	post := &Post{ExternalURL: "http://node/authors/1/posts/1", AuthorID: author.ID, ContentType: "text/plain"}
	if err := store.CreatePost(post); err != nil {
		t.Fatalf("create post failed: %v", err)
	}

	entry, err := dispatcher.Dispatch(owner, nil, Wire{
		"type":   "comment",
		"author": wireAuthor("http://other/authors/9", "Visitor"),
		"object": "http://node/authors/1/posts/1",
		"comment": map[string]any{
			"id":          "http://other/comment-id-to-discard",
			"comment":     "nice post",
			"contentType": "text/plain",
		},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if entry.Kind != InboxComment {
		t.Fatalf("expected comment entry, got %s", entry.Kind)
	}
	comment, ok := store.CommentByID(entry.ObjectID)
	if !ok {
		t.Fatalf("comment missing from store")
	}
	if comment.PostID != post.ID {
		t.Fatalf("comment bound to wrong post")
	}
	if comment.ExternalURL != "" {
		t.Fatalf("pushed comment must mint a fresh local record, got url %q", comment.ExternalURL)
	}
}

func TestDispatchLikeRoutesOnCommentsPathSegment(t *testing.T) {
	store, dispatcher, owner := newInboxFixture(t)

	author := &Author{ExternalURL: "http://node/authors/1", DisplayName: "Alice"}
	if err := store.CreateAuthor(author); err != nil {
		t.Fatalf("create author failed: %v", err)
	}
	post := &Post{ExternalURL: "http://node/authors/1/posts/1", AuthorID: author.ID, ContentType: "text/plain"}
	if err := store.CreatePost(post); err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	comment := &Comment{
		ExternalURL: "http://node/authors/1/posts/1/comments/1",
		PostID:      post.ID,
		AuthorID:    author.ID,
		Comment:     "hi",
		ContentType: "text/plain",
	}
	if err := store.CreateComment(comment); err != nil {
		t.Fatalf("create comment failed: %v", err)
	}

	postLike, err := dispatcher.Dispatch(owner, nil, Wire{
		"type":    "like",
		"author":  wireAuthor("http://other/authors/9", "Visitor"),
		"object":  "http://node/authors/1/posts/1",
		"summary": "Visitor likes this",
	})
	if err != nil {
		t.Fatalf("post like dispatch failed: %v", err)
	}
	if postLike.Kind != InboxLike {
		t.Fatalf("expected post like entry, got %s", postLike.Kind)
	}

	commentLike, err := dispatcher.Dispatch(owner, nil, Wire{
		"type":    "like",
		"author":  wireAuthor("http://other/authors/9", "Visitor"),
		"object":  "http://node/authors/1/posts/1/comments/1",
		"summary": "Visitor likes this comment",
	})
	if err != nil {
		t.Fatalf("comment like dispatch failed: %v", err)
	}
	if commentLike.Kind != InboxCommentLike {
		t.Fatalf("expected comment like entry, got %s", commentLike.Kind)
	}
}

func TestDispatchLikeUnknownTargetRejected(t *testing.T) {
	_, dispatcher, owner := newInboxFixture(t)
	_, err := dispatcher.Dispatch(owner, nil, Wire{
		"type":    "like",
		"author":  wireAuthor("http://other/authors/9", "Visitor"),
		"object":  "http://node/authors/1/posts/unknown",
		"summary": "likes the void",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation rejection, got %v", err)
	}
}

func TestDispatchFollowCreatesRequestFromActorToObject(t *testing.T) {
	store, dispatcher, owner := newInboxFixture(t)

	entry, err := dispatcher.Dispatch(owner, nil, Wire{
		"type":   "follow",
		"actor":  wireAuthor("http://other/authors/1", "Requester"),
		"object": wireAuthor("http://node/authors/2", "Target"),
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if entry.Kind != InboxFollow {
		t.Fatalf("expected follow entry, got %s", entry.Kind)
	}

	actor, ok := store.AuthorByExternalURL("http://other/authors/1")
	if !ok {
		t.Fatalf("actor not created")
	}
	target, ok := store.AuthorByExternalURL("http://node/authors/2")
	if !ok {
		t.Fatalf("target not created")
	}
	if _, ok := store.FollowRequestByPair(actor.ID, target.ID); !ok {
		t.Fatalf("expected request actor->target")
	}
	if _, ok := store.FollowRequestByPair(target.ID, actor.ID); ok {
		t.Fatalf("request direction must not be reversed")
	}
}

func TestDispatchReReceiptFilesNewEntry(t *testing.T) {
	store, dispatcher, owner := newInboxFixture(t)

	envelope := Wire{
		"type":   "post",
		"author": wireAuthor("http://other/authors/1", "Sender"),
		"object": map[string]any{
			"id":          "http://other/authors/1/posts/1",
			"contentType": "text/plain",
		},
	}
	first, err := dispatcher.Dispatch(owner, nil, envelope)
	if err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	second, err := dispatcher.Dispatch(owner, nil, envelope)
	if err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}
	if first.ObjectID != second.ObjectID {
		t.Fatalf("re-receipt must upsert the same record")
	}
	if first.ID == second.ID {
		t.Fatalf("re-receipt must file a fresh inbox entry")
	}
	if got := len(store.InboxOf(owner.ID)); got != 2 {
		t.Fatalf("expected 2 inbox entries, got %d", got)
	}
}

func TestDispatchUsesOriginDialect(t *testing.T) {
	store, dispatcher, owner := newInboxFixture(t)
	origin := &Host{URL: "http://compat-node", Dialect: DialectCompat}
	if err := store.UpsertHost(origin); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}

	entry, err := dispatcher.Dispatch(owner, origin, Wire{
		"type": "post",
		"author": map[string]any{
			"url":          "http://compat-node/authors/1",
			"display_name": "Sender",
		},
		"object": map[string]any{
			"url":          "http://compat-node/authors/1/posts/1",
			"content_type": "text/plain",
		},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	post, ok := store.PostByID(entry.ObjectID)
	if !ok || post.ExternalURL != "http://compat-node/authors/1/posts/1" {
		t.Fatalf("compat envelope not mapped: %+v ok=%t", post, ok)
	}
	sender, ok := store.AuthorByExternalURL("http://compat-node/authors/1")
	if !ok {
		t.Fatalf("sender not created")
	}
	if sender.HostID == nil || *sender.HostID != origin.ID {
		t.Fatalf("sender must be bound to the origin host")
	}
}

func TestPathHasCommentsSegment(t *testing.T) {
	cases := map[string]bool{
		"http://node/posts/1/comments/2": true,
		"http://node/posts/1":            false,
		"http://node/commentsandmore/1":  false,
	}
	for url, want := range cases {
		if got := pathHasCommentsSegment(url); got != want {
			t.Fatalf("pathHasCommentsSegment(%q) = %t, want %t", url, got, want)
		}
	}
}

func TestDispatchNilOwnerRejected(t *testing.T) {
	_, dispatcher, _ := newInboxFixture(t)
	if _, err := dispatcher.Dispatch(nil, nil, Wire{"type": "post"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation rejection, got %v", err)
	}
}
