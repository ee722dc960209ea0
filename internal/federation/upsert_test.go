package federation

import (
	"errors"
	"testing"
)

func authorFields(url, name string) Wire {
	return Wire{
		"external_url":  url,
		"display_name":  name,
		"profile_image": "",
		"github":        "",
	}
}

func postFields(url string) Wire {
	return Wire{
		"external_url": url,
		"title":        "t",
		"content":      "c",
		"content_type": "text/plain",
	}
}

func TestUpsertAuthorIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	first, err := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	second, err := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice Updated"), nil)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same record, got %s and %s", first.ID, second.ID)
	}
	if second.DisplayName != "Alice Updated" {
		t.Fatalf("expected mutable fields refreshed, got %q", second.DisplayName)
	}
}

func TestUpsertAuthorMatchesURLVariants(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	first, err := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	second, err := u.UpsertAuthor(authorFields("https://node/authors/1/", "Alice"), nil)
	if err != nil {
		t.Fatalf("variant upsert failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("scheme and slash variants must resolve to one record")
	}
}

func TestUpsertAuthorAttachesHostOnFirstSight(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	host := &Host{URL: "http://node", Dialect: DialectInternal}
	if err := store.UpsertHost(host); err != nil {
		t.Fatalf("upsert host failed: %v", err)
	}

	author, err := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if author.HostID != nil {
		t.Fatalf("author should start unbound")
	}

	author, err = u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), host)
	if err != nil {
		t.Fatalf("host-bound upsert failed: %v", err)
	}
	if author.HostID == nil || *author.HostID != host.ID {
		t.Fatalf("expected author bound to host")
	}

	other := &Host{URL: "http://other", Dialect: DialectInternal}
	if err := store.UpsertHost(other); err != nil {
		t.Fatalf("upsert other host failed: %v", err)
	}
	if _, err := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), other); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error on host mismatch, got %v", err)
	}
}

func TestUpsertAuthorRejectsMissingFields(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	if _, err := u.UpsertAuthor(Wire{"external_url": "http://node/authors/1"}, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing display_name, got %v", err)
	}
	if _, err := u.UpsertAuthor(Wire{"display_name": "Alice"}, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing external_url, got %v", err)
	}
}

func TestUpsertPostRejectsAuthorMismatch(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	alice, err := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	if err != nil {
		t.Fatalf("upsert alice failed: %v", err)
	}
	bob, err := u.UpsertAuthor(authorFields("http://node/authors/2", "Bob"), nil)
	if err != nil {
		t.Fatalf("upsert bob failed: %v", err)
	}

	if _, err := u.UpsertPost(postFields("http://node/authors/1/posts/1"), alice); err != nil {
		t.Fatalf("upsert post failed: %v", err)
	}
	if _, err := u.UpsertPost(postFields("http://node/authors/1/posts/1"), bob); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error on author mismatch, got %v", err)
	}
}

func TestUpsertPostUpdatesInPlace(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	author, err := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	if err != nil {
		t.Fatalf("upsert author failed: %v", err)
	}
	first, err := u.UpsertPost(postFields("http://node/authors/1/posts/1"), author)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	fields := postFields("http://node/authors/1/posts/1")
	fields["title"] = "updated"
	second, err := u.UpsertPost(fields, author)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected stable post id")
	}
	if second.Title != "updated" {
		t.Fatalf("expected title updated, got %q", second.Title)
	}
}

func TestUpsertCommentWithoutURLCreatesFreshRecords(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	author, _ := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	post, _ := u.UpsertPost(postFields("http://node/authors/1/posts/1"), author)

	fields := Wire{"comment": "hi", "content_type": "text/plain"}
	first, err := u.UpsertComment(fields, post, author)
	if err != nil {
		t.Fatalf("first comment failed: %v", err)
	}
	second, err := u.UpsertComment(fields, post, author)
	if err != nil {
		t.Fatalf("second comment failed: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("comments without external identifiers must mint fresh records")
	}
}

func TestUpsertCommentRejectsParentMismatch(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	author, _ := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	postA, _ := u.UpsertPost(postFields("http://node/authors/1/posts/1"), author)
	postB, _ := u.UpsertPost(postFields("http://node/authors/1/posts/2"), author)

	fields := Wire{
		"external_url": "http://node/authors/1/posts/1/comments/1",
		"comment":      "hi",
		"content_type": "text/plain",
	}
	if _, err := u.UpsertComment(fields, postA, author); err != nil {
		t.Fatalf("comment on post A failed: %v", err)
	}
	if _, err := u.UpsertComment(fields, postB, author); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error on post mismatch, got %v", err)
	}
}

func TestUpsertLikeIdentityIsAuthorTargetPair(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	author, _ := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	post, _ := u.UpsertPost(postFields("http://node/authors/1/posts/1"), author)

	first, err := u.UpsertPostLike(Wire{"summary": "Alice likes this"}, post, author)
	if err != nil {
		t.Fatalf("first like failed: %v", err)
	}
	second, err := u.UpsertPostLike(Wire{"summary": "Alice still likes this"}, post, author)
	if err != nil {
		t.Fatalf("second like failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeated like from same author must not duplicate")
	}
	if second.Summary != "Alice still likes this" {
		t.Fatalf("expected summary refreshed, got %q", second.Summary)
	}
}

func TestUpsertFollowerDedupesAndRejectsSelfFollow(t *testing.T) {
	store := NewMemoryStore()
	u := NewUpserter(store)

	alice, _ := u.UpsertAuthor(authorFields("http://node/authors/1", "Alice"), nil)
	bob, _ := u.UpsertAuthor(authorFields("http://node/authors/2", "Bob"), nil)

	first, err := u.UpsertFollower(alice, bob)
	if err != nil {
		t.Fatalf("follow failed: %v", err)
	}
	second, err := u.UpsertFollower(alice, bob)
	if err != nil {
		t.Fatalf("repeated follow failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeated follow must not duplicate")
	}
	if _, err := u.UpsertFollower(alice, alice); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error on self-follow, got %v", err)
	}
}
