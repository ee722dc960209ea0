package federation

import (
	"fmt"
	"strings"
)

// CollectionKind names a remote collection for envelope unwrapping and for
// the pagination traits lookup.
type CollectionKind string

const (
	CollectionAuthors      CollectionKind = "authors"
	CollectionPosts        CollectionKind = "posts"
	CollectionComments     CollectionKind = "comments"
	CollectionFollowers    CollectionKind = "followers"
	CollectionPostLikes    CollectionKind = "postlikes"
	CollectionCommentLikes CollectionKind = "commentlikes"
)

// Traits are the per-dialect quirk flags that parameterize the sync engine
// and outbound delivery instead of being hardcoded there.
type Traits struct {
	PaginateAuthors      bool
	PaginatePosts        bool
	PaginateComments     bool
	PaginateFollowers    bool
	PaginatePostLikes    bool
	PaginateCommentLikes bool
	InboxTrailingSlash   bool
}

func (t Traits) Paginates(kind CollectionKind) bool {
	switch kind {
	case CollectionAuthors:
		return t.PaginateAuthors
	case CollectionPosts:
		return t.PaginatePosts
	case CollectionComments:
		return t.PaginateComments
	case CollectionFollowers:
		return t.PaginateFollowers
	case CollectionPostLikes:
		return t.PaginatePostLikes
	case CollectionCommentLikes:
		return t.PaginateCommentLikes
	default:
		return false
	}
}

// Dialect translates between one remote protocol flavor and the canonical
// field maps the upsert transformers consume. Implementations are stateless
// and safe to share across goroutines.
//
// Inbound Map* functions return canonical field maps keyed by the names the
// upsert schemas validate. Outbound Map*Out functions return the wire shape
// the dialect's inbox expects to receive.
type Dialect interface {
	Tag() DialectTag
	Traits() Traits

	Items(body any, kind CollectionKind) ([]Wire, error)

	MapAuthorIn(item Wire) (Wire, error)
	MapPostIn(item Wire) (Wire, error)
	MapCommentIn(item Wire) (Wire, error)
	MapPostLikeIn(item Wire) (Wire, error)
	MapCommentLikeIn(item Wire) (Wire, error)
	MapFollowerIn(item Wire) (Wire, error)

	ActivityType(envelope Wire) (string, error)
	ActivityAuthor(envelope Wire) (Wire, error)
	ActivityObject(envelope Wire) (Wire, error)
	ActivityObjectURL(envelope Wire) (string, error)
	FollowActors(envelope Wire) (actor Wire, object Wire, err error)

	MapPostOut(post Post, author Author) Wire
	MapCommentOut(comment Comment, author Author, post Post) Wire
	MapLikeOut(summary string, author Author, objectURL string) Wire
	MapFollowOut(follower Author, following Author) Wire

	InboxURL(authorURL string) string
}

var dialectRegistry = map[DialectTag]Dialect{
	DialectInternal: &internalDialect{},
	DialectActivity: &activityDialect{},
	DialectCompat:   &compatDialect{},
}

// ForTag resolves a dialect tag to its adapter. An unknown tag is a
// configuration error; callers at startup should treat it as fatal.
func ForTag(tag DialectTag) (Dialect, error) {
	normalized := DialectTag(strings.ToLower(strings.TrimSpace(string(tag))))
	dialect, ok := dialectRegistry[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, tag)
	}
	return dialect, nil
}

func DialectTags() []DialectTag {
	tags := make([]DialectTag, 0, len(dialectRegistry))
	for tag := range dialectRegistry {
		tags = append(tags, tag)
	}
	return tags
}

// inboxURL joins an author URL with the inbox suffix, honoring the
// trailing-slash quirk.
func inboxURL(authorURL string, trailingSlash bool) string {
	base := strings.TrimRight(strings.TrimSpace(authorURL), "/")
	if trailingSlash {
		return base + "/inbox/"
	}
	return base + "/inbox"
}
