package federation

import (
	"time"

	"github.com/google/uuid"
)

// DialectTag names the wire-protocol variant a remote host speaks. The set is
// closed: every tag maps to exactly one Dialect implementation, and an unknown
// tag is a configuration error, never a runtime one.
type DialectTag string

const (
	DialectInternal DialectTag = "internal"
	DialectActivity DialectTag = "activity"
	DialectCompat   DialectTag = "compat"
)

// Host is a remote federation endpoint.
type Host struct {
	ID       uuid.UUID  `json:"id"`
	URL      string     `json:"url"`
	Dialect  DialectTag `json:"dialect"`
	AuthB64  string     `json:"auth,omitempty"`
	Nickname string     `json:"nickname,omitempty"`

	LastPing           *time.Time `json:"lastPing,omitempty"`
	LastPingOK         bool       `json:"lastPingOk,omitempty"`
	LastSuccessfulPing *time.Time `json:"lastSuccessfulPing,omitempty"`
}

// Author is the canonical author record. A local author has no external URL;
// a remote author carries the URL it is known by on its host; a temporary
// author has an external URL but no host (seen only through embedded
// references, never synced directly).
type Author struct {
	ID           uuid.UUID  `json:"id"`
	HostID       *uuid.UUID `json:"hostId,omitempty"`
	ExternalURL  string     `json:"externalUrl,omitempty"`
	DisplayName  string     `json:"displayName"`
	GitHub       string     `json:"github,omitempty"`
	ProfileImage string     `json:"profileImage,omitempty"`
}

func (a *Author) IsLocal() bool     { return a.ExternalURL == "" }
func (a *Author) IsRemote() bool    { return a.ExternalURL != "" }
func (a *Author) IsTemporary() bool { return a.ExternalURL != "" && a.HostID == nil }

type Post struct {
	ID          uuid.UUID `json:"id"`
	AuthorID    uuid.UUID `json:"authorId"`
	ExternalURL string    `json:"externalUrl,omitempty"`
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	Description string    `json:"description"`
	ContentType string    `json:"contentType"`
	Content     string    `json:"content"`
	Categories  []string  `json:"categories,omitempty"`
	Published   string    `json:"published,omitempty"`
	Visibility  string    `json:"visibility"`
	Unlisted    bool      `json:"unlisted"`
}

type Comment struct {
	ID          uuid.UUID `json:"id"`
	PostID      uuid.UUID `json:"postId"`
	AuthorID    uuid.UUID `json:"authorId"`
	ExternalURL string    `json:"externalUrl,omitempty"`
	Comment     string    `json:"comment"`
	ContentType string    `json:"contentType"`
	Published   string    `json:"published,omitempty"`
}

// PostLike and CommentLike carry no external URL: no supported dialect
// exposes one, so their identity key is the (author, parent) pair.
type PostLike struct {
	ID       uuid.UUID `json:"id"`
	PostID   uuid.UUID `json:"postId"`
	AuthorID uuid.UUID `json:"authorId"`
	Summary  string    `json:"summary,omitempty"`
}

type CommentLike struct {
	ID        uuid.UUID `json:"id"`
	CommentID uuid.UUID `json:"commentId"`
	AuthorID  uuid.UUID `json:"authorId"`
	Summary   string    `json:"summary,omitempty"`
}

type Follow struct {
	ID          uuid.UUID `json:"id"`
	FollowerID  uuid.UUID `json:"followerId"`
	FollowingID uuid.UUID `json:"followingId"`
}

// FollowRequest is the two-sided pending relationship produced by an inbound
// follow activity: From asks to follow To.
type FollowRequest struct {
	ID     uuid.UUID `json:"id"`
	FromID uuid.UUID `json:"fromId"`
	ToID   uuid.UUID `json:"toId"`
}

// InboxKind tags what an inbox entry points at.
type InboxKind string

const (
	InboxPost        InboxKind = "post"
	InboxComment     InboxKind = "comment"
	InboxFollow      InboxKind = "follow"
	InboxLike        InboxKind = "like"
	InboxCommentLike InboxKind = "commentlike"
)

// InboxEntry is delivery bookkeeping: the record identified by ObjectID was
// filed into OwnerID's inbox. Appending an entry for a remote owner is the
// trigger for outbound delivery.
type InboxEntry struct {
	ID       uuid.UUID `json:"id"`
	OwnerID  uuid.UUID `json:"ownerId"`
	Kind     InboxKind `json:"kind"`
	ObjectID uuid.UUID `json:"objectId"`
	Added    time.Time `json:"added"`
}

// Event is an append-only observability record. The sync core never reads
// events back; they feed the HTTP event stream only.
type Event struct {
	EventID   string    `json:"eventId"`
	Kind      string    `json:"kind"`
	Action    string    `json:"action"`
	RecordID  string    `json:"recordId"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type EventFeed struct {
	Events     []Event `json:"events"`
	NextCursor *string `json:"nextCursor"`
}
