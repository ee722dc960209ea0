package federation

import (
	"strings"

	"github.com/google/uuid"
)

// Dispatcher classifies inbound push payloads by declared type and applies
// them through the upsert transformers. Rejections surface as validation
// errors so the caller can answer the push with a distinguishable refusal.
type Dispatcher struct {
	store    Store
	upserter *Upserter
	logger   Logger
}

func NewDispatcher(store Store, logger Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		upserter: NewUpserter(store),
		logger:   logger,
	}
}

// Dispatch applies one envelope for the given inbox owner. origin is the
// authenticated sender's host when known; an unknown origin is treated as
// speaking the internal dialect. The stored inbox entry comes back on
// success so callers can report what was filed.
func (d *Dispatcher) Dispatch(owner *Author, origin *Host, envelope Wire) (*InboxEntry, error) {
	if owner == nil {
		return nil, validationErrorf("inbox", "owner is required")
	}
	tag := DialectInternal
	if origin != nil {
		tag = origin.Dialect
	}
	dialect, err := ForTag(tag)
	if err != nil {
		return nil, err
	}

	declared, err := dialect.ActivityType(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing activity type: %v", err)
	}

	switch declared {
	case "post":
		return d.dispatchPost(owner, origin, dialect, envelope)
	case "like":
		return d.dispatchLike(owner, origin, dialect, envelope)
	case "comment":
		return d.dispatchComment(owner, origin, dialect, envelope)
	case "follow":
		return d.dispatchFollow(owner, dialect, envelope)
	default:
		return nil, validationErrorf("inbox", "unsupported activity type %q", declared)
	}
}

func (d *Dispatcher) dispatchPost(owner *Author, origin *Host, dialect Dialect, envelope Wire) (*InboxEntry, error) {
	author, err := d.envelopeAuthor(dialect, envelope, origin)
	if err != nil {
		return nil, err
	}
	object, err := dialect.ActivityObject(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing post object: %v", err)
	}
	fields, err := dialect.MapPostIn(object)
	if err != nil {
		return nil, validationErrorf("inbox", "bad post object: %v", err)
	}
	post, err := d.upserter.UpsertPost(fields, author)
	if err != nil {
		return nil, err
	}
	return d.file(owner, InboxPost, post.ID)
}

// Likes route on the referenced URL's path: a comments segment means the
// target is a comment, anything else means a post. A target that does not
// resolve locally rejects the whole envelope.
func (d *Dispatcher) dispatchLike(owner *Author, origin *Host, dialect Dialect, envelope Wire) (*InboxEntry, error) {
	objectURL, err := dialect.ActivityObjectURL(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing like object url: %v", err)
	}
	object, err := dialect.ActivityObject(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing like object: %v", err)
	}

	if pathHasCommentsSegment(objectURL) {
		comment, found := d.upserter.Resolver().Comment(objectURL)
		if !found {
			return nil, validationErrorf("inbox", "liked comment %s not found", objectURL)
		}
		author, err := d.envelopeAuthor(dialect, envelope, origin)
		if err != nil {
			return nil, err
		}
		fields, err := dialect.MapCommentLikeIn(object)
		if err != nil {
			return nil, validationErrorf("inbox", "bad like object: %v", err)
		}
		like, err := d.upserter.UpsertCommentLike(fields, comment, author)
		if err != nil {
			return nil, err
		}
		return d.file(owner, InboxCommentLike, like.ID)
	}

	post, found := d.upserter.Resolver().Post(objectURL)
	if !found {
		return nil, validationErrorf("inbox", "liked post %s not found", objectURL)
	}
	author, err := d.envelopeAuthor(dialect, envelope, origin)
	if err != nil {
		return nil, err
	}
	fields, err := dialect.MapPostLikeIn(object)
	if err != nil {
		return nil, validationErrorf("inbox", "bad like object: %v", err)
	}
	like, err := d.upserter.UpsertPostLike(fields, post, author)
	if err != nil {
		return nil, err
	}
	return d.file(owner, InboxLike, like.ID)
}

func (d *Dispatcher) dispatchComment(owner *Author, origin *Host, dialect Dialect, envelope Wire) (*InboxEntry, error) {
	objectURL, err := dialect.ActivityObjectURL(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing comment post url: %v", err)
	}
	post, found := d.upserter.Resolver().Post(objectURL)
	if !found {
		return nil, validationErrorf("inbox", "commented post %s not found", objectURL)
	}
	author, err := d.envelopeAuthor(dialect, envelope, origin)
	if err != nil {
		return nil, err
	}
	object, err := dialect.ActivityObject(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing comment object: %v", err)
	}
	fields, err := dialect.MapCommentIn(object)
	if err != nil {
		return nil, validationErrorf("inbox", "bad comment object: %v", err)
	}
	comment, err := d.upserter.UpsertComment(fields, post, author)
	if err != nil {
		return nil, err
	}
	return d.file(owner, InboxComment, comment.ID)
}

// Follows resolve or create both parties, then record one pending
// follow request from actor to object.
func (d *Dispatcher) dispatchFollow(owner *Author, dialect Dialect, envelope Wire) (*InboxEntry, error) {
	actorWire, objectWire, err := dialect.FollowActors(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing follow actors: %v", err)
	}
	actorFields, err := dialect.MapAuthorIn(actorWire)
	if err != nil {
		return nil, validationErrorf("inbox", "bad follow actor: %v", err)
	}
	actor, err := d.upserter.UpsertAuthor(actorFields, nil)
	if err != nil {
		return nil, err
	}
	objectFields, err := dialect.MapAuthorIn(objectWire)
	if err != nil {
		return nil, validationErrorf("inbox", "bad follow object: %v", err)
	}
	followee, err := d.upserter.UpsertAuthor(objectFields, nil)
	if err != nil {
		return nil, err
	}
	request, err := d.upserter.UpsertFollowRequest(actor, followee)
	if err != nil {
		return nil, err
	}
	return d.file(owner, InboxFollow, request.ID)
}

func (d *Dispatcher) envelopeAuthor(dialect Dialect, envelope Wire, origin *Host) (*Author, error) {
	raw, err := dialect.ActivityAuthor(envelope)
	if err != nil {
		return nil, validationErrorf("inbox", "missing author: %v", err)
	}
	fields, err := dialect.MapAuthorIn(raw)
	if err != nil {
		return nil, validationErrorf("inbox", "bad author: %v", err)
	}
	author, err := d.upserter.UpsertAuthor(fields, origin)
	if err != nil {
		return nil, err
	}
	return author, nil
}

func (d *Dispatcher) file(owner *Author, kind InboxKind, objectID uuid.UUID) (*InboxEntry, error) {
	entry := &InboxEntry{OwnerID: owner.ID, Kind: kind, ObjectID: objectID}
	if err := d.store.AddInboxEntry(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func pathHasCommentsSegment(rawURL string) bool {
	for _, segment := range strings.Split(rawURL, "/") {
		if segment == "comments" {
			return true
		}
	}
	return false
}
