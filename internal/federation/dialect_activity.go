package federation

import (
	"fmt"
	"strings"
)

// activityDialect covers remote nodes that serve activity-style payloads.
// Only posts, authors and comments paginate; follower and like collections
// come back whole. Empty strings stand in for null on the wire in both
// directions, and inline image posts carry data-URI prefixed base64 content.
type activityDialect struct{}

func (d *activityDialect) Tag() DialectTag { return DialectActivity }

func (d *activityDialect) Traits() Traits {
	return Traits{
		PaginateAuthors:      true,
		PaginatePosts:        true,
		PaginateComments:     true,
		PaginateFollowers:    false,
		PaginatePostLikes:    false,
		PaginateCommentLikes: false,
		InboxTrailingSlash:   true,
	}
}

func (d *activityDialect) Items(body any, kind CollectionKind) ([]Wire, error) {
	wrapper, err := AsWire(body)
	if err != nil {
		return nil, err
	}
	raw, ok := wrapper["items"]
	if !ok {
		return nil, validationErrorf("collection", "missing %q list", "items")
	}
	return AsWireList(raw)
}

func (d *activityDialect) MapAuthorIn(item Wire) (Wire, error) {
	url, err := item.String("url")
	if err != nil {
		return nil, err
	}
	displayName, err := item.OptString("displayName", "")
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = fmt.Sprintf("Undefined display name (%s)", url)
	}
	profileImage, err := item.OptString("profileImage", "")
	if err != nil {
		return nil, err
	}
	github, err := item.OptString("github", "")
	if err != nil {
		return nil, err
	}
	return Wire{
		"external_url":  url,
		"display_name":  displayName,
		"profile_image": profileImage,
		"github":        github,
	}, nil
}

func (d *activityDialect) MapPostIn(item Wire) (Wire, error) {
	id, err := item.String("id")
	if err != nil {
		return nil, err
	}
	contentType, err := item.String("contentType")
	if err != nil {
		return nil, err
	}
	content, err := item.OptString("content", "")
	if err != nil {
		return nil, err
	}
	// inline images arrive as data URIs; the payload after the comma is the
	// raw base64 the canonical record stores
	if contentType == "image/png;base64" || contentType == "image/jpeg;base64" {
		if idx := strings.Index(content, ","); idx >= 0 {
			content = content[idx+1:]
		}
	}
	if content == "" {
		content = fmt.Sprintf("Undefined content (%s)", id)
	}
	title, err := item.OptString("title", "")
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = fmt.Sprintf("Undefined title (%s)", id)
	}
	description, err := item.OptString("description", "")
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = fmt.Sprintf("Undefined description (%s)", id)
	}
	source, err := item.OptString("source", "")
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = id
	}
	origin, err := item.OptString("origin", "")
	if err != nil {
		return nil, err
	}
	if origin == "" {
		origin = id
	}
	published, err := item.OptString("published", "")
	if err != nil {
		return nil, err
	}
	visibility, err := item.OptString("visibility", "PUBLIC")
	if err != nil {
		return nil, err
	}
	unlisted, err := item.OptBool("unlisted", false)
	if err != nil {
		return nil, err
	}
	return Wire{
		"external_url": id,
		"title":        title,
		"source":       source,
		"origin":       origin,
		"description":  description,
		"content":      content,
		"content_type": contentType,
		"published":    published,
		"visibility":   visibility,
		"unlisted":     unlisted,
	}, nil
}

func (d *activityDialect) MapCommentIn(item Wire) (Wire, error) {
	externalURL, err := item.OptString("id", "")
	if err != nil {
		return nil, err
	}
	comment, err := item.String("comment")
	if err != nil {
		return nil, err
	}
	contentType, err := item.String("contentType")
	if err != nil {
		return nil, err
	}
	published, err := item.OptString("published", "")
	if err != nil {
		return nil, err
	}
	return Wire{
		"external_url": externalURL,
		"comment":      comment,
		"content_type": contentType,
		"published":    published,
	}, nil
}

func (d *activityDialect) MapPostLikeIn(item Wire) (Wire, error) {
	return mapLikeIn(item)
}

func (d *activityDialect) MapCommentLikeIn(item Wire) (Wire, error) {
	return mapLikeIn(item)
}

func (d *activityDialect) MapFollowerIn(item Wire) (Wire, error) {
	return Wire{}, nil
}

func (d *activityDialect) ActivityType(envelope Wire) (string, error) {
	declared, err := envelope.String("type")
	if err != nil {
		return "", err
	}
	return strings.ToLower(declared), nil
}

// Posts carry their author under "author"; comments and likes name the
// sender under "actor".
func (d *activityDialect) ActivityAuthor(envelope Wire) (Wire, error) {
	declared, err := d.ActivityType(envelope)
	if err != nil {
		return nil, err
	}
	if declared == "post" {
		return envelope.Object("author")
	}
	return envelope.Object("actor")
}

func (d *activityDialect) ActivityObject(envelope Wire) (Wire, error) {
	declared, err := d.ActivityType(envelope)
	if err != nil {
		return nil, err
	}
	switch declared {
	case "comment":
		object, err := envelope.Object("comment")
		if err != nil {
			return nil, err
		}
		cleaned := object.Clone()
		delete(cleaned, "id")
		return cleaned, nil
	case "like":
		return envelope.Clone(), nil
	default:
		return envelope.Object("object")
	}
}

func (d *activityDialect) ActivityObjectURL(envelope Wire) (string, error) {
	return envelope.String("object")
}

func (d *activityDialect) FollowActors(envelope Wire) (Wire, Wire, error) {
	actor, err := envelope.Object("actor")
	if err != nil {
		return nil, nil, err
	}
	object, err := envelope.Object("object")
	if err != nil {
		return nil, nil, err
	}
	return actor, object, nil
}

func (d *activityDialect) MapPostOut(post Post, author Author) Wire {
	wire := NativePostWire(post)
	wire["type"] = "post"
	wire["author"] = NativeAuthorWire(author)
	return rewriteNullsToEmpty(wire)
}

func (d *activityDialect) MapCommentOut(comment Comment, author Author, post Post) Wire {
	wire := Wire{
		"type":    "comment",
		"actor":   NativeAuthorWire(author),
		"object":  post.ExternalURL,
		"comment": NativeCommentWire(comment),
	}
	return rewriteNullsToEmpty(wire)
}

func (d *activityDialect) MapLikeOut(summary string, author Author, objectURL string) Wire {
	wire := Wire{
		"type":    "like",
		"actor":   NativeAuthorWire(author),
		"object":  objectURL,
		"summary": summary,
	}
	return rewriteNullsToEmpty(wire)
}

func (d *activityDialect) MapFollowOut(follower Author, following Author) Wire {
	wire := Wire{
		"type":   "follow",
		"actor":  NativeAuthorWire(follower),
		"object": NativeAuthorWire(following),
	}
	return rewriteNullsToEmpty(wire)
}

func (d *activityDialect) InboxURL(authorURL string) string {
	return inboxURL(authorURL, d.Traits().InboxTrailingSlash)
}

// rewriteNullsToEmpty replaces nil values with empty strings through nested
// objects. The receiving nodes reject JSON nulls outright.
func rewriteNullsToEmpty(wire Wire) Wire {
	for key, value := range wire {
		switch typed := value.(type) {
		case nil:
			wire[key] = ""
		case Wire:
			wire[key] = rewriteNullsToEmpty(typed)
		case map[string]any:
			wire[key] = rewriteNullsToEmpty(Wire(typed))
		}
	}
	return wire
}
