package federation

import "strings"

// internalDialect speaks the bridge's own wire format. Every collection is
// paginated and wrapped in an object envelope; comments sit under a
// "comments" key, everything else under "items". Outbound payloads pass
// through unmodified.
type internalDialect struct{}

func (d *internalDialect) Tag() DialectTag { return DialectInternal }

func (d *internalDialect) Traits() Traits {
	return Traits{
		PaginateAuthors:      true,
		PaginatePosts:        true,
		PaginateComments:     true,
		PaginateFollowers:    true,
		PaginatePostLikes:    true,
		PaginateCommentLikes: true,
		InboxTrailingSlash:   true,
	}
}

func (d *internalDialect) Items(body any, kind CollectionKind) ([]Wire, error) {
	wrapper, err := AsWire(body)
	if err != nil {
		return nil, err
	}
	key := "items"
	if kind == CollectionComments {
		key = "comments"
	}
	raw, ok := wrapper[key]
	if !ok {
		return nil, validationErrorf("collection", "missing %q list", key)
	}
	return AsWireList(raw)
}

func (d *internalDialect) MapAuthorIn(item Wire) (Wire, error) {
	url, err := item.String("url")
	if err != nil {
		return nil, err
	}
	displayName, err := item.String("displayName")
	if err != nil {
		return nil, err
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

func (d *internalDialect) MapPostIn(item Wire) (Wire, error) {
	id, err := item.String("id")
	if err != nil {
		return nil, err
	}
	title, err := item.OptString("title", "")
	if err != nil {
		return nil, err
	}
	source, err := item.OptString("source", "")
	if err != nil {
		return nil, err
	}
	origin, err := item.OptString("origin", "")
	if err != nil {
		return nil, err
	}
	description, err := item.OptString("description", "")
	if err != nil {
		return nil, err
	}
	content, err := item.OptString("content", "")
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

func (d *internalDialect) MapCommentIn(item Wire) (Wire, error) {
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

func (d *internalDialect) MapPostLikeIn(item Wire) (Wire, error) {
	return mapLikeIn(item)
}

func (d *internalDialect) MapCommentLikeIn(item Wire) (Wire, error) {
	return mapLikeIn(item)
}

// Follower items are author records; the follower relationship itself carries
// no fields of its own.
func (d *internalDialect) MapFollowerIn(item Wire) (Wire, error) {
	return Wire{}, nil
}

func (d *internalDialect) ActivityType(envelope Wire) (string, error) {
	declared, err := envelope.String("type")
	if err != nil {
		return "", err
	}
	return strings.ToLower(declared), nil
}

func (d *internalDialect) ActivityAuthor(envelope Wire) (Wire, error) {
	return envelope.Object("author")
}

func (d *internalDialect) ActivityObject(envelope Wire) (Wire, error) {
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
		// a fresh local comment record gets minted, never adopted
		cleaned := object.Clone()
		delete(cleaned, "id")
		delete(cleaned, "url")
		return cleaned, nil
	case "like":
		return envelope.Clone(), nil
	default:
		return envelope.Object("object")
	}
}

func (d *internalDialect) ActivityObjectURL(envelope Wire) (string, error) {
	return envelope.String("object")
}

func (d *internalDialect) FollowActors(envelope Wire) (Wire, Wire, error) {
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

func (d *internalDialect) MapPostOut(post Post, author Author) Wire {
	wire := NativePostWire(post)
	wire["type"] = "post"
	wire["author"] = NativeAuthorWire(author)
	return wire
}

func (d *internalDialect) MapCommentOut(comment Comment, author Author, post Post) Wire {
	return Wire{
		"type":    "comment",
		"author":  NativeAuthorWire(author),
		"object":  post.ExternalURL,
		"comment": NativeCommentWire(comment),
	}
}

func (d *internalDialect) MapLikeOut(summary string, author Author, objectURL string) Wire {
	return Wire{
		"type":    "like",
		"author":  NativeAuthorWire(author),
		"object":  objectURL,
		"summary": summary,
	}
}

func (d *internalDialect) MapFollowOut(follower Author, following Author) Wire {
	return Wire{
		"type":   "follow",
		"actor":  NativeAuthorWire(follower),
		"object": NativeAuthorWire(following),
	}
}

func (d *internalDialect) InboxURL(authorURL string) string {
	return inboxURL(authorURL, d.Traits().InboxTrailingSlash)
}

func mapLikeIn(item Wire) (Wire, error) {
	summary, err := item.OptString("summary", "")
	if err != nil {
		return nil, err
	}
	return Wire{"summary": summary}, nil
}

// NativeAuthorWire renders an author in the bridge's own wire shape. Callers
// fill ExternalURL for local records before rendering.
func NativeAuthorWire(author Author) Wire {
	return Wire{
		"type":         "author",
		"url":          author.ExternalURL,
		"id":           author.ExternalURL,
		"displayName":  author.DisplayName,
		"profileImage": author.ProfileImage,
		"github":       author.GitHub,
	}
}

func NativePostWire(post Post) Wire {
	return Wire{
		"id":          post.ExternalURL,
		"title":       post.Title,
		"source":      post.Source,
		"origin":      post.Origin,
		"description": post.Description,
		"contentType": post.ContentType,
		"content":     post.Content,
		"published":   post.Published,
		"visibility":  post.Visibility,
		"unlisted":    post.Unlisted,
	}
}

func NativeCommentWire(comment Comment) Wire {
	return Wire{
		"id":          comment.ExternalURL,
		"comment":     comment.Comment,
		"contentType": comment.ContentType,
		"published":   comment.Published,
	}
}
