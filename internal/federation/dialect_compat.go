package federation

import "strings"

// compatDialect covers nodes that expose bare JSON arrays for every
// collection and snake_case field names on the wire. All collections
// paginate and the inbox path takes no trailing slash.
type compatDialect struct{}

func (d *compatDialect) Tag() DialectTag { return DialectCompat }

func (d *compatDialect) Traits() Traits {
	return Traits{
		PaginateAuthors:      true,
		PaginatePosts:        true,
		PaginateComments:     true,
		PaginateFollowers:    true,
		PaginatePostLikes:    true,
		PaginateCommentLikes: true,
		InboxTrailingSlash:   false,
	}
}

func (d *compatDialect) Items(body any, kind CollectionKind) ([]Wire, error) {
	return AsWireList(body)
}

func (d *compatDialect) MapAuthorIn(item Wire) (Wire, error) {
	url, err := item.String("url")
	if err != nil {
		return nil, err
	}
	displayName, err := item.OptString("display_name", "")
	if err != nil {
		return nil, err
	}
	profileImage, err := item.OptString("profile_image", "")
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

func (d *compatDialect) MapPostIn(item Wire) (Wire, error) {
	url, err := item.String("url")
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
	contentType, err := item.String("content_type")
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
		"external_url": url,
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

func (d *compatDialect) MapCommentIn(item Wire) (Wire, error) {
	externalURL, err := item.OptString("url", "")
	if err != nil {
		return nil, err
	}
	comment, err := item.String("comment")
	if err != nil {
		return nil, err
	}
	contentType, err := item.String("content_type")
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

func (d *compatDialect) MapPostLikeIn(item Wire) (Wire, error) {
	return mapLikeIn(item)
}

func (d *compatDialect) MapCommentLikeIn(item Wire) (Wire, error) {
	return mapLikeIn(item)
}

func (d *compatDialect) MapFollowerIn(item Wire) (Wire, error) {
	return Wire{}, nil
}

func (d *compatDialect) ActivityType(envelope Wire) (string, error) {
	declared, err := envelope.String("type")
	if err != nil {
		return "", err
	}
	return strings.ToLower(declared), nil
}

func (d *compatDialect) ActivityAuthor(envelope Wire) (Wire, error) {
	return envelope.Object("author")
}

func (d *compatDialect) ActivityObject(envelope Wire) (Wire, error) {
	declared, err := d.ActivityType(envelope)
	if err != nil {
		return nil, err
	}
	switch declared {
	case "like":
		return envelope.Clone(), nil
	default:
		object, err := envelope.Object("object")
		if err != nil {
			return nil, err
		}
		if declared == "comment" {
			cleaned := object.Clone()
			delete(cleaned, "url")
			return cleaned, nil
		}
		return object, nil
	}
}

// Comments reference their post under "post"; likes reference their target
// under "object".
func (d *compatDialect) ActivityObjectURL(envelope Wire) (string, error) {
	declared, err := d.ActivityType(envelope)
	if err != nil {
		return "", err
	}
	if declared == "comment" {
		return envelope.String("post")
	}
	return envelope.String("object")
}

func (d *compatDialect) FollowActors(envelope Wire) (Wire, Wire, error) {
	actor, err := envelope.Object("author")
	if err != nil {
		return nil, nil, err
	}
	object, err := envelope.Object("object")
	if err != nil {
		return nil, nil, err
	}
	return actor, object, nil
}

func (d *compatDialect) MapPostOut(post Post, author Author) Wire {
	return Wire{
		"type":         "post",
		"url":          post.ExternalURL,
		"title":        post.Title,
		"source":       post.Source,
		"origin":       post.Origin,
		"description":  post.Description,
		"content_type": post.ContentType,
		"content":      post.Content,
		"published":    post.Published,
		"visibility":   post.Visibility,
		"unlisted":     post.Unlisted,
		"author":       compatAuthorWire(author),
	}
}

func (d *compatDialect) MapCommentOut(comment Comment, author Author, post Post) Wire {
	return Wire{
		"type":   "comment",
		"author": compatAuthorWire(author),
		"post":   post.ExternalURL,
		"object": Wire{
			"url":          comment.ExternalURL,
			"comment":      comment.Comment,
			"content_type": comment.ContentType,
			"published":    comment.Published,
		},
	}
}

func (d *compatDialect) MapLikeOut(summary string, author Author, objectURL string) Wire {
	return Wire{
		"type":    "like",
		"author":  compatAuthorWire(author),
		"object":  objectURL,
		"summary": summary,
	}
}

func (d *compatDialect) MapFollowOut(follower Author, following Author) Wire {
	return Wire{
		"type":   "follow",
		"author": compatAuthorWire(follower),
		"object": compatAuthorWire(following),
	}
}

func (d *compatDialect) InboxURL(authorURL string) string {
	return inboxURL(authorURL, d.Traits().InboxTrailingSlash)
}

func compatAuthorWire(author Author) Wire {
	return Wire{
		"url":           author.ExternalURL,
		"display_name":  author.DisplayName,
		"profile_image": author.ProfileImage,
		"github":        author.GitHub,
	}
}
