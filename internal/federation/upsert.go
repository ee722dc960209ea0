package federation

// Upserter turns validated canonical field maps into stored records. Each
// transformer looks up an existing record by external identifier, asserting
// that referential fields match the expected parent before overwriting
// mutable fields; a record with no external identifier is created
// unconditionally.
type Upserter struct {
	store    Store
	resolver *Resolver
}

func NewUpserter(store Store) *Upserter {
	return &Upserter{store: store, resolver: NewResolver(store)}
}

// UpsertAuthor attaches host on first sight. An author already bound to a
// different host is a data-integrity failure, never a silent re-parent.
func (u *Upserter) UpsertAuthor(fields Wire, host *Host) (*Author, error) {
	if err := validateFields("author", contracts.author, fields); err != nil {
		return nil, err
	}
	externalURL, err := fields.String("external_url")
	if err != nil {
		return nil, err
	}
	displayName, _ := fields.OptString("display_name", "")
	profileImage, _ := fields.OptString("profile_image", "")
	github, _ := fields.OptString("github", "")

	existing, found := u.resolver.Author(externalURL)
	if !found {
		author := &Author{
			ExternalURL:  externalURL,
			DisplayName:  displayName,
			ProfileImage: profileImage,
			GitHub:       github,
		}
		if host != nil {
			hostID := host.ID
			author.HostID = &hostID
		}
		if err := u.store.CreateAuthor(author); err != nil {
			return nil, err
		}
		return author, nil
	}

	if host != nil {
		if existing.HostID == nil {
			hostID := host.ID
			existing.HostID = &hostID
		} else if *existing.HostID != host.ID {
			return nil, validationErrorf("author", "host mismatch for %s", externalURL)
		}
	}
	existing.DisplayName = displayName
	existing.ProfileImage = profileImage
	existing.GitHub = github
	if err := u.store.UpdateAuthor(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (u *Upserter) UpsertPost(fields Wire, author *Author) (*Post, error) {
	if author == nil {
		return nil, validationErrorf("post", "author is required")
	}
	if err := validateFields("post", contracts.post, fields); err != nil {
		return nil, err
	}
	externalURL, err := fields.String("external_url")
	if err != nil {
		return nil, err
	}

	existing, found := u.resolver.Post(externalURL)
	if found && existing.AuthorID != author.ID {
		return nil, validationErrorf("post", "author mismatch for %s", externalURL)
	}

	post := existing
	if !found {
		post = &Post{ExternalURL: externalURL, AuthorID: author.ID}
	}
	post.Title, _ = fields.OptString("title", "")
	post.Source, _ = fields.OptString("source", "")
	post.Origin, _ = fields.OptString("origin", "")
	post.Description, _ = fields.OptString("description", "")
	post.Content, _ = fields.OptString("content", "")
	post.ContentType, _ = fields.String("content_type")
	post.Published, _ = fields.OptString("published", "")
	post.Visibility, _ = fields.OptString("visibility", "PUBLIC")
	post.Unlisted, _ = fields.OptBool("unlisted", false)

	if !found {
		if err := u.store.CreatePost(post); err != nil {
			return nil, err
		}
		return post, nil
	}
	if err := u.store.UpdatePost(post); err != nil {
		return nil, err
	}
	return post, nil
}

// UpsertComment creates unconditionally when the mapped record carries no
// external identifier, which is how pushed comments mint fresh local records.
func (u *Upserter) UpsertComment(fields Wire, post *Post, author *Author) (*Comment, error) {
	if post == nil || author == nil {
		return nil, validationErrorf("comment", "post and author are required")
	}
	if err := validateFields("comment", contracts.comment, fields); err != nil {
		return nil, err
	}
	externalURL, _ := fields.OptString("external_url", "")

	var existing *Comment
	found := false
	if externalURL != "" {
		existing, found = u.resolver.Comment(externalURL)
	}
	if found && existing.PostID != post.ID {
		return nil, validationErrorf("comment", "post mismatch for %s", externalURL)
	}
	if found && existing.AuthorID != author.ID {
		return nil, validationErrorf("comment", "author mismatch for %s", externalURL)
	}

	comment := existing
	if !found {
		comment = &Comment{ExternalURL: externalURL, PostID: post.ID, AuthorID: author.ID}
	}
	comment.Comment, _ = fields.String("comment")
	comment.ContentType, _ = fields.String("content_type")
	comment.Published, _ = fields.OptString("published", "")

	if !found {
		if err := u.store.CreateComment(comment); err != nil {
			return nil, err
		}
		return comment, nil
	}
	if err := u.store.UpdateComment(comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Likes have no external identifier of their own; identity is the
// (author, target) pair.
func (u *Upserter) UpsertPostLike(fields Wire, post *Post, author *Author) (*PostLike, error) {
	if post == nil || author == nil {
		return nil, validationErrorf("postlike", "post and author are required")
	}
	if err := validateFields("postlike", contracts.like, fields); err != nil {
		return nil, err
	}
	summary, _ := fields.OptString("summary", "")

	existing, found := u.store.PostLikeByPair(author.ID, post.ID)
	if found {
		existing.Summary = summary
		if err := u.store.UpdatePostLike(existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	like := &PostLike{PostID: post.ID, AuthorID: author.ID, Summary: summary}
	if err := u.store.CreatePostLike(like); err != nil {
		return nil, err
	}
	return like, nil
}

func (u *Upserter) UpsertCommentLike(fields Wire, comment *Comment, author *Author) (*CommentLike, error) {
	if comment == nil || author == nil {
		return nil, validationErrorf("commentlike", "comment and author are required")
	}
	if err := validateFields("commentlike", contracts.like, fields); err != nil {
		return nil, err
	}
	summary, _ := fields.OptString("summary", "")

	existing, found := u.store.CommentLikeByPair(author.ID, comment.ID)
	if found {
		existing.Summary = summary
		if err := u.store.UpdateCommentLike(existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	like := &CommentLike{CommentID: comment.ID, AuthorID: author.ID, Summary: summary}
	if err := u.store.CreateCommentLike(like); err != nil {
		return nil, err
	}
	return like, nil
}

func (u *Upserter) UpsertFollower(follower, following *Author) (*Follow, error) {
	if follower == nil || following == nil {
		return nil, validationErrorf("follow", "both authors are required")
	}
	if follower.ID == following.ID {
		return nil, validationErrorf("follow", "author cannot follow itself")
	}
	if existing, found := u.store.FollowByPair(follower.ID, following.ID); found {
		return existing, nil
	}
	follow := &Follow{FollowerID: follower.ID, FollowingID: following.ID}
	if err := u.store.CreateFollow(follow); err != nil {
		return nil, err
	}
	return follow, nil
}

func (u *Upserter) UpsertFollowRequest(from, to *Author) (*FollowRequest, error) {
	if from == nil || to == nil {
		return nil, validationErrorf("followrequest", "both authors are required")
	}
	if from.ID == to.ID {
		return nil, validationErrorf("followrequest", "author cannot request itself")
	}
	if existing, found := u.store.FollowRequestByPair(from.ID, to.ID); found {
		return existing, nil
	}
	request := &FollowRequest{FromID: from.ID, ToID: to.ID}
	if err := u.store.CreateFollowRequest(request); err != nil {
		return nil, err
	}
	return request, nil
}

// Resolver exposes the upserter's resolver so callers share one instance.
func (u *Upserter) Resolver() *Resolver {
	return u.resolver
}
