package federation

import (
	"strings"

	"github.com/google/uuid"
)

// URLVariants expands a record URL into the forms peers are known to emit for
// the same record. The as-given form comes first, then the trailing slash
// toggled, then both again with the scheme swapped between http and https.
// Variants are deduplicated preserving order.
func URLVariants(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	base := []string{raw, toggleTrailingSlash(raw)}
	variants := make([]string, 0, 4)
	for _, candidate := range base {
		variants = append(variants, candidate)
	}
	for _, candidate := range base {
		if swapped, ok := swapScheme(candidate); ok {
			variants = append(variants, swapped)
		}
	}
	seen := make(map[string]struct{}, len(variants))
	out := variants[:0]
	for _, candidate := range variants {
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func toggleTrailingSlash(raw string) string {
	if strings.HasSuffix(raw, "/") {
		return strings.TrimRight(raw, "/")
	}
	return raw + "/"
}

func swapScheme(raw string) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "http://" + strings.TrimPrefix(raw, "https://"), true
	case strings.HasPrefix(raw, "http://"):
		return "https://" + strings.TrimPrefix(raw, "http://"), true
	default:
		return "", false
	}
}

// TrailingUUID extracts the last path segment of a URL if it parses as a
// UUID. Records minted here embed their ID as the final segment, so this
// recovers local records referenced through any host alias.
func TrailingUUID(raw string) (uuid.UUID, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return uuid.Nil, false
	}
	segment := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		segment = trimmed[idx+1:]
	}
	id, err := uuid.Parse(segment)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Resolver finds stored records by URL, trying every known URL variant and
// falling back to the trailing UUID segment. The UUID fallback only matches
// local records, never remote ones, so two distinct remote records whose URLs
// happen to end in the same UUID stay distinct.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Author(url string) (*Author, bool) {
	for _, candidate := range URLVariants(url) {
		if author, ok := r.store.AuthorByExternalURL(candidate); ok {
			return author, true
		}
	}
	if id, ok := TrailingUUID(url); ok {
		if author, found := r.store.AuthorByID(id); found && author.IsLocal() {
			return author, true
		}
	}
	return nil, false
}

func (r *Resolver) Post(url string) (*Post, bool) {
	for _, candidate := range URLVariants(url) {
		if post, ok := r.store.PostByExternalURL(candidate); ok {
			return post, true
		}
	}
	if id, ok := TrailingUUID(url); ok {
		if post, found := r.store.PostByID(id); found && post.ExternalURL == "" {
			return post, true
		}
	}
	return nil, false
}

func (r *Resolver) Comment(url string) (*Comment, bool) {
	for _, candidate := range URLVariants(url) {
		if comment, ok := r.store.CommentByExternalURL(candidate); ok {
			return comment, true
		}
	}
	if id, ok := TrailingUUID(url); ok {
		if comment, found := r.store.CommentByID(id); found && comment.ExternalURL == "" {
			return comment, true
		}
	}
	return nil, false
}
