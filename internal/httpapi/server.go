package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commonsocial/fedbridge/internal/federation"
)

type ServerConfig struct {
	BaseURL      string
	RequireAuth  bool
	MaxBodyBytes int64
	MaxPageSize  int
}

// Server exposes the bridge's own node API: the collections remote peers
// pull from, the inbox they push to, and an event feed for operators.
type Server struct {
	store      *federation.MemoryStore
	dispatcher *federation.Dispatcher
	syncer     *federation.Syncer
	cfg        ServerConfig
	logger     federation.Logger
}

func NewServer(store *federation.MemoryStore, dispatcher *federation.Dispatcher, syncer *federation.Syncer, cfg ServerConfig, logger federation.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Server{
		store:      store,
		dispatcher: dispatcher,
		syncer:     syncer,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/v1/events" && r.Method == http.MethodGet {
		s.handleEvents(w, r)
		return
	}
	if r.URL.Path == "/v1/events/stream" && r.Method == http.MethodGet {
		s.handleEventStream(w, r)
		return
	}
	if r.URL.Path == "/v1/admin/hosts" && r.Method == http.MethodGet {
		s.handleAdminHosts(w, r)
		return
	}
	if r.URL.Path == "/v1/admin/sync" && r.Method == http.MethodPost {
		s.handleAdminSync(w, r)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "authors" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		s.handleAuthors(w, r)
		return
	}

	authorID, err := uuid.Parse(parts[2])
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown author")
		return
	}
	author, ok := s.store.AuthorByID(authorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown author")
		return
	}

	rest := parts[3:]
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.renderAuthor(*author))
	case len(rest) == 1 && rest[0] == "inbox" && r.Method == http.MethodPost:
		s.handleInboxPush(w, r, author)
	case len(rest) == 1 && rest[0] == "inbox" && r.Method == http.MethodGet:
		s.handleInboxList(w, r, author)
	case len(rest) == 1 && rest[0] == "followers" && r.Method == http.MethodGet:
		s.handleFollowers(w, r, author)
	case len(rest) == 1 && rest[0] == "posts" && r.Method == http.MethodGet:
		s.handlePosts(w, r, author)
	case len(rest) >= 2 && rest[0] == "posts":
		s.handlePostSubtree(w, r, author, rest[1:])
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handlePostSubtree(w http.ResponseWriter, r *http.Request, author *federation.Author, rest []string) {
	postID, err := uuid.Parse(rest[0])
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown post")
		return
	}
	post, ok := s.store.PostByID(postID)
	if !ok || post.AuthorID != author.ID {
		writeError(w, http.StatusNotFound, "not_found", "unknown post")
		return
	}
	rest = rest[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.renderPost(*post, *author))
	case len(rest) == 1 && rest[0] == "comments" && r.Method == http.MethodGet:
		s.handleComments(w, r, post)
	case len(rest) == 1 && rest[0] == "likes" && r.Method == http.MethodGet:
		s.handlePostLikes(w, r, post)
	case len(rest) == 3 && rest[0] == "comments" && rest[2] == "likes" && r.Method == http.MethodGet:
		commentID, err := uuid.Parse(rest[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found", "unknown comment")
			return
		}
		comment, ok := s.store.CommentByID(commentID)
		if !ok || comment.PostID != post.ID {
			writeError(w, http.StatusNotFound, "not_found", "unknown comment")
			return
		}
		s.handleCommentLikes(w, r, comment)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

// handleInboxPush authenticates the sender, parses the envelope and hands it
// to the dispatcher. Validation failures come back as 400 so the pushing
// node can tell a refusal from an outage.
func (s *Server) handleInboxPush(w http.ResponseWriter, r *http.Request, owner *federation.Author) {
	origin, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unknown credentials")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}

	entry, err := s.dispatcher.Dispatch(owner, origin, federation.Wire(envelope))
	if err != nil {
		if errors.Is(err, federation.ErrValidation) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		if errors.Is(err, federation.ErrUnknownDialect) {
			writeError(w, http.StatusInternalServerError, "configuration_error", err.Error())
			return
		}
		logf(s.logger, "inbox push failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not apply inbox item")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     entry.ID.String(),
		"kind":   string(entry.Kind),
		"object": entry.ObjectID.String(),
	})
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request, owner *federation.Author) {
	entries := s.store.InboxOf(owner.ID)
	page, size, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	entries = paginate(entries, page, size)
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"id":     entry.ID.String(),
			"kind":   string(entry.Kind),
			"object": entry.ObjectID.String(),
			"added":  entry.Added.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "inbox", "items": items})
}

func (s *Server) handleAuthors(w http.ResponseWriter, r *http.Request) {
	authors := s.store.LocalAuthors()
	page, size, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	authors = paginate(authors, page, size)
	items := make([]federation.Wire, 0, len(authors))
	for _, author := range authors {
		items = append(items, s.renderAuthor(author))
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "authors", "items": items})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request, author *federation.Author) {
	posts := s.store.PostsByAuthor(author.ID)
	page, size, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	posts = paginate(posts, page, size)
	items := make([]federation.Wire, 0, len(posts))
	for _, post := range posts {
		items = append(items, s.renderPost(post, *author))
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "posts", "items": items})
}

// Comments wrap under a "comments" key, matching what the internal dialect
// unwraps on the pull side.
func (s *Server) handleComments(w http.ResponseWriter, r *http.Request, post *federation.Post) {
	comments := s.store.CommentsByPost(post.ID)
	page, size, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	comments = paginate(comments, page, size)
	items := make([]federation.Wire, 0, len(comments))
	for _, comment := range comments {
		items = append(items, s.renderComment(comment, *post))
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "comments", "comments": items})
}

func (s *Server) handlePostLikes(w http.ResponseWriter, r *http.Request, post *federation.Post) {
	likes := s.store.PostLikesByPost(post.ID)
	page, size, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	likes = paginate(likes, page, size)
	items := make([]federation.Wire, 0, len(likes))
	for _, like := range likes {
		items = append(items, s.renderLike(like.Summary, like.AuthorID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "likes", "items": items})
}

func (s *Server) handleCommentLikes(w http.ResponseWriter, r *http.Request, comment *federation.Comment) {
	likes := s.store.CommentLikesByComment(comment.ID)
	page, size, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	likes = paginate(likes, page, size)
	items := make([]federation.Wire, 0, len(likes))
	for _, like := range likes {
		items = append(items, s.renderLike(like.Summary, like.AuthorID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "likes", "items": items})
}

func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request, author *federation.Author) {
	follows := s.store.FollowersOf(author.ID)
	page, size, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	follows = paginate(follows, page, size)
	items := make([]federation.Wire, 0, len(follows))
	for _, follow := range follows {
		if follower, ok := s.store.AuthorByID(follow.FollowerID); ok {
			items = append(items, s.renderAuthor(*follower))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "followers", "items": items})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := 200
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, s.store.GetEvents(cursor, limit))
}

func (s *Server) handleAdminHosts(w http.ResponseWriter, r *http.Request) {
	hosts := s.store.Hosts()
	items := make([]map[string]any, 0, len(hosts))
	for _, host := range hosts {
		item := map[string]any{
			"id":         host.ID.String(),
			"url":        host.URL,
			"dialect":    string(host.Dialect),
			"nickname":   host.Nickname,
			"lastPingOk": host.LastPingOK,
		}
		if host.LastPing != nil {
			item["lastPing"] = host.LastPing.Format(time.RFC3339)
		}
		if host.LastSuccessfulPing != nil {
			item["lastSuccessfulPing"] = host.LastSuccessfulPing.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"hosts": items})
}

// handleAdminSync kicks off a background refresh of every configured host.
func (s *Server) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "sync is not configured")
		return
	}
	hosts := s.store.Hosts()
	go s.syncer.SyncAll(r.Context(), hosts)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "hosts": len(hosts)})
}

func (s *Server) pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	query := r.URL.Query()
	page := 1
	size := s.cfg.MaxPageSize
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid page")
			return 0, 0, false
		}
		page = parsed
	}
	if raw := strings.TrimSpace(query.Get("size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid size")
			return 0, 0, false
		}
		if parsed > s.cfg.MaxPageSize {
			parsed = s.cfg.MaxPageSize
		}
		size = parsed
	}
	return page, size, true
}

func paginate[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (s *Server) renderAuthor(author federation.Author) federation.Wire {
	s.fillAuthorURL(&author)
	return federation.NativeAuthorWire(author)
}

func (s *Server) renderPost(post federation.Post, author federation.Author) federation.Wire {
	s.fillAuthorURL(&author)
	if post.ExternalURL == "" {
		post.ExternalURL = fmt.Sprintf("%s/posts/%s", author.ExternalURL, post.ID)
	}
	wire := federation.NativePostWire(post)
	wire["type"] = "post"
	wire["author"] = federation.NativeAuthorWire(author)
	return wire
}

func (s *Server) renderComment(comment federation.Comment, post federation.Post) federation.Wire {
	author, ok := s.store.AuthorByID(comment.AuthorID)
	if !ok {
		author = &federation.Author{ID: comment.AuthorID}
	}
	s.fillAuthorURL(author)
	if comment.ExternalURL == "" && post.ExternalURL != "" {
		comment.ExternalURL = fmt.Sprintf("%s/comments/%s", strings.TrimRight(post.ExternalURL, "/"), comment.ID)
	}
	wire := federation.NativeCommentWire(comment)
	wire["type"] = "comment"
	wire["author"] = federation.NativeAuthorWire(*author)
	return wire
}

func (s *Server) renderLike(summary string, authorID uuid.UUID) federation.Wire {
	author, ok := s.store.AuthorByID(authorID)
	if !ok {
		author = &federation.Author{ID: authorID}
	}
	s.fillAuthorURL(author)
	return federation.Wire{
		"type":    "like",
		"summary": summary,
		"author":  federation.NativeAuthorWire(*author),
	}
}

func (s *Server) fillAuthorURL(author *federation.Author) {
	if author.ExternalURL == "" {
		author.ExternalURL = fmt.Sprintf("%s/api/authors/%s", s.cfg.BaseURL, author.ID)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func logf(logger federation.Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
