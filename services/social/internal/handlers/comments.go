package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/feedhttp"
	"github.com/example/video-platform/internal/platform/analytics"
	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/validate"
	"github.com/example/video-platform/services/social/internal/store"
)

type createCommentRequest struct {
	Value    string  `json:"value" validate:"required,max=5000"`
	ParentID *string `json:"parent_id,omitempty" validate:"omitempty,uuid"`
}

// Comments bundles the dependencies of the comment endpoints.
type Comments struct {
	Store     store.CommentStore
	Feed      *feed.Engine[store.CommentItem]
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

// Create handles POST /v1/videos/{video_id}/comments
func (h Comments) Create(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		api.Unauthorized(w, api.CodeUnauthorized, "authentication required", rid)
		return
	}

	videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
	if err := validate.Var("video_id", videoID, "required,uuid"); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		api.InvalidJSON(w, rid)
		return
	}
	req.Value = strings.TrimSpace(req.Value)
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.Store.Create(r.Context(), store.Comment{
		VideoID:  videoID,
		UserID:   userID,
		ParentID: req.ParentID,
		Value:    req.Value,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Analytics.Publish(analytics.SubjectCommentCreated, "comment_created", userID, map[string]any{
		"comment_id": created.ID,
		"video_id":   created.VideoID,
		"reply":      created.ParentID != nil,
	})
	api.WriteJSON(w, http.StatusCreated, created)
}

// Delete handles DELETE /v1/comments/{comment_id}
func (h Comments) Delete(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		api.Unauthorized(w, api.CodeUnauthorized, "authentication required", rid)
		return
	}

	commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
	if err := validate.Var("comment_id", commentID, "required,uuid"); err != nil {
		h.writeError(w, r, err)
		return
	}

	removed, err := h.Store.Remove(r.Context(), commentID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, removed)
}

// React returns the handler for POST /v1/comments/{comment_id}/like and
// /dislike. Repeating the same reaction removes it.
func (h Comments) React(t store.ReactionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, api.CodeUnauthorized, "authentication required", rid)
			return
		}

		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if err := validate.Var("comment_id", commentID, "required,uuid"); err != nil {
			h.writeError(w, r, err)
			return
		}

		state, err := h.Store.React(r.Context(), commentID, userID, t)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.Analytics.Publish(analytics.SubjectCommentReacted, "comment_reacted", userID, map[string]any{
			"comment_id": commentID,
			"type":       string(t),
			"active":     state.Type != nil,
		})
		api.WriteJSON(w, http.StatusOK, state)
	}
}

// List handles GET /v1/videos/{video_id}/comments. Without parent_id only
// top-level comments are returned.
func (h Comments) List() http.HandlerFunc {
	return feedhttp.List(h.Log, h.Feed, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
		if err := validate.Var("video_id", videoID, "required,uuid"); err != nil {
			return feed.Request{}, err
		}
		parentID := strings.TrimSpace(r.URL.Query().Get("parent_id"))
		if err := feedhttp.UUIDParam("parent_id", parentID); err != nil {
			return feed.Request{}, err
		}

		filters := []feed.Predicate{feed.Eq("video_id", videoID)}
		if parentID != "" {
			filters = append(filters, feed.Eq("parent_id", parentID))
		} else {
			filters = append(filters, feed.IsNull("parent_id"))
		}
		return feed.Request{Filters: filters, WithTotal: true}, nil
	})
}

func (h Comments) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, api.CodeNotFound, "comment not found", rid)
	case errors.Is(err, store.ErrNestedReply):
		api.BadRequest(w, "NESTED_REPLY", "cannot reply to a reply", rid, nil)
	default:
		feedhttp.WriteError(w, r, h.Log, err)
	}
}
