package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/feedhttp"
	"github.com/example/video-platform/internal/platform/analytics"
	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/validate"
	"github.com/example/video-platform/services/catalog/internal/store"
)

// ViewRecorder accepts a view for asynchronous or direct persistence.
type ViewRecorder interface {
	RecordView(ctx context.Context, v store.View) error
}

type updateVideoRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Visibility  *string `json:"visibility,omitempty" validate:"omitempty,oneof=private public"`
	CategoryID  *string `json:"category_id,omitempty" validate:"omitempty,uuid"`
}

type searchQuery struct {
	Q string `json:"q" validate:"max=100"`
}

// Videos bundles the dependencies of the video endpoints.
type Videos struct {
	Store       store.Videos
	Feed        *feed.Engine[store.VideoItem]
	Search      *feed.Engine[store.VideoItem]
	Suggestions *feed.Engine[store.VideoItem]
	Views       ViewRecorder
	Analytics   *analytics.Publisher
	Log         *zap.Logger
	Now         func() time.Time
}

func (h Videos) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// Create handles POST /v1/videos. New videos are private drafts.
func (h Videos) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	v, err := h.Store.CreateVideo(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, v)
}

// Update handles PATCH /v1/videos/{id}
func (h Videos) Update(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}

	var req updateVideoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.InvalidJSON(w, rid)
		return
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		req.Title = &t
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}

	patch := store.VideoPatch{Title: req.Title, Description: req.Description, CategoryID: req.CategoryID}
	if req.Visibility != nil {
		vis := store.Visibility(*req.Visibility)
		patch.Visibility = &vis
	}
	v, err := h.Store.UpdateVideo(r.Context(), id, userID, patch)
	if err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, v)
}

// Get handles GET /v1/videos/{id}
func (h Videos) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	v, err := h.Store.GetVideo(r.Context(), id, feedhttp.Viewer(r))
	if err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, v)
}

// List handles GET /v1/videos. Creators listing their own uploads also see
// private videos; subscribed=true narrows to followed creators.
func (h Videos) List() http.HandlerFunc {
	return feedhttp.List(h.Log, h.Feed, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		categoryID, err := queryUUID(r, "category_id")
		if err != nil {
			return feed.Request{}, err
		}
		userID, err := queryUUID(r, "user_id")
		if err != nil {
			return feed.Request{}, err
		}
		subscribed := false
		if raw := strings.TrimSpace(r.URL.Query().Get("subscribed")); raw != "" {
			subscribed, err = strconv.ParseBool(raw)
			if err != nil {
				return feed.Request{}, &feed.ValidationError{Field: "subscribed", Reason: "must be a boolean"}
			}
		}

		viewer := feedhttp.Viewer(r)
		filters := feed.OptionalEq("category_id", categoryID)
		filters = append(filters, feed.OptionalEq("user_id", userID)...)
		if userID == "" || userID != viewer {
			filters = append(filters, feed.Eq("visibility", string(store.VisibilityPublic)))
		}
		if subscribed {
			if viewer == "" {
				return feed.Request{}, feed.ErrUnauthorized
			}
			filters = append(filters, feed.InSet("user_id", store.TableSubscriptions, "creator_id", feed.Eq("viewer_id", viewer)))
		}
		return feed.Request{Filters: filters}, nil
	})
}

// SearchList handles GET /v1/search?q=&category_id=
func (h Videos) SearchList() http.HandlerFunc {
	list := feedhttp.List(h.Log, h.Search, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		q := searchQuery{Q: strings.TrimSpace(r.URL.Query().Get("q"))}
		if err := validate.Struct(q); err != nil {
			return feed.Request{}, err
		}
		categoryID, err := queryUUID(r, "category_id")
		if err != nil {
			return feed.Request{}, err
		}
		filters := feed.OptionalEq("category_id", categoryID)
		filters = append(filters, feed.Eq("visibility", string(store.VisibilityPublic)))
		if q.Q != "" {
			filters = append(filters, feed.Contains("title", q.Q))
		}
		return feed.Request{Filters: filters}, nil
	})
	return func(w http.ResponseWriter, r *http.Request) {
		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			h.Analytics.Publish(analytics.SubjectSearchPerformed, "search_performed", feedhttp.Viewer(r), map[string]any{
				"query":       q,
				"category_id": r.URL.Query().Get("category_id"),
			})
		}
		list(w, r)
	}
}

// SuggestionList handles GET /v1/videos/{id}/suggestions: other public
// videos sharing the video's category, or uncategorised ones when it has
// none.
func (h Videos) SuggestionList(w http.ResponseWriter, r *http.Request) {
	p, err := feedhttp.ParseParams(r)
	if err != nil {
		feedhttp.WriteError(w, r, h.Log, err)
		return
	}
	if err := feed.ValidateLimit(p.Limit); err != nil {
		feedhttp.WriteError(w, r, h.Log, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		feedhttp.WriteError(w, r, h.Log, err)
		return
	}

	viewer := feedhttp.Viewer(r)
	v, err := h.Store.GetVideo(r.Context(), id, viewer)
	if err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	filters := []feed.Predicate{
		feed.Ne("id", v.ID),
		feed.Eq("visibility", string(store.VisibilityPublic)),
	}
	if v.CategoryID != nil {
		filters = append(filters, feed.Eq("category_id", *v.CategoryID))
	} else {
		filters = append(filters, feed.IsNull("category_id"))
	}

	page, err := h.Suggestions.FetchPage(r.Context(), feed.Request{
		Filters:  filters,
		Cursor:   p.Cursor,
		Limit:    p.Limit,
		ViewerID: viewer,
	})
	if err != nil {
		feedhttp.WriteError(w, r, h.Log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, page)
}

// React returns the handler for POST /v1/videos/{id}/like and /dislike.
// Repeating the same reaction removes it.
func (h Videos) React(t store.ReactionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, r, h.Log, "video", err)
			return
		}
		state, err := h.Store.ReactVideo(r.Context(), id, userID, t)
		if err != nil {
			writeError(w, r, h.Log, "video", err)
			return
		}
		h.Analytics.Publish(analytics.SubjectVideoReacted, "video_reacted", userID, map[string]any{
			"video_id": id,
			"type":     string(t),
			"active":   state.Type != nil,
		})
		api.WriteJSON(w, http.StatusOK, state)
	}
}

// RecordView handles POST /v1/videos/{id}/views. The view is accepted once
// the video is visible to the caller; persistence may be asynchronous.
func (h Videos) RecordView(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	if _, err := h.Store.GetVideo(r.Context(), id, userID); err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	view := store.View{UserID: userID, VideoID: id, At: h.now()}
	if err := h.Views.RecordView(r.Context(), view); err != nil {
		writeError(w, r, h.Log, "video", err)
		return
	}
	h.Analytics.Publish(analytics.SubjectVideoViewed, "video_viewed", userID, map[string]any{"video_id": id})
	api.WriteJSON(w, http.StatusAccepted, view)
}
