package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/feedhttp"
	"github.com/example/video-platform/internal/platform/analytics"
	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/services/catalog/internal/store"
)

type Subscriptions struct {
	Store     store.Subscriptions
	Feed      *feed.Engine[store.SubscriptionItem]
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

// Subscribe handles POST /v1/subscriptions/{creator_id}
func (h Subscriptions) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	creatorID, err := pathUUID(r, "creator_id")
	if err != nil {
		writeError(w, r, h.Log, "subscription", err)
		return
	}
	sub, err := h.Store.Subscribe(r.Context(), userID, creatorID)
	if err != nil {
		writeError(w, r, h.Log, "subscription", err)
		return
	}
	h.Analytics.Publish(analytics.SubjectSubscribed, "subscribed", userID, map[string]any{
		"creator_id": creatorID,
		"active":     true,
	})
	api.WriteJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /v1/subscriptions/{creator_id}
func (h Subscriptions) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	creatorID, err := pathUUID(r, "creator_id")
	if err != nil {
		writeError(w, r, h.Log, "subscription", err)
		return
	}
	sub, err := h.Store.Unsubscribe(r.Context(), userID, creatorID)
	if err != nil {
		writeError(w, r, h.Log, "subscription", err)
		return
	}
	h.Analytics.Publish(analytics.SubjectSubscribed, "unsubscribed", userID, map[string]any{
		"creator_id": creatorID,
		"active":     false,
	})
	api.WriteJSON(w, http.StatusOK, sub)
}

// List handles GET /v1/subscriptions: creators the caller follows, most
// recent first, each with its subscriber count.
func (h Subscriptions) List() http.HandlerFunc {
	return feedhttp.List(h.Log, h.Feed, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		viewer := feedhttp.Viewer(r)
		if viewer == "" {
			return feed.Request{}, feed.ErrUnauthorized
		}
		return feed.Request{Filters: []feed.Predicate{feed.Eq("viewer_id", viewer)}}, nil
	})
}
