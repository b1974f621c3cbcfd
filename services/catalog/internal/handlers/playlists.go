package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/feedhttp"
	"github.com/example/video-platform/internal/platform/analytics"
	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/validate"
	"github.com/example/video-platform/services/catalog/internal/store"
)

type createPlaylistRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// Playlists serves playlists and the two built-in collections: watch
// history and liked videos.
type Playlists struct {
	Store     store.Playlists
	Feed      *feed.Engine[store.PlaylistItem]
	Items     *feed.Engine[store.VideoItem]
	History   *feed.Engine[store.VideoItem]
	Liked     *feed.Engine[store.VideoItem]
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

// Create handles POST /v1/playlists
func (h Playlists) Create(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createPlaylistRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.InvalidJSON(w, rid)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		writeError(w, r, h.Log, "playlist", err)
		return
	}
	p, err := h.Store.CreatePlaylist(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		writeError(w, r, h.Log, "playlist", err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, p)
}

// Get handles GET /v1/playlists/{id}
func (h Playlists) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, "playlist", err)
		return
	}
	p, err := h.Store.GetPlaylist(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, h.Log, "playlist", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /v1/playlists/{id}
func (h Playlists) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, "playlist", err)
		return
	}
	p, err := h.Store.DeletePlaylist(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, h.Log, "playlist", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// AddVideo handles POST /v1/playlists/{id}/videos/{video_id}
func (h Playlists) AddVideo(w http.ResponseWriter, r *http.Request) {
	h.modify(w, r, true)
}

// RemoveVideo handles DELETE /v1/playlists/{id}/videos/{video_id}
func (h Playlists) RemoveVideo(w http.ResponseWriter, r *http.Request) {
	h.modify(w, r, false)
}

func (h Playlists) modify(w http.ResponseWriter, r *http.Request, add bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, "playlist", err)
		return
	}
	videoID, err := pathUUID(r, "video_id")
	if err != nil {
		writeError(w, r, h.Log, "playlist video", err)
		return
	}

	var (
		pv     store.PlaylistVideo
		status = http.StatusOK
		action = "removed"
	)
	if add {
		pv, err = h.Store.AddVideo(r.Context(), id, videoID, userID)
		status, action = http.StatusCreated, "added"
	} else {
		pv, err = h.Store.RemoveVideo(r.Context(), id, videoID, userID)
	}
	if err != nil {
		writeError(w, r, h.Log, "playlist video", err)
		return
	}
	h.Analytics.Publish(analytics.SubjectPlaylistModified, "playlist_modified", userID, map[string]any{
		"playlist_id": id,
		"video_id":    videoID,
		"action":      action,
	})
	api.WriteJSON(w, status, pv)
}

// List handles GET /v1/playlists. With video_id each playlist reports
// whether it already contains that video.
func (h Playlists) List() http.HandlerFunc {
	return feedhttp.List(h.Log, h.Feed, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		videoID, err := queryUUID(r, "video_id")
		if err != nil {
			return feed.Request{}, err
		}
		viewer := feedhttp.Viewer(r)
		if viewer == "" {
			return feed.Request{}, feed.ErrUnauthorized
		}
		req := feed.Request{Filters: []feed.Predicate{feed.Eq("user_id", viewer)}}
		if videoID != "" {
			req.Scope = map[string]string{"video_id": videoID}
		}
		return req, nil
	})
}

// Videos handles GET /v1/playlists/{id}/videos. Playlists of other users
// list as empty.
func (h Playlists) Videos() http.HandlerFunc {
	return feedhttp.List(h.Log, h.Items, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		id, err := pathUUID(r, "id")
		if err != nil {
			return feed.Request{}, err
		}
		viewer := feedhttp.Viewer(r)
		if viewer == "" {
			return feed.Request{}, feed.ErrUnauthorized
		}
		return feed.Request{Filters: []feed.Predicate{
			feed.Eq("playlist_id", id),
			feed.InSet("playlist_id", store.TablePlaylists, "id", feed.Eq("user_id", viewer)),
		}}, nil
	})
}

// HistoryList handles GET /v1/playlists/history
func (h Playlists) HistoryList() http.HandlerFunc {
	return feedhttp.List(h.Log, h.History, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		viewer := feedhttp.Viewer(r)
		if viewer == "" {
			return feed.Request{}, feed.ErrUnauthorized
		}
		return feed.Request{Filters: []feed.Predicate{
			feed.Eq("viewer_id", viewer),
			feed.Eq("visibility", string(store.VisibilityPublic)),
		}}, nil
	})
}

// LikedList handles GET /v1/playlists/liked
func (h Playlists) LikedList() http.HandlerFunc {
	return feedhttp.List(h.Log, h.Liked, func(r *http.Request, _ feedhttp.Params) (feed.Request, error) {
		viewer := feedhttp.Viewer(r)
		if viewer == "" {
			return feed.Request{}, feed.ErrUnauthorized
		}
		return feed.Request{Filters: []feed.Predicate{
			feed.Eq("viewer_id", viewer),
			feed.Eq("reaction_type", string(store.ReactionLike)),
			feed.Eq("visibility", string(store.VisibilityPublic)),
		}}, nil
	})
}
