// Package handlers serves the catalog HTTP API.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed/feedhttp"
	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/validate"
	"github.com/example/video-platform/services/catalog/internal/store"
)

const maxBodyBytes = 1 << 20

// writeError maps store sentinels onto the API envelope; what names the
// missing or duplicated entity in messages.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, what string, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, api.CodeNotFound, what+" not found", rid)
	case errors.Is(err, store.ErrConflict):
		api.Conflict(w, api.CodeConflict, what+" already exists", rid, nil)
	case errors.Is(err, store.ErrSelfSubscription):
		api.BadRequest(w, "SELF_SUBSCRIPTION", "cannot subscribe to yourself", rid, nil)
	default:
		feedhttp.WriteError(w, r, log, err)
	}
}

// requireUser returns the authenticated caller or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		api.Unauthorized(w, api.CodeUnauthorized, "authentication required", httpserver.RequestIDFromContext(r.Context()))
		return "", false
	}
	return userID, true
}

// pathUUID reads and validates a uuid URL parameter.
func pathUUID(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if err := validate.Var(name, v, "required,uuid"); err != nil {
		return "", err
	}
	return v, nil
}

// queryUUID reads an optional uuid query parameter.
func queryUUID(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if err := feedhttp.UUIDParam(name, v); err != nil {
		return "", err
	}
	return v, nil
}
