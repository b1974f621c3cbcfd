// Package feedhttp adapts feed engines to HTTP list endpoints.
package feedhttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/validate"
)

// Params are the pagination parameters shared by every list endpoint.
type Params struct {
	Limit  int
	Cursor *feed.Cursor
}

type listQuery struct {
	CursorID string `query:"cursor_id" validate:"omitempty,uuid"`
}

// ParseParams reads limit, cursor_id and cursor_updated_at. A missing limit
// defaults to feed.DefaultLimit; range checks are left to the engine.
func ParseParams(r *http.Request) (Params, error) {
	q := r.URL.Query()
	p := Params{Limit: feed.DefaultLimit}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, &feed.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		p.Limit = n
	}

	lq := listQuery{CursorID: strings.TrimSpace(q.Get("cursor_id"))}
	if err := validate.Struct(lq); err != nil {
		return Params{}, err
	}
	cur, err := feed.ParseCursor(lq.CursorID, strings.TrimSpace(q.Get("cursor_updated_at")))
	if err != nil {
		return Params{}, err
	}
	p.Cursor = cur
	return p, nil
}

// Viewer returns the authenticated caller, or "" for anonymous requests.
func Viewer(r *http.Request) string {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

// UUIDParam validates an optional identifier taken from the query or path.
func UUIDParam(field, value string) error {
	if value == "" {
		return nil
	}
	return validate.Var(field, value, "uuid")
}

// WriteError maps feed and validation errors onto the API error envelope.
// Anything unrecognised is a store fault: logged and reported as 500.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())

	if ve, ok := feed.AsValidation(err); ok {
		api.ValidationFailed(w, rid, map[string]string{ve.Field: ve.Reason})
		return
	}
	var vf *validate.Error
	if errors.As(err, &vf) {
		api.ValidationFailed(w, rid, vf.Fields)
		return
	}
	if errors.Is(err, feed.ErrUnauthorized) {
		api.Unauthorized(w, api.CodeUnauthorized, "Authentication required", rid)
		return
	}
	log.Error("feed query failed", zap.String("request_id", rid), zap.String("path", r.URL.Path), zap.Error(err))
	api.Internal(w, rid)
}

// BuildFunc turns a request and its pagination parameters into a feed
// request. It should only read the request and validate input.
type BuildFunc func(r *http.Request, p Params) (feed.Request, error)

// List serves one page of e as JSON.
func List[T any](log *zap.Logger, e *feed.Engine[T], build BuildFunc) http.HandlerFunc {
	log = log.With(zap.String("feed", e.Resource()))
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := ParseParams(r)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		req, err := build(r, p)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		req.Limit = p.Limit
		req.Cursor = p.Cursor
		if req.ViewerID == "" {
			req.ViewerID = Viewer(r)
		}

		page, err := e.FetchPage(r.Context(), req)
		if err != nil {
			WriteError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}
