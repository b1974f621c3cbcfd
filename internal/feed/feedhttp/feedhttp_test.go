package feedhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/memfeed"
	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/auth"
)

type video struct {
	ID string `json:"id"`
}

const (
	idA = "00000000-0000-0000-0000-00000000000a"
	idB = "00000000-0000-0000-0000-00000000000b"
	idC = "00000000-0000-0000-0000-00000000000c"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newEngine(b feed.Backend, requiresViewer bool) *feed.Engine[video] {
	return feed.New(b, feed.Resource[video]{
		Name:           "videos",
		Table:          "videos",
		Order:          feed.Order{Key: "updated_at", ID: "id"},
		RequiresViewer: requiresViewer,
		Decode:         func(r feed.Record) (video, error) { return video{ID: r.String("id")}, nil },
	})
}

func memBackend() *memfeed.Backend {
	b := memfeed.New()
	b.Static("videos",
		feed.Record{"id": idA, "updated_at": t0},
		feed.Record{"id": idB, "updated_at": t0.Add(time.Second)},
		feed.Record{"id": idC, "updated_at": t0.Add(2 * time.Second)},
	)
	return b
}

func noFilters(*http.Request, Params) (feed.Request, error) { return feed.Request{}, nil }

type pageJSON struct {
	Items      []video      `json:"items"`
	NextCursor *feed.Cursor `json:"next_cursor"`
}

func TestList_Pages(t *testing.T) {
	h := List(zap.NewNop(), newEngine(memBackend(), false), noFilters)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/videos?limit=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var p pageJSON
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p.Items) != 2 || p.Items[0].ID != idC || p.NextCursor == nil || p.NextCursor.ID != idB {
		t.Fatalf("unexpected first page: %+v", p)
	}

	next := "/v1/videos?limit=2&cursor_id=" + p.NextCursor.ID + "&cursor_updated_at=" + p.NextCursor.UpdatedAt.Format(time.RFC3339Nano)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, next, nil))
	var p2 pageJSON
	if err := json.NewDecoder(rr.Body).Decode(&p2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p2.Items) != 1 || p2.Items[0].ID != idA || p2.NextCursor != nil {
		t.Fatalf("unexpected second page: %+v", p2)
	}
}

func TestList_EmptyPageShape(t *testing.T) {
	b := memfeed.New()
	b.Static("videos")
	h := List(zap.NewNop(), newEngine(b, false), noFilters)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/videos", nil))
	if got := rr.Body.String(); got != "{\"items\":[],\"next_cursor\":null}\n" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestList_ValidationErrors(t *testing.T) {
	h := List(zap.NewNop(), newEngine(memBackend(), false), noFilters)
	cases := map[string]string{
		"/v1/videos?limit=0":                                               "limit",
		"/v1/videos?limit=101":                                             "limit",
		"/v1/videos?limit=ten":                                             "limit",
		"/v1/videos?cursor_id=" + idA:                                      "cursor_updated_at",
		"/v1/videos?cursor_updated_at=2024-01-01T00:00:00Z":                "cursor_id",
		"/v1/videos?cursor_id=" + idA + "&cursor_updated_at=x":             "cursor_updated_at",
		"/v1/videos?cursor_id=nope&cursor_updated_at=2024-01-01T00:00:00Z": "cursor_id",
	}
	for url, field := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", url, rr.Code)
		}
		var resp api.ErrorResponse
		_ = json.NewDecoder(rr.Body).Decode(&resp)
		if resp.Error.Code != "VALIDATION_ERROR" {
			t.Fatalf("%s: unexpected code %q", url, resp.Error.Code)
		}
		if _, ok := resp.Error.Details[field]; !ok {
			t.Fatalf("%s: expected detail for %s, got %v", url, field, resp.Error.Details)
		}
	}
}

func TestList_BuildErrorShortCircuits(t *testing.T) {
	h := List(zap.NewNop(), newEngine(memBackend(), false), func(r *http.Request, _ Params) (feed.Request, error) {
		return feed.Request{}, UUIDParam("category_id", r.URL.Query().Get("category_id"))
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/videos?category_id=bad", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestList_RequiresViewer(t *testing.T) {
	h := List(zap.NewNop(), newEngine(memBackend(), true), noFilters)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/playlists", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/playlists", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), "viewer-1"))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

type failingBackend struct{ feed.Backend }

func (failingBackend) Select(context.Context, feed.Query) ([]feed.Record, error) {
	return nil, errors.New("connection refused")
}

func TestList_StoreFaultIs500(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := List(zap.New(core), newEngine(failingBackend{}, false), noFilters)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/videos", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	entries := logs.FilterField(zap.String("feed", "videos")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one fault logged for the videos feed, got %d", logs.Len())
	}
}
