package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/memfeed"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/services/catalog/internal/store"
)

const (
	userA = "0b9a2c1e-1111-4c4c-8a8a-000000000001"
	userB = "0b9a2c1e-2222-4c4c-8a8a-000000000002"
	userC = "0b9a2c1e-3333-4c4c-8a8a-000000000003"
)

// setupReq builds a request with chi URL params and optional user_id in context.
func setupReq(method, url string, body string, params map[string]string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

type recordedViews struct {
	views []store.View
}

func (r *recordedViews) RecordView(_ context.Context, v store.View) error {
	r.views = append(r.views, v)
	return nil
}

type fixture struct {
	store         *store.InMemoryCatalogStore
	views         *recordedViews
	videos        Videos
	subscriptions Subscriptions
	playlists     Playlists
	categories    Categories
}

func newFixture() *fixture {
	s := store.NewInMemoryCatalogStore()
	s.PutUser(store.User{ID: userA, Name: "A"})
	s.PutUser(store.User{ID: userB, Name: "B"})
	s.PutUser(store.User{ID: userC, Name: "C"})
	b := memfeed.New()
	s.Register(b)
	log := zap.NewNop()
	views := &recordedViews{}
	return &fixture{
		store: s,
		views: views,
		videos: Videos{
			Store:       s,
			Feed:        feed.New(b, store.VideoResource()),
			Search:      feed.New(b, store.SearchResource()),
			Suggestions: feed.New(b, store.SuggestionResource()),
			Views:       views,
			Log:         log,
			Now:         func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
		},
		subscriptions: Subscriptions{Store: s, Feed: feed.New(b, store.SubscriptionResource()), Log: log},
		playlists: Playlists{
			Store:   s,
			Feed:    feed.New(b, store.PlaylistResource()),
			Items:   feed.New(b, store.PlaylistVideoResource()),
			History: feed.New(b, store.HistoryResource()),
			Liked:   feed.New(b, store.LikedResource()),
			Log:     log,
		},
		categories: Categories{Store: s, Log: log},
	}
}

// upload creates a video for owner and applies patch as JSON.
func (f *fixture) upload(t *testing.T, owner, patch string) store.Video {
	t.Helper()
	rr := httptest.NewRecorder()
	f.videos.Create(rr, setupReq(http.MethodPost, "/v1/videos", "", nil, owner))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var v store.Video
	_ = json.NewDecoder(rr.Body).Decode(&v)
	if patch == "" {
		return v
	}
	rr = httptest.NewRecorder()
	f.videos.Update(rr, setupReq(http.MethodPatch, "/v1/videos/"+v.ID, patch, map[string]string{"id": v.ID}, owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	_ = json.NewDecoder(rr.Body).Decode(&v)
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func decodePage[T any](t *testing.T, rr *httptest.ResponseRecorder) feed.Page[T] {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page feed.Page[T]
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	return page
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}
