package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/video-platform/internal/feed"
)

func TestObservePage(t *testing.T) {
	m := New("test")
	m.ObservePage("comments", 3, 5*time.Millisecond, nil)
	m.ObservePage("comments", 0, time.Millisecond, &feed.ValidationError{Field: "limit", Reason: "x"})
	m.ObservePage("comments", 0, time.Millisecond, errors.New("db down"))

	if got := testutil.ToFloat64(m.FeedPageErrors.WithLabelValues("comments", "validation")); got != 1 {
		t.Fatalf("validation errors = %v", got)
	}
	if got := testutil.ToFloat64(m.FeedPageErrors.WithLabelValues("comments", "store")); got != 1 {
		t.Fatalf("store errors = %v", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("test")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/videos/{video_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/videos/abc", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/v1/videos/{video_id}", "418")); got != 1 {
		t.Fatalf("requests = %v", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `http_requests_total{method="GET",route="/v1/videos/{video_id}",service="test",status="418"} 1`) {
		t.Fatalf("metric not exported:\n%s", rr.Body.String())
	}
}

func TestRoute_Unmatched(t *testing.T) {
	if got := Route(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Fatalf("route = %q", got)
	}
}

func TestGatherer_ServiceLabel(t *testing.T) {
	m := New("catalog")
	m.EventsProcessed.WithLabelValues("catalog.views.record", "ok").Inc()

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "events_processed_total" {
			continue
		}
		for _, l := range f.GetMetric()[0].GetLabel() {
			if l.GetName() == "service" && l.GetValue() == "catalog" {
				return
			}
		}
		t.Fatalf("service label missing: %v", f.GetMetric()[0].GetLabel())
	}
	t.Fatal("events_processed_total not gathered")
}
