package handlers

import (
	"net/http"
	"testing"

	"github.com/example/video-platform/services/catalog/internal/store"
)

func TestSubscribe_Errors(t *testing.T) {
	f := newFixture()
	params := map[string]string{"creator_id": userB}

	rr := serve(f.subscriptions.Subscribe, setupReq(http.MethodPost, "/v1/subscriptions/"+userB, "", params, userA))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	rr = serve(f.subscriptions.Subscribe, setupReq(http.MethodPost, "/v1/subscriptions/"+userB, "", params, userA))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rr.Code)
	}
	rr = serve(f.subscriptions.Subscribe, setupReq(http.MethodPost, "/v1/subscriptions/"+userA, "", map[string]string{"creator_id": userA}, userA))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "SELF_SUBSCRIPTION" {
		t.Fatalf("expected 400 SELF_SUBSCRIPTION, got %d", rr.Code)
	}
	rr = serve(f.subscriptions.Subscribe, setupReq(http.MethodPost, "/v1/subscriptions/x", "", map[string]string{"creator_id": "x"}, userA))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad uuid, got %d", rr.Code)
	}

	rr = serve(f.subscriptions.Unsubscribe, setupReq(http.MethodDelete, "/v1/subscriptions/"+userB, "", params, userA))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = serve(f.subscriptions.Unsubscribe, setupReq(http.MethodDelete, "/v1/subscriptions/"+userB, "", params, userA))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestListSubscriptions(t *testing.T) {
	f := newFixture()
	_ = serve(f.subscriptions.Subscribe, setupReq(http.MethodPost, "/", "", map[string]string{"creator_id": userB}, userA))
	_ = serve(f.subscriptions.Subscribe, setupReq(http.MethodPost, "/", "", map[string]string{"creator_id": userB}, userC))

	page := decodePage[store.SubscriptionItem](t, serve(f.subscriptions.List(), setupReq(http.MethodGet, "/v1/subscriptions", "", nil, userA)))
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(page.Items))
	}
	got := page.Items[0]
	if got.CreatorID != userB || got.User.Name != "B" || got.User.SubscriberCount != 2 {
		t.Fatalf("unexpected item: %+v", got)
	}

	rr := serve(f.subscriptions.List(), setupReq(http.MethodGet, "/v1/subscriptions", "", nil, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
