package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidationFailed(t *testing.T) {
	rr := httptest.NewRecorder()
	ValidationFailed(rr, "rid-1", map[string]string{"limit": "must be between 1 and 100"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" || resp.Error.RequestID != "rid-1" {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Error.Details["limit"] != "must be between 1 and 100" {
		t.Fatalf("unexpected details: %v", resp.Error.Details)
	}
}

func TestInternalHidesDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	Internal(rr, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var resp ErrorResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Error.Code != "INTERNAL" || resp.Error.Details != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}
