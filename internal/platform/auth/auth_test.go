package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/video-platform/internal/platform/httpserver"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func makeToken(subject, role string, exp time.Time) string {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	return signed
}

func newVerifier() JWTVerifier { return JWTVerifier{Secret: testSecret} }

func TestJWTVerifier_Parse(t *testing.T) {
	valid := makeToken("user-1", "user", time.Now().Add(time.Hour))
	parts := strings.Split(valid, ".")
	cases := []struct {
		name    string
		token   string
		secret  []byte
		wantErr bool
	}{
		{"valid", valid, testSecret, false},
		{"expired", makeToken("user-1", "user", time.Now().Add(-time.Hour)), testSecret, true},
		{"wrong secret", valid, []byte("wrong-secret"), true},
		{"malformed", "not.a.valid.token", testSecret, true},
		{"tampered payload", parts[0] + ".dGFtcGVyZWQ." + parts[2], testSecret, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := JWTVerifier{Secret: tc.secret}.Parse(tc.token)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if claims.Subject != "user-1" || claims.Role != "user" {
				t.Fatalf("unexpected claims: %+v", claims)
			}
		})
	}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := UserIDFromContext(r.Context())
		role, _ := RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(uid + "|" + role))
	})
}

func TestRequireUser(t *testing.T) {
	cases := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"valid bearer", "Bearer " + makeToken("user-42", "admin", time.Now().Add(time.Hour)), http.StatusOK, "user-42|admin"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized, ""},
		{"empty subject", "Bearer " + makeToken("", "", time.Now().Add(time.Hour)), http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			RequireUser(newVerifier())(echoUser()).ServeHTTP(rr, req)
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
			if tc.body != "" && rr.Body.String() != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, rr.Body.String())
			}
		})
	}
}

func TestOptionalUser(t *testing.T) {
	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	OptionalUser(newVerifier())(echoUser()).ServeHTTP(rr, anon)
	if rr.Code != http.StatusOK || rr.Body.String() != "|" {
		t.Fatalf("anonymous: got %d %q", rr.Code, rr.Body.String())
	}

	signed := httptest.NewRequest(http.MethodGet, "/", nil)
	signed.Header.Set("Authorization", "Bearer "+makeToken("viewer-1", "", time.Now().Add(time.Hour)))
	rr = httptest.NewRecorder()
	OptionalUser(newVerifier())(echoUser()).ServeHTTP(rr, signed)
	if rr.Code != http.StatusOK || rr.Body.String() != "viewer-1|" {
		t.Fatalf("signed: got %d %q", rr.Code, rr.Body.String())
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	OptionalUser(newVerifier())(echoUser()).ServeHTTP(rr, bad)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token: expected 401, got %d", rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	cases := map[string]int{
		"admin": http.StatusOK,
		"ADMIN": http.StatusOK,
		"user":  http.StatusForbidden,
		"":      http.StatusForbidden,
	}
	for role, code := range cases {
		ctx := context.Background()
		if role != "" {
			ctx = context.WithValue(ctx, ctxKeyRole{}, role)
		}
		req := httptest.NewRequest(http.MethodPost, "/v1/categories", nil).WithContext(ctx)
		rr := httptest.NewRecorder()
		RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rr, req)
		if rr.Code != code {
			t.Fatalf("role %q: expected %d, got %d", role, code, rr.Code)
		}
	}
}

func TestRequireRole_ForbiddenCarriesRequestID(t *testing.T) {
	h := httpserver.RequestIDMiddleware("X-Request-Id")(RequireRole("moderator")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodDelete, "/v1/comments/x", nil)
	req.Header.Set("X-Request-Id", "rid-123")
	req = req.WithContext(context.WithValue(req.Context(), ctxKeyRole{}, "user"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"request_id":"rid-123"`) {
		t.Fatalf("request id missing from body: %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/comments/x", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKeyRole{}, "Moderator"))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for matching role, got %d", rr.Code)
	}
}
