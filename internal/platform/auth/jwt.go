package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/video-platform/internal/platform/api"
)

type ctxKeyUserID struct{}
type ctxKeyRole struct{}

// ErrNoToken means the caller sent no credentials at all.
var ErrNoToken = errors.New("no bearer token")

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyUserID{}).(string)
	return v, ok
}

// WithUserID injects user_id into context. Useful for testing.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID{}, uid)
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyRole{}).(string)
	return v, ok
}

// Claims are issued by the identity provider; Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTVerifier struct {
	Secret []byte
}

func (v JWTVerifier) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (v JWTVerifier) fromRequest(r *http.Request) (*Claims, error) {
	return v.FromAuthorization(r.Header.Get("Authorization"))
}

// FromAuthorization verifies an "Authorization: Bearer <token>" value from
// any transport. An empty value returns ErrNoToken.
func (v JWTVerifier) FromAuthorization(authz string) (*Claims, error) {
	authz = strings.TrimSpace(authz)
	if authz == "" {
		return nil, ErrNoToken
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, errors.New("malformed authorization header")
	}
	claims, err := v.Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID{}, claims.Subject)
	if strings.TrimSpace(claims.Role) != "" {
		ctx = context.WithValue(ctx, ctxKeyRole{}, claims.Role)
	}
	return ctx
}

// RequireUser middleware validates Bearer token and injects user_id into context.
func RequireUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.fromRequest(r)
			if err != nil {
				api.Unauthorized(w, api.CodeUnauthorized, "Authentication required", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalUser injects user_id when a valid token is present. A missing
// header passes through anonymously; a present but invalid token is rejected
// so callers never silently lose their viewer state.
func OptionalUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.fromRequest(r)
			switch {
			case errors.Is(err, ErrNoToken):
				next.ServeHTTP(w, r)
			case err != nil:
				api.Unauthorized(w, api.CodeUnauthorized, "Invalid token", "")
			default:
				next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
			}
		})
	}
}
