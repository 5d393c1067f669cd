package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer([]byte("access-secret"), []byte("refresh-secret"), 15*time.Minute, time.Hour)
}

func runMiddleware(t *testing.T, cfg JWTConfig, req *http.Request) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen echo.Context
	h := JWTMiddleware(cfg)(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})
	err := h(c)
	return seen, err
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := runMiddleware(t, JWTConfig{Issuer: newTestIssuer()}, req)

	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			_, err := runMiddleware(t, JWTConfig{Issuer: newTestIssuer()}, req)

			ae, ok := apperror.As(err)
			if !ok {
				t.Fatalf("expected apperror, got %T", err)
			}
			if ae.Status() != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", ae.Status())
			}
		})
	}
}

func TestJWTMiddleware_ValidBearer(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.Issue(Subject{ID: "user-1", Name: "Asha", Email: "asha@example.com", Role: RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	c, err := runMiddleware(t, JWTConfig{Issuer: issuer}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "user-1" {
		t.Errorf("user id = %q", got)
	}
	if got := RolesFromContext(ctx); len(got) != 1 || got[0] != RoleUser {
		t.Errorf("roles = %v", got)
	}
	if got := EmailFromContext(ctx); got != "asha@example.com" {
		t.Errorf("email = %q", got)
	}
	if info, ok := TokenFromContext(ctx); !ok || info.ID == "" || info.ExpiresAt.IsZero() {
		t.Errorf("token info = %+v, %v", info, ok)
	}
}

func TestJWTMiddleware_CookieToken(t *testing.T) {
	issuer := newTestIssuer()
	pair, _ := issuer.Issue(Subject{ID: "user-2", Role: RoleAdmin})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: pair.AccessToken})
	c, err := runMiddleware(t, JWTConfig{Issuer: issuer}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsAdmin(c.Request().Context()) {
		t.Error("expected admin role from cookie token")
	}
}

func TestJWTMiddleware_RejectsRefreshToken(t *testing.T) {
	issuer := newTestIssuer()
	pair, _ := issuer.Issue(Subject{ID: "user-3", Role: RoleUser})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	_, err := runMiddleware(t, JWTConfig{Issuer: issuer}, req)
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Fatalf("refresh token must not authenticate requests, got %v", err)
	}
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	issuer := newTestIssuer()
	revocations := NewRevocationStore(16, time.Minute)
	pair, _ := issuer.Issue(Subject{ID: "user-4", Role: RoleUser})
	claims, _ := issuer.ParseAccess(pair.AccessToken)
	revocations.Revoke(claims.ID, claims.ExpiresAt.Time)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	_, err := runMiddleware(t, JWTConfig{Issuer: issuer, Revocations: revocations}, req)
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	cfg := JWTConfig{
		Issuer:  newTestIssuer(),
		Skipper: func(echo.Context) bool { return true },
	}
	if _, err := runMiddleware(t, cfg, req); err != nil {
		t.Fatalf("expected skipped request to pass, got %v", err)
	}
}
