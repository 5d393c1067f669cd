package auth

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/clinic/clinic/internal/platform/apperror"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserEmailKey contextKey = "user_email"
	UserNameKey  contextKey = "user_name"
	TokenKey     contextKey = "token"
)

// AccessCookie is the cookie the access token may be carried in instead of
// the Authorization header.
const AccessCookie = "accessToken"

// RefreshCookie carries the refresh token for browser clients.
const RefreshCookie = "refreshToken"

// TokenInfo describes the verified access token of the current request.
type TokenInfo struct {
	ID        string
	ExpiresAt time.Time
}

// JWTConfig configures JWTMiddleware.
type JWTConfig struct {
	Issuer      *TokenIssuer
	Revocations *RevocationStore
	Skipper     middleware.Skipper
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, err := cfg.Issuer.ParseAccess(tokenStr)
			if err != nil {
				return apperror.ErrUnauthenticated.WithMessage("invalid or expired access token")
			}
			if cfg.Revocations != nil && cfg.Revocations.IsRevoked(claims.ID) {
				return apperror.ErrUnauthenticated.WithMessage("access token has been revoked")
			}

			info := TokenInfo{ID: claims.ID}
			if claims.ExpiresAt != nil {
				info.ExpiresAt = claims.ExpiresAt.Time
			}

			ctx := WithUser(c.Request().Context(), claims.Subject, claims.Role)
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
			ctx = context.WithValue(ctx, UserNameKey, claims.Name)
			ctx = context.WithValue(ctx, TokenKey, info)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", claims.Subject)

			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	if header := c.Request().Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", apperror.ErrUnauthenticated.WithMessage("invalid authorization format")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", apperror.ErrUnauthenticated.WithMessage("missing access token")
}

// WithUser returns ctx carrying the given user id and role.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	var roles []string
	if role != "" {
		roles = []string{role}
	}
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

func TokenFromContext(ctx context.Context) (TokenInfo, bool) {
	info, ok := ctx.Value(TokenKey).(TokenInfo)
	return info, ok
}

// IsAdmin reports whether the request user holds the admin role.
func IsAdmin(ctx context.Context) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}
