package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
)

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			if len(userRoles) == 0 && UserIDFromContext(c.Request().Context()) == "" {
				return apperror.ErrUnauthenticated
			}
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return apperror.ErrForbidden.WithMessage("required role: %s", strings.Join(roles, " or "))
		}
	}
}

// RequireAuthenticated rejects requests with no verified user.
func RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				return apperror.ErrUnauthenticated
			}
			return next(c)
		}
	}
}
