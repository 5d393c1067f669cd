package identity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/respond"
)

type Handler struct {
	svc *Service
	// secureCookies sets the Secure flag on session cookies.
	secureCookies bool
}

func NewHandler(svc *Service, secureCookies bool) *Handler {
	return &Handler{svc: svc, secureCookies: secureCookies}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/users")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)

	authed := g.Group("", auth.RequireAuthenticated())
	authed.POST("/logout", h.Logout)
	authed.GET("/profile", h.Profile)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return apperror.Validation("InvalidBody", "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusCreated, "User registered successfully", u)
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return apperror.Validation("InvalidBody", "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.setSessionCookies(c, sess.Tokens)
	return respond.JSON(c, http.StatusOK, "Login successful", sess)
}

// Refresh accepts the refresh token from its cookie or the JSON body.
func (h *Handler) Refresh(c echo.Context) error {
	var token string
	if cookie, err := c.Cookie(auth.RefreshCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req refreshRequest
		if err := c.Bind(&req); err != nil {
			return apperror.Validation("InvalidBody", "invalid request body")
		}
		token = req.RefreshToken
	}

	sess, err := h.svc.Refresh(c.Request().Context(), token)
	if err != nil {
		return err
	}
	h.setSessionCookies(c, sess.Tokens)
	return respond.JSON(c, http.StatusOK, "Access token refreshed", sess)
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return apperror.ErrUnauthenticated
	}
	info, _ := auth.TokenFromContext(ctx)
	if err := h.svc.Logout(ctx, id, info); err != nil {
		return err
	}
	h.clearSessionCookies(c)
	return respond.JSON(c, http.StatusOK, "Logout successful", nil)
}

func (h *Handler) Profile(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return apperror.ErrUnauthenticated
	}
	u, err := h.svc.Profile(ctx, id)
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "User profile fetched", u)
}

func (h *Handler) setSessionCookies(c echo.Context, pair *auth.TokenPair) {
	c.SetCookie(h.cookie(auth.AccessCookie, pair.AccessToken, pair.AccessExpiresAt))
	c.SetCookie(h.cookie(auth.RefreshCookie, pair.RefreshToken, pair.RefreshExpiresAt))
}

func (h *Handler) clearSessionCookies(c echo.Context) {
	for _, name := range []string{auth.AccessCookie, auth.RefreshCookie} {
		ck := h.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

func (h *Handler) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
