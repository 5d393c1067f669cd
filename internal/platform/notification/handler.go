package notification

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
	"github.com/clinic/clinic/pkg/respond"
)

// Handler exposes the outbox to staff so stuck emails can be inspected and
// retried.
type Handler struct {
	notifier *Notifier
	outbox   Outbox
}

func NewHandler(notifier *Notifier, outbox Outbox) *Handler {
	return &Handler{notifier: notifier, outbox: outbox}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	admin := g.Group("/notifications", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.List)
	admin.GET("/stats", h.Stats)
	admin.GET("/:id", h.Get)
	admin.POST("/:id/retry", h.Retry)
}

// List handles GET /notifications?status=failed
func (h *Handler) List(c echo.Context) error {
	status := c.QueryParam("status")
	switch status {
	case "", StatusPending, StatusSent, StatusFailed:
	default:
		return apperror.Validation("InvalidStatus", "status must be pending, sent or failed")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.outbox.List(c.Request().Context(), status, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Message{}
	}
	return respond.JSON(c, http.StatusOK, "notifications fetched", pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.outbox.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "notification fetched", m)
}

func (h *Handler) Retry(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.notifier.Retry(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "notification requeued", m)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.outbox.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "notification stats", stats)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("InvalidID", "invalid notification id")
	}
	return id, nil
}
