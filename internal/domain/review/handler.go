package review

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/respond"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reviews", auth.RequireAuthenticated())
	g.GET("", h.ReviewHistory)
	g.POST("/add-review", h.AddReview)
	g.GET("/review-pending", h.PendingReviews)
}

func (h *Handler) AddReview(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	var req addRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return apperror.Validation("InvalidID", "invalid doctor id")
	}
	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		return apperror.Validation("InvalidID", "invalid appointment id")
	}

	rv, err := h.svc.AddReview(c.Request().Context(), AddInput{
		DoctorID:      doctorID,
		AppointmentID: appointmentID,
		PatientID:     patientID,
		Rating:        *req.Rating,
		Body:          req.Review,
	})
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusCreated, "Review added successfully", rv)
}

// PendingReviews handles GET /reviews/review-pending?doctor_id=
func (h *Handler) PendingReviews(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	var doctorID *uuid.UUID
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperror.Validation("InvalidID", "invalid doctor id")
		}
		doctorID = &id
	}

	items, err := h.svc.PendingReviews(c.Request().Context(), patientID, doctorID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*PendingReview{}
	}
	return respond.JSON(c, http.StatusOK, "Pending reviews fetched successfully", items)
}

func (h *Handler) ReviewHistory(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ReviewHistory(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return respond.JSON(c, http.StatusOK, "No reviews found for this user", []*Review{})
	}
	return respond.JSON(c, http.StatusOK, "Reviews fetched successfully", items)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthenticated
	}
	return id, nil
}
