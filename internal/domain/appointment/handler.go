package appointment

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
	"github.com/clinic/clinic/pkg/respond"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments", auth.RequireAuthenticated())
	staff := auth.RequireRole(auth.RoleAdmin)

	g.GET("", h.ListAppointments, staff)
	g.GET("/my", h.MyAppointments)
	g.GET("/get-user-appointments", h.MyAppointments)
	g.POST("/book-appointment", h.BookAppointment)
	g.PATCH("/updateStatus", h.UpdateStatus, staff)
	g.GET("/:id", h.GetAppointment)
}

func (h *Handler) BookAppointment(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	var req bookRequest
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

	a, err := h.svc.Book(c.Request().Context(), BookingInput{
		DoctorID:         doctorID,
		PatientID:        patientID,
		Date:             req.AppointmentTime.Date,
		Shift:            req.AppointmentTime.Shift,
		SlotTime:         req.AppointmentTime.SlotTime,
		Location:         req.Location,
		ConsultationType: req.ConsultationType,
	})
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusCreated, "Appointment booked successfully", a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return apperror.Validation("InvalidID", "invalid appointment id")
	}

	change, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Appointment status updated to %s", change.Appointment.Status)
	return respond.JSON(c, http.StatusOK, msg, change)
}

// ListAppointments handles GET /appointments?status=&page=&perPage=
func (h *Handler) ListAppointments(c echo.Context) error {
	var status Status
	if raw := c.QueryParam("status"); raw != "" {
		s, err := ParseStatus(raw)
		if err != nil {
			return err
		}
		status = s
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), status, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return respond.JSON(c, http.StatusOK, "Appointments fetched successfully", pagination.NewResponse(items, total, pg))
}

func (h *Handler) MyAppointments(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientAppointments(c.Request().Context(), patientID, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return respond.JSON(c, http.StatusOK, "Appointments fetched successfully", pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.Validation("InvalidID", "invalid appointment id")
	}
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.GetForCaller(ctx, id, caller, auth.IsAdmin(ctx))
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "Appointment fetched", a)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthenticated
	}
	return id, nil
}
