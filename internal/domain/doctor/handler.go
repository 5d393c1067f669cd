package doctor

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/availability"
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
	doctors := api.Group("/doctors")

	// Read endpoints – any signed-in user
	readGroup := doctors.Group("", auth.RequireAuthenticated())
	readGroup.GET("", h.ListDoctors)
	readGroup.GET("/search", h.SearchDoctors)
	readGroup.GET("/filter", h.FilterDoctors)
	readGroup.GET("/:id", h.GetDoctor)

	// Write endpoints – admin
	writeGroup := doctors.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/add-doctor", h.AddDoctor)
	writeGroup.PATCH("/update/:id", h.UpdateDoctor)
	writeGroup.DELETE("/remove/:id", h.RemoveDoctor)
	writeGroup.PATCH("/updateSlots/:id", h.UpdateSlots)
}

func (h *Handler) AddDoctor(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperror.Validation("InvalidBody", "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	d, err := h.svc.AddDoctor(c.Request().Context(), in, callerID(c))
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusCreated, "Doctor added successfully", d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return apperror.Validation("InvalidBody", "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, in, callerID(c))
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "Doctor updated successfully", d)
}

func (h *Handler) RemoveDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.RemoveDoctor(c.Request().Context(), id); err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "Doctor deleted successfully", nil)
}

type slotsRequest struct {
	AvailableTimes availability.Calendar `json:"available_times"`
}

func (h *Handler) UpdateSlots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req slotsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation("InvalidBody", "invalid request body")
	}
	d, err := h.svc.UpdateSlots(c.Request().Context(), id, req.AvailableTimes, callerID(c))
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "Doctor slots updated successfully", d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond.JSON(c, http.StatusOK, "Doctor fetched", d)
}

// ListDoctors handles GET /doctors?query=&gender=&experience=&rating=&page=&perPage=&topRated=
func (h *Handler) ListDoctors(c echo.Context) error {
	p, err := searchParams(c)
	if err != nil {
		return err
	}
	topRated := strings.EqualFold(c.QueryParam("topRated"), "true")

	if topRated && !p.HasFilters() {
		items, err := h.svc.TopRated(c.Request().Context())
		if err != nil {
			return err
		}
		return respond.JSON(c, http.StatusOK, "Top rated doctors fetched", items)
	}

	p.ByRating = topRated
	return h.search(c, p)
}

// SearchDoctors handles GET /doctors/search?query= and requires a query.
func (h *Handler) SearchDoctors(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("query"))
	if q == "" {
		return apperror.MissingField("query")
	}
	return h.search(c, SearchParams{Query: q})
}

// FilterDoctors handles GET /doctors/filter and requires at least one of
// gender, experience or rating.
func (h *Handler) FilterDoctors(c echo.Context) error {
	p, err := searchParams(c)
	if err != nil {
		return err
	}
	p.Query = ""
	if !p.HasFilters() {
		return ErrInvalidFilter.WithMessage("at least one of gender, experience or rating is required")
	}
	return h.search(c, p)
}

func (h *Handler) search(c echo.Context, p SearchParams) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), p, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Doctor{}
	}
	return respond.JSON(c, http.StatusOK, "Doctors fetched successfully", pagination.NewResponse(items, total, pg))
}

func searchParams(c echo.Context) (SearchParams, error) {
	p := SearchParams{
		Query:  strings.TrimSpace(c.QueryParam("query")),
		Gender: strings.TrimSpace(c.QueryParam("gender")),
	}
	min, max, err := ParseExperience(c.QueryParam("experience"))
	if err != nil {
		return p, err
	}
	p.MinExperience, p.MaxExperience = min, max
	if p.MinRating, err = ParseRating(c.QueryParam("rating")); err != nil {
		return p, err
	}
	return p, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("InvalidID", "invalid doctor id")
	}
	return id, nil
}

func callerID(c echo.Context) uuid.UUID {
	id, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	return id
}
