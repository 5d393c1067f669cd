package doctor

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/availability"
	"github.com/clinic/clinic/internal/platform/apperror"
)

var (
	ErrDoctorNotFound        = apperror.NotFound("DoctorNotFound", "doctor not found")
	ErrDoctorHasAppointments = apperror.Conflict("DoctorHasAppointments", "doctor has appointments and cannot be removed")
	ErrInvalidFilter         = apperror.Validation("InvalidFilter", "invalid search filter")
)

// Doctor maps to the doctors table.
type Doctor struct {
	ID             uuid.UUID             `db:"id" json:"id"`
	Name           string                `db:"name" json:"name"`
	Specialty      string                `db:"specialty" json:"specialty"`
	Experience     int                   `db:"experience" json:"experience"`
	Degree         string                `db:"degree" json:"degree"`
	Location       string                `db:"location" json:"location"`
	Gender         string                `db:"gender" json:"gender"`
	Rating         float64               `db:"rating" json:"rating"`
	AvailableTimes availability.Calendar `db:"available_times" json:"available_times"`
	CreatedBy      *uuid.UUID            `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy      *uuid.UUID            `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt      time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at" json:"updated_at"`
}

type CreateInput struct {
	Name           string                `json:"name" validate:"required"`
	Specialty      string                `json:"specialty" validate:"required"`
	Experience     *int                  `json:"experience" validate:"required,gte=0"`
	Degree         string                `json:"degree" validate:"required"`
	Location       string                `json:"location" validate:"required"`
	Gender         string                `json:"gender" validate:"required"`
	AvailableTimes availability.Calendar `json:"available_times" validate:"required"`
}

// UpdateInput carries a partial update. Nil and empty fields are left alone.
// AvailableTimes, when present, replaces the whole calendar.
type UpdateInput struct {
	Name           *string               `json:"name"`
	Specialty      *string               `json:"specialty"`
	Experience     *int                  `json:"experience" validate:"omitempty,gte=0"`
	Degree         *string               `json:"degree"`
	Location       *string               `json:"location"`
	Gender         *string               `json:"gender"`
	AvailableTimes availability.Calendar `json:"available_times"`
}

func (in UpdateInput) apply(d *Doctor) {
	set := func(dst *string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&d.Name, in.Name)
	set(&d.Specialty, in.Specialty)
	set(&d.Degree, in.Degree)
	set(&d.Location, in.Location)
	set(&d.Gender, in.Gender)
	if in.Experience != nil {
		d.Experience = *in.Experience
	}
	if in.AvailableTimes != nil {
		d.AvailableTimes = in.AvailableTimes.Clone()
	}
}

// SearchParams filters the directory. Zero values mean "no filter".
type SearchParams struct {
	Query         string
	Gender        string
	MinExperience *int
	MaxExperience *int
	MinRating     *float64
	// ByRating orders by rating instead of name.
	ByRating bool
}

// HasFilters reports whether any filter narrows the result.
func (p SearchParams) HasFilters() bool {
	return p.Query != "" || p.Gender != "" || p.MinExperience != nil ||
		p.MaxExperience != nil || p.MinRating != nil
}

// ParseExperience reads an experience filter: "N" matches exactly N years,
// "N-M" matches N through M inclusive and "N+" matches N or more.
func ParseExperience(raw string) (min, max *int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, nil
	}
	bad := ErrInvalidFilter.WithMessage("experience must be N, N-M or N+, got %q", raw)

	atoi := func(s string) (*int, bool) {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 {
			return nil, false
		}
		return &n, true
	}

	switch {
	case strings.HasSuffix(raw, "+"):
		n, ok := atoi(strings.TrimSuffix(raw, "+"))
		if !ok {
			return nil, nil, bad
		}
		return n, nil, nil
	case strings.Contains(raw, "-"):
		lo, hi, _ := strings.Cut(raw, "-")
		a, okA := atoi(lo)
		b, okB := atoi(hi)
		if !okA || !okB || *a > *b {
			return nil, nil, bad
		}
		return a, b, nil
	default:
		n, ok := atoi(raw)
		if !ok {
			return nil, nil, bad
		}
		return n, n, nil
	}
}

// ParseRating reads a minimum rating filter in [0, 5].
func ParseRating(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	r, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(r) || r < 0 || r > 5 {
		return nil, ErrInvalidFilter.WithMessage("rating must be a number between 0 and 5, got %q", raw)
	}
	return &r, nil
}
