package doctor

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/availability"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	// GetForUpdate reads the doctor and locks the row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, p SearchParams, limit, offset int) ([]*Doctor, int, error)
	TopRated(ctx context.Context, n int) ([]*Doctor, error)
	// LockAvailability reads the calendar under a row lock. Must run inside a
	// transaction.
	LockAvailability(ctx context.Context, id uuid.UUID) (availability.Calendar, error)
	SaveAvailability(ctx context.Context, id uuid.UUID, cal availability.Calendar, updatedBy *uuid.UUID) error
	SetRating(ctx context.Context, id uuid.UUID, rating float64) error
}
