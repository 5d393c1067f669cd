package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	// Create inserts u. An email already in use fails with ErrEmailTaken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// SetRefreshToken stores token, or clears it when token is nil.
	SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error
}
