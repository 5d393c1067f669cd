package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

var (
	ErrEmailTaken         = apperror.Conflict("EmailTaken", "a user with this email already exists")
	ErrUserNotFound       = apperror.NotFound("UserNotFound", "user does not exist")
	ErrInvalidCredentials = apperror.Unauthorized("InvalidCredentials", "invalid email or password")
	ErrInvalidToken       = apperror.Unauthorized("InvalidToken", "invalid refresh token")
)

// User maps to the users table.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	RefreshToken *string   `db:"refresh_token" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) subject() auth.Subject {
	return auth.Subject{ID: u.ID.String(), Name: u.Name, Email: u.Email, Role: u.Role}
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Session is returned by login and refresh.
type Session struct {
	User   *User           `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}
