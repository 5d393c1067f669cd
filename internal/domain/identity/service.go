package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Service struct {
	users       UserRepository
	tokens      *auth.TokenIssuer
	revocations *auth.RevocationStore
	adminDomain string
	logger      zerolog.Logger
}

// NewService builds the identity service. Users registering with an email in
// adminDomain get the admin role; an empty adminDomain disables that.
func NewService(users UserRepository, tokens *auth.TokenIssuer, revocations *auth.RevocationStore, adminDomain string, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		adminDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(adminDomain), "@")),
		logger:      logger.With().Str("component", "identity").Logger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) roleFor(email string) string {
	if s.adminDomain != "" && strings.HasSuffix(email, "@"+s.adminDomain) {
		return auth.RoleAdmin
	}
	return auth.RoleUser
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	switch {
	case name == "":
		return nil, apperror.MissingField("name")
	case email == "":
		return nil, apperror.MissingField("email")
	case in.Password == "":
		return nil, apperror.MissingField("password")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperror.Internal(apperror.CodeInternal, "hash password").Wrap(err)
	}
	u := &User{Name: name, Email: email, PasswordHash: hash, Role: s.roleFor(email)}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("user registered")
	return u, nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperror.MissingField("email")
	}
	if in.Password == "" {
		return nil, apperror.MissingField("password")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, in.Password)
	if err != nil {
		return nil, apperror.Internal(apperror.CodeInternal, "verify password").Wrap(err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, u)
}

// Refresh rotates both tokens. The presented refresh token must be the one
// stored on the user, so each refresh token works once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrInvalidToken.WithMessage("refresh token not found")
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if u.RefreshToken == nil || *u.RefreshToken != refreshToken {
		return nil, ErrInvalidToken
	}
	return s.startSession(ctx, u)
}

func (s *Service) startSession(ctx context.Context, u *User) (*Session, error) {
	pair, err := s.tokens.Issue(u.subject())
	if err != nil {
		return nil, apperror.Internal(apperror.CodeInternal, "issue tokens").Wrap(err)
	}
	if err := s.users.SetRefreshToken(ctx, u.ID, &pair.RefreshToken); err != nil {
		return nil, err
	}
	u.RefreshToken = &pair.RefreshToken
	return &Session{User: u, Tokens: pair}, nil
}

// Logout clears the stored refresh token and revokes the access token the
// request was made with.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, access auth.TokenInfo) error {
	if userID == uuid.Nil {
		return apperror.ErrUnauthenticated
	}
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return err
	}
	if s.revocations != nil && access.ID != "" {
		s.revocations.Revoke(access.ID, access.ExpiresAt)
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*User, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrUnauthenticated
	}
	return s.users.GetByID(ctx, userID)
}

// ContactOf returns the name and email status notifications are addressed to.
func (s *Service) ContactOf(ctx context.Context, id uuid.UUID) (string, string, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	return u.Name, u.Email, nil
}
