package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

// -- Mock User Repository --

type mockUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepo) SetRefreshToken(_ context.Context, id uuid.UUID, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if token == nil {
		u.RefreshToken = nil
		return nil
	}
	t := *token
	u.RefreshToken = &t
	return nil
}

func newTestService() (*Service, *mockUserRepo, *auth.RevocationStore) {
	repo := newMockUserRepo()
	issuer := auth.NewTokenIssuer([]byte("access-secret"), []byte("refresh-secret"), 15*time.Minute, time.Hour)
	revocations := auth.NewRevocationStore(64, time.Hour)
	return NewService(repo, issuer, revocations, "@clinic.example", zerolog.Nop()), repo, revocations
}

func register(t *testing.T, svc *Service, email string) *User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{Name: "Pat", Email: email, Password: "s3cret!"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTestService()

	u := register(t, svc, "  Pat@Example.com ")
	if u.Email != "pat@example.com" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}
	if u.Role != auth.RoleUser {
		t.Errorf("expected user role, got %s", u.Role)
	}
	if u.PasswordHash == "" || u.PasswordHash == "s3cret!" {
		t.Error("password must be stored hashed")
	}

	admin := register(t, svc, "staff@clinic.example")
	if admin.Role != auth.RoleAdmin {
		t.Errorf("expected admin role for clinic domain, got %s", admin.Role)
	}
}

func TestRegister_Errors(t *testing.T) {
	svc, _, _ := newTestService()
	register(t, svc, "pat@example.com")

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "PAT@example.com", Password: "password"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected EmailTaken, got %v", err)
	}
	_, err = svc.Register(context.Background(), RegisterInput{Email: "x@example.com", Password: "password"})
	if !errors.Is(err, apperror.ErrMissingField) {
		t.Fatalf("expected MissingField, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, repo, _ := newTestService()
	u := register(t, svc, "pat@example.com")

	sess, err := svc.Login(context.Background(), LoginInput{Email: "pat@example.com", Password: "s3cret!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Tokens.AccessToken == "" || sess.Tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	stored, _ := repo.GetByID(context.Background(), u.ID)
	if stored.RefreshToken == nil || *stored.RefreshToken != sess.Tokens.RefreshToken {
		t.Error("refresh token should be stored on the user")
	}

	if _, err := svc.Login(context.Background(), LoginInput{Email: "pat@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected InvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "x"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected UserNotFound, got %v", err)
	}
}

func TestRefresh_Rotates(t *testing.T) {
	svc, _, _ := newTestService()
	register(t, svc, "pat@example.com")
	sess, _ := svc.Login(context.Background(), LoginInput{Email: "pat@example.com", Password: "s3cret!"})

	next, err := svc.Refresh(context.Background(), sess.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Tokens.RefreshToken == sess.Tokens.RefreshToken {
		t.Error("refresh token should rotate")
	}
	if _, err := svc.Refresh(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("old refresh token should be rejected, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), sess.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token must not work as refresh token, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected InvalidToken for empty token, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	svc, repo, revocations := newTestService()
	u := register(t, svc, "pat@example.com")
	sess, _ := svc.Login(context.Background(), LoginInput{Email: "pat@example.com", Password: "s3cret!"})

	info := auth.TokenInfo{ID: "jti-1", ExpiresAt: time.Now().Add(time.Minute)}
	if err := svc.Logout(context.Background(), u.ID, info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), u.ID)
	if stored.RefreshToken != nil {
		t.Error("refresh token should be cleared")
	}
	if !revocations.IsRevoked("jti-1") {
		t.Error("access token should be revoked")
	}
	if _, err := svc.Refresh(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh after logout should fail, got %v", err)
	}
}

func TestProfileAndContact(t *testing.T) {
	svc, _, _ := newTestService()
	u := register(t, svc, "pat@example.com")

	p, err := svc.Profile(context.Background(), u.ID)
	if err != nil || p.Email != "pat@example.com" {
		t.Fatalf("unexpected profile: %+v, %v", p, err)
	}
	name, email, err := svc.ContactOf(context.Background(), u.ID)
	if err != nil || name != "Pat" || email != "pat@example.com" {
		t.Errorf("unexpected contact: %s %s %v", name, email, err)
	}
	if _, _, err := svc.ContactOf(context.Background(), uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected UserNotFound, got %v", err)
	}
}
