package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

type stubAuthRepo struct {
	users map[string]*domain.User
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubAuthRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if _, exists := r.users[user.Username]; exists {
		return nil, domain.ErrUserExists
	}
	copy := cloneUser(user)
	if copy.ID == "" {
		copy.ID = user.Username
	}
	r.users[copy.Username] = cloneUser(copy)
	return cloneUser(copy), nil
}

func (r *stubAuthRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func TestAuthService_Register_Success(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, "secret", time.Hour)

	user, err := svc.Register(context.Background(), "alice", "pass123", "alice@example.com", domain.RoleClient, "42")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if user.Role != domain.RoleClient || user.ClientID != "42" {
		t.Fatalf("unexpected role/client: %s/%s", user.Role, user.ClientID)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, "secret", time.Hour)

	if _, err := svc.Register(context.Background(), "", "pass", "", domain.RoleClient, "42"); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob", "pass", "", "wrong", ""); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for bad role, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob", "pass", "", domain.RoleClient, " "); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for client account without client_id, got %v", err)
	}
}

func TestAuthService_Register_SellerNeedsNoClient(t *testing.T) {
	svc := NewAuthService(newStubAuthRepo(), "secret", time.Hour)

	user, err := svc.Register(context.Background(), "nadia", "pass", "", domain.RoleSeller, "")
	if err != nil {
		t.Fatalf("seller registration failed: %v", err)
	}
	if user.ClientID != "" {
		t.Fatalf("seller should not be scoped to a client, got %q", user.ClientID)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, "secret", time.Hour)

	_, _ = svc.Register(context.Background(), "bob", "pass", "", domain.RoleAdmin, "")
	if _, err := svc.Register(context.Background(), "bob", "pass2", "", domain.RoleAdmin, ""); err != domain.ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, "secret", time.Hour)

	if _, err := svc.Register(context.Background(), "carol", "s3cret", "", domain.RoleSeller, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, user, err := svc.Login(context.Background(), "carol", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user == nil || user.Username != "carol" {
		t.Fatalf("unexpected user: %+v", user)
	}

	claims := &viewerClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithIssuer(TokenIssuer))
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.Role != domain.RoleSeller || claims.Username != "carol" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Subject != user.ID {
		t.Errorf("expected sub %q, got %q", user.ID, claims.Subject)
	}
}

func TestAuthService_Login_TokenExpiresAfterTTL(t *testing.T) {
	svc := NewAuthService(newStubAuthRepo(), "secret", time.Hour)
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	if _, err := svc.Register(context.Background(), "erin", "s3cret", "", domain.RoleClient, "42"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	token, _, err := svc.Login(context.Background(), "erin", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	claims := &viewerClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.ExpiresAt.Time.Equal(issued.Add(time.Hour)) {
		t.Errorf("expected exp %v, got %v", issued.Add(time.Hour), claims.ExpiresAt.Time)
	}
	if claims.ClientID != "42" {
		t.Errorf("expected client_id 42, got %q", claims.ClientID)
	}
}

func TestAuthService_Login_InvalidPassword(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, "secret", time.Hour)

	_, _ = svc.Register(context.Background(), "dave", "goodpass", "", domain.RoleClient, "42")
	if _, _, err := svc.Login(context.Background(), "dave", "badpass"); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	svc := NewAuthService(newStubAuthRepo(), "secret", time.Hour)

	if _, _, err := svc.Login(context.Background(), "ghost", "pass"); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
