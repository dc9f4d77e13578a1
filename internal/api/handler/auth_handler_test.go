package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

type stubAuthService struct {
	registerFn func(ctx context.Context, username, password, email, role, clientID string) (*domain.User, error)
	loginFn    func(ctx context.Context, username, password string) (string, *domain.User, error)
}

func (s *stubAuthService) Register(ctx context.Context, username, password, email, role, clientID string) (*domain.User, error) {
	return s.registerFn(ctx, username, password, email, role, clientID)
}

func (s *stubAuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	return s.loginFn(ctx, username, password)
}

func TestAuthHandler_Register_Success(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, username, password, email, role, clientID string) (*domain.User, error) {
			if username != "nadia" || role != "client" || clientID != "42" {
				t.Fatalf("unexpected args: %s %s %s", username, role, clientID)
			}
			return &domain.User{Username: username, Role: role, ClientID: clientID}, nil
		},
	}
	handler := NewAuthHandler(stub)

	c, rec := newContext(request{
		method: http.MethodPost,
		target: "/auth/register",
		body:   `{"username":"nadia","password":"correct-horse","email":"n@example.com","role":"client","client_id":"42"}`,
	})
	if err := handler.Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user in response")
	}
	if user["username"] != "nadia" || user["role"] != "client" || user["client_id"] != "42" {
		t.Fatalf("unexpected user payload: %+v", user)
	}
}

func TestAuthHandler_Register_UserExists(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, username, password, email, role, clientID string) (*domain.User, error) {
			return nil, domain.ErrUserExists
		},
	}
	handler := NewAuthHandler(stub)

	c, _ := newContext(request{
		method: http.MethodPost,
		target: "/auth/register",
		body:   `{"username":"ops","password":"correct-horse","role":"admin"}`,
	})
	if err := handler.Register(c); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, username, password, email, role, clientID string) (*domain.User, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	handler := NewAuthHandler(stub)

	cases := map[string]struct {
		body string
		want int
	}{
		"not json":          {"not-json", http.StatusBadRequest},
		"short password":    {`{"username":"ops","password":"x","role":"admin"}`, http.StatusUnprocessableEntity},
		"unknown role":      {`{"username":"ops","password":"correct-horse","role":"guest"}`, http.StatusUnprocessableEntity},
		"client without id": {`{"username":"nadia","password":"correct-horse","role":"client"}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newContext(request{method: http.MethodPost, target: "/auth/register", body: tc.body})
			err := handler.Register(c)
			if err == nil || httpCode(err) != tc.want {
				t.Fatalf("expected %d, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			if username != "ops" || password != "correct-horse" {
				t.Fatalf("unexpected args: %s %s", username, password)
			}
			return "token123", &domain.User{Username: "ops", Role: "admin"}, nil
		},
	}
	handler := NewAuthHandler(stub)

	c, rec := newContext(request{
		method: http.MethodPost,
		target: "/auth/login",
		body:   `{"username":"ops","password":"correct-horse"}`,
	})
	if err := handler.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["token"] != "token123" {
		t.Fatalf("expected token, got %v", resp["token"])
	}
	user, ok := resp["user"].(map[string]any)
	if !ok || user["username"] != "ops" || user["role"] != "admin" {
		t.Fatalf("unexpected user payload: %+v", user)
	}
}

func TestAuthHandler_Login_Failures(t *testing.T) {
	for _, svcErr := range []error{domain.ErrInvalidCredentials, domain.ErrUserNotFound} {
		stub := &stubAuthService{
			loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
				return "", nil, svcErr
			},
		}
		c, _ := newContext(request{
			method: http.MethodPost,
			target: "/auth/login",
			body:   `{"username":"ghost","password":"pwd"}`,
		})
		if err := NewAuthHandler(stub).Login(c); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Errorf("service error %v: expected ErrInvalidCredentials, got %v", svcErr, err)
		}
	}
}

func TestAuthHandler_Login_InvalidPayload(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			t.Fatalf("should not be called")
			return "", nil, nil
		},
	}
	handler := NewAuthHandler(stub)

	c, _ := newContext(request{method: http.MethodPost, target: "/auth/login", body: "{"})
	if err := handler.Login(c); httpCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	c, _ = newContext(request{method: http.MethodPost, target: "/auth/login", body: `{"username":"ops"}`})
	if err := handler.Login(c); httpCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}
