package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

func TestNotificationHandler_UnreadUsesCallerAudience(t *testing.T) {
	cases := map[string]domain.SenderType{
		domain.RoleAdmin:  domain.SenderAdmin,
		domain.RoleSeller: domain.SenderSeller,
		domain.RoleClient: domain.SenderClient,
	}
	for role, want := range cases {
		t.Run(role, func(t *testing.T) {
			store := &stubNotificationStore{
				fetchForFn: func(ctx context.Context, clientID string, audience domain.SenderType) ([]domain.Message, error) {
					if audience != want {
						t.Fatalf("expected audience %s, got %s", want, audience)
					}
					return []domain.Message{{ID: "m2", ClientID: clientID}, {ID: "m1", ClientID: clientID}}, nil
				},
			}
			c, rec := newContext(request{
				method: http.MethodGet, target: "/v1/clients/42/messages/unread",
				role: role, clientID: "42", params: map[string]string{"client_id": "42"},
			})
			if err := NewNotificationHandler(store).Unread(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}

			var resp messagesResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Count != 2 || resp.Messages[0].ID != "m2" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestNotificationHandler_Append(t *testing.T) {
	var got ports.AppendMessageInput
	store := &stubNotificationStore{
		appendFn: func(ctx context.Context, in ports.AppendMessageInput) (*domain.Message, error) {
			got = in
			return &domain.Message{ID: "m1", ClientID: in.ClientID, SenderType: in.SenderType, SenderName: in.SenderName, Body: in.Body}, nil
		},
	}
	c, rec := newContext(request{
		method: http.MethodPost, target: "/v1/clients/42/messages",
		body: `{"body":"Votre rendez-vous est confirmé"}`,
		role: domain.RoleSeller, username: "marc", params: map[string]string{"client_id": "42"},
	})
	if err := NewNotificationHandler(store).Append(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got.SenderType != domain.SenderSeller || got.SenderName != "marc" || got.ClientID != "42" {
		t.Fatalf("unexpected append input: %+v", got)
	}
}

func TestNotificationHandler_AppendRejectsEmptyBody(t *testing.T) {
	store := &stubNotificationStore{
		appendFn: func(ctx context.Context, in ports.AppendMessageInput) (*domain.Message, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	c, _ := newContext(request{
		method: http.MethodPost, target: "/v1/clients/42/messages",
		body: `{"sender_name":"Nadia"}`,
		role: domain.RoleClient, clientID: "42", params: map[string]string{"client_id": "42"},
	})
	if err := NewNotificationHandler(store).Append(c); httpCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	var got []string
	store := &stubNotificationStore{
		markReadFn: func(ctx context.Context, ids []string) error {
			got = ids
			return nil
		},
	}
	c, rec := newContext(request{
		method: http.MethodPost, target: "/v1/messages/read",
		body: `{"ids":["m1","m2"]}`,
		role: domain.RoleClient, clientID: "42",
	})
	if err := NewNotificationHandler(store).MarkRead(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || len(got) != 2 {
		t.Fatalf("expected 204 with two ids, got %d %v", rec.Code, got)
	}
}

func TestNotificationHandler_MarkReadErrors(t *testing.T) {
	store := &stubNotificationStore{
		markReadFn: func(ctx context.Context, ids []string) error {
			return domain.ErrStorageUnavailable
		},
	}
	h := NewNotificationHandler(store)

	c, _ := newContext(request{
		method: http.MethodPost, target: "/v1/messages/read",
		body: `{"ids":[]}`, role: domain.RoleAdmin,
	})
	if err := h.MarkRead(c); httpCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an empty batch, got %v", err)
	}

	c, _ = newContext(request{
		method: http.MethodPost, target: "/v1/messages/read",
		body: `{"ids":["m1"]}`, role: domain.RoleAdmin,
	})
	if err := h.MarkRead(c); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
