package portalclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

func clientPath(clientID, suffix string) string {
	return "/v1/clients/" + url.PathEscape(clientID) + suffix
}

// Assignments is the remote AssignmentStore.
type Assignments struct{ c *Client }

// Assignments returns the assignment view of the API.
func (c *Client) Assignments() *Assignments { return &Assignments{c: c} }

type assignmentResponse struct {
	ClientID   string             `json:"client_id"`
	Assigned   bool               `json:"assigned"`
	Assignment *domain.Assignment `json:"assignment"`
}

// Assign ignores in.Actor; the server takes the actor from the token.
func (a *Assignments) Assign(ctx context.Context, in ports.AssignInput) (*domain.Assignment, error) {
	var resp assignmentResponse
	err := a.c.do(ctx, http.MethodPut, clientPath(in.ClientID, "/assignment"), map[string]string{
		"sector_id":   in.SectorID,
		"sector_name": in.SectorName,
	}, &resp, domain.ErrInvalidAssignment)
	if err != nil {
		return nil, err
	}
	return resp.Assignment, nil
}

func (a *Assignments) Unassign(ctx context.Context, clientID string) error {
	return a.c.do(ctx, http.MethodDelete, clientPath(clientID, "/assignment"), nil, nil, domain.ErrInvalidAssignment)
}

func (a *Assignments) Get(ctx context.Context, clientID string) (*domain.Assignment, error) {
	var resp assignmentResponse
	if err := a.c.do(ctx, http.MethodGet, clientPath(clientID, "/assignment"), nil, &resp, domain.ErrInvalidAssignment); err != nil {
		return nil, err
	}
	return resp.Assignment, nil
}

func (a *Assignments) Subscribe(ctx context.Context, clientID string, onChange func(domain.AssignmentEvent)) (ports.Subscription, error) {
	return a.c.openStream(ctx, clientID, eventAssignment, func(data []byte) error {
		var ev domain.AssignmentEvent
		if err := decodeJSON(data, &ev); err != nil {
			return err
		}
		onChange(ev)
		return nil
	})
}

// GetClient implements ports.ClientDirectory.
func (c *Client) GetClient(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	var rec domain.ClientRecord
	if err := c.do(ctx, http.MethodGet, clientPath(clientID, ""), nil, &rec, nil); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Messages is the remote message source for a viewer.
type Messages struct{ c *Client }

// Messages returns the message view of the API.
func (c *Client) Messages() *Messages { return &Messages{c: c} }

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// FetchUnreadFor lists unread messages. The server derives the audience from
// the token's role; messages written by audience are dropped here as well.
func (m *Messages) FetchUnreadFor(ctx context.Context, clientID string, audience domain.SenderType) ([]domain.Message, error) {
	var resp messagesResponse
	if err := m.c.do(ctx, http.MethodGet, clientPath(clientID, "/messages/unread"), nil, &resp, domain.ErrInvalidMessage); err != nil {
		return nil, err
	}
	out := resp.Messages[:0]
	for _, msg := range resp.Messages {
		if msg.NotifiesAudience(audience) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *Messages) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return m.c.do(ctx, http.MethodPost, "/v1/messages/read", map[string][]string{"ids": ids}, nil, domain.ErrInvalidMessage)
}

// Append posts a message as the logged-in viewer.
func (m *Messages) Append(ctx context.Context, clientID, senderName, body string) (*domain.Message, error) {
	var msg domain.Message
	err := m.c.do(ctx, http.MethodPost, clientPath(clientID, "/messages"), map[string]string{
		"sender_name": senderName,
		"body":        body,
	}, &msg, domain.ErrInvalidMessage)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Messages) Subscribe(ctx context.Context, clientID string, onInsert func(domain.Message)) (ports.Subscription, error) {
	return m.c.openStream(ctx, clientID, eventMessage, func(data []byte) error {
		var msg domain.Message
		if err := decodeJSON(data, &msg); err != nil {
			return err
		}
		onInsert(msg)
		return nil
	})
}

// Heartbeat implements ports.PresenceTracker. Role and SeenAt come from the
// server.
func (c *Client) Heartbeat(ctx context.Context, p domain.Presence) error {
	return c.do(ctx, http.MethodPost, "/v1/presence/heartbeat", map[string]string{
		"viewer_id": p.ViewerID,
		"client_id": p.ClientID,
	}, nil, nil)
}

type presenceResponse struct {
	domain.Presence
	Online bool `json:"online"`
}

func (c *Client) Lookup(ctx context.Context, viewerID string) (*domain.Presence, error) {
	var resp presenceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/presence/"+url.PathEscape(viewerID), nil, &resp, nil); err != nil {
		return nil, err
	}
	if !resp.Online {
		return nil, nil
	}
	return &resp.Presence, nil
}
