package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrInvalidMessage = errors.New("invalid message")

// SenderType is the closed set of message authors.
type SenderType string

const (
	SenderAdmin  SenderType = "admin"
	SenderSeller SenderType = "seller"
	SenderClient SenderType = "client"
)

// ParseSenderType validates a wire value.
func ParseSenderType(s string) (SenderType, error) {
	switch t := SenderType(strings.ToLower(strings.TrimSpace(s))); t {
	case SenderAdmin, SenderSeller, SenderClient:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown sender type %q", ErrInvalidMessage, s)
}

// Valid reports whether t is one of the known sender types, as stored.
func (t SenderType) Valid() bool {
	switch t {
	case SenderAdmin, SenderSeller, SenderClient:
		return true
	}
	return false
}

// Label builds the headline shown for a notification from this sender.
func (t SenderType) Label(senderName string) string {
	name := strings.TrimSpace(senderName)
	switch t {
	case SenderAdmin:
		if name == "" {
			return "Message from the administration"
		}
		return "Message from " + name + " (administration)"
	case SenderSeller:
		if name == "" {
			return "Message from your seller"
		}
		return "Message from " + name + " (seller)"
	case SenderClient:
		if name == "" {
			return "Message from the client"
		}
		return "Message from " + name + " (client)"
	default:
		panic(fmt.Sprintf("domain: unhandled sender type %q", string(t)))
	}
}

// Message is an append-only chat row. Read only ever moves false → true.
type Message struct {
	ID         string     `json:"id" bson:"_id"`
	ClientID   string     `json:"client_id" bson:"client_id"`
	SenderType SenderType `json:"sender_type" bson:"sender_type"`
	SenderName string     `json:"sender_name" bson:"sender_name"`
	Body       string     `json:"body" bson:"body"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	Read       bool       `json:"read" bson:"read"`
	ReadAt     *time.Time `json:"read_at,omitempty" bson:"read_at,omitempty"`
}

// NotifiesAudience reports whether m should surface for a viewer of the given
// audience: unread, and not written by that audience itself.
func (m Message) NotifiesAudience(audience SenderType) bool {
	return !m.Read && m.SenderType != audience
}

// PreviewLength is the maximum number of runes kept in a body preview.
const PreviewLength = 80

// Notification is a per-viewer projection of an unread message. Read drives
// unread badges; Present drives list membership.
type Notification struct {
	MessageID   string    `json:"message_id"`
	Label       string    `json:"label"`
	BodyPreview string    `json:"body_preview"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
	Present     bool      `json:"present"`
}

// NewNotification projects a message into a fresh, unread, listed notification.
func NewNotification(m Message) Notification {
	return Notification{
		MessageID:   m.ID,
		Label:       m.SenderType.Label(m.SenderName),
		BodyPreview: preview(m.Body),
		Timestamp:   m.CreatedAt,
		Present:     true,
	}
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	r := []rune(body)
	return string(r[:PreviewLength-1]) + "…"
}
