package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestParseSenderType(t *testing.T) {
	cases := map[string]SenderType{
		"admin":    SenderAdmin,
		" Seller ": SenderSeller,
		"CLIENT":   SenderClient,
	}
	for in, want := range cases {
		got, err := ParseSenderType(in)
		if err != nil {
			t.Fatalf("ParseSenderType(%q): unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("ParseSenderType(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseSenderType("bot"); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage for unknown sender, got %v", err)
	}
}

func TestSenderType_Label(t *testing.T) {
	if got := SenderSeller.Label("Nadia"); got != "Message from Nadia (seller)" {
		t.Errorf("unexpected seller label: %q", got)
	}
	if got := SenderAdmin.Label(""); got != "Message from the administration" {
		t.Errorf("unexpected anonymous admin label: %q", got)
	}
	if got := SenderClient.Label("  Léa "); got != "Message from Léa (client)" {
		t.Errorf("unexpected client label: %q", got)
	}
}

func TestSenderType_LabelPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an unknown sender type")
		}
	}()
	SenderType("robot").Label("x")
}

func TestNewNotification(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	n := NewNotification(Message{
		ID:         "m1",
		ClientID:   "42",
		SenderType: SenderAdmin,
		SenderName: "Paul",
		Body:       "Your  report\nis ready",
		CreatedAt:  at,
	})

	if n.MessageID != "m1" || !n.Timestamp.Equal(at) {
		t.Fatalf("unexpected notification identity: %+v", n)
	}
	if n.BodyPreview != "Your report is ready" {
		t.Errorf("whitespace should be collapsed, got %q", n.BodyPreview)
	}
	if n.Read || !n.Present {
		t.Errorf("new notification must be unread and present: %+v", n)
	}
}

func TestNewNotification_TruncatesLongBody(t *testing.T) {
	n := NewNotification(Message{ID: "m", SenderType: SenderSeller, Body: strings.Repeat("é", 200)})

	if got := utf8.RuneCountInString(n.BodyPreview); got != PreviewLength {
		t.Errorf("preview length = %d runes, want %d", got, PreviewLength)
	}
	if !strings.HasSuffix(n.BodyPreview, "…") {
		t.Errorf("truncated preview should end with an ellipsis: %q", n.BodyPreview)
	}
}

func TestMessage_NotifiesAudience(t *testing.T) {
	m := Message{SenderType: SenderClient}
	if m.NotifiesAudience(SenderClient) {
		t.Error("a client's own message must not notify the client")
	}
	if !m.NotifiesAudience(SenderAdmin) {
		t.Error("a client message should notify the admin console")
	}
	m.Read = true
	if m.NotifiesAudience(SenderAdmin) {
		t.Error("read messages never notify")
	}
}

func TestAssignment_TypeDiagnostic(t *testing.T) {
	a := &Assignment{ClientID: "42", SectorID: "07", SectorName: "Coiffure"}
	if got := a.TypeDiagnostic(); got != "07 Coiffure" {
		t.Errorf("TypeDiagnostic() = %q, want %q", got, "07 Coiffure")
	}

	var none *Assignment
	if got := none.TypeDiagnostic(); got != "" {
		t.Errorf("nil assignment should mirror to empty, got %q", got)
	}
}

func TestSameSector(t *testing.T) {
	a := &Assignment{SectorID: "07"}
	b := &Assignment{SectorID: "07", SectorName: "renamed"}
	c := &Assignment{SectorID: "12"}

	if !SameSector(a, b) {
		t.Error("same sector id should compare equal")
	}
	if SameSector(a, c) || SameSector(a, nil) {
		t.Error("different sectors or nil should not compare equal")
	}
	if !SameSector(nil, nil) {
		t.Error("two unassigned states are equal")
	}
}
