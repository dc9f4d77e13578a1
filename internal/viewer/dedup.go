package viewer

import (
	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/pkg/metrics"
)

const (
	sourcePoll = "poll"
	sourcePush = "push"
)

// DedupEngine turns poll results and push events into one visible
// notification per message id. The notified set lives as long as the engine;
// a remount builds a new engine.
type DedupEngine struct {
	audience domain.SenderType

	notified map[string]struct{}
	// quiet holds ids whose MarkRead failed after dismissal. They come back
	// on the next observation without alerting again.
	quiet   map[string]struct{}
	primed  bool
	entries []domain.Notification // newest first
}

// NewDedupEngine builds an engine for a viewer whose own messages are sent
// as audience.
func NewDedupEngine(audience domain.SenderType) *DedupEngine {
	return &DedupEngine{
		audience: audience,
		notified: make(map[string]struct{}),
		quiet:    make(map[string]struct{}),
	}
}

// ObservePoll merges one poll result (newest first) and returns the
// notifications that should alert. The first poll never alerts.
func (e *DedupEngine) ObservePoll(msgs []domain.Message) []domain.Notification {
	alert := e.primed
	e.primed = true

	var alerts []domain.Notification
	for i := len(msgs) - 1; i >= 0; i-- {
		if n, ok := e.observe(msgs[i], sourcePoll); ok && alert {
			alerts = append(alerts, n)
		}
	}
	return alerts
}

// ObservePush merges one pushed insert. A push that lands before the first
// poll alerts like any later discovery.
func (e *DedupEngine) ObservePush(m domain.Message) []domain.Notification {
	if n, ok := e.observe(m, sourcePush); ok {
		return []domain.Notification{n}
	}
	return nil
}

// observe registers m and prepends its notification. ok is false for
// duplicates, irrelevant messages and quiet re-listings.
func (e *DedupEngine) observe(m domain.Message, source string) (domain.Notification, bool) {
	if !m.SenderType.Valid() || !m.NotifiesAudience(e.audience) {
		metrics.NotificationDedupTotal.WithLabelValues(source, "ignored").Inc()
		return domain.Notification{}, false
	}
	if _, seen := e.notified[m.ID]; seen {
		metrics.NotificationDedupTotal.WithLabelValues(source, "duplicate").Inc()
		return domain.Notification{}, false
	}

	n := domain.NewNotification(m)
	e.notified[m.ID] = struct{}{}
	e.entries = append([]domain.Notification{n}, e.entries...)

	if _, q := e.quiet[m.ID]; q {
		delete(e.quiet, m.ID)
		metrics.NotificationDedupTotal.WithLabelValues(source, "relisted").Inc()
		return n, false
	}
	metrics.NotificationDedupTotal.WithLabelValues(source, "new").Inc()
	return n, true
}

// Primed reports whether the silent first poll has happened.
func (e *DedupEngine) Primed() bool { return e.primed }

// Notified reports whether id has been registered.
func (e *DedupEngine) Notified(id string) bool {
	_, ok := e.notified[id]
	return ok
}

// Visible returns a copy of the list, newest first.
func (e *DedupEngine) Visible() []domain.Notification {
	return append([]domain.Notification(nil), e.entries...)
}

// UnreadCount is the badge value: listed entries not yet read locally.
func (e *DedupEngine) UnreadCount() int {
	n := 0
	for _, en := range e.entries {
		if !en.Read {
			n++
		}
	}
	return n
}

func (e *DedupEngine) index(id string) int {
	for i, en := range e.entries {
		if en.MessageID == id {
			return i
		}
	}
	return -1
}
