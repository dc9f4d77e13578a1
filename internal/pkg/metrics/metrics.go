// Package metrics defines and registers all custom Prometheus metrics for the
// portal sync service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// init via promauto and served on /metrics by the API router.
package metrics

import (
	"slices"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Assignment metrics ────────────────────────────────────────────────────────

// AssignmentMutationsTotal counts store-side assignment writes.
// Labels:
//   - op: "assign" or "unassign"
//   - result: "ok" or "error"
var AssignmentMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assignment_mutations_total",
		Help:      "Total number of assignment mutations handled by the store.",
	},
	[]string{"op", "result"},
)

// AssignmentRollbacksTotal counts optimistic viewer toggles that were reverted.
var AssignmentRollbacksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assignment_rollbacks_total",
		Help:      "Total number of optimistic assignment toggles rolled back after a failed request.",
	},
)

// ── Push metrics ──────────────────────────────────────────────────────────────

// PushPublishedTotal counts events handed to the push bus.
// Label:
//   - topic: "assignment" or "message"
var PushPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_published_total",
		Help:      "Total number of change events published to the push bus.",
	},
	[]string{"topic"},
)

// PushDeliveredTotal counts callbacks invoked on subscribers.
var PushDeliveredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_delivered_total",
		Help:      "Total number of change events delivered to subscribers.",
	},
	[]string{"topic"},
)

// PushDisconnectsTotal counts viewer subscriptions that dropped and fell back to polling.
var PushDisconnectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_disconnects_total",
		Help:      "Total number of push subscriptions lost by viewers.",
	},
	[]string{"topic"},
)

// PushQueueDepth tracks pending deliveries in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var PushQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "push_queue_depth",
		Help:      "Current number of deliveries pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationDedupTotal counts viewer-side deduplication decisions.
// Labels:
//   - source: "poll" or "push"
//   - result: "new", "duplicate" (already notified), "ignored" (read, own
//     message or unknown sender) or "relisted" (back after a failed MarkRead)
var NotificationDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_dedup_total",
		Help:      "Total number of notification dedup checks, by source and result.",
	},
	[]string{"source", "result"},
)

// NotificationAlertsTotal counts alerts fired by viewers.
var NotificationAlertsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_alerts_total",
		Help:      "Total number of notification alerts fired by viewers.",
	},
)

// MarkReadTotal counts MarkRead batches.
// Label:
//   - result: "ok" or "error"
var MarkReadTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mark_read_total",
		Help:      "Total number of MarkRead batches, by result.",
	},
	[]string{"result"},
)

// PollDuration measures one viewer poll round trip.
// Label:
//   - kind: "messages" or "refresh"
var PollDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Duration of viewer poll round trips.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// ── HTTP metrics ──────────────────────────────────────────────────────────────

// HTTP returns the request instrumentation for one router and the /metrics
// handler that serves it together with the package metrics above. Each call
// owns its registry, so several routers can live in one process. Routes in
// skip (long-lived streams, the scrape endpoint) are not measured.
func HTTP(skip ...string) (echo.MiddlewareFunc, echo.HandlerFunc) {
	reg := prometheus.NewRegistry()
	mw := echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  namespace,
		Subsystem:  "http",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return slices.Contains(skip, c.Path())
		},
		DoNotUseRequestPathFor404: true,
	})
	handler := echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, reg},
	})
	return mw, handler
}
