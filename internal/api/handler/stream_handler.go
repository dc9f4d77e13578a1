package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

const (
	defaultKeepAlive = 15 * time.Second
	streamBuffer     = 64
)

// Server-sent event names.
const (
	EventAssignment = "assignment"
	EventMessage    = "message"
)

type streamEvent struct {
	name string
	data any
}

// StreamHandler relays assignment and message pushes for one client as
// server-sent events.
type StreamHandler struct {
	assignments ports.AssignmentStore
	messages    ports.NotificationStore
	keepAlive   time.Duration
	log         zerolog.Logger
}

func NewStreamHandler(assignments ports.AssignmentStore, messages ports.NotificationStore, keepAlive time.Duration, log zerolog.Logger) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &StreamHandler{assignments: assignments, messages: messages, keepAlive: keepAlive, log: log}
}

// Stream handles GET /v1/clients/:client_id/stream. The stream ends when the
// caller disconnects, when a push subscription ends, or when the caller
// falls too far behind; clients reconnect and rely on polling meanwhile.
//
// @Summary      Stream assignment and message pushes
// @Tags         stream
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        client_id  path  string  true  "Client id"
// @Success      200
// @Failure      403  {object}  errorResponse
// @Router       /v1/clients/{client_id}/stream [get]
func (h *StreamHandler) Stream(c echo.Context) error {
	clientID, _, err := clientScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	events := make(chan streamEvent, streamBuffer)
	overflow := make(chan struct{})
	var once sync.Once
	send := func(ev streamEvent) {
		select {
		case events <- ev:
		default:
			once.Do(func() { close(overflow) })
		}
	}

	aSub, err := h.assignments.Subscribe(ctx, clientID, func(ev domain.AssignmentEvent) {
		send(streamEvent{name: EventAssignment, data: ev})
	})
	if err != nil {
		return err
	}
	defer aSub.Close()

	mSub, err := h.messages.Subscribe(ctx, clientID, func(m domain.Message) {
		send(streamEvent{name: EventMessage, data: m})
	})
	if err != nil {
		return err
	}
	defer mSub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	log := h.log.With().Str("client_id", clientID).Str("username", ctxUsername(c)).Logger()
	log.Debug().Msg("stream opened")

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stream closed by client")
			return nil
		case <-aSub.Done():
			return nil
		case <-mSub.Done():
			return nil
		case <-overflow:
			log.Warn().Msg("stream consumer too slow, closing")
			return nil
		case <-ping.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev := <-events:
			if err := writeEvent(res, ev); err != nil {
				log.Debug().Err(err).Msg("stream write failed")
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev streamEvent) error {
	payload, err := json.Marshal(ev.data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, payload)
	return err
}
