package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
	"github.com/atelier-portal/portal-sync/internal/pkg/metrics"
)

const (
	topicAssignment = "assignment"
	topicMessage    = "message"

	pushHealthCheck = 15 * time.Second
)

// PushBus publishes change events on per-client Redis channels so several
// server replicas can share one fan-out.
//
// Channels:
//
//	portal:client:<client_id>:assignments
//	portal:client:<client_id>:messages
type PushBus struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewPushBus(client *redis.Client, log zerolog.Logger) *PushBus {
	return &PushBus{client: client, log: log}
}

func (b *PushBus) PublishAssignment(ctx context.Context, ev domain.AssignmentEvent) error {
	return b.publish(ctx, assignmentChannel(ev.ClientID), topicAssignment, ev)
}

func (b *PushBus) PublishMessage(ctx context.Context, m domain.Message) error {
	return b.publish(ctx, messageChannel(m.ClientID), topicMessage, m)
}

func (b *PushBus) publish(ctx context.Context, channel, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	metrics.PushPublishedTotal.WithLabelValues(topic).Inc()
	return nil
}

func (b *PushBus) SubscribeAssignments(ctx context.Context, clientID string, fn func(domain.AssignmentEvent)) (ports.Subscription, error) {
	return b.subscribe(ctx, assignmentChannel(clientID), topicAssignment, func(payload []byte) error {
		var ev domain.AssignmentEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		fn(ev)
		return nil
	})
}

func (b *PushBus) SubscribeMessages(ctx context.Context, clientID string, fn func(domain.Message)) (ports.Subscription, error) {
	return b.subscribe(ctx, messageChannel(clientID), topicMessage, func(payload []byte) error {
		var m domain.Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		fn(m)
		return nil
	})
}

// subscribe waits for the server to confirm the subscription before
// returning, so events published afterwards are not missed.
func (b *PushBus) subscribe(ctx context.Context, channel, topic string, handle func([]byte) error) (ports.Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s := &pubsubSubscription{
		ps:     ps,
		done:   make(chan struct{}),
		log:    b.log.With().Str("channel", channel).Logger(),
		topic:  topic,
		handle: handle,
	}
	go s.run()
	return s, nil
}

// pubsubSubscription ends (Done closes) on Close and also when go-redis
// silently reconnects: events published while the connection was down are
// lost, so the subscriber must resubscribe and resync from the store.
type pubsubSubscription struct {
	ps     *redis.PubSub
	done   chan struct{}
	log    zerolog.Logger
	topic  string
	handle func([]byte) error

	once    sync.Once
	mu      sync.Mutex
	closing bool
}

func (s *pubsubSubscription) run() {
	defer s.once.Do(func() { close(s.done) })

	// The first subscribe confirmation was consumed in subscribe; any later
	// one is a resubscribe after a reconnect.
	for item := range s.ps.ChannelWithSubscriptions(redis.WithChannelHealthCheckInterval(pushHealthCheck)) {
		if !s.dispatch(item) {
			_ = s.Close()
			break
		}
	}

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if !closing {
		s.log.Warn().Str("topic", s.topic).Msg("push channel closed by server")
	}
}

// dispatch handles one item from the pubsub channel and reports whether the
// subscription is still intact.
func (s *pubsubSubscription) dispatch(item interface{}) bool {
	switch v := item.(type) {
	case *redis.Message:
		if err := s.handle([]byte(v.Payload)); err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable push event")
			return true
		}
		metrics.PushDeliveredTotal.WithLabelValues(s.topic).Inc()
	case *redis.Subscription:
		if v.Kind == "subscribe" {
			s.log.Warn().Str("topic", s.topic).Msg("push connection re-established, events may have been missed")
			return false
		}
	}
	return true
}

func (s *pubsubSubscription) Done() <-chan struct{} { return s.done }

// Close is safe to call more than once.
func (s *pubsubSubscription) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()
	return s.ps.Close()
}

func assignmentChannel(clientID string) string {
	return fmt.Sprintf("portal:client:%s:assignments", clientID)
}

func messageChannel(clientID string) string {
	return fmt.Sprintf("portal:client:%s:messages", clientID)
}
