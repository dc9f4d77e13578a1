package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

const (
	defaultIngestWorkers = 4
	defaultPrefetch      = 16
	handlerTimeout       = 10 * time.Second
	maxDialDelay         = 60 * time.Second
)

// ErrPoison marks a delivery that can never succeed (bad JSON, invalid message).
var ErrPoison = errors.New("poison message")

// MessageAppender is the insert path the consumer feeds.
type MessageAppender interface {
	Append(ctx context.Context, in ports.AppendMessageInput) (*domain.Message, error)
}

// IngestConfig describes the chat-message topology on RabbitMQ.
type IngestConfig struct {
	URL           string
	Exchange      string
	Queue         string
	RoutingKey    string
	Prefetch      int
	Workers       int
	RetryAttempts int
	RetryDelay    time.Duration
}

// chatMessageCreated is the payload published by the chat send path.
type chatMessageCreated struct {
	ClientID   string `json:"client_id"`
	SenderType string `json:"sender_type"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
}

// Ingest consumes chat.message.created events and appends them to the
// message log, which in turn pushes them to viewers.
type Ingest struct {
	cfg      IngestConfig
	appender MessageAppender
	log      zerolog.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
	wg   sync.WaitGroup
}

// NewIngest builds a consumer; call Dial before Run.
func NewIngest(cfg IngestConfig, appender MessageAppender, log zerolog.Logger) *Ingest {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultIngestWorkers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Ingest{cfg: cfg, appender: appender, log: log}
}

// Dial connects with exponential backoff and declares the topology.
func (i *Ingest) Dial(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= i.cfg.RetryAttempts; attempt++ {
		conn, err := amqp.Dial(i.cfg.URL)
		if err == nil {
			i.conn = conn
			return i.declare()
		}
		lastErr = err

		sleep := i.cfg.RetryDelay << (attempt - 1)
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		i.log.Warn().Err(err).Int("attempt", attempt).Dur("sleep", sleep).Msg("rabbit dial failed")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ingest dial: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("ingest dial: failed after %d attempts: %w", i.cfg.RetryAttempts, lastErr)
}

func (i *Ingest) declare() error {
	ch, err := i.conn.Channel()
	if err != nil {
		_ = i.conn.Close()
		return fmt.Errorf("ingest channel: %w", err)
	}
	if err := ch.ExchangeDeclare(i.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return i.abort(ch, fmt.Errorf("declare exchange: %w", err))
	}
	if err := ch.Qos(i.cfg.Prefetch, 0, false); err != nil {
		return i.abort(ch, fmt.Errorf("qos: %w", err))
	}
	q, err := ch.QueueDeclare(i.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return i.abort(ch, fmt.Errorf("declare queue: %w", err))
	}
	if err := ch.QueueBind(q.Name, i.cfg.RoutingKey, i.cfg.Exchange, false, nil); err != nil {
		return i.abort(ch, fmt.Errorf("bind queue: %w", err))
	}
	i.ch = ch
	return nil
}

func (i *Ingest) abort(ch *amqp.Channel, err error) error {
	_ = ch.Close()
	_ = i.conn.Close()
	return err
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (i *Ingest) Run(ctx context.Context) error {
	if i.ch == nil {
		return errors.New("ingest: Dial must succeed before Run")
	}
	deliveries, err := i.ch.Consume(i.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("ingest consume: %w", err)
	}

	i.log.Info().Str("queue", i.cfg.Queue).Int("workers", i.cfg.Workers).Msg("chat ingest started")
	for w := 0; w < i.cfg.Workers; w++ {
		i.wg.Add(1)
		go i.worker(ctx, w, deliveries)
	}
	i.wg.Wait()
	return ctx.Err()
}

func (i *Ingest) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer i.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				i.log.Warn().Int("worker_id", id).Msg("ingest delivery channel closed")
				return
			}
			i.process(ctx, d)
		}
	}
}

// process handles one delivery and settles it: ack on success, drop poison,
// requeue anything else.
func (i *Ingest) process(ctx context.Context, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	err := i.handle(hctx, d.Body)
	cancel()

	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrPoison):
		i.log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("dropping poison chat message")
		_ = d.Nack(false, false)
	default:
		i.log.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("chat message ingest failed, requeueing")
		_ = d.Nack(false, true)
	}
}

func (i *Ingest) handle(ctx context.Context, body []byte) error {
	var ev chatMessageCreated
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrPoison, err)
	}
	_, err := i.appender.Append(ctx, ports.AppendMessageInput{
		ClientID:   ev.ClientID,
		SenderType: domain.SenderType(ev.SenderType),
		SenderName: ev.SenderName,
		Body:       ev.Body,
	})
	if errors.Is(err, domain.ErrInvalidMessage) {
		return fmt.Errorf("%w: %v", ErrPoison, err)
	}
	return err
}

// Close releases the channel and connection.
func (i *Ingest) Close() error {
	if i.ch != nil {
		_ = i.ch.Close()
	}
	if i.conn != nil {
		return i.conn.Close()
	}
	return nil
}
