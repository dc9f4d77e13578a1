package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
	"github.com/atelier-portal/portal-sync/internal/pkg/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256

	topicAssignment = "assignment"
	topicMessage    = "message"
)

// ErrStopped is returned when publishing to or subscribing on a stopped dispatcher.
var ErrStopped = errors.New("push dispatcher stopped")

// delivery is one event routed to a worker.
type delivery struct {
	clientID   string
	topic      string
	assignment domain.AssignmentEvent
	message    domain.Message
}

// Dispatcher is the in-process push bus. Events are routed to a fixed set of
// workers using consistent hashing on the client id, guaranteeing per-client
// delivery order across all of that client's subscribers.
type Dispatcher struct {
	workers []chan delivery
	log     zerolog.Logger

	mu      sync.RWMutex
	subs    map[string]map[int]*subscription // client id → subscription id → sub
	nextID  int
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan delivery, numWorkers),
		log:     log,
		subs:    make(map[string]map[int]*subscription),
		stop:    make(chan struct{}),
	}
	for i := range d.workers {
		d.workers[i] = make(chan delivery, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Stop terminates the workers and ends every live subscription.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stop)
	var all []*subscription
	for _, byID := range d.subs {
		for _, s := range byID {
			all = append(all, s)
		}
	}
	d.subs = make(map[string]map[int]*subscription)
	d.mu.Unlock()

	for _, s := range all {
		s.end()
	}
	d.wg.Wait()
}

// PublishAssignment enqueues a full-state assignment event for ev.ClientID.
func (d *Dispatcher) PublishAssignment(ctx context.Context, ev domain.AssignmentEvent) error {
	return d.enqueue(ctx, delivery{clientID: ev.ClientID, topic: topicAssignment, assignment: ev})
}

// PublishMessage enqueues an insert event for m.ClientID.
func (d *Dispatcher) PublishMessage(ctx context.Context, m domain.Message) error {
	return d.enqueue(ctx, delivery{clientID: m.ClientID, topic: topicMessage, message: m})
}

// SubscribeAssignments registers fn for assignment events about clientID.
func (d *Dispatcher) SubscribeAssignments(_ context.Context, clientID string, fn func(domain.AssignmentEvent)) (ports.Subscription, error) {
	return d.subscribe(clientID, &subscription{topic: topicAssignment, onAssignment: fn})
}

// SubscribeMessages registers fn for message inserts about clientID.
func (d *Dispatcher) SubscribeMessages(_ context.Context, clientID string, fn func(domain.Message)) (ports.Subscription, error) {
	return d.subscribe(clientID, &subscription{topic: topicMessage, onMessage: fn})
}

func (d *Dispatcher) subscribe(clientID string, s *subscription) (ports.Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil, ErrStopped
	}
	d.nextID++
	s.id = d.nextID
	s.clientID = clientID
	s.done = make(chan struct{})
	s.owner = d
	if d.subs[clientID] == nil {
		d.subs[clientID] = make(map[int]*subscription)
	}
	d.subs[clientID][s.id] = s
	return s, nil
}

func (d *Dispatcher) unsubscribe(s *subscription) {
	d.mu.Lock()
	if byID, ok := d.subs[s.clientID]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(d.subs, s.clientID)
		}
	}
	d.mu.Unlock()
}

// enqueue sends the delivery to the worker responsible for its client. It
// blocks once that worker's buffer is full, until ctx is done.
func (d *Dispatcher) enqueue(ctx context.Context, dl delivery) error {
	d.mu.RLock()
	stopped := d.stopped
	d.mu.RUnlock()
	if stopped {
		return ErrStopped
	}

	idx := d.shardIndex(dl.clientID)
	select {
	case d.workers[idx] <- dl:
		metrics.PushPublishedTotal.WithLabelValues(dl.topic).Inc()
		metrics.PushQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	case <-d.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps a client id deterministically to a worker index.
func (d *Dispatcher) shardIndex(clientID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

// snapshot copies the current subscribers for clientID on the given topic.
func (d *Dispatcher) snapshot(clientID, topic string) []*subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byID := d.subs[clientID]
	out := make([]*subscription, 0, len(byID))
	for _, s := range byID {
		if s.topic == topic {
			out = append(out, s)
		}
	}
	return out
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan delivery) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case dl := <-ch:
			metrics.PushQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			for _, s := range d.snapshot(dl.clientID, dl.topic) {
				d.deliver(id, s, dl)
			}
		}
	}
}

// deliver invokes one subscriber callback, isolating the worker from panics.
func (d *Dispatcher) deliver(worker int, s *subscription, dl delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("client_id", dl.clientID).
				Str("topic", dl.topic).
				Int("worker_id", worker).
				Msg("push subscriber panicked")
		}
	}()
	if s.closed() {
		return
	}
	switch dl.topic {
	case topicAssignment:
		s.onAssignment(dl.assignment)
	case topicMessage:
		s.onMessage(dl.message)
	}
	metrics.PushDeliveredTotal.WithLabelValues(dl.topic).Inc()
}

type subscription struct {
	id           int
	clientID     string
	topic        string
	onAssignment func(domain.AssignmentEvent)
	onMessage    func(domain.Message)
	owner        *Dispatcher
	done         chan struct{}
	once         sync.Once
}

func (s *subscription) Done() <-chan struct{} { return s.done }

// Close unregisters the subscription. Safe to call more than once.
func (s *subscription) Close() error {
	s.owner.unsubscribe(s)
	s.end()
	return nil
}

func (s *subscription) end() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
