package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
	"github.com/atelier-portal/portal-sync/internal/pkg/metrics"
	"github.com/atelier-portal/portal-sync/pkg/logger"
)

const (
	defaultPollInterval      = 5 * time.Second
	defaultRefreshInterval   = 10 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultRequestTimeout    = 10 * time.Second
)

var (
	ErrNotMounted    = errors.New("viewer session not mounted")
	ErrSessionClosed = errors.New("viewer session closed")
)

// Alerter fires the sound or desktop notification for a new message.
type Alerter interface {
	Alert(n domain.Notification)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(domain.Notification)

func (f AlerterFunc) Alert(n domain.Notification) { f(n) }

// MessageSource is the part of the notification store a viewer reads.
type MessageSource interface {
	FetchUnreadFor(ctx context.Context, clientID string, audience domain.SenderType) ([]domain.Message, error)
	MarkRead(ctx context.Context, ids []string) error
	Subscribe(ctx context.Context, clientID string, onInsert func(domain.Message)) (ports.Subscription, error)
}

// Config identifies the viewer and the client it observes.
type Config struct {
	ViewerID string
	Role     string
	Actor    string
	ClientID string

	PollInterval      time.Duration
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaultRefreshInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
}

// Deps are the stores a session talks to. Presence and Alerter are optional.
type Deps struct {
	Assignments ports.AssignmentStore
	Messages    MessageSource
	Clients     ports.ClientDirectory
	Presence    ports.PresenceTracker
	Alerter     Alerter
	Log         zerolog.Logger
}

// Session is one open dashboard. All state sits behind mu; store calls run
// outside it. Once closed, results of requests still in flight are dropped.
type Session struct {
	cfg      Config
	deps     Deps
	log      zerolog.Logger
	audience domain.SenderType

	mu        sync.Mutex
	assign    *AssignmentSync
	early     *domain.AssignmentEvent
	engine    *DedupEngine
	recon     *Reconciler
	client    *domain.ClientRecord
	assignSub ports.Subscription
	msgSub    ports.Subscription
	mounted   bool
	closed    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// alertMu serialises alerts with Close so none fires once Close returns.
	alertMu sync.Mutex
}

func NewSession(cfg Config, deps Deps) *Session {
	cfg.applyDefaults()
	if deps.Alerter == nil {
		deps.Alerter = AlerterFunc(func(domain.Notification) {})
	}
	return &Session{
		cfg:  cfg,
		deps: deps,
		log:  logger.ForViewer(deps.Log, cfg.ViewerID, cfg.Role, cfg.ClientID),
	}
}

// Mount subscribes to push, runs the silent first poll, loads the assignment
// and client record, then starts the timers. Push failures are not fatal; a
// failing first poll or assignment load is.
func (s *Session) Mount(ctx context.Context) error {
	audience, err := domain.AudienceForRole(s.cfg.Role)
	if err != nil {
		return fmt.Errorf("mount viewer: role %q: %w", s.cfg.Role, err)
	}
	if s.cfg.ClientID == "" {
		return fmt.Errorf("mount viewer: %w: client id is required", domain.ErrInvalidAssignment)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.audience = audience
	s.engine = NewDedupEngine(audience)
	s.recon = NewReconciler(s.engine)
	s.mu.Unlock()

	s.subscribe(ctx)

	if err := s.pollMessages(ctx); err != nil {
		s.releaseSubscriptions()
		return fmt.Errorf("mount viewer: first poll: %w", err)
	}

	a, err := s.deps.Assignments.Get(ctx, s.cfg.ClientID)
	if err != nil {
		s.releaseSubscriptions()
		return fmt.Errorf("mount viewer: load assignment: %w", err)
	}
	client, err := s.deps.Clients.GetClient(ctx, s.cfg.ClientID)
	if err != nil {
		s.log.Warn().Err(err).Msg("client record unavailable at mount")
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.releaseSubscriptions()
		return ErrSessionClosed
	}
	s.assign = NewAssignmentSync(s.cfg.ClientID, a)
	if ev := s.early; ev != nil && pushIsNewer(*ev, a) {
		s.assign.OnRemoteChange(ev.Assignment)
	}
	s.early = nil
	s.client = client
	s.cancel = cancel
	s.mounted = true
	s.mu.Unlock()

	s.heartbeat(ctx)

	s.wg.Add(1)
	go s.loop(loopCtx)

	s.log.Info().Int("unread", s.UnreadCount()).Msg("viewer mounted")
	return nil
}

// Close stops the timers and releases the push subscriptions. Safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.releaseSubscriptions()
	s.wg.Wait()
	s.alertMu.Lock()
	s.alertMu.Unlock()
	s.log.Info().Msg("viewer closed")
	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer s.wg.Done()

	poll := time.NewTicker(s.cfg.PollInterval)
	refresh := time.NewTicker(s.cfg.RefreshInterval)
	beat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer poll.Stop()
	defer refresh.Stop()
	defer beat.Stop()

	for {
		assignDone, msgDone := s.doneChannels()
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := s.pollMessages(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("message poll failed")
			}
			if !s.PushConnected() {
				s.subscribe(ctx)
			}
		case <-refresh.C:
			if err := s.refresh(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("assignment refresh failed")
			}
		case <-beat.C:
			s.heartbeat(ctx)
		case <-assignDone:
			s.dropSubscription(&s.assignSub, "assignment")
		case <-msgDone:
			s.dropSubscription(&s.msgSub, "message")
		}
	}
}

// doneChannels returns nil channels for missing subscriptions so the select
// ignores them.
func (s *Session) doneChannels() (<-chan struct{}, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var a, m <-chan struct{}
	if s.assignSub != nil {
		a = s.assignSub.Done()
	}
	if s.msgSub != nil {
		m = s.msgSub.Done()
	}
	return a, m
}

func (s *Session) dropSubscription(slot *ports.Subscription, topic string) {
	s.mu.Lock()
	if s.closed || *slot == nil {
		s.mu.Unlock()
		return
	}
	sub := *slot
	*slot = nil
	s.mu.Unlock()

	_ = sub.Close()
	metrics.PushDisconnectsTotal.WithLabelValues(topic).Inc()
	s.log.Warn().Str("topic", topic).Msg("push disconnected, falling back to polling")
}

// subscribe fills whichever push subscription is missing.
func (s *Session) subscribe(ctx context.Context) {
	s.mu.Lock()
	needAssign, needMsg := s.assignSub == nil, s.msgSub == nil
	s.mu.Unlock()

	if needAssign {
		sub, err := s.deps.Assignments.Subscribe(ctx, s.cfg.ClientID, s.onAssignment)
		if err != nil {
			s.log.Warn().Err(err).Msg("assignment push unavailable")
		} else {
			s.attach(&s.assignSub, sub)
		}
	}
	if needMsg {
		sub, err := s.deps.Messages.Subscribe(ctx, s.cfg.ClientID, s.onMessage)
		if err != nil {
			s.log.Warn().Err(err).Msg("message push unavailable")
		} else {
			s.attach(&s.msgSub, sub)
		}
	}
}

func (s *Session) attach(slot *ports.Subscription, sub ports.Subscription) {
	s.mu.Lock()
	if s.closed || *slot != nil {
		s.mu.Unlock()
		_ = sub.Close()
		return
	}
	*slot = sub
	s.mu.Unlock()
}

func (s *Session) releaseSubscriptions() {
	s.mu.Lock()
	subs := []ports.Subscription{s.assignSub, s.msgSub}
	s.assignSub, s.msgSub = nil, nil
	s.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			_ = sub.Close()
		}
	}
}

func (s *Session) onAssignment(ev domain.AssignmentEvent) {
	if ev.ClientID != s.cfg.ClientID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.assign == nil {
		// Mount has not loaded the assignment yet; keep the latest push for it.
		s.early = &ev
		return
	}
	s.assign.OnRemoteChange(ev.Assignment)
}

// pushIsNewer reports whether ev was published after loaded was written.
// Unassign events win over a nil load since they carry no row to compare.
func pushIsNewer(ev domain.AssignmentEvent, loaded *domain.Assignment) bool {
	if loaded == nil {
		return true
	}
	at := ev.At
	if ev.Assignment != nil {
		at = ev.Assignment.AssignedAt
	}
	return at.After(loaded.AssignedAt)
}

func (s *Session) onMessage(m domain.Message) {
	if m.ClientID != s.cfg.ClientID {
		return
	}
	s.mu.Lock()
	if s.closed || s.engine == nil {
		s.mu.Unlock()
		return
	}
	alerts := s.engine.ObservePush(m)
	s.mu.Unlock()

	s.alert(alerts)
}

// pollMessages fetches unread messages and merges them into the engine.
func (s *Session) pollMessages(ctx context.Context) error {
	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	msgs, err := s.deps.Messages.FetchUnreadFor(rctx, s.cfg.ClientID, s.audience)
	cancel()
	metrics.PollDuration.WithLabelValues("messages").Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	alerts := s.engine.ObservePoll(msgs)
	s.mu.Unlock()

	s.alert(alerts)
	return nil
}

// refresh reloads the assignment and client record.
func (s *Session) refresh(ctx context.Context) error {
	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	a, err := s.deps.Assignments.Get(rctx, s.cfg.ClientID)
	if err != nil {
		return err
	}
	client, cerr := s.deps.Clients.GetClient(rctx, s.cfg.ClientID)
	metrics.PollDuration.WithLabelValues("refresh").Observe(time.Since(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.assign.OnRemoteChange(a)
	if cerr == nil {
		s.client = client
	}
	return cerr
}

func (s *Session) heartbeat(ctx context.Context) {
	if s.deps.Presence == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	err := s.deps.Presence.Heartbeat(rctx, domain.Presence{
		ViewerID: s.cfg.ViewerID,
		Role:     s.cfg.Role,
		ClientID: s.cfg.ClientID,
		SeenAt:   time.Now().UTC(),
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("presence heartbeat failed")
	}
}

// alert fires outside mu so the Alerter may call back into the session, but
// it must not call Close.
func (s *Session) alert(ns []domain.Notification) {
	if len(ns) == 0 {
		return
	}
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	for _, n := range ns {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		metrics.NotificationAlertsTotal.Inc()
		s.deps.Alerter.Alert(n)
	}
}

// Toggle flips sectorID on the widget: the optimistic value is visible as
// soon as Toggle is entered, and is confirmed or rolled back when the store
// answers. The store error is returned unchanged.
func (s *Session) Toggle(ctx context.Context, sectorID, sectorName string) error {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	mut := s.assign.Toggle(sectorID, sectorName)
	s.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	var (
		result *domain.Assignment
		err    error
	)
	switch mut.Kind {
	case MutationAssign:
		result, err = s.deps.Assignments.Assign(rctx, ports.AssignInput{
			ClientID:   mut.ClientID,
			SectorID:   mut.SectorID,
			SectorName: mut.SectorName,
			Actor:      s.cfg.Actor,
		})
	case MutationUnassign:
		err = s.deps.Assignments.Unassign(rctx, mut.ClientID)
	}
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	if s.assign.Resolve(mut.RequestID, result, err) {
		metrics.AssignmentRollbacksTotal.Inc()
		s.log.Warn().Err(err).Str("sector_id", sectorID).Str("op", mut.Kind.String()).Msg("assignment toggle rolled back")
	}
	return err
}

// Dismiss removes one notification and marks its message read.
func (s *Session) Dismiss(ctx context.Context, messageID string) error {
	return s.markRead(ctx, func(r *Reconciler) []string { return r.Dismiss(messageID) })
}

// DismissAll empties the list with one batched MarkRead.
func (s *Session) DismissAll(ctx context.Context) error {
	return s.markRead(ctx, (*Reconciler).DismissAll)
}

// OpenPanel marks every listed notification read without removing it.
func (s *Session) OpenPanel(ctx context.Context) error {
	return s.markRead(ctx, (*Reconciler).OpenPanel)
}

func (s *Session) markRead(ctx context.Context, apply func(*Reconciler) []string) error {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	ids := apply(s.recon)
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	err := s.deps.Messages.MarkRead(rctx, ids)
	cancel()
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if !s.closed {
		s.recon.Release(ids)
	}
	s.mu.Unlock()
	s.log.Warn().Err(err).Int("count", len(ids)).Msg("mark read failed, will resurface on next poll")
	return err
}

// PollNow runs one message poll outside the timer.
func (s *Session) PollNow(ctx context.Context) error {
	s.mu.Lock()
	err := s.usable()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.pollMessages(ctx)
}

// RefreshNow reloads the assignment and client record outside the timer.
func (s *Session) RefreshNow(ctx context.Context) error {
	s.mu.Lock()
	err := s.usable()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.refresh(ctx)
}

// usable must be called with mu held.
func (s *Session) usable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.mounted {
		return ErrNotMounted
	}
	return nil
}

// Assignment is the displayed assignment; nil means unassigned.
func (s *Session) Assignment() *domain.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assign == nil {
		return nil
	}
	return s.assign.Displayed()
}

func (s *Session) SyncState() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assign == nil {
		return SyncIdle
	}
	return s.assign.State()
}

// Notifications returns the visible list, newest first.
func (s *Session) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	return s.engine.Visible()
}

func (s *Session) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return 0
	}
	return s.engine.UnreadCount()
}

// Client returns the last loaded client record, or nil.
func (s *Session) Client() *domain.ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	c := *s.client
	return &c
}

// PushConnected reports whether both push subscriptions are live.
func (s *Session) PushConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignSub != nil && s.msgSub != nil
}
