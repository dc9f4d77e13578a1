package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/atelier-portal/portal-sync/internal/api/middleware"
	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

type stubSubscription struct {
	once sync.Once
	done chan struct{}
}

func newStubSubscription() *stubSubscription {
	return &stubSubscription{done: make(chan struct{})}
}

func (s *stubSubscription) Done() <-chan struct{} { return s.done }

func (s *stubSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type stubAssignmentStore struct {
	assignFn   func(ctx context.Context, in ports.AssignInput) (*domain.Assignment, error)
	unassignFn func(ctx context.Context, clientID string) error
	getFn      func(ctx context.Context, clientID string) (*domain.Assignment, error)

	sub      *stubSubscription
	onChange chan func(domain.AssignmentEvent)
}

func (s *stubAssignmentStore) Assign(ctx context.Context, in ports.AssignInput) (*domain.Assignment, error) {
	return s.assignFn(ctx, in)
}

func (s *stubAssignmentStore) Unassign(ctx context.Context, clientID string) error {
	return s.unassignFn(ctx, clientID)
}

func (s *stubAssignmentStore) Get(ctx context.Context, clientID string) (*domain.Assignment, error) {
	return s.getFn(ctx, clientID)
}

func (s *stubAssignmentStore) Subscribe(_ context.Context, _ string, fn func(domain.AssignmentEvent)) (ports.Subscription, error) {
	if s.sub == nil {
		s.sub = newStubSubscription()
	}
	if s.onChange != nil {
		s.onChange <- fn
	}
	return s.sub, nil
}

type stubClientDirectory struct {
	getFn func(ctx context.Context, clientID string) (*domain.ClientRecord, error)
}

func (s *stubClientDirectory) GetClient(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	return s.getFn(ctx, clientID)
}

type stubNotificationStore struct {
	fetchForFn func(ctx context.Context, clientID string, audience domain.SenderType) ([]domain.Message, error)
	markReadFn func(ctx context.Context, ids []string) error
	appendFn   func(ctx context.Context, in ports.AppendMessageInput) (*domain.Message, error)

	sub      *stubSubscription
	onInsert chan func(domain.Message)
}

func (s *stubNotificationStore) FetchUnread(ctx context.Context, clientID string) ([]domain.Message, error) {
	return s.fetchForFn(ctx, clientID, domain.SenderClient)
}

func (s *stubNotificationStore) FetchUnreadFor(ctx context.Context, clientID string, audience domain.SenderType) ([]domain.Message, error) {
	return s.fetchForFn(ctx, clientID, audience)
}

func (s *stubNotificationStore) MarkRead(ctx context.Context, ids []string) error {
	return s.markReadFn(ctx, ids)
}

func (s *stubNotificationStore) Subscribe(_ context.Context, _ string, fn func(domain.Message)) (ports.Subscription, error) {
	if s.sub == nil {
		s.sub = newStubSubscription()
	}
	if s.onInsert != nil {
		s.onInsert <- fn
	}
	return s.sub, nil
}

func (s *stubNotificationStore) Append(ctx context.Context, in ports.AppendMessageInput) (*domain.Message, error) {
	return s.appendFn(ctx, in)
}

type stubPresence struct {
	beats    []domain.Presence
	lookupFn func(ctx context.Context, viewerID string) (*domain.Presence, error)
}

func (s *stubPresence) Heartbeat(_ context.Context, p domain.Presence) error {
	s.beats = append(s.beats, p)
	return nil
}

func (s *stubPresence) Lookup(ctx context.Context, viewerID string) (*domain.Presence, error) {
	return s.lookupFn(ctx, viewerID)
}

// request describes one call into a handler.
type request struct {
	method   string
	target   string
	body     string
	role     string
	username string
	clientID string
	params   map[string]string
}

func newContext(r request) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.target, body)
	if r.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if r.role != "" {
		c.Set(middleware.KeyRole, r.role)
		c.Set(middleware.KeyUsername, r.username)
		c.Set(middleware.KeyClientID, r.clientID)
	}
	if len(r.params) > 0 {
		names := make([]string, 0, len(r.params))
		values := make([]string, 0, len(r.params))
		for k, v := range r.params {
			names = append(names, k)
			values = append(values, v)
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	return c, rec
}

func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}
