package availability

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/ticketflow/internal/models"
)

type fakeLoader struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]models.EventTicket
}

func (l *fakeLoader) LoadEventTickets(ctx context.Context, eventID uuid.UUID) ([]models.EventTicket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.EventTicket(nil), l.rows[eventID]...), nil
}

type session struct {
	eventID uuid.UUID
	ctx     context.Context
	deliver func(Change)
	fail    chan error
}

// fakeFeed hands every attached session to the test. When connectErr is
// set Listen fails before attaching.
type fakeFeed struct {
	mu         sync.Mutex
	calls      int
	connectErr error
	sessions   chan *session
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{sessions: make(chan *session, 16)}
}

func (f *fakeFeed) Listen(ctx context.Context, eventID uuid.UUID, ready func() error, deliver func(Change)) error {
	f.mu.Lock()
	f.calls++
	connectErr := f.connectErr
	f.mu.Unlock()

	if connectErr != nil {
		return connectErr
	}
	if err := ready(); err != nil {
		return err
	}

	s := &session{eventID: eventID, ctx: ctx, deliver: deliver, fail: make(chan error, 1)}
	f.sessions <- s
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.fail:
		return err
	}
}

func (f *fakeFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFeed) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

type fakeTimer struct {
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// scheduler records reconnect delays instead of sleeping through them.
type scheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
	timers []*fakeTimer
}

func (s *scheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{}
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
	s.timers = append(s.timers, timer)
	return timer
}

func (s *scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

func (s *scheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *scheduler) Fire(i int) {
	s.mu.Lock()
	f := s.funcs[i]
	s.mu.Unlock()
	f()
}

func (s *scheduler) Timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

// recorder collects updates delivered to a listener.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Listen(update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

func (r *recorder) Kinds() []UpdateKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]UpdateKind, 0, len(r.updates))
	for _, u := range r.updates {
		kinds = append(kinds, u.Kind)
	}
	return kinds
}

func (r *recorder) Has(kind UpdateKind) bool {
	for _, k := range r.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func (r *recorder) Last() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
