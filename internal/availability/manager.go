// Package availability keeps an in-memory, change-fed view of ticket
// inventory per event and fans it out to local subscribers.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/ticketflow/internal/models"
)

var ErrClosed = errors.New("availability manager closed")

type ChannelState string

const (
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
	StateDisconnected ChannelState = "disconnected"
	StateError        ChannelState = "error"
)

type UpdateKind string

const (
	KindSnapshot UpdateKind = "snapshot"
	KindLowStock UpdateKind = "low_stock"
	KindSoldOut  UpdateKind = "sold_out"
	KindEvicted  UpdateKind = "evicted"
	KindError    UpdateKind = "error"
)

// Update is delivered to listeners. Snapshot is always the full current
// view of the event; TicketTypeID is set for threshold notifications.
type Update struct {
	Kind         UpdateKind   `json:"kind"`
	EventID      uuid.UUID    `json:"event_id"`
	State        ChannelState `json:"state"`
	Snapshot     *Snapshot    `json:"snapshot,omitempty"`
	TicketTypeID *uuid.UUID   `json:"ticket_type_id,omitempty"`
}

type Listener func(Update)

type Config struct {
	MaxChannels          int
	BaseDelay            time.Duration
	MaxReconnectAttempts int
	LowStockThreshold    int
}

// Timer is a pending reconnect. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Manager)

// WithAfterFunc replaces the scheduler used for reconnect delays.
func WithAfterFunc(fn AfterFunc) Option {
	return func(m *Manager) { m.afterFunc = fn }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type channel struct {
	eventID  uuid.UUID
	seq      uint64
	state    ChannelState
	attempts int
	// exhausted is set once reconnects are given up on.
	exhausted bool
	cancel    context.CancelFunc
}

// Manager owns one change-feed channel per subscribed event. All state
// lives in sibling maps keyed by event id and guarded by mu.
type Manager struct {
	cfg       Config
	loader    Loader
	feed      Feed
	logger    *slog.Logger
	afterFunc AfterFunc
	now       func() time.Time

	mu            sync.Mutex
	wg            sync.WaitGroup
	closed        bool
	nextChannel   uint64
	nextListener  uint64
	channels      map[uuid.UUID]*channel
	subscriptions map[uuid.UUID]map[uint64]Listener
	cache         map[uuid.UUID]map[uuid.UUID]TicketAvailability
	timers        map[uuid.UUID]Timer
}

func NewManager(cfg Config, loader Loader, feed Feed, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.MaxChannels <= 0 {
		cfg.MaxChannels = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		loader: loader,
		feed:   feed,
		logger: logger.With("component", "availability"),
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now:           time.Now,
		channels:      make(map[uuid.UUID]*channel),
		subscriptions: make(map[uuid.UUID]map[uint64]Listener),
		cache:         make(map[uuid.UUID]map[uuid.UUID]TicketAvailability),
		timers:        make(map[uuid.UUID]Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers listener for eventID and returns a function that
// removes it. The first subscriber for an event opens its channel; a
// subscriber arriving after the channel gave up reconnecting opens a fresh
// one.
func (m *Manager) Subscribe(eventID uuid.UUID, listener Listener) (func(), error) {
	if listener == nil {
		return nil, fmt.Errorf("subscribe %s: nil listener", eventID)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	m.nextListener++
	listenerID := m.nextListener
	if m.subscriptions[eventID] == nil {
		m.subscriptions[eventID] = make(map[uint64]Listener)
	}
	m.subscriptions[eventID][listenerID] = listener

	var evicted map[uint64]Listener
	var evictedID uuid.UUID
	var initial *Update

	ch, ok := m.channels[eventID]
	switch {
	case !ok:
		if len(m.channels) >= m.cfg.MaxChannels {
			evictedID, evicted = m.evictOldestLocked(eventID)
		}
		m.openLocked(eventID)
	case ch.exhausted:
		m.teardownChannelLocked(eventID)
		m.openLocked(eventID)
	default:
		if entries, seeded := m.cache[eventID]; seeded {
			initial = &Update{
				Kind:     KindSnapshot,
				EventID:  eventID,
				State:    ch.state,
				Snapshot: buildSnapshot(eventID, entries, m.now()),
			}
		}
	}
	m.mu.Unlock()

	if evicted != nil {
		m.logger.Info("evicted availability channel", "event_id", evictedID, "subscribers", len(evicted))
		m.notify(evicted, Update{Kind: KindEvicted, EventID: evictedID, State: StateDisconnected})
	}
	if initial != nil {
		m.notify(map[uint64]Listener{listenerID: listener}, *initial)
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(eventID, listenerID) })
	}, nil
}

// Unsubscribe drops every listener of eventID and tears its channel down.
// The dropped listeners receive a final evicted update.
func (m *Manager) Unsubscribe(eventID uuid.UUID) {
	m.mu.Lock()
	listeners := m.teardownLocked(eventID)
	m.mu.Unlock()

	if len(listeners) > 0 {
		m.notify(listeners, Update{Kind: KindEvicted, EventID: eventID, State: StateDisconnected})
	}
}

func (m *Manager) unsubscribe(eventID uuid.UUID, listenerID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listeners, ok := m.subscriptions[eventID]
	if !ok {
		return
	}
	delete(listeners, listenerID)
	if len(listeners) == 0 {
		m.teardownLocked(eventID)
	}
}

// GetCurrentAvailability returns the cached view of eventID. ok is false
// until the channel has been seeded.
func (m *Manager) GetCurrentAvailability(eventID uuid.UUID) (*Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.cache[eventID]
	if !ok {
		return nil, false
	}
	return buildSnapshot(eventID, entries, m.now()), true
}

func (m *Manager) State(eventID uuid.UUID) (ChannelState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[eventID]
	if !ok {
		return "", false
	}
	return ch.state, true
}

// Channels reports how many channels are open.
func (m *Manager) Channels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Cleanup stops every pending reconnect, closes all channels and waits for
// their feed goroutines to exit. Remaining listeners receive a final evicted
// update so streams built on them can finish. The manager rejects new
// subscriptions afterwards.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	m.closed = true
	for eventID, timer := range m.timers {
		timer.Stop()
		delete(m.timers, eventID)
	}
	dropped := make(map[uuid.UUID]map[uint64]Listener)
	for eventID := range m.channels {
		dropped[eventID] = m.teardownLocked(eventID)
	}
	for eventID := range m.subscriptions {
		dropped[eventID] = m.teardownLocked(eventID)
	}
	m.mu.Unlock()

	for eventID, listeners := range dropped {
		if len(listeners) > 0 {
			m.notify(listeners, Update{Kind: KindEvicted, EventID: eventID, State: StateDisconnected})
		}
	}
	m.wg.Wait()
}

func (m *Manager) openLocked(eventID uuid.UUID) {
	m.nextChannel++
	ch := &channel{eventID: eventID, seq: m.nextChannel, state: StateConnecting}
	m.channels[eventID] = ch
	m.startLocked(ch)
}

func (m *Manager) startLocked(ch *channel) {
	ctx, cancel := context.WithCancel(context.Background())
	ch.cancel = cancel
	ch.state = StateConnecting

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, ch)
	}()
}

func (m *Manager) evictOldestLocked(keep uuid.UUID) (uuid.UUID, map[uint64]Listener) {
	var oldest *channel
	for eventID, ch := range m.channels {
		if eventID == keep {
			continue
		}
		if oldest == nil || ch.seq < oldest.seq {
			oldest = ch
		}
	}
	if oldest == nil {
		return uuid.Nil, nil
	}

	return oldest.eventID, m.teardownLocked(oldest.eventID)
}

func (m *Manager) teardownChannelLocked(eventID uuid.UUID) {
	if timer, ok := m.timers[eventID]; ok {
		timer.Stop()
		delete(m.timers, eventID)
	}
	if ch, ok := m.channels[eventID]; ok {
		if ch.cancel != nil {
			ch.cancel()
		}
		delete(m.channels, eventID)
	}
	delete(m.cache, eventID)
}

// teardownLocked closes the channel of eventID and returns the listeners it
// removed.
func (m *Manager) teardownLocked(eventID uuid.UUID) map[uint64]Listener {
	m.teardownChannelLocked(eventID)
	listeners := m.subscriptions[eventID]
	delete(m.subscriptions, eventID)
	return listeners
}

func (m *Manager) current(ch *channel) bool {
	return m.channels[ch.eventID] == ch
}

func (m *Manager) run(ctx context.Context, ch *channel) {
	ready := func() error {
		rows, err := m.loader.LoadEventTickets(ctx, ch.eventID)
		if err != nil {
			return err
		}
		m.seed(ch, rows)
		return nil
	}

	err := m.feed.Listen(ctx, ch.eventID, ready, func(change Change) {
		m.apply(ch, change)
	})
	if ctx.Err() != nil {
		return
	}
	m.fail(ch, err)
}

func (m *Manager) seed(ch *channel, rows []models.EventTicket) {
	m.mu.Lock()
	if !m.current(ch) {
		m.mu.Unlock()
		return
	}

	entries := make(map[uuid.UUID]TicketAvailability, len(rows))
	for _, row := range rows {
		entries[row.ID] = derive(row)
	}
	m.cache[ch.eventID] = entries
	ch.state = StateConnected
	ch.attempts = 0

	update := Update{Kind: KindSnapshot, EventID: ch.eventID, State: ch.state, Snapshot: buildSnapshot(ch.eventID, entries, m.now())}
	listeners := copyListeners(m.subscriptions[ch.eventID])
	m.mu.Unlock()

	m.notify(listeners, update)
}

func (m *Manager) apply(ch *channel, change Change) {
	m.mu.Lock()
	if !m.current(ch) {
		m.mu.Unlock()
		return
	}

	entries := m.cache[ch.eventID]
	if entries == nil {
		entries = make(map[uuid.UUID]TicketAvailability)
		m.cache[ch.eventID] = entries
	}

	var kinds []UpdateKind
	var ticketTypeID uuid.UUID
	switch change.Type {
	case ChangeInsert, ChangeUpdate:
		row := *change.New
		if row.EventID != ch.eventID {
			m.mu.Unlock()
			return
		}
		next := derive(row)
		if prev, ok := entries[row.ID]; ok {
			kinds = crossings(prev, next, m.cfg.LowStockThreshold)
		}
		entries[row.ID] = next
		ticketTypeID = row.ID
	case ChangeDelete:
		delete(entries, change.Old.ID)
	}

	snapshot := buildSnapshot(ch.eventID, entries, m.now())
	state := ch.state
	listeners := copyListeners(m.subscriptions[ch.eventID])
	m.mu.Unlock()

	m.notify(listeners, Update{Kind: KindSnapshot, EventID: ch.eventID, State: state, Snapshot: snapshot})
	for _, kind := range kinds {
		id := ticketTypeID
		m.notify(listeners, Update{Kind: kind, EventID: ch.eventID, State: state, Snapshot: snapshot, TicketTypeID: &id})
	}
}

// fail records a dropped feed and schedules the next reconnect, or gives up
// once MaxReconnectAttempts reconnects were made.
func (m *Manager) fail(ch *channel, err error) {
	m.mu.Lock()
	if !m.current(ch) {
		m.mu.Unlock()
		return
	}

	attempts := ch.attempts
	if attempts >= m.cfg.MaxReconnectAttempts {
		ch.state = StateError
		ch.exhausted = true
		listeners := copyListeners(m.subscriptions[ch.eventID])
		m.mu.Unlock()

		m.logger.Error("availability channel gave up reconnecting", "event_id", ch.eventID, "attempts", attempts, "error", err)
		m.notify(listeners, Update{Kind: KindError, EventID: ch.eventID, State: StateError})
		return
	}

	ch.state = StateDisconnected
	if err != nil {
		ch.state = StateError
	}
	ch.attempts++
	attempts = ch.attempts
	delay := m.cfg.BaseDelay << (attempts - 1)
	m.timers[ch.eventID] = m.afterFunc(delay, func() { m.reconnect(ch) })
	m.mu.Unlock()

	m.logger.Warn("availability channel dropped",
		"event_id", ch.eventID,
		"attempt", attempts,
		"retry_in", delay,
		"error", err,
	)
}

func (m *Manager) reconnect(ch *channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.current(ch) {
		return
	}
	delete(m.timers, ch.eventID)
	m.startLocked(ch)
}

func (m *Manager) notify(listeners map[uint64]Listener, update Update) {
	for id, listener := range listeners {
		m.deliver(id, listener, update)
	}
}

func (m *Manager) deliver(id uint64, listener Listener, update Update) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("availability listener panicked", "listener", id, "event_id", update.EventID, "panic", r)
		}
	}()
	listener(update)
}

func copyListeners(listeners map[uint64]Listener) map[uint64]Listener {
	out := make(map[uint64]Listener, len(listeners))
	for id, listener := range listeners {
		out[id] = listener
	}
	return out
}
