package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/ticketflow/internal/availability"
	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
	"github.com/farellandr/ticketflow/internal/webhooks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	upsert  func(ctx context.Context, payload *registrations.UpsertPayload) (*registrations.UpsertResult, error)
	get     func(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	persist func(ctx context.Context, id uuid.UUID, tickets []registrations.TicketSelection, updates []registrations.AttendeeUpdate) (int, error)
}

func (f *fakeStore) UpsertRegistration(ctx context.Context, payload *registrations.UpsertPayload) (*registrations.UpsertResult, error) {
	return f.upsert(ctx, payload)
}

func (f *fakeStore) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	if f.get == nil {
		return nil, registrations.ErrRegistrationNotFound
	}
	return f.get(ctx, id)
}

func (f *fakeStore) PersistTickets(ctx context.Context, id uuid.UUID, tickets []registrations.TicketSelection, updates []registrations.AttendeeUpdate) (int, error) {
	return f.persist(ctx, id, tickets, updates)
}

type fakePoller struct {
	calls int
	poll  func(ctx context.Context, id uuid.UUID, deadline time.Duration) (string, error)
}

func (f *fakePoller) PollForConfirmation(ctx context.Context, id uuid.UUID, deadline time.Duration) (string, error) {
	f.calls++
	return f.poll(ctx, id, deadline)
}

type fakeDispatcher struct {
	body    []byte
	header  string
	context webhooks.AccountContext
}

func (f *fakeDispatcher) HandleWebhookEvent(ctx context.Context, raw []byte, header string, accountContext webhooks.AccountContext) (int, gin.H) {
	f.body = raw
	f.header = header
	f.context = accountContext
	return http.StatusOK, gin.H{"received": true}
}

type fakeSource struct {
	cached    *availability.Snapshot
	subscribe func(eventID uuid.UUID, listener availability.Listener) (func(), error)
}

func (f *fakeSource) Subscribe(eventID uuid.UUID, listener availability.Listener) (func(), error) {
	return f.subscribe(eventID, listener)
}

func (f *fakeSource) GetCurrentAvailability(eventID uuid.UUID) (*availability.Snapshot, bool) {
	if f.cached == nil || f.cached.EventID != eventID {
		return nil, false
	}
	return f.cached, true
}

type fakeLoader struct {
	rows []models.EventTicket
	err  error
}

func (f *fakeLoader) LoadEventTickets(ctx context.Context, eventID uuid.UUID) ([]models.EventTicket, error) {
	return f.rows, f.err
}

// asUser stands in for the JWT middleware.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func strPtr(s string) *string { return &s }
