package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/ticketflow/internal/availability"
	"github.com/farellandr/ticketflow/internal/logging"
	"github.com/farellandr/ticketflow/internal/models"
)

// streamRecorder adds the CloseNotifier gin's Stream expects.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func availabilityRouter(source *fakeSource, loader *fakeLoader) *gin.Engine {
	h := NewAvailabilityHandler(source, loader, logging.Discard())
	r := gin.New()
	r.GET("/v1/events/:id/availability", h.GetAvailability)
	r.GET("/v1/events/:id/availability/stream", h.StreamAvailability)
	return r
}

func TestGetAvailability_UsesLiveCache(t *testing.T) {
	eventID := uuid.New()
	source := &fakeSource{cached: &availability.Snapshot{EventID: eventID, Tickets: []availability.TicketAvailability{{Name: "Dinner", ActualAvailable: 3}}}}
	loader := &fakeLoader{err: errors.New("must not be called")}

	w := doJSON(t, availabilityRouter(source, loader), http.MethodGet, "/v1/events/"+eventID.String()+"/availability", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"actual_available":3`)
}

func TestGetAvailability_FallsBackToLoader(t *testing.T) {
	eventID := uuid.New()
	loader := &fakeLoader{rows: []models.EventTicket{
		{ID: uuid.New(), EventID: eventID, Name: "Dinner", TotalCapacity: 10, AvailableCount: 8, ReservedCount: 1, SoldCount: 2, Status: models.EventTicketActive},
	}}

	w := doJSON(t, availabilityRouter(&fakeSource{}, loader), http.MethodGet, "/v1/events/"+eventID.String()+"/availability", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"actual_available":7`)
	assert.Contains(t, w.Body.String(), `"percentage_sold":20`)
}

func TestGetAvailability_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		loader *fakeLoader
		status int
	}{
		{"bad id", "/v1/events/nope/availability", &fakeLoader{}, http.StatusBadRequest},
		{"no tickets", "/v1/events/" + uuid.NewString() + "/availability", &fakeLoader{}, http.StatusNotFound},
		{"loader failure", "/v1/events/" + uuid.NewString() + "/availability", &fakeLoader{err: errors.New("down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, availabilityRouter(&fakeSource{}, tt.loader), http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestStreamAvailability_RelaysUntilEvicted(t *testing.T) {
	eventID := uuid.New()
	unsubscribed := false
	source := &fakeSource{subscribe: func(id uuid.UUID, listener availability.Listener) (func(), error) {
		assert.Equal(t, eventID, id)
		listener(availability.Update{
			Kind:     availability.KindSnapshot,
			EventID:  id,
			State:    availability.StateConnected,
			Snapshot: &availability.Snapshot{EventID: id, UpdatedAt: time.Now()},
		})
		listener(availability.Update{Kind: availability.KindEvicted, EventID: id, State: availability.StateDisconnected})
		return func() { unsubscribed = true }, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/events/"+eventID.String()+"/availability/stream", nil)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	availabilityRouter(source, &fakeLoader{}).ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	require.Contains(t, body, "event:snapshot")
	assert.True(t, strings.Index(body, "event:snapshot") < strings.Index(body, "event:evicted"))
	assert.Contains(t, body, `"state":"connected"`)
	assert.True(t, unsubscribed)
}

func TestStreamAvailability_FinalUpdateSurvivesFullBuffer(t *testing.T) {
	source := &fakeSource{subscribe: func(id uuid.UUID, listener availability.Listener) (func(), error) {
		for i := 0; i < streamBuffer+4; i++ {
			listener(availability.Update{Kind: availability.KindSnapshot, EventID: id, State: availability.StateConnected})
		}
		listener(availability.Update{Kind: availability.KindEvicted, EventID: id, State: availability.StateDisconnected})
		return func() {}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/events/"+uuid.NewString()+"/availability/stream", nil)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	availabilityRouter(source, &fakeLoader{}).ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, streamBuffer, strings.Count(body, "event:snapshot"))
	assert.Equal(t, 1, strings.Count(body, "event:evicted"))
	assert.Greater(t, strings.Index(body, "event:evicted"), strings.LastIndex(body, "event:snapshot"))
}

func TestStreamAvailability_ManagerClosed(t *testing.T) {
	source := &fakeSource{subscribe: func(id uuid.UUID, listener availability.Listener) (func(), error) {
		return nil, availability.ErrClosed
	}}

	w := doJSON(t, availabilityRouter(source, &fakeLoader{}), http.MethodGet, "/v1/events/"+uuid.NewString()+"/availability/stream", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
