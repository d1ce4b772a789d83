package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/ticketflow/internal/availability"
	"github.com/farellandr/ticketflow/internal/helpers"
)

const (
	streamBuffer   = 16
	heartbeatEvery = 15 * time.Second
)

type AvailabilityHandler struct {
	source AvailabilitySource
	loader availability.Loader
	logger *slog.Logger
}

func NewAvailabilityHandler(source AvailabilitySource, loader availability.Loader, logger *slog.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityHandler{
		source: source,
		loader: loader,
		logger: logger.With("component", "availability"),
	}
}

// GetAvailability serves the live cached view when the event has an open
// channel and reads inventory directly otherwise.
func (h *AvailabilityHandler) GetAvailability(c *gin.Context) {
	eventID, ok := helpers.ParseUUIDParam(c, "id", "event")
	if !ok {
		return
	}

	if snapshot, cached := h.source.GetCurrentAvailability(eventID); cached {
		c.JSON(http.StatusOK, snapshot)
		return
	}

	rows, err := h.loader.LoadEventTickets(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("failed to load availability", "event_id", eventID, "error", err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to load availability.")
		return
	}
	if len(rows) == 0 {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found or has no tickets.")
		return
	}

	c.JSON(http.StatusOK, availability.NewSnapshot(eventID, rows, time.Now()))
}

// StreamAvailability relays availability updates for one event as
// server-sent events until the client leaves or the channel is evicted.
func (h *AvailabilityHandler) StreamAvailability(c *gin.Context) {
	eventID, ok := helpers.ParseUUIDParam(c, "id", "event")
	if !ok {
		return
	}

	updates := make(chan availability.Update, streamBuffer)
	final := make(chan availability.Update, 1)
	unsubscribe, err := h.source.Subscribe(eventID, func(update availability.Update) {
		// The update that ends the stream never competes with buffered ones.
		if endsStream(update) {
			select {
			case final <- update:
			default:
			}
			return
		}
		select {
		case updates <- update:
		default:
			// Every update carries the full snapshot; the next one heals a drop.
			h.logger.Warn("dropped availability update for slow client", "event_id", eventID, "kind", update.Kind)
		}
	})
	if err != nil {
		if errors.Is(err, availability.ErrClosed) {
			helpers.RespondWithError(c, http.StatusServiceUnavailable, "Availability updates are unavailable.")
			return
		}
		h.logger.Error("failed to subscribe", "event_id", eventID, "error", err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to subscribe to availability.")
		return
	}
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case update := <-updates:
			c.SSEvent(string(update.Kind), update)
			return true
		case update := <-final:
			for pending := len(updates); pending > 0; pending-- {
				queued := <-updates
				c.SSEvent(string(queued.Kind), queued)
			}
			c.SSEvent(string(update.Kind), update)
			return false
		}
	})
}

func endsStream(update availability.Update) bool {
	return update.Kind == availability.KindEvicted || update.Kind == availability.KindError
}
