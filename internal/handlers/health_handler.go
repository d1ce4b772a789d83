package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type ChannelCounter interface {
	Channels() int
}

type HealthHandler struct {
	db       Pinger
	channels ChannelCounter
}

func NewHealthHandler(db Pinger, channels ChannelCounter) *HealthHandler {
	return &HealthHandler{db: db, channels: channels}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unavailable",
			"database": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                "ok",
		"availability_channels": h.channels.Channels(),
	})
}
