package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ParseUUIDParam reads a path parameter as a uuid. On failure it responds
// with 400 and returns false.
func ParseUUIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// QueryDuration reads a query parameter as a Go duration, falling back to
// def when absent or malformed and capping the result at max.
func QueryDuration(c *gin.Context, key string, def, max time.Duration) time.Duration {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return def
	}
	if d > max {
		return max
	}
	return d
}

// UserID returns the authenticated subject set by the JWT middleware.
func UserID(c *gin.Context) (string, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok && userID != ""
}
