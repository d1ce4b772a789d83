package availability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farellandr/ticketflow/internal/models"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one row-level notification about an event_tickets row.
type Change struct {
	Type    ChangeType          `json:"type"`
	EventID uuid.UUID           `json:"event_id"`
	New     *models.EventTicket `json:"new,omitempty"`
	Old     *models.EventTicket `json:"old,omitempty"`
}

func decodeChange(payload []byte) (Change, error) {
	var change Change
	if err := json.Unmarshal(payload, &change); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	switch change.Type {
	case ChangeInsert, ChangeUpdate:
		if change.New == nil {
			return Change{}, fmt.Errorf("decode change: %s without new row", change.Type)
		}
	case ChangeDelete:
		if change.Old == nil {
			return Change{}, fmt.Errorf("decode change: DELETE without old row")
		}
	default:
		return Change{}, fmt.Errorf("decode change: unknown type %q", change.Type)
	}
	return change, nil
}

// Feed attaches to the change stream of one event. Listen calls ready once
// it is attached, delivers changes until ctx is done, and returns nil only
// when ctx ended the stream.
type Feed interface {
	Listen(ctx context.Context, eventID uuid.UUID, ready func() error, deliver func(Change)) error
}

// Loader performs the initial bulk read of an event's ticket types.
type Loader interface {
	LoadEventTickets(ctx context.Context, eventID uuid.UUID) ([]models.EventTicket, error)
}

type GormLoader struct {
	db *gorm.DB
}

func NewGormLoader(db *gorm.DB) *GormLoader {
	return &GormLoader{db: db}
}

func (l *GormLoader) LoadEventTickets(ctx context.Context, eventID uuid.UUID) ([]models.EventTicket, error) {
	var rows []models.EventTicket
	if err := l.db.WithContext(ctx).Where("event_id = ?", eventID).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load event tickets: %w", err)
	}
	return rows, nil
}
