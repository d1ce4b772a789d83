package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessorEvent is an audit row for every verified webhook delivery. It is
// kept for observability; idempotency never depends on it.
type ProcessorEvent struct {
	ID               int64  `gorm:"primaryKey;autoIncrement:false"`
	ProcessorEventID string `gorm:"not null;uniqueIndex"`
	EventType        string `gorm:"not null;index"`
	AccountContext   string `gorm:"not null"`
	Account          string
	Payload          datatypes.JSON `gorm:"not null"`
	Deliveries       int            `gorm:"not null;default:1"`
	ProcessedAt      *time.Time
	ProcessingError  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// All returns every model managed by AutoMigrate, parents first.
func All() []interface{} {
	return []interface{}{
		&Customer{},
		&Function{},
		&Event{},
		&Package{},
		&EventTicket{},
		&Registration{},
		&Attendee{},
		&Ticket{},
		&PlatformFee{},
		&ConnectedAccount{},
		&ProcessorEvent{},
	}
}
