package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TicketStatus string

const (
	TicketStatusReserved  TicketStatus = "reserved"
	TicketStatusSold      TicketStatus = "sold"
	TicketStatusCancelled TicketStatus = "cancelled"
)

type TicketPaymentStatus string

const (
	TicketUnpaid TicketPaymentStatus = "unpaid"
	TicketPaid   TicketPaymentStatus = "paid"
)

const (
	EventTicketActive  = "active"
	EventTicketSoldOut = "sold_out"
)

// EventTicket is a ticket type on sale for an event, together with its
// inventory counters. Changes to these rows feed the availability stream.
type EventTicket struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	EventID        uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	FunctionID     uuid.UUID `gorm:"type:uuid;index" json:"function_id"`
	Name           string    `gorm:"not null" json:"name"`
	Price          int64     `gorm:"not null" json:"price"`
	TotalCapacity  int       `gorm:"not null;default:0" json:"total_capacity"`
	AvailableCount int       `gorm:"not null;default:0" json:"available_count"`
	ReservedCount  int       `gorm:"not null;default:0" json:"reserved_count"`
	SoldCount      int       `gorm:"not null;default:0" json:"sold_count"`
	Status         string    `gorm:"not null;default:'active'" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ticket is one admission held by an attendee.
type Ticket struct {
	ID              uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	RegistrationID  uuid.UUID           `gorm:"type:uuid;not null;index" json:"registration_id"`
	AttendeeID      uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_ticket_attendee_type" json:"attendee_id"`
	EventID         uuid.UUID           `gorm:"type:uuid;not null;index" json:"event_id"`
	EventTicketID   uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_ticket_attendee_type" json:"event_ticket_id"`
	PackageID       *uuid.UUID          `gorm:"type:uuid" json:"package_id,omitempty"`
	PricePaid       int64               `gorm:"not null;default:0" json:"price_paid"`
	OriginalPrice   int64               `gorm:"not null;default:0" json:"original_price"`
	Status          TicketStatus        `gorm:"not null;default:'reserved'" json:"status"`
	PaymentStatus   TicketPaymentStatus `gorm:"not null;default:'unpaid'" json:"payment_status"`
	IsPartnerTicket bool                `gorm:"not null;default:false" json:"is_partner_ticket"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (eventTicket *EventTicket) BeforeCreate(tx *gorm.DB) (err error) {
	if eventTicket.ID == uuid.Nil {
		eventTicket.ID = uuid.New()
	}
	return
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
