package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RegistrationType string

const (
	RegistrationIndividual RegistrationType = "individual"
	RegistrationLodge      RegistrationType = "lodge"
	RegistrationDelegation RegistrationType = "delegation"
)

func (t RegistrationType) Valid() bool {
	switch t {
	case RegistrationIndividual, RegistrationLodge, RegistrationDelegation:
		return true
	}
	return false
}

// Registration is the aggregate root of one booking. ConfirmationNumber is
// owned by a database trigger and is never written by the application.
type Registration struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	CustomerID         string           `gorm:"not null;index" json:"customer_id"`
	FunctionID         uuid.UUID        `gorm:"type:uuid;not null;index" json:"function_id"`
	OrganisationID     *uuid.UUID       `gorm:"type:uuid" json:"organisation_id,omitempty"`
	RegistrationType   RegistrationType `gorm:"not null;default:'individual'" json:"registration_type"`
	PaymentStatus      PaymentStatus    `gorm:"not null;default:'pending';index" json:"payment_status"`
	ConfirmationNumber *string          `gorm:"uniqueIndex" json:"confirmation_number,omitempty"`
	Subtotal           int64            `gorm:"not null;default:0" json:"subtotal"`
	ProcessingFee      int64            `gorm:"not null;default:0" json:"processing_fee"`
	TotalAmountPaid    int64            `gorm:"not null;default:0" json:"total_amount_paid"`
	Currency           string           `gorm:"not null;default:'usd'" json:"currency"`
	PaymentReference   *string          `gorm:"index" json:"payment_reference,omitempty"`
	ConnectedAccountID *string          `json:"connected_account_id,omitempty"`
	RegistrationData   datatypes.JSON   `json:"registration_data,omitempty"`
	Customer           *Customer        `gorm:"foreignKey:CustomerID" json:"-"`
	Attendees          []Attendee       `json:"attendees,omitempty"`
	Tickets            []Ticket         `json:"tickets,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (registration *Registration) BeforeCreate(tx *gorm.DB) (err error) {
	if registration.ID == uuid.Nil {
		registration.ID = uuid.New()
	}
	return
}
