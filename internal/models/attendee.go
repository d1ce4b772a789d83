package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Attendee struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	RegistrationID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_attendee_client" json:"registration_id"`
	ClientAttendeeID string    `gorm:"not null;uniqueIndex:idx_attendee_client" json:"client_attendee_id"`
	IsPrimary        bool      `gorm:"not null;default:false" json:"is_primary"`
	AttendeeType     string    `gorm:"not null;default:'guest'" json:"attendee_type"`
	Title            string    `json:"title"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	PhoneNumber      string    `json:"phone_number"`
	// Always written as NULL. Client-supplied relationship links are dropped.
	RelatedAttendeeID *uuid.UUID     `gorm:"type:uuid" json:"related_attendee_id"`
	Metadata          datatypes.JSON `json:"metadata"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (attendee *Attendee) BeforeCreate(tx *gorm.DB) (err error) {
	if attendee.ID == uuid.Nil {
		attendee.ID = uuid.New()
	}
	return
}
