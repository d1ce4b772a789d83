package models

import (
	"time"
)

// Customer is the booking contact for a registration. The ID is the auth
// identity of whoever submitted the registration.
type Customer struct {
	ID           string `gorm:"primary_key"`
	Email        string `gorm:"not null"`
	FirstName    string
	LastName     string
	PhoneNumber  string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
