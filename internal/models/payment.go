package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

// predecessors lists, per target status, the statuses a registration may
// move from. Completed is terminal. A processor success outranks an earlier
// failure on the same registration.
var predecessors = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentFailed},
	PaymentProcessing: {PaymentPending, PaymentFailed},
	PaymentCompleted:  {PaymentPending, PaymentProcessing, PaymentFailed},
	PaymentFailed:     {PaymentPending, PaymentProcessing},
}

// Predecessors returns the statuses from which a move to s is allowed.
func Predecessors(s PaymentStatus) []PaymentStatus {
	return predecessors[s]
}

// CanTransition reports whether a registration in status from may be moved
// to status to. Moving to the current status is not a transition.
func CanTransition(from, to PaymentStatus) bool {
	for _, p := range predecessors[to] {
		if p == from {
			return true
		}
	}
	return false
}

// PlatformFee is a ledger entry for a payment collected on behalf of a
// connected sub-account.
type PlatformFee struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement:false"`
	RegistrationID     string `gorm:"not null;index"`
	ConnectedAccountID string `gorm:"not null;index"`
	PaymentReference   string `gorm:"not null;uniqueIndex"`
	Amount             int64  `gorm:"not null"`
	Currency           string `gorm:"not null"`
	CreatedAt          time.Time
}

type ConnectedAccount struct {
	ID               string `gorm:"primary_key"`
	ChargesEnabled   bool   `gorm:"not null;default:false"`
	PayoutsEnabled   bool   `gorm:"not null;default:false"`
	DetailsSubmitted bool   `gorm:"not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
