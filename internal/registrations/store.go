// Package registrations implements the atomic registration upsert contract
// and the conditional status writes used by the webhook dispatcher.
package registrations

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/ticketflow/internal/models"
)

var (
	// ErrMissingIdentifier is returned when a create payload lacks the
	// customer or function identifier. Nothing is persisted.
	ErrMissingIdentifier = errors.New("missing required identifier")

	ErrInvalidPayload       = errors.New("invalid registration payload")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrUnknownTicketType    = errors.New("unknown ticket type")
	ErrUnknownAttendee      = errors.New("ticket references unknown attendee")
)

// Error codes returned in UpsertResult.Code and by the upsert_registration
// database function.
const (
	CodeMissingIdentifier = "missing_identifier"
	CodeInvalidPayload    = "invalid_payload"
	CodeUnknownTicketType = "unknown_ticket_type"
	CodeUnknownAttendee   = "unknown_attendee"
)

// DefaultCurrency is used for registrations created without a currency when
// Options leaves it unset.
const DefaultCurrency = "usd"

// Options tunes a Store.
type Options struct {
	// DefaultCurrency is stored on registrations created without one.
	DefaultCurrency string
}

// Store is the persistence boundary for the reconciliation pipeline. Every
// method that mutates more than one row runs in a single transaction.
type Store interface {
	UpsertRegistration(ctx context.Context, payload *UpsertPayload) (*UpsertResult, error)
	UpdatePaymentStatus(ctx context.Context, update StatusUpdate) (bool, error)
	MarkTicketsSold(ctx context.Context, registrationID uuid.UUID) (int64, error)
	PersistTickets(ctx context.Context, registrationID uuid.UUID, tickets []TicketSelection, updates []AttendeeUpdate) (int, error)
	GetRegistration(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error)
	ListTickets(ctx context.Context, registrationID uuid.UUID) ([]models.Ticket, error)
	RecordPlatformFee(ctx context.Context, fee PlatformFee) error
	UpsertConnectedAccount(ctx context.Context, account models.ConnectedAccount) error
	RecordProcessorEvent(ctx context.Context, event ProcessorEventRecord) (bool, error)
	MarkProcessorEvent(ctx context.Context, processorEventID string, processingErr error) error
}

type ContactPayload struct {
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

// AttendeePayload is one attendee as submitted by a client. AttendeeID is the
// client-side identifier that ticket selections refer to. RelatedAttendeeID
// and PartnerOf are accepted for compatibility and never persisted.
type AttendeePayload struct {
	AttendeeID        string          `json:"attendeeId"`
	AttendeeType      string          `json:"attendeeType"`
	Title             string          `json:"title"`
	FirstName         string          `json:"firstName"`
	LastName          string          `json:"lastName"`
	Email             string          `json:"email"`
	Phone             string          `json:"phone"`
	RelatedAttendeeID *string         `json:"relatedAttendeeId,omitempty"`
	PartnerOf         *string         `json:"partnerOf,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// TicketSelection asks for one ticket of EventTicketID for an attendee.
// EventID is ignored; the event is always resolved from the ticket type.
type TicketSelection struct {
	AttendeeID      string     `json:"attendeeId"`
	EventTicketID   uuid.UUID  `json:"eventTicketId"`
	EventID         *uuid.UUID `json:"eventId,omitempty"`
	PackageID       *uuid.UUID `json:"packageId,omitempty"`
	Price           int64      `json:"price"`
	OriginalPrice   *int64     `json:"originalPrice,omitempty"`
	IsPartnerTicket bool       `json:"isPartnerTicket"`
}

// UpsertPayload is the nested registration graph. When a registration with
// RegistrationID already exists the payload is treated as an update and may
// carry only the fields that changed.
type UpsertPayload struct {
	RegistrationID      *uuid.UUID              `json:"registrationId,omitempty"`
	CustomerID          string                  `json:"customerId"`
	FunctionID          *uuid.UUID              `json:"functionId,omitempty"`
	OrganisationID      *uuid.UUID              `json:"organisationId,omitempty"`
	RegistrationType    models.RegistrationType `json:"registrationType,omitempty"`
	BookingContact      *ContactPayload         `json:"bookingContact,omitempty"`
	PrimaryAttendee     *AttendeePayload        `json:"primaryAttendee,omitempty"`
	AdditionalAttendees []AttendeePayload       `json:"additionalAttendees,omitempty"`
	Tickets             []TicketSelection       `json:"tickets,omitempty"`
	PaymentStatus       models.PaymentStatus    `json:"paymentStatus,omitempty"`
	PaymentReference    *string                 `json:"paymentReference,omitempty"`
	ConnectedAccountID  *string                 `json:"connectedAccountId,omitempty"`
	Subtotal            *int64                  `json:"subtotal,omitempty"`
	ProcessingFee       *int64                  `json:"processingFee,omitempty"`
	TotalAmountPaid     *int64                  `json:"totalAmountPaid,omitempty"`
	Currency            string                  `json:"currency,omitempty"`
	ConfirmationNumber  *string                 `json:"confirmationNumber,omitempty"`
	RegistrationData    json.RawMessage         `json:"registrationData,omitempty"`
}

// UpsertResult mirrors the JSON returned by the upsert_registration function.
// ConfirmationFinal is false when ConfirmationNumber is only the caller's
// placeholder and the trigger has not assigned the real one yet.
type UpsertResult struct {
	Success            bool      `json:"success"`
	RegistrationID     uuid.UUID `json:"registrationId"`
	ConfirmationNumber *string   `json:"confirmationNumber,omitempty"`
	ConfirmationFinal  bool      `json:"confirmationFinal"`
	PaymentStatus      string    `json:"paymentStatus,omitempty"`
	Created            bool      `json:"created"`
	TicketsCreated     int       `json:"ticketsCreated"`
	Error              string    `json:"error,omitempty"`
	Code               string    `json:"code,omitempty"`
}

// StatusUpdate is a webhook-driven payment status change. It is applied only
// if the transition is allowed from the current status.
type StatusUpdate struct {
	RegistrationID     uuid.UUID
	Status             models.PaymentStatus
	PaymentReference   string
	AmountPaid         *int64
	Currency           string
	ConnectedAccountID string
}

// AttendeeUpdate changes contact details of an existing attendee, addressed
// by server id or by client id.
type AttendeeUpdate struct {
	AttendeeID       *uuid.UUID      `json:"id,omitempty"`
	ClientAttendeeID string          `json:"attendeeId,omitempty"`
	FirstName        *string         `json:"firstName,omitempty"`
	LastName         *string         `json:"lastName,omitempty"`
	Email            *string         `json:"email,omitempty"`
	Phone            *string         `json:"phone,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

type PlatformFee struct {
	RegistrationID     string
	ConnectedAccountID string
	PaymentReference   string
	Amount             int64
	Currency           string
}

type ProcessorEventRecord struct {
	ProcessorEventID string
	EventType        string
	AccountContext   string
	Account          string
	Payload          []byte
	ReceivedAt       time.Time
}

// errorForCode maps a result code to its sentinel error.
func errorForCode(code string) error {
	switch code {
	case CodeMissingIdentifier:
		return ErrMissingIdentifier
	case CodeUnknownTicketType:
		return ErrUnknownTicketType
	case CodeUnknownAttendee:
		return ErrUnknownAttendee
	default:
		return ErrInvalidPayload
	}
}

// codeForError is the inverse of errorForCode.
func codeForError(err error) string {
	switch {
	case errors.Is(err, ErrMissingIdentifier):
		return CodeMissingIdentifier
	case errors.Is(err, ErrUnknownTicketType):
		return CodeUnknownTicketType
	case errors.Is(err, ErrUnknownAttendee):
		return CodeUnknownAttendee
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	}
	return ""
}

// IsDataIntegrity reports whether err is a caller error that must not be
// retried.
func IsDataIntegrity(err error) bool {
	return codeForError(err) != ""
}
