package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/farellandr/ticketflow/internal/availability"
	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
	"github.com/farellandr/ticketflow/internal/webhooks"
)

// RegistrationStore is the slice of registrations.Store the HTTP surface
// needs.
type RegistrationStore interface {
	UpsertRegistration(ctx context.Context, payload *registrations.UpsertPayload) (*registrations.UpsertResult, error)
	GetRegistration(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error)
	PersistTickets(ctx context.Context, registrationID uuid.UUID, tickets []registrations.TicketSelection, updates []registrations.AttendeeUpdate) (int, error)
}

type ConfirmationPoller interface {
	PollForConfirmation(ctx context.Context, registrationID uuid.UUID, deadline time.Duration) (string, error)
}

type WebhookDispatcher interface {
	HandleWebhookEvent(ctx context.Context, rawBody []byte, signatureHeader string, accountContext webhooks.AccountContext) (int, gin.H)
}

type AvailabilitySource interface {
	Subscribe(eventID uuid.UUID, listener availability.Listener) (func(), error)
	GetCurrentAvailability(eventID uuid.UUID) (*availability.Snapshot, bool)
}
