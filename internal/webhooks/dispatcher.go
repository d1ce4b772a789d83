// Package webhooks verifies payment processor deliveries and routes them to
// the reconciliation handlers.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
)

// HandlerFunc processes one verified event. A returned error makes the
// delivery fail with 500 so the processor retries it.
type HandlerFunc func(ctx context.Context, event *PaymentEvent) error

type ConfirmationPoller interface {
	PollForConfirmation(ctx context.Context, registrationID uuid.UUID, deadline time.Duration) (string, error)
}

type Options struct {
	// ConfirmationDeadline bounds the confirmation lookup made after a
	// successful payment. Zero disables the lookup.
	ConfirmationDeadline time.Duration
}

type Dispatcher struct {
	verifier *Verifier
	store    registrations.Store
	poller   ConfirmationPoller
	logger   *slog.Logger
	opts     Options
	handlers map[EventType]HandlerFunc
}

func NewDispatcher(verifier *Verifier, store registrations.Store, poller ConfirmationPoller, logger *slog.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		verifier: verifier,
		store:    store,
		poller:   poller,
		logger:   logger.With("component", "webhooks"),
		opts:     opts,
	}
	d.handlers = map[EventType]HandlerFunc{
		EventPaymentSucceeded:      d.handlePaymentSucceeded,
		EventPaymentFailed:         d.handlePaymentFailed,
		EventPaymentRequiresAction: d.handlePaymentRequiresAction,
		EventAccountUpdated:        d.handleAccountUpdated,
		EventPayoutCreated:         d.handlePayout,
		EventPayoutFailed:          d.handlePayout,
		EventPayoutPaid:            d.handlePayout,
		EventTransferCreated:       d.handleTransferCreated,
		EventApplicationFeeCreated: d.handleApplicationFeeCreated,
	}
	return d
}

// Handle registers fn for eventType, replacing any existing handler.
func (d *Dispatcher) Handle(eventType EventType, fn HandlerFunc) {
	d.handlers[eventType] = fn
}

// HandleWebhookEvent verifies and dispatches one delivery and returns the
// HTTP status and body to acknowledge it with.
func (d *Dispatcher) HandleWebhookEvent(ctx context.Context, rawBody []byte, signatureHeader string, accountContext AccountContext) (int, gin.H) {
	evt, err := d.verifier.Verify(rawBody, signatureHeader, accountContext)
	if err != nil {
		d.logger.Warn("webhook signature verification failed", "context", accountContext, "error", err)
		return http.StatusBadRequest, gin.H{"error": "invalid signature"}
	}

	event, err := newPaymentEvent(evt, accountContext, rawBody)
	if err != nil {
		d.logger.Warn("webhook payload rejected", "event_id", evt.ID, "type", evt.Type, "error", err)
		return http.StatusBadRequest, gin.H{"error": "invalid payload"}
	}

	logger := d.logger.With("event_id", event.ID, "type", event.Type, "context", accountContext)
	d.audit(ctx, logger, event)

	handler, ok := d.handlers[event.Type]
	if !ok {
		logger.Info("ignoring unhandled webhook event")
		d.markProcessed(ctx, logger, event, nil)
		return http.StatusOK, gin.H{"received": true, "ignored": true}
	}

	if err := handler(ctx, event); err != nil {
		logger.Error("webhook handler failed", "error", err)
		d.markProcessed(ctx, logger, event, err)
		return http.StatusInternalServerError, gin.H{"error": "webhook processing failed"}
	}
	d.markProcessed(ctx, logger, event, nil)

	ack := gin.H{"received": true}
	if event.Type == EventPaymentSucceeded {
		if number := d.lookupConfirmation(ctx, logger, event); number != "" {
			ack["confirmationNumber"] = number
		}
	}
	return http.StatusOK, ack
}

func (d *Dispatcher) audit(ctx context.Context, logger *slog.Logger, event *PaymentEvent) {
	first, err := d.store.RecordProcessorEvent(ctx, registrations.ProcessorEventRecord{
		ProcessorEventID: event.ID,
		EventType:        string(event.Type),
		AccountContext:   string(event.Context),
		Account:          event.Account,
		Payload:          event.Raw,
		ReceivedAt:       time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to record webhook delivery", "error", err)
		return
	}
	if !first {
		logger.Info("redelivery of known webhook event")
	}
}

func (d *Dispatcher) markProcessed(ctx context.Context, logger *slog.Logger, event *PaymentEvent, handlerErr error) {
	if err := d.store.MarkProcessorEvent(ctx, event.ID, handlerErr); err != nil {
		logger.Warn("failed to mark webhook delivery", "error", err)
	}
}

func (d *Dispatcher) lookupConfirmation(ctx context.Context, logger *slog.Logger, event *PaymentEvent) string {
	registrationID, ok := event.RegistrationUUID()
	if !ok || d.poller == nil || d.opts.ConfirmationDeadline <= 0 {
		return ""
	}

	number, err := d.poller.PollForConfirmation(ctx, registrationID, d.opts.ConfirmationDeadline)
	if err != nil {
		logger.Info("confirmation number not available for ack", "registration_id", registrationID, "error", err)
		return ""
	}
	return number
}

// applyStatus moves the registration referenced by event to status. Events
// without a registration reference are acknowledged without any write.
func (d *Dispatcher) applyStatus(ctx context.Context, event *PaymentEvent, status models.PaymentStatus) (uuid.UUID, bool, error) {
	registrationID, ok := event.RegistrationUUID()
	if !ok {
		d.logger.Warn("payment event without registration reference",
			"event_id", event.ID,
			"type", event.Type,
			"payment_reference", event.PaymentReference,
			"registration_id", event.RegistrationID,
		)
		return uuid.Nil, false, nil
	}

	update := registrations.StatusUpdate{
		RegistrationID:     registrationID,
		PaymentReference:   event.PaymentReference,
		Currency:           event.Currency,
		ConnectedAccountID: event.ConnectedAccount,
		Status:             status,
	}
	if status == models.PaymentCompleted {
		amount := event.Amount
		update.AmountPaid = &amount
	}

	changed, err := d.store.UpdatePaymentStatus(ctx, update)
	if err != nil {
		if errors.Is(err, registrations.ErrRegistrationNotFound) {
			return registrationID, false, fmt.Errorf("registration %s not yet visible: %w", registrationID, err)
		}
		return registrationID, false, fmt.Errorf("update payment status: %w", err)
	}
	return registrationID, changed, nil
}
