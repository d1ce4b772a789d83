package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
)

func (d *Dispatcher) handlePaymentSucceeded(ctx context.Context, event *PaymentEvent) error {
	registrationID, changed, err := d.applyStatus(ctx, event, models.PaymentCompleted)
	if err != nil || registrationID == uuid.Nil {
		return err
	}

	logger := d.logger.With("event_id", event.ID, "registration_id", registrationID)

	// Ticket and ledger writes are idempotent on their own, so they run on
	// every delivery including replays.
	sold, err := d.store.MarkTicketsSold(ctx, registrationID)
	if err != nil {
		logger.Warn("failed to mark tickets sold", "error", err)
	}

	if event.ConnectedAccount != "" && event.PaymentReference != "" {
		err := d.store.RecordPlatformFee(ctx, registrations.PlatformFee{
			RegistrationID:     registrationID.String(),
			ConnectedAccountID: event.ConnectedAccount,
			PaymentReference:   event.PaymentReference,
			Amount:             event.ApplicationFee,
			Currency:           event.Currency,
		})
		if err != nil {
			logger.Warn("failed to record platform fee", "error", err)
		}
	}

	logger.Info("payment succeeded",
		"status_changed", changed,
		"tickets_sold", sold,
		"amount", event.Amount,
		"currency", event.Currency,
	)
	return nil
}

func (d *Dispatcher) handlePaymentFailed(ctx context.Context, event *PaymentEvent) error {
	registrationID, changed, err := d.applyStatus(ctx, event, models.PaymentFailed)
	if err != nil {
		return err
	}
	if changed {
		d.logger.Info("payment failed",
			"event_id", event.ID,
			"registration_id", registrationID,
			"reason", event.FailureMessage,
		)
	}
	return nil
}

func (d *Dispatcher) handlePaymentRequiresAction(ctx context.Context, event *PaymentEvent) error {
	registrationID, changed, err := d.applyStatus(ctx, event, models.PaymentProcessing)
	if err != nil {
		return err
	}
	if changed {
		d.logger.Info("payment requires action", "event_id", event.ID, "registration_id", registrationID)
	}
	return nil
}

func (d *Dispatcher) handleAccountUpdated(ctx context.Context, event *PaymentEvent) error {
	var account stripe.Account
	if err := json.Unmarshal(event.Object, &account); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if account.ID == "" {
		account.ID = event.Account
	}

	err := d.store.UpsertConnectedAccount(ctx, models.ConnectedAccount{
		ID:               account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	})
	if err != nil {
		return fmt.Errorf("update connected account %s: %w", account.ID, err)
	}

	d.logger.Info("connected account updated",
		"account", account.ID,
		"charges_enabled", account.ChargesEnabled,
		"payouts_enabled", account.PayoutsEnabled,
	)
	return nil
}

func (d *Dispatcher) handlePayout(ctx context.Context, event *PaymentEvent) error {
	var payout stripe.Payout
	if err := json.Unmarshal(event.Object, &payout); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	attrs := []any{
		"event_id", event.ID,
		"type", event.Type,
		"payout", payout.ID,
		"account", event.Account,
		"amount", payout.Amount,
		"currency", payout.Currency,
	}
	if event.Type == EventPayoutFailed {
		d.logger.Warn("payout failed", append(attrs, "reason", payout.FailureMessage)...)
		return nil
	}
	d.logger.Info("payout update", append(attrs, "status", payout.Status)...)
	return nil
}

func (d *Dispatcher) handleTransferCreated(ctx context.Context, event *PaymentEvent) error {
	var transfer stripe.Transfer
	if err := json.Unmarshal(event.Object, &transfer); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	destination := ""
	if transfer.Destination != nil {
		destination = transfer.Destination.ID
	}
	d.logger.Info("transfer created",
		"event_id", event.ID,
		"transfer", transfer.ID,
		"destination", destination,
		"amount", transfer.Amount,
		"currency", transfer.Currency,
		"registration_id", registrationIDFromMetadata(transfer.Metadata),
	)
	return nil
}

func (d *Dispatcher) handleApplicationFeeCreated(ctx context.Context, event *PaymentEvent) error {
	var fee stripe.ApplicationFee
	if err := json.Unmarshal(event.Object, &fee); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	account := event.Account
	if fee.Account != nil {
		account = fee.Account.ID
	}
	d.logger.Info("application fee collected",
		"event_id", event.ID,
		"fee", fee.ID,
		"account", account,
		"amount", fee.Amount,
		"currency", fee.Currency,
	)
	return nil
}
