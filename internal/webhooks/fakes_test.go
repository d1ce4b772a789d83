package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
)

const (
	platformSecret = "whsec_platform_test"
	connectSecret  = "whsec_connect_test"
)

// fakeStore records calls and delegates to optional function fields.
type fakeStore struct {
	mu sync.Mutex

	updates  []registrations.StatusUpdate
	sold     []uuid.UUID
	fees     []registrations.PlatformFee
	accounts []models.ConnectedAccount
	events   []registrations.ProcessorEventRecord
	marked   map[string]error

	updatePaymentStatus func(update registrations.StatusUpdate) (bool, error)
	markTicketsSold     func(id uuid.UUID) (int64, error)
	recordEvent         func(record registrations.ProcessorEventRecord) (bool, error)
}

var _ registrations.Store = (*fakeStore)(nil)

func (f *fakeStore) UpsertRegistration(ctx context.Context, payload *registrations.UpsertPayload) (*registrations.UpsertResult, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeStore) UpdatePaymentStatus(ctx context.Context, update registrations.StatusUpdate) (bool, error) {
	f.mu.Lock()
	f.updates = append(f.updates, update)
	f.mu.Unlock()
	if f.updatePaymentStatus != nil {
		return f.updatePaymentStatus(update)
	}
	return true, nil
}

func (f *fakeStore) MarkTicketsSold(ctx context.Context, registrationID uuid.UUID) (int64, error) {
	f.mu.Lock()
	f.sold = append(f.sold, registrationID)
	f.mu.Unlock()
	if f.markTicketsSold != nil {
		return f.markTicketsSold(registrationID)
	}
	return 2, nil
}

func (f *fakeStore) PersistTickets(ctx context.Context, registrationID uuid.UUID, tickets []registrations.TicketSelection, updates []registrations.AttendeeUpdate) (int, error) {
	return 0, fmt.Errorf("not used")
}

func (f *fakeStore) GetRegistration(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error) {
	return nil, registrations.ErrRegistrationNotFound
}

func (f *fakeStore) ListTickets(ctx context.Context, registrationID uuid.UUID) ([]models.Ticket, error) {
	return nil, nil
}

func (f *fakeStore) RecordPlatformFee(ctx context.Context, fee registrations.PlatformFee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fees = append(f.fees, fee)
	return nil
}

func (f *fakeStore) UpsertConnectedAccount(ctx context.Context, account models.ConnectedAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, account)
	return nil
}

func (f *fakeStore) RecordProcessorEvent(ctx context.Context, record registrations.ProcessorEventRecord) (bool, error) {
	f.mu.Lock()
	f.events = append(f.events, record)
	f.mu.Unlock()
	if f.recordEvent != nil {
		return f.recordEvent(record)
	}
	return true, nil
}

func (f *fakeStore) MarkProcessorEvent(ctx context.Context, processorEventID string, processingErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marked == nil {
		f.marked = map[string]error{}
	}
	f.marked[processorEventID] = processingErr
	return nil
}

type fakePoller struct {
	poll func(id uuid.UUID) (string, error)
}

func (f *fakePoller) PollForConfirmation(ctx context.Context, registrationID uuid.UUID, deadline time.Duration) (string, error) {
	return f.poll(registrationID)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sign builds a signature header the way the processor does.
func sign(payload []byte, secret string, at time.Time) string {
	timestamp := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func eventJSON(id string, eventType EventType, account string, object string) []byte {
	accountField := ""
	if account != "" {
		accountField = fmt.Sprintf(`"account": %q,`, account)
	}
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2020-08-27",
  "created": 1700000000,
  %s
  "type": %q,
  "data": {"object": %s}
}`, id, accountField, eventType, object))
}

func paymentIntentJSON(id string, amount int64, metadata string) string {
	return fmt.Sprintf(`{
    "id": %q,
    "object": "payment_intent",
    "amount": %d,
    "amount_received": %d,
    "currency": "usd",
    "application_fee_amount": 350,
    "metadata": %s
  }`, id, amount, amount, metadata)
}
