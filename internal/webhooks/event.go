package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
)

type EventType string

const (
	EventPaymentSucceeded      EventType = "payment_intent.succeeded"
	EventPaymentFailed         EventType = "payment_intent.payment_failed"
	EventPaymentRequiresAction EventType = "payment_intent.requires_action"
	EventAccountUpdated        EventType = "account.updated"
	EventPayoutCreated         EventType = "payout.created"
	EventPayoutFailed          EventType = "payout.failed"
	EventPayoutPaid            EventType = "payout.paid"
	EventTransferCreated       EventType = "transfer.created"
	EventApplicationFeeCreated EventType = "application_fee.created"
)

// AccountContext tells which endpoint received the delivery, and so which
// signing secret applies.
type AccountContext string

const (
	ContextPlatform AccountContext = "platform"
	ContextConnect  AccountContext = "connect"
)

var ErrMalformedEvent = errors.New("malformed event payload")

// PaymentEvent is a verified processor event reduced to the fields the
// reconciliation handlers need. Object keeps the raw data object for
// handlers that decode a type other than a payment intent.
type PaymentEvent struct {
	ID      string
	Type    EventType
	Context AccountContext
	// Account is the connected account the event was emitted for, if any.
	Account string
	Created time.Time

	PaymentReference string
	Amount           int64
	Currency         string
	RegistrationID   string
	ConnectedAccount string
	ApplicationFee   int64
	FailureMessage   string

	Object json.RawMessage
	Raw    []byte
}

// RegistrationUUID parses RegistrationID. ok is false when the metadata
// carried no usable identifier.
func (e *PaymentEvent) RegistrationUUID() (uuid.UUID, bool) {
	if e.RegistrationID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(e.RegistrationID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func registrationIDFromMetadata(metadata map[string]string) string {
	if id := metadata["registration_id"]; id != "" {
		return id
	}
	return metadata["registrationId"]
}

func newPaymentEvent(evt stripe.Event, accountContext AccountContext, raw []byte) (*PaymentEvent, error) {
	event := &PaymentEvent{
		ID:      evt.ID,
		Type:    EventType(evt.Type),
		Context: accountContext,
		Account: evt.Account,
		Created: time.Unix(evt.Created, 0).UTC(),
		Raw:     raw,
	}
	if evt.Data != nil {
		event.Object = evt.Data.Raw
	}

	if !strings.HasPrefix(string(evt.Type), "payment_intent.") {
		return event, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Object, &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event.PaymentReference = intent.ID
	event.Amount = intent.AmountReceived
	if event.Amount == 0 {
		event.Amount = intent.Amount
	}
	event.Currency = string(intent.Currency)
	event.RegistrationID = registrationIDFromMetadata(intent.Metadata)
	event.ApplicationFee = intent.ApplicationFeeAmount

	event.ConnectedAccount = evt.Account
	if event.ConnectedAccount == "" && intent.OnBehalfOf != nil {
		event.ConnectedAccount = intent.OnBehalfOf.ID
	}
	if event.ConnectedAccount == "" && intent.TransferData != nil && intent.TransferData.Destination != nil {
		event.ConnectedAccount = intent.TransferData.Destination.ID
	}

	if intent.LastPaymentError != nil {
		event.FailureMessage = intent.LastPaymentError.Msg
	}
	return event, nil
}
