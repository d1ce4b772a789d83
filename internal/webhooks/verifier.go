package webhooks

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Stripe-Signature"

var ErrInvalidSignature = errors.New("invalid signature")

// Verifier checks webhook signatures against the secret of the endpoint
// that received the delivery.
type Verifier struct {
	secrets   map[AccountContext]string
	tolerance time.Duration
}

func NewVerifier(platformSecret, connectSecret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{
		secrets: map[AccountContext]string{
			ContextPlatform: platformSecret,
			ContextConnect:  connectSecret,
		},
		tolerance: tolerance,
	}
}

func (v *Verifier) Verify(payload []byte, header string, accountContext AccountContext) (stripe.Event, error) {
	secret := v.secrets[accountContext]
	if secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: no secret for %q endpoint", ErrInvalidSignature, accountContext)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}
