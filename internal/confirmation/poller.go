// Package confirmation bridges the gap between a registration reaching a
// qualifying state and the database trigger assigning its confirmation
// number.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TimeoutMessage is the user facing text for ErrConfirmationTimeout.
const TimeoutMessage = "Confirmation number generation timeout"

var (
	// ErrConfirmationTimeout means the confirmation number did not appear in
	// time. The payment itself may well have succeeded.
	ErrConfirmationTimeout = errors.New("confirmation number generation timeout")

	ErrNotAssigned          = errors.New("confirmation number not assigned yet")
	ErrRegistrationNotFound = errors.New("registration not found")
)

// Reader reads the current confirmation number of a registration.
type Reader interface {
	ConfirmationNumber(ctx context.Context, registrationID uuid.UUID) (string, error)
}

type Poller struct {
	Reader      Reader
	Interval    time.Duration
	MaxAttempts int
	Logger      *slog.Logger
}

func NewPoller(reader Reader, interval time.Duration, maxAttempts int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{Reader: reader, Interval: interval, MaxAttempts: maxAttempts, Logger: logger}
}

// WithAttempts returns a copy of p bounded to attempts reads.
func (p *Poller) WithAttempts(attempts int) *Poller {
	clone := *p
	clone.MaxAttempts = attempts
	return &clone
}

// PollForConfirmation reads the confirmation view at a constant interval
// until a number appears, MaxAttempts reads were made or deadline elapsed.
// A deadline of zero leaves only the attempt bound.
func (p *Poller) PollForConfirmation(ctx context.Context, registrationID uuid.UUID, deadline time.Duration) (string, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		number, err := p.Reader.ConfirmationNumber(ctx, registrationID)
		if err == nil && number != "" {
			return number, nil
		}
		if err != nil && !errors.Is(err, ErrNotAssigned) && !errors.Is(err, ErrRegistrationNotFound) {
			if ctx.Err() != nil {
				break
			}
			p.Logger.Warn("confirmation read failed",
				"registration_id", registrationID,
				"attempt", attempt,
				"error", err,
			)
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: deadline reached after %d attempts", ErrConfirmationTimeout, attempt)
		case <-timer.C:
		}
	}

	return "", fmt.Errorf("%w: %s", ErrConfirmationTimeout, registrationID)
}
