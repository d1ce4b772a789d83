package availability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NotifyChannel is the LISTEN channel fed by the event_tickets trigger.
const NotifyChannel = "ticket_availability"

// PGFeed streams event_tickets changes over Postgres LISTEN/NOTIFY. Each
// Listen call holds its own connection.
type PGFeed struct {
	dsn     string
	channel string
	logger  *slog.Logger
}

func NewPGFeed(dsn string, logger *slog.Logger) *PGFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGFeed{dsn: dsn, channel: NotifyChannel, logger: logger}
}

func (f *PGFeed) Listen(ctx context.Context, eventID uuid.UUID, ready func() error, deliver func(Change)) error {
	conn, err := pgx.Connect(ctx, f.dsn)
	if err != nil {
		return fmt.Errorf("connect change feed: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", f.channel, err)
	}
	if err := ready(); err != nil {
		return err
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		change, err := decodeChange([]byte(notification.Payload))
		if err != nil {
			f.logger.Warn("dropping malformed availability notification", "error", err)
			continue
		}
		if change.EventID != eventID {
			continue
		}
		deliver(change)
	}
}
