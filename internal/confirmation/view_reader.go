package confirmation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ViewName is the denormalized view the poller reads.
const ViewName = "registration_confirmations"

type confirmationRow struct {
	RegistrationID     uuid.UUID
	ConfirmationNumber *string
}

// ViewReader reads confirmation numbers from the registration_confirmations
// view.
type ViewReader struct {
	db *gorm.DB
}

func NewViewReader(db *gorm.DB) *ViewReader {
	return &ViewReader{db: db}
}

func (r *ViewReader) ConfirmationNumber(ctx context.Context, registrationID uuid.UUID) (string, error) {
	var row confirmationRow
	err := r.db.WithContext(ctx).Table(ViewName).
		Select("registration_id", "confirmation_number").
		Where("registration_id = ?", registrationID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrRegistrationNotFound, registrationID)
		}
		return "", fmt.Errorf("read confirmation view: %w", err)
	}
	if row.ConfirmationNumber == nil || *row.ConfirmationNumber == "" {
		return "", ErrNotAssigned
	}
	return *row.ConfirmationNumber, nil
}

// EnsureView creates the confirmation view on postgres or sqlite.
func EnsureView(db *gorm.DB) error {
	body := "SELECT id AS registration_id, confirmation_number FROM registrations"
	statement := "CREATE OR REPLACE VIEW " + ViewName + " AS " + body
	if db.Dialector.Name() == "sqlite" {
		statement = "CREATE VIEW IF NOT EXISTS " + ViewName + " AS " + body
	}
	if err := db.Exec(statement).Error; err != nil {
		return fmt.Errorf("create %s view: %w", ViewName, err)
	}
	return nil
}
