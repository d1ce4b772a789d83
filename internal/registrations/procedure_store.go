package registrations

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcedureStore delegates UpsertRegistration to the upsert_registration
// database function so the whole graph is written in one round trip. Every
// other operation is shared with GormStore.
type ProcedureStore struct {
	*GormStore
}

func NewProcedureStore(db *gorm.DB, node *snowflake.Node, logger *slog.Logger, opts Options) *ProcedureStore {
	return &ProcedureStore{GormStore: NewGormStore(db, node, logger, opts)}
}

func (s *ProcedureStore) UpsertRegistration(ctx context.Context, payload *UpsertPayload) (*UpsertResult, error) {
	if err := validatePayload(payload); err != nil {
		return failedResult(uuid.Nil, err), err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var raw string
	if err := s.db.WithContext(ctx).Raw("SELECT upsert_registration(?::jsonb, ?)::text", string(body), s.opts.DefaultCurrency).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("call upsert_registration: %w", err)
	}

	var result UpsertResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode upsert_registration result: %w", err)
	}
	if !result.Success {
		return &result, fmt.Errorf("%w: %s", errorForCode(result.Code), result.Error)
	}
	return &result, nil
}

// Mode selects the UpsertRegistration implementation.
type Mode string

const (
	ModeTransaction Mode = "transaction"
	ModeProcedure   Mode = "procedure"
)

// New returns the Store for mode. Unknown modes fall back to ModeTransaction.
func New(mode Mode, db *gorm.DB, node *snowflake.Node, logger *slog.Logger, opts Options) Store {
	if mode == ModeProcedure {
		return NewProcedureStore(db, node, logger, opts)
	}
	return NewGormStore(db, node, logger, opts)
}
