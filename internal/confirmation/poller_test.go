package confirmation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/farellandr/ticketflow/internal/models"
)

type fakeReader struct {
	calls int32
	read  func(call int) (string, error)
}

func (f *fakeReader) ConfirmationNumber(ctx context.Context, registrationID uuid.UUID) (string, error) {
	call := atomic.AddInt32(&f.calls, 1)
	return f.read(int(call))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollForConfirmation_ReturnsOnFirstAppearance(t *testing.T) {
	reader := &fakeReader{read: func(call int) (string, error) {
		if call < 3 {
			return "", ErrNotAssigned
		}
		return "IND-123456AB", nil
	}}
	poller := NewPoller(reader, 5*time.Millisecond, 5, quietLogger())

	number, err := poller.PollForConfirmation(context.Background(), uuid.New(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "IND-123456AB", number)
	assert.Equal(t, int32(3), atomic.LoadInt32(&reader.calls))
}

func TestPollForConfirmation_ImmediateHit(t *testing.T) {
	reader := &fakeReader{read: func(int) (string, error) { return "LDG-000001ZZ", nil }}
	poller := NewPoller(reader, time.Hour, 5, quietLogger())

	number, err := poller.PollForConfirmation(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, "LDG-000001ZZ", number)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.calls))
}

func TestPollForConfirmation_ExhaustsAttempts(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not assigned", ErrNotAssigned},
		{"not visible yet", ErrRegistrationNotFound},
		{"read failure", errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{read: func(int) (string, error) { return "", tt.err }}
			poller := NewPoller(reader, 100*time.Millisecond, 3, quietLogger())

			start := time.Now()
			_, err := poller.PollForConfirmation(context.Background(), uuid.New(), 0)
			elapsed := time.Since(start)

			require.ErrorIs(t, err, ErrConfirmationTimeout)
			assert.Equal(t, int32(3), atomic.LoadInt32(&reader.calls))
			// Two waits between three reads, none after the last one.
			assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
			assert.Less(t, elapsed, 290*time.Millisecond)
		})
	}
}

func TestPollForConfirmation_DeadlineBoundsSlowReads(t *testing.T) {
	reader := &fakeReader{read: func(int) (string, error) { return "", ErrNotAssigned }}
	poller := NewPoller(reader, 50*time.Millisecond, 100, quietLogger())

	start := time.Now()
	_, err := poller.PollForConfirmation(context.Background(), uuid.New(), 120*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Less(t, elapsed, time.Second)
	assert.LessOrEqual(t, atomic.LoadInt32(&reader.calls), int32(4))
}

func TestWithAttempts(t *testing.T) {
	poller := NewPoller(&fakeReader{}, time.Second, 5, nil)
	short := poller.WithAttempts(2)

	assert.Equal(t, 2, short.MaxAttempts)
	assert.Equal(t, 5, poller.MaxAttempts)
	assert.Equal(t, time.Second, short.Interval)
}

func TestViewReader(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Registration{}))
	require.NoError(t, EnsureView(db))
	require.NoError(t, EnsureView(db))

	reg := models.Registration{CustomerID: "auth-user-1", FunctionID: uuid.New(), PaymentStatus: models.PaymentCompleted}
	require.NoError(t, db.Create(&reg).Error)

	reader := NewViewReader(db)
	ctx := context.Background()

	_, err = reader.ConfirmationNumber(ctx, reg.ID)
	assert.ErrorIs(t, err, ErrNotAssigned)

	_, err = reader.ConfirmationNumber(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRegistrationNotFound)

	require.NoError(t, db.Model(&models.Registration{}).Where("id = ?", reg.ID).Update("confirmation_number", "IND-424242QX").Error)

	number, err := reader.ConfirmationNumber(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "IND-424242QX", number)
}
