package handlers

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/ticketflow/internal/confirmation"
	"github.com/farellandr/ticketflow/internal/helpers"
	"github.com/farellandr/ticketflow/internal/logging"
	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
)

var testSigner = helpers.NewConfirmationSigner("qr-secret")

func confirmationRouter(store *fakeStore, poller *fakePoller) *gin.Engine {
	h := NewConfirmationHandler(store, poller, testSigner, logging.Discard())
	r := gin.New()
	r.Use(asUser("cust-1"))
	r.GET("/v1/registrations/:id/confirmation", h.GetConfirmation)
	r.GET("/v1/registrations/:id/confirmation/qr", h.GenerateConfirmationQR)
	r.POST("/v1/confirmations/validate", h.ValidateConfirmation)
	return r
}

func storeWith(reg *models.Registration) *fakeStore {
	return &fakeStore{get: func(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
		if id != reg.ID {
			return nil, registrations.ErrRegistrationNotFound
		}
		return reg, nil
	}}
}

func TestGetConfirmation_Assigned(t *testing.T) {
	reg := &models.Registration{ID: uuid.New(), CustomerID: "cust-1", PaymentStatus: models.PaymentCompleted, ConfirmationNumber: strPtr("DEL-000001AA")}
	poller := &fakePoller{}

	w := doJSON(t, confirmationRouter(storeWith(reg), poller), http.MethodGet, "/v1/registrations/"+reg.ID.String()+"/confirmation", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DEL-000001AA", decode(t, w)["confirmationNumber"])
	assert.Equal(t, 0, poller.calls)
}

func TestGetConfirmation_PendingPaymentConflicts(t *testing.T) {
	reg := &models.Registration{ID: uuid.New(), CustomerID: "cust-1", PaymentStatus: models.PaymentPending}

	w := doJSON(t, confirmationRouter(storeWith(reg), &fakePoller{}), http.MethodGet, "/v1/registrations/"+reg.ID.String()+"/confirmation", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetConfirmation_WaitsWhenAsked(t *testing.T) {
	reg := &models.Registration{ID: uuid.New(), CustomerID: "cust-1", PaymentStatus: models.PaymentCompleted}
	poller := &fakePoller{poll: func(ctx context.Context, id uuid.UUID, deadline time.Duration) (string, error) {
		assert.Equal(t, 3*time.Second, deadline)
		return "IND-111111BB", nil
	}}

	w := doJSON(t, confirmationRouter(storeWith(reg), poller), http.MethodGet, "/v1/registrations/"+reg.ID.String()+"/confirmation?wait=3s", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IND-111111BB", decode(t, w)["confirmationNumber"])
}

func TestGetConfirmation_WaitTimesOut(t *testing.T) {
	reg := &models.Registration{ID: uuid.New(), CustomerID: "cust-1", PaymentStatus: models.PaymentCompleted}
	poller := &fakePoller{poll: func(ctx context.Context, id uuid.UUID, deadline time.Duration) (string, error) {
		return "", confirmation.ErrConfirmationTimeout
	}}

	w := doJSON(t, confirmationRouter(storeWith(reg), poller), http.MethodGet, "/v1/registrations/"+reg.ID.String()+"/confirmation?wait=1s", nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, StatusFinalizing, body["status"])
	assert.Equal(t, confirmation.TimeoutMessage, body["message"])
}

func TestGenerateConfirmationQR(t *testing.T) {
	reg := &models.Registration{ID: uuid.New(), CustomerID: "cust-1", PaymentStatus: models.PaymentCompleted, ConfirmationNumber: strPtr("IND-123456AB")}

	w := doJSON(t, confirmationRouter(storeWith(reg), &fakePoller{}), http.MethodGet, "/v1/registrations/"+reg.ID.String()+"/confirmation/qr", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestGenerateConfirmationQR_NotAssigned(t *testing.T) {
	reg := &models.Registration{ID: uuid.New(), CustomerID: "cust-1", PaymentStatus: models.PaymentCompleted}

	w := doJSON(t, confirmationRouter(storeWith(reg), &fakePoller{}), http.MethodGet, "/v1/registrations/"+reg.ID.String()+"/confirmation/qr", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestValidateConfirmation(t *testing.T) {
	reg := &models.Registration{
		ID: uuid.New(), CustomerID: "cust-9", PaymentStatus: models.PaymentCompleted,
		RegistrationType: models.RegistrationLodge, ConfirmationNumber: strPtr("LDG-123456AB"),
		Attendees: []models.Attendee{{}, {}},
		Tickets:   []models.Ticket{{}},
	}
	router := confirmationRouter(storeWith(reg), &fakePoller{})

	t.Run("valid", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/confirmations/validate", gin.H{"qr_data": testSigner.QRData(reg.ID, "LDG-123456AB")})

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["valid"])
		assert.EqualValues(t, 2, body["attendees"])
		assert.EqualValues(t, 1, body["tickets"])
	})

	t.Run("forged", func(t *testing.T) {
		forged := helpers.NewConfirmationSigner("other").QRData(reg.ID, "LDG-123456AB")
		w := doJSON(t, router, http.MethodPost, "/v1/confirmations/validate", gin.H{"qr_data": forged})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stale number", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/confirmations/validate", gin.H{"qr_data": testSigner.QRData(reg.ID, "LDG-000000ZZ")})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown registration", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/confirmations/validate", gin.H{"qr_data": testSigner.QRData(uuid.New(), "LDG-123456AB")})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing body", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/confirmations/validate", gin.H{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestValidateConfirmation_StorageError(t *testing.T) {
	store := &fakeStore{get: func(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
		return nil, errors.New("timeout")
	}}

	w := doJSON(t, confirmationRouter(store, &fakePoller{}), http.MethodPost, "/v1/confirmations/validate", gin.H{"qr_data": testSigner.QRData(uuid.New(), "IND-1")})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
