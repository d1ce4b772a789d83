package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/farellandr/ticketflow/internal/confirmation"
	"github.com/farellandr/ticketflow/internal/helpers"
	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
)

const maxConfirmationWait = 30 * time.Second

type ConfirmationHandler struct {
	store  RegistrationStore
	poller ConfirmationPoller
	signer *helpers.ConfirmationSigner
	logger *slog.Logger
}

func NewConfirmationHandler(store RegistrationStore, poller ConfirmationPoller, signer *helpers.ConfirmationSigner, logger *slog.Logger) *ConfirmationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfirmationHandler{
		store:  store,
		poller: poller,
		signer: signer,
		logger: logger.With("component", "confirmation"),
	}
}

type ValidateConfirmationRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// GetConfirmation returns the confirmation number. With ?wait=<duration>
// it polls for up to that long when the payment is complete but the number
// has not been assigned yet.
func (h *ConfirmationHandler) GetConfirmation(c *gin.Context) {
	reg, ok := loadOwnedRegistration(c, h.store, h.logger)
	if !ok {
		return
	}

	if reg.ConfirmationNumber != nil {
		c.JSON(http.StatusOK, gin.H{
			"registrationId":     reg.ID,
			"confirmationNumber": *reg.ConfirmationNumber,
		})
		return
	}
	if reg.PaymentStatus != models.PaymentCompleted {
		helpers.RespondWithError(c, http.StatusConflict, "Registration payment is not complete.")
		return
	}

	wait := helpers.QueryDuration(c, "wait", 0, maxConfirmationWait)
	if wait > 0 {
		number, err := h.poller.PollForConfirmation(c.Request.Context(), reg.ID, wait)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{
				"registrationId":     reg.ID,
				"confirmationNumber": number,
			})
			return
		}
		if !errors.Is(err, confirmation.ErrConfirmationTimeout) {
			h.logger.Warn("confirmation lookup failed", "registration_id", reg.ID, "error", err)
		}
	}

	message := "Confirmation number not assigned yet."
	if wait > 0 {
		message = confirmation.TimeoutMessage
	}
	c.JSON(http.StatusAccepted, gin.H{
		"registrationId": reg.ID,
		"status":         StatusFinalizing,
		"message":        message,
	})
}

func (h *ConfirmationHandler) GenerateConfirmationQR(c *gin.Context) {
	reg, ok := loadOwnedRegistration(c, h.store, h.logger)
	if !ok {
		return
	}
	if reg.ConfirmationNumber == nil {
		helpers.RespondWithError(c, http.StatusConflict, "Confirmation number not assigned yet.")
		return
	}

	qrData := h.signer.QRData(reg.ID, *reg.ConfirmationNumber)
	qrImage, err := qrcode.Encode(qrData, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("failed to encode QR code", "registration_id", reg.ID, "error", err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

// ValidateConfirmation checks a scanned QR payload against the stored
// registration.
func (h *ConfirmationHandler) ValidateConfirmation(c *gin.Context) {
	var req ValidateConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	registrationID, number, err := h.signer.Verify(req.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code.")
		return
	}

	reg, err := h.store.GetRegistration(c.Request.Context(), registrationID)
	if err != nil {
		if errors.Is(err, registrations.ErrRegistrationNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Registration not found.")
			return
		}
		h.logger.Error("failed to load registration", "registration_id", registrationID, "error", err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to validate QR code.")
		return
	}

	if reg.ConfirmationNumber == nil || *reg.ConfirmationNumber != number || reg.PaymentStatus != models.PaymentCompleted {
		helpers.RespondWithError(c, http.StatusBadRequest, "QR code does not match a confirmed registration.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":              true,
		"registrationId":     reg.ID,
		"confirmationNumber": number,
		"registrationType":   reg.RegistrationType,
		"attendees":          len(reg.Attendees),
		"tickets":            len(reg.Tickets),
	})
}
