package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/ticketflow/internal/confirmation"
	"github.com/farellandr/ticketflow/internal/helpers"
	"github.com/farellandr/ticketflow/internal/models"
	"github.com/farellandr/ticketflow/internal/registrations"
)

const StatusFinalizing = "finalizing"

type RegistrationHandler struct {
	store    RegistrationStore
	poller   ConfirmationPoller
	deadline time.Duration
	logger   *slog.Logger
}

func NewRegistrationHandler(store RegistrationStore, poller ConfirmationPoller, deadline time.Duration, logger *slog.Logger) *RegistrationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationHandler{
		store:    store,
		poller:   poller,
		deadline: deadline,
		logger:   logger.With("component", "registrations"),
	}
}

type PersistTicketsRequest struct {
	Tickets         []registrations.TicketSelection `json:"tickets"`
	AttendeeUpdates []registrations.AttendeeUpdate  `json:"attendeeUpdates"`
}

// CreateRegistration accepts the nested registration graph from the client.
// When the payment is already completed it waits for the confirmation
// number and answers 202 "finalizing" if it does not appear in time.
func (h *RegistrationHandler) CreateRegistration(c *gin.Context) {
	userID, ok := helpers.UserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	var payload registrations.UpsertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	payload.CustomerID = userID
	if payload.PaymentStatus == models.PaymentCompleted &&
		(payload.PaymentReference == nil || strings.TrimSpace(*payload.PaymentReference) == "") {
		helpers.RespondWithError(c, http.StatusBadRequest, "A payment reference is required for a completed payment.")
		return
	}

	ctx := c.Request.Context()
	if payload.RegistrationID != nil {
		existing, err := h.store.GetRegistration(ctx, *payload.RegistrationID)
		switch {
		case err == nil && existing.CustomerID != userID:
			helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to modify this registration.")
			return
		case err != nil && !errors.Is(err, registrations.ErrRegistrationNotFound):
			h.logger.Error("failed to load registration", "registration_id", payload.RegistrationID, "error", err)
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to save registration.")
			return
		}
	}

	result, err := h.store.UpsertRegistration(ctx, &payload)
	if err != nil {
		if registrations.IsDataIntegrity(err) {
			helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to upsert registration", "error", err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to save registration.")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response := gin.H{
		"success":        true,
		"registrationId": result.RegistrationID,
		"paymentStatus":  result.PaymentStatus,
		"ticketsCreated": result.TicketsCreated,
	}

	if result.ConfirmationFinal && result.ConfirmationNumber != nil {
		response["confirmationNumber"] = *result.ConfirmationNumber
		c.JSON(status, response)
		return
	}
	if models.PaymentStatus(result.PaymentStatus) != models.PaymentCompleted {
		c.JSON(status, response)
		return
	}

	number, err := h.poller.PollForConfirmation(ctx, result.RegistrationID, h.deadline)
	if err != nil {
		if !errors.Is(err, confirmation.ErrConfirmationTimeout) {
			h.logger.Warn("confirmation lookup failed", "registration_id", result.RegistrationID, "error", err)
		}
		response["status"] = StatusFinalizing
		response["message"] = confirmation.TimeoutMessage
		c.JSON(http.StatusAccepted, response)
		return
	}

	response["confirmationNumber"] = number
	c.JSON(status, response)
}

func (h *RegistrationHandler) GetRegistration(c *gin.Context) {
	reg, ok := h.ownedRegistration(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"registration": reg})
}

// PersistTickets adds tickets and attendee detail changes to an existing
// registration in one transaction.
func (h *RegistrationHandler) PersistTickets(c *gin.Context) {
	reg, ok := h.ownedRegistration(c)
	if !ok {
		return
	}

	var req PersistTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if len(req.Tickets) == 0 && len(req.AttendeeUpdates) == 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Nothing to persist.")
		return
	}

	created, err := h.store.PersistTickets(c.Request.Context(), reg.ID, req.Tickets, req.AttendeeUpdates)
	if err != nil {
		switch {
		case errors.Is(err, registrations.ErrRegistrationNotFound):
			helpers.RespondWithError(c, http.StatusNotFound, "Registration not found.")
		case registrations.IsDataIntegrity(err):
			helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to persist tickets", "registration_id", reg.ID, "error", err)
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to persist tickets.")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"tickets_created": created,
	})
}

// ownedRegistration loads the :id registration and checks it belongs to the
// caller. It writes the error response itself.
func (h *RegistrationHandler) ownedRegistration(c *gin.Context) (*models.Registration, bool) {
	return loadOwnedRegistration(c, h.store, h.logger)
}

func loadOwnedRegistration(c *gin.Context, store RegistrationStore, logger *slog.Logger) (*models.Registration, bool) {
	userID, ok := helpers.UserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return nil, false
	}

	registrationID, ok := helpers.ParseUUIDParam(c, "id", "registration")
	if !ok {
		return nil, false
	}

	reg, err := store.GetRegistration(c.Request.Context(), registrationID)
	if err != nil {
		if errors.Is(err, registrations.ErrRegistrationNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Registration not found.")
			return nil, false
		}
		logger.Error("failed to load registration", "registration_id", registrationID, "error", err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to load registration.")
		return nil, false
	}
	if reg.CustomerID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to access this registration.")
		return nil, false
	}
	return reg, true
}
