package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/ticketflow/internal/helpers"
	"github.com/farellandr/ticketflow/internal/webhooks"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	dispatcher WebhookDispatcher
}

func NewWebhookHandler(dispatcher WebhookDispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// Stripe receives deliveries signed with the platform secret.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	h.handle(c, webhooks.ContextPlatform)
}

// StripeConnect receives deliveries for connected sub-accounts.
func (h *WebhookHandler) StripeConnect(c *gin.Context) {
	h.handle(c, webhooks.ContextConnect)
}

func (h *WebhookHandler) handle(c *gin.Context, accountContext webhooks.AccountContext) {
	// The signature covers the exact bytes, so the body is never re-encoded.
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Unable to read request body.")
		return
	}

	status, response := h.dispatcher.HandleWebhookEvent(
		c.Request.Context(),
		body,
		c.GetHeader(webhooks.SignatureHeader),
		accountContext,
	)
	c.JSON(status, response)
}
