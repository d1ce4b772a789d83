package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/farellandr/ticketflow/internal/webhooks"
)

func TestWebhookHandler_PassesRawBodyAndContext(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := NewWebhookHandler(dispatcher)
	r := gin.New()
	r.POST("/v1/webhooks/stripe", h.Stripe)
	r.POST("/v1/webhooks/stripe/connect", h.StripeConnect)

	// Whitespace matters for the signature and must survive untouched.
	raw := []byte("{ \"id\":  \"evt_1\" }\n")

	tests := []struct {
		path string
		want webhooks.AccountContext
	}{
		{"/v1/webhooks/stripe", webhooks.ContextPlatform},
		{"/v1/webhooks/stripe/connect", webhooks.ContextConnect},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewReader(raw))
		req.Header.Set(webhooks.SignatureHeader, "t=1,v1=abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, raw, dispatcher.body)
		assert.Equal(t, "t=1,v1=abc", dispatcher.header)
		assert.Equal(t, tt.want, dispatcher.context)
	}
}

func TestWebhookHandler_RejectsOversizedBody(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := NewWebhookHandler(dispatcher)
	r := gin.New()
	r.POST("/v1/webhooks/stripe", h.Stripe)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(make([]byte, maxWebhookBody+1)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, dispatcher.body)
}
