package handler

import (
	"io"
	"net/http"

	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderProviderSignature carries the provider's keyed digest of the raw body.
const HeaderProviderSignature = "x-paystack-signature"

// WebhookHandler receives provider callbacks. It is the only unauthenticated
// mutating endpoint; the signature check inside the gate is its auth.
type WebhookHandler struct {
	gate ports.WebhookGate
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(gate ports.WebhookGate) *WebhookHandler {
	return &WebhookHandler{gate: gate}
}

// Receive handles POST /api/v1/webhooks/provider. A nil gate result means the
// event is acknowledged and the provider must not redeliver; any error keeps
// the delivery open for retry.
func (h *WebhookHandler) Receive(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	signature := c.GetHeader(HeaderProviderSignature)

	if err := h.gate.Handle(c.Request.Context(), rawBody, signature); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusOK)
}
