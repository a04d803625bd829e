package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/webhook"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody caps the inbound payload size
const maxWebhookBody = 1 << 20

// WebhookHandler receives push notifications from the ERP
type WebhookHandler struct {
	BaseHandler
	ingestor *webhook.Ingestor
	secret   string
	logger   *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(ingestor *webhook.Ingestor, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes registers webhook routes. The endpoint authenticates with
// the HMAC signature, not the operator JWT.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/erp", h.Receive)
}

// webhookPayload is the notification body sent by the ERP
type webhookPayload struct {
	Subsystem string          `json:"subsystem"`
	Action    string          `json:"action"`
	Record    json.RawMessage `json:"record,omitempty"`
}

// Receive validates the signature, records the event, and acks immediately.
// Reconciliation triggered by the notification runs in the background; the
// ERP only cares that delivery succeeded.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		h.ingestor.RecordRejected("unknown", "unknown", "missing signature")
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Missing webhook signature")
		return
	}
	if !h.verifySignature(body, signature) {
		h.ingestor.RecordRejected("unknown", "unknown", "invalid signature")
		h.logger.Warn("Webhook signature mismatch",
			zap.String("remote_addr", c.ClientIP()))
		h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, "Invalid webhook signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.ingestor.RecordRejected("unknown", "unknown", "malformed payload")
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Malformed webhook payload")
		return
	}

	if err := h.ingestor.Handle(c.Request.Context(), payload.Subsystem, payload.Action); err != nil {
		// Still ack: the notification was authenticated and logged, and
		// the scheduled backstop covers anything we could not act on.
		h.logger.Warn("Webhook not actionable",
			zap.String("subsystem", payload.Subsystem),
			zap.String("action", payload.Action),
			zap.Error(err))
	}

	h.Success(c, gin.H{"received": true})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
