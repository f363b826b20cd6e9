package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// Signature verification errors.
var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// WebhookHandler receives gateway notifications.
type WebhookHandler struct {
	reconciler *Reconciler
	secret     string
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler. An empty secret disables
// signature verification.
func NewWebhookHandler(reconciler *Reconciler, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		reconciler: reconciler,
		secret:     secret,
		logger:     logger.Named("webhook"),
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/mercadopago", h.HandleMercadoPago)
}

// HandleMercadoPago reconciles a MercadoPago notification. It always answers
// 200 so the sender does not retry.
//
//	@Summary	MercadoPago webhook
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	WebhookAck
//	@Router		/v1/webhooks/mercadopago [post]
func (h *WebhookHandler) HandleMercadoPago(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusOK, WebhookAck{OK: true})
		return
	}

	if h.secret != "" {
		err := VerifySignature(
			h.secret,
			c.GetHeader("X-Signature"),
			c.GetHeader("X-Request-ID"),
			c.Query("data.id"),
		)
		if err != nil {
			h.logger.Warn("webhook rejected", zap.Error(err))
			h.reconciler.Reject(c.Request.Context(), payload, err)
			c.JSON(http.StatusOK, WebhookAck{OK: true})
			return
		}
	}

	h.reconciler.Reconcile(c.Request.Context(), payload)
	c.JSON(http.StatusOK, WebhookAck{OK: true})
}

// VerifySignature checks a MercadoPago x-signature header of the form
// "ts=<unix>,v1=<hex hmac>". The signed manifest is
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;" with absent parts omitted.
func VerifySignature(secret, header, requestID, dataID string) error {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = io.WriteString(mac, signatureManifest(dataID, requestID, ts))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(v1)
	if err != nil || !hmac.Equal(got, expected) {
		return ErrInvalidSignature
	}
	return nil
}

func signatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}
