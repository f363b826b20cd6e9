package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/payflow/server/internal/module/payment/entity"
	"github.com/payflow/server/internal/shared/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// SignalPublisher hands a confirmation signal to the orchestrator run
// awaiting it, if any.
type SignalPublisher interface {
	Publish(ctx context.Context, signal domain.Signal) error
}

// Webhook reconciliation results.
const (
	ResultApplied          = "applied"
	ResultAlreadyTerminal  = "already_terminal"
	ResultUnmatched        = "unmatched"
	ResultUnknownPayment   = "unknown_payment"
	ResultStoreError       = "store_error"
	ResultInvalidSignature = "invalid_signature"
)

// extractionRule reads a payment identifier from a parsed webhook body.
type extractionRule struct {
	name string
	path []string
}

// Identifier rules, evaluated in order; the first present value wins.
var extractionRules = []extractionRule{
	{name: "data.id", path: []string{"data", "id"}},
	{name: "external_reference", path: []string{"external_reference"}},
	{name: "resource.id", path: []string{"resource", "id"}},
	{name: "id", path: []string{"id"}},
}

// Notification is the normalized form of an inbound gateway webhook.
type Notification struct {
	PaymentID   string
	MatchedRule string
	RawStatus   string
	Status      domain.Status
}

// ParseNotification extracts the payment id and status from a webhook body.
// ok is false when no identifier could be resolved.
func ParseNotification(payload []byte) (n Notification, ok bool) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return Notification{}, false
	}

	for _, rule := range extractionRules {
		if id := lookupID(body, rule.path); id != "" {
			n.PaymentID = id
			n.MatchedRule = rule.name
			break
		}
	}
	if n.PaymentID == "" {
		return Notification{}, false
	}

	n.RawStatus = lookupString(body, "status")
	if n.RawStatus == "" {
		if data, isMap := body["data"].(map[string]any); isMap {
			n.RawStatus = lookupString(data, "status")
		}
	}
	n.Status = MapGatewayStatus(n.RawStatus)
	return n, true
}

// MapGatewayStatus maps the gateway's coarse status onto a terminal status.
func MapGatewayStatus(raw string) domain.Status {
	if strings.EqualFold(strings.TrimSpace(raw), "approved") {
		return domain.StatusPaid
	}
	return domain.StatusFailed
}

func lookupID(body map[string]any, path []string) string {
	var cur any = body
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	switch v := cur.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func lookupString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Reconciler applies gateway webhooks to the payment store and forwards
// them to the confirmation runs.
type Reconciler struct {
	repo      Repository
	publisher SignalPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewReconciler creates a new webhook reconciler.
func NewReconciler(repo Repository, publisher SignalPublisher, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("reconciler"),
	}
}

// Reconcile applies one webhook body. It never fails: every outcome is
// reported as a result label and recorded in the webhook event log.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte) string {
	n, ok := ParseNotification(payload)
	if !ok {
		r.logger.Info("webhook without resolvable payment id ignored")
		r.finish(ctx, payload, n, ResultUnmatched, nil)
		return ResultUnmatched
	}

	log := r.logger.With(
		zap.String("payment_id", n.PaymentID),
		zap.String("rule", n.MatchedRule),
		zap.String("status", string(n.Status)),
	)

	applied, err := r.repo.TransitionStatus(ctx, n.PaymentID, n.Status)
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		log.Info("webhook for unknown payment ignored")
		r.finish(ctx, payload, n, ResultUnknownPayment, nil)
		return ResultUnknownPayment
	case err != nil:
		// The signal is still published; the run re-checks the store.
		log.Error("failed to apply webhook status", zap.Error(err))
	}

	if r.publisher != nil {
		if perr := r.publisher.Publish(ctx, domain.NewSignal(n.PaymentID, n.Status)); perr != nil {
			log.Warn("failed to publish confirmation signal", zap.Error(perr))
		}
	}

	result := ResultAlreadyTerminal
	switch {
	case err != nil:
		result = ResultStoreError
	case applied:
		result = ResultApplied
		log.Info("payment status reconciled from webhook")
	default:
		log.Debug("webhook for terminal payment accepted without change")
	}
	r.finish(ctx, payload, n, result, err)
	return result
}

// Reject records a webhook that failed authentication without applying it.
func (r *Reconciler) Reject(ctx context.Context, payload []byte, cause error) {
	r.finish(ctx, payload, Notification{}, ResultInvalidSignature, cause)
}

func (r *Reconciler) finish(ctx context.Context, payload []byte, n Notification, result string, cause error) {
	r.metrics.RecordWebhook(result)
	r.record(ctx, payload, n, result, cause)
}

func (r *Reconciler) record(ctx context.Context, payload []byte, n Notification, result string, cause error) {
	sum := sha256.Sum256(payload)
	event := &entity.WebhookEventEntity{
		PayloadHash: hex.EncodeToString(sum[:]),
		PaymentID:   n.PaymentID,
		MatchedRule: n.MatchedRule,
		Status:      string(n.Status),
		Result:      result,
		ReceivedAt:  time.Now().UTC(),
	}
	if json.Valid(payload) {
		event.Payload = datatypes.JSON(payload)
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if err := r.repo.RecordWebhookEvent(ctx, event); err != nil {
		r.logger.Warn("failed to record webhook event", zap.Error(err))
	}
}
