package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	pkgkafka "FinFolio/pkg/kafka"
	applogger "FinFolio/pkg/logger"
)

// KafkaOperationsHandler appends committed operation events to the audit log.
type KafkaOperationsHandler struct {
	topic   string
	audit   domrepo.OperationAudit
	metrics domrepo.Metrics
}

func NewKafkaOperationsHandler(topic string, audit domrepo.OperationAudit, metrics domrepo.Metrics) *KafkaOperationsHandler {
	return &KafkaOperationsHandler{topic: topic, audit: audit, metrics: metrics}
}

func (h *KafkaOperationsHandler) Topic() string { return h.topic }

func (h *KafkaOperationsHandler) Handle(ctx context.Context, b []byte) error {
	var evt models.OperationEvent
	if err := json.Unmarshal(b, &evt); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode operation event: %w", err)
	}
	if evt.Operation.ID == "" || evt.Operation.PortfolioID == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("operation event without id")
	}
	h.metrics.RecordLatency("operation_event_lag_seconds", time.Since(evt.Operation.CreatedAt).Seconds())

	start := time.Now()
	err := h.audit.AppendOperations(ctx, []*models.OperationEvent{&evt})
	h.metrics.RecordLatency("audit_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", evt.Operation.Symbol)
	return nil
}

// KafkaPricesHandler applies realtime quotes to every portfolio holding the symbol.
type KafkaPricesHandler struct {
	topic      string
	portfolios *PortfolioUseCase
	metrics    domrepo.Metrics
	l          *applogger.Logger
}

func NewKafkaPricesHandler(topic string, portfolios *PortfolioUseCase, metrics domrepo.Metrics, l *applogger.Logger) *KafkaPricesHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaPricesHandler{topic: topic, portfolios: portfolios, metrics: metrics, l: l}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	var q models.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode quote: %w", err)
	}
	if q.Symbol == "" || q.Price <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return nil
	}
	if !q.Timestamp.IsZero() {
		h.metrics.RecordLatency("quote_lag_seconds", time.Since(q.Timestamp).Seconds())
	}
	n, err := h.portfolios.ApplyQuote(ctx, &q)
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordLastPrice(q.Symbol, q.Price)
	if n > 0 {
		h.l.Debug("quote applied", applogger.String("symbol", q.Symbol), applogger.Int("portfolios", n))
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaOperationsHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)
)
