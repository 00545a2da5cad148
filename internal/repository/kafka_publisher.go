package repository

import (
	"context"
	"fmt"

	"FinFolio/internal/domain/models"
	pkgkafka "FinFolio/pkg/kafka"
)

// batchPublisher is the subset of pkg/kafka.Producer used here.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaOperationPublisher emits committed operations keyed by portfolio id, so
// one portfolio's events stay ordered within a partition. Quotes are keyed by
// symbol.
type KafkaOperationPublisher struct {
	p               batchPublisher
	operationsTopic string
	pricesTopic     string
}

func NewKafkaOperationPublisher(p batchPublisher, operationsTopic, pricesTopic string) *KafkaOperationPublisher {
	return &KafkaOperationPublisher{p: p, operationsTopic: operationsTopic, pricesTopic: pricesTopic}
}

func (k *KafkaOperationPublisher) PublishOperation(ctx context.Context, evt *models.OperationEvent) error {
	msg := pkgkafka.Message{
		Key:     []byte(evt.Operation.PortfolioID),
		Value:   evt,
		Headers: map[string]string{"event": "operation", "operation_type": string(evt.Operation.Type)},
	}
	if err := k.p.PublishBatch(ctx, k.operationsTopic, []pkgkafka.Message{msg}); err != nil {
		return fmt.Errorf("publish operation %s: %w", evt.Operation.ID, err)
	}
	return nil
}

func (k *KafkaOperationPublisher) PublishQuote(ctx context.Context, q *models.Quote) error {
	msg := pkgkafka.Message{Key: []byte(q.Symbol), Value: q, Headers: map[string]string{"event": "quote"}}
	if err := k.p.PublishBatch(ctx, k.pricesTopic, []pkgkafka.Message{msg}); err != nil {
		return fmt.Errorf("publish quote %s: %w", q.Symbol, err)
	}
	return nil
}

func (k *KafkaOperationPublisher) Close() error { return k.p.Close() }

// NoopPublisher drops events when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishOperation(context.Context, *models.OperationEvent) error { return nil }
func (NoopPublisher) PublishQuote(context.Context, *models.Quote) error             { return nil }
func (NoopPublisher) Close() error                                                  { return nil }
