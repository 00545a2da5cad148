package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Value is sent raw when it is []byte or
// string and JSON encoded otherwise.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

// Producer wraps a kafka-go writer.
type Producer struct {
	writer      *kafka.Writer
	compression string
	metrics     *producerMetrics
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}
	return &Producer{
		writer:      newWriter(cfg),
		compression: cfg.Compression,
		metrics:     defaultProducerMetrics(),
	}, nil
}

func newWriter(cfg *ProducerConfig) *kafka.Writer {
	comp, _ := parseCompression(cfg.Compression)
	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  comp,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
}

// encodeValue returns the payload and its content type.
func encodeValue(value interface{}) ([]byte, string, error) {
	switch v := value.(type) {
	case []byte:
		return v, "application/octet-stream", nil
	case string:
		return []byte(v), "text/plain", nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, "", fmt.Errorf("marshal value: %w", err)
	}
	return b, "application/json", nil
}

func toKafkaMessage(topic string, m Message, at time.Time) (kafka.Message, error) {
	value, contentType, err := encodeValue(m.Value)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := make([]kafka.Header, 0, len(m.Headers)+1)
	headers = append(headers, kafka.Header{Key: "content-type", Value: []byte(contentType)})
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{Topic: topic, Key: m.Key, Value: value, Headers: headers, Time: at}, nil
}

// Publish sends one keyed message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage sends an unkeyed message, which makes the producer usable as
// the log collector's publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	out := make([]kafka.Message, len(messages))
	var size int
	for i, m := range messages {
		km, err := toKafkaMessage(topic, m, start.UTC())
		if err != nil {
			return err
		}
		out[i] = km
		size += len(km.Value)
	}

	err := p.writer.WriteMessages(ctx, out...)
	p.metrics.observe(topic, p.compression, len(out), size, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	sharedProducerMetrics *producerMetrics
	producerMetricsOnce   sync.Once
)

func defaultProducerMetrics() *producerMetrics {
	producerMetricsOnce.Do(func() {
		sharedProducerMetrics = newProducerMetrics(prometheus.DefaultRegisterer)
	})
	return sharedProducerMetrics
}

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	f := promauto.With(reg)
	return &producerMetrics{
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finfolio_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result",
		}, []string{"topic", "compression", "result"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finfolio_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic", "compression"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finfolio_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *producerMetrics) observe(topic, compression string, count, size int, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, compression, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, compression).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
