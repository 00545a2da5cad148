// Package queue runs background jobs from a Redis list with delayed retries
// and a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService enqueues work for a registered job type.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Job handles messages of one type.
type Job interface {
	Name() string
	Type() string
	// Handle returning an error schedules a retry until RetryLimit is reached.
	Handle(ctx context.Context, payload interface{}) error
}

// QueueConfig contains the configuration for the queue.
type QueueConfig struct {
	Workers    int
	RetryLimit int
	// RetryDelay is the first retry delay. Later retries double it.
	RetryDelay time.Duration
	MaxDelay   time.Duration
	// PollInterval is how often due retries are moved back to the queue.
	PollInterval time.Duration
	// DeadLetterMax caps the dead-letter list; older entries are trimmed.
	DeadLetterMax int64
}

func (c *QueueConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.DeadLetterMax <= 0 {
		c.DeadLetterMax = 1000
	}
}

// backoff returns the delay before the given retry attempt (1-based).
func (c *QueueConfig) backoff(attempt int) time.Duration {
	d := c.RetryDelay
	for i := 1; i < attempt && d < c.MaxDelay; i++ {
		d *= 2
	}
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Message is the envelope stored in Redis.
type Message struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
	Enqueued time.Time       `json:"enqueued_at"`
	LastErr  string          `json:"last_error,omitempty"`
}

// Stats reports queue depths.
type Stats struct {
	Pending    int64 `json:"pending"`
	Retrying   int64 `json:"retrying"`
	DeadLetter int64 `json:"dead_letter"`
}

// ParsePayload converts a job payload into T. Payloads read from Redis are
// json.RawMessage; in-process callers may pass T, *T or a decoded map.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &result, nil
	case []byte:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode map payload: %w", err)
		}
		if err := json.Unmarshal(b, &result); err != nil {
			return nil, fmt.Errorf("decode map payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
