package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"FinFolio/pkg/logger"
)

type regenPayload struct {
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
}

type recordingJob struct {
	got *regenPayload
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "test.recording" }
func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	p, err := ParsePayload[regenPayload](payload)
	if err != nil {
		return err
	}
	j.got = p
	return nil
}

func TestParsePayload(t *testing.T) {
	want := regenPayload{RequestID: "r1", Kind: "ASSET"}

	if p, err := ParsePayload[regenPayload](want); err != nil || *p != want {
		t.Fatalf("struct payload: %v %+v", err, p)
	}
	if p, err := ParsePayload[regenPayload](&want); err != nil || *p != want {
		t.Fatalf("pointer payload: %v %+v", err, p)
	}
	m := map[string]interface{}{"request_id": "r1", "kind": "ASSET"}
	if p, err := ParsePayload[regenPayload](m); err != nil || *p != want {
		t.Fatalf("map payload: %v %+v", err, p)
	}
	raw, _ := json.Marshal(want)
	if p, err := ParsePayload[regenPayload](json.RawMessage(raw)); err != nil || *p != want {
		t.Fatalf("raw payload: %v %+v", err, p)
	}
	if _, err := ParsePayload[regenPayload](42); err == nil {
		t.Fatal("expected error for int payload")
	}
}

func TestProcessMessageDispatchesByType(t *testing.T) {
	q := NewRedisQueue(logger.Nop(), nil, nil)
	job := &recordingJob{}
	q.RegisterJob(job)
	q.RegisterJob(&recordingJob{})

	raw, _ := json.Marshal(regenPayload{RequestID: "r9", Kind: "PORTFOLIO"})
	b, _ := json.Marshal(Message{ID: "1", Type: job.Type(), Payload: raw})
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	q.processMessage(context.Background(), msg)
	if job.got == nil || job.got.RequestID != "r9" {
		t.Fatalf("job did not receive payload: %+v", job.got)
	}
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	q := NewRedisQueue(logger.Nop(), nil, nil, WithKeyPrefix("test:queue"))
	q.RegisterJob(&recordingJob{})
	if err := q.PublishMessage(context.Background(), "test.recording", nil); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("want ErrNotRunning, got %v", err)
	}
	if q.queueKey() != "test:queue:messages" || q.retryKey() != "test:queue:retry" || q.deadLetterKey() != "test:queue:dlq" {
		t.Fatalf("unexpected keys %s %s %s", q.queueKey(), q.retryKey(), q.deadLetterKey())
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("stop idle queue: %v", err)
	}
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	cfg := QueueConfig{RetryDelay: time.Second, MaxDelay: 5 * time.Second}
	cfg.applyDefaults()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := cfg.backoff(i + 1); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestDefaults(t *testing.T) {
	q := NewRedisQueue(nil, &QueueConfig{Workers: -1}, nil)
	if q.config.Workers != 1 || q.config.RetryDelay != 10*time.Second || q.config.DeadLetterMax != 1000 {
		t.Fatalf("defaults not applied: %+v", q.config)
	}
}
