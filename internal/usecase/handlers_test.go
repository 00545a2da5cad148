package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"FinFolio/internal/domain/models"
)

type memAudit struct {
	events []*models.OperationEvent
	err    error
}

func (a *memAudit) AppendOperations(_ context.Context, evts []*models.OperationEvent) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, evts...)
	return nil
}

func (a *memAudit) QueryOperations(context.Context, string, time.Time, time.Time, int) ([]models.OperationRecord, error) {
	return nil, nil
}

func TestKafkaOperationsHandler(t *testing.T) {
	audit := &memAudit{}
	h := NewKafkaOperationsHandler("ops", audit, newMetrics())
	if h.Topic() != "ops" {
		t.Fatalf("unexpected topic %s", h.Topic())
	}
	b, _ := json.Marshal(models.OperationEvent{Operation: models.OperationRecord{ID: "o1", PortfolioID: "p1", Symbol: "AAPL", CreatedAt: time.Now()}})
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(audit.events) != 1 || audit.events[0].Operation.ID != "o1" {
		t.Fatalf("event not appended: %+v", audit.events)
	}
	if err := h.Handle(context.Background(), []byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := h.Handle(context.Background(), []byte(`{"operation":{}}`)); err == nil {
		t.Fatalf("expected error for event without id")
	}
	audit.err = errors.New("clickhouse down")
	if err := h.Handle(context.Background(), b); err == nil {
		t.Fatalf("store errors must be returned for retry")
	}
}

func TestKafkaPricesHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Main"})
	_, _ = f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "AAPL", "2", "100"))

	h := NewKafkaPricesHandler("prices", f.uc, f.metrics, nil)
	b, _ := json.Marshal(models.Quote{Symbol: "AAPL", Price: 125, Timestamp: time.Now()})
	if err := h.Handle(ctx, b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	v, _ := f.uc.GetPortfolio(ctx, p.ID)
	if v.Snapshot.TotalValue.String() != "250" {
		t.Fatalf("unexpected total value %s", v.Snapshot.TotalValue)
	}
	if err := h.Handle(ctx, []byte(`{"symbol":"AAPL","price":0}`)); err != nil {
		t.Fatalf("invalid quotes are dropped, got %v", err)
	}
}

type fakeStream struct {
	mu         sync.Mutex
	sessions   int
	reconnects int
	trades     []*models.Trade
}

func (s *fakeStream) Connect(context.Context) error   { return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }
func (s *fakeStream) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	s.mu.Lock()
	s.sessions++
	first := s.sessions == 1
	s.mu.Unlock()

	tr := make(chan *models.Trade, len(s.trades))
	errs := make(chan error, 1)
	if first {
		for _, t := range s.trades {
			tr <- t
		}
		go func() {
			time.Sleep(20 * time.Millisecond)
			errs <- errors.New("connection reset")
		}()
	}
	return tr, errs
}
func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}
func (s *fakeStream) Close() error      { return nil }
func (s *fakeStream) IsConnected() bool { return true }

func TestQuoteCollectorThrottlesAndReconnects(t *testing.T) {
	stream := &fakeStream{trades: []*models.Trade{
		{Symbol: "aapl", Price: 1, Timestamp: 1},
		{Symbol: "AAPL", Price: 2, Timestamp: 2},
		{Symbol: "MSFT", Price: 3, Timestamp: 3},
	}}
	pub := &recordingPublisher{}
	c := NewQuoteCollector(stream, pub, time.Hour, newMetrics(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		stream.mu.Lock()
		reconnected := stream.reconnects > 0
		stream.mu.Unlock()
		if reconnected {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("collector did not reconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.quotes) != 2 {
		t.Fatalf("expected one quote per symbol, got %d", len(pub.quotes))
	}
	if pub.quotes[0].Symbol != "AAPL" || pub.quotes[0].Price != 1 {
		t.Fatalf("unexpected first quote %+v", pub.quotes[0])
	}
}
