package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"FinFolio/internal/domain/models"
	drepo "FinFolio/internal/domain/repository"
	"FinFolio/internal/service/ratelimit"
	applogger "FinFolio/pkg/logger"
)

var errStreamClosed = errors.New("market stream closed")

// QuoteCollector turns the realtime trade stream into throttled per-symbol
// quotes published to the prices topic.
type QuoteCollector struct {
	stream    drepo.MarketStream
	publisher drepo.OperationPublisher
	limiter   *ratelimit.Limiter
	interval  time.Duration
	metrics   drepo.Metrics
	l         *applogger.Logger
}

// NewQuoteCollector publishes at most one quote per symbol per interval.
func NewQuoteCollector(stream drepo.MarketStream, publisher drepo.OperationPublisher, interval time.Duration, metrics drepo.Metrics, l *applogger.Logger) *QuoteCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &QuoteCollector{
		stream:    stream,
		publisher: publisher,
		limiter:   ratelimit.New(),
		interval:  interval,
		metrics:   metrics,
		l:         l,
	}
}

func (c *QuoteCollector) IsConnected() bool { return c.stream.IsConnected() }

func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// run reads until the stream fails, then reconnects and reads again.
func (c *QuoteCollector) run(ctx context.Context) {
	for {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.l.Warn("market stream interrupted, reconnecting", applogger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.l.Error("market stream reconnect failed", applogger.Error(rerr))
		}
	}
}

// consume drains one read session and returns the error that ended it.
func (c *QuoteCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case t, ok := <-trCh:
			if !ok {
				return errStreamClosed
			}
			if t != nil {
				c.handle(ctx, t)
			}
		}
	}
}

func (c *QuoteCollector) handle(ctx context.Context, t *models.Trade) {
	symbol := strings.ToUpper(t.Symbol)
	c.metrics.RecordLastPrice(symbol, t.Price)
	if !c.limiter.Allow(symbol, 1, 1/c.interval.Seconds()) {
		return
	}
	q := &models.Quote{Symbol: symbol, Price: t.Price, Timestamp: time.Unix(t.Timestamp, 0).UTC()}
	if err := c.publisher.PublishQuote(ctx, q); err != nil {
		c.metrics.RecordError("publish_quote")
		c.l.Warn("publish quote failed", applogger.String("symbol", symbol), applogger.Error(err))
		return
	}
	c.metrics.RecordMessageSent("kafka", symbol)
}

// Shutdown closes the stream.
func (c *QuoteCollector) Shutdown(context.Context) error { return c.stream.Close() }
