// Package finnhub streams realtime trades from the Finnhub WebSocket API.
package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"FinFolio/internal/domain/models"
	drepo "FinFolio/internal/domain/repository"
	applogger "FinFolio/pkg/logger"
	xutil "FinFolio/pkg/util"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("finnhub: not connected")

type Config struct {
	APIKey  string
	URL     string
	Symbols []string
	// ReconnectDelay is the first retry delay; it doubles per failed attempt
	// up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	HandshakeTimeout  time.Duration
	// Buffer is the trade channel capacity. Trades are dropped when it is full.
	Buffer int
}

func (c *Config) applyDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = 30 * c.ReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
}

// Client implements MarketStream over one WebSocket connection at a time.
type Client struct {
	cfg     Config
	symbols []string
	dialer  *websocket.Dialer
	l       *applogger.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	attempts int

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex
}

func New(cfg Config, l *applogger.Logger) *Client {
	if l == nil {
		l = applogger.Nop()
	}
	cfg.applyDefaults()
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if s = xutil.NormalizeSymbol(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return &Client{
		cfg:     cfg,
		symbols: symbols,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		l:       l.With(applogger.String("stream", "finnhub")),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.l.Info("finnhub connected", applogger.Int("symbols", len(c.symbols)))
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Subscribe registers every configured symbol and resets the reconnect
// backoff.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
		defer conn.SetWriteDeadline(time.Time{})
	}
	for _, s := range c.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	c.l.Info("finnhub subscribed", applogger.Strings("symbols", c.symbols))
	return nil
}

type frame struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		Volume float64 `json:"v"`
		TimeMS int64   `json:"t"`
	} `json:"data"`
}

// decodeTrades extracts trades from a frame. Pings, subscription acks and
// malformed frames yield nothing.
func decodeTrades(b []byte) []*models.Trade {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil || f.Type != "trade" {
		return nil
	}
	out := make([]*models.Trade, 0, len(f.Data))
	for _, d := range f.Data {
		if d.Symbol == "" || d.Price <= 0 {
			continue
		}
		out = append(out, &models.Trade{Symbol: d.Symbol, Timestamp: d.TimeMS / 1000, Price: d.Price, Volume: d.Volume})
	}
	return out
}

// Read streams trades of the current connection. Both channels close when
// the connection fails or ctx ends; a failure is reported on errs first.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, c.cfg.Buffer)
	errs := make(chan error, 1)

	conn := c.current()
	if conn == nil {
		errs <- ErrNotConnected
		close(trades)
		close(errs)
		return trades, errs
	}

	done := make(chan struct{})
	go c.keepAlive(ctx, conn, done)

	go func() {
		defer close(errs)
		defer close(trades)
		defer close(done)
		dropped := 0
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				if dropped > 0 {
					c.l.Warn("finnhub trades dropped", applogger.Int("count", dropped))
				}
				return
			}
			for _, tr := range decodeTrades(b) {
				select {
				case trades <- tr:
				default:
					dropped++
				}
			}
		}
	}()
	return trades, errs
}

// keepAlive pings until the read loop ends, and closes the connection when
// ctx is cancelled so a blocked ReadMessage returns.
func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-done:
			return
		case <-t.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.l.Debug("finnhub ping failed", applogger.Error(err))
			}
		}
	}
}

// backoff returns the delay before the next reconnect attempt.
func (c *Client) backoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.cfg.ReconnectDelay
	for i := 0; i < c.attempts && d < c.cfg.MaxReconnectDelay; i++ {
		d *= 2
	}
	if d > c.cfg.MaxReconnectDelay {
		d = c.cfg.MaxReconnectDelay
	}
	c.attempts++
	return d
}

// Reconnect drops the connection, waits out the backoff, then dials and
// subscribes again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	delay := c.backoff()
	c.l.Info("finnhub reconnecting", applogger.Duration("delay_ms", delay))
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) IsConnected() bool {
	return c.current() != nil
}

var _ drepo.MarketStream = (*Client)(nil)
