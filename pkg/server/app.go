package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinFolio/pkg/config"
	xhttp "FinFolio/pkg/http"
	pkgkafka "FinFolio/pkg/kafka"
	applogger "FinFolio/pkg/logger"
)

// Runner is a background component with its own lifecycle, such as the
// quote collector or the job queue.
type Runner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type closer struct {
	name string
	fn   func() error
}

// Option configures App.
type Option func(*App)

// WithConsumer starts the Kafka consumer with the application.
func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

// WithRunner adds a background component. Runners start after the consumer
// and stop before it.
func WithRunner(name string, r Runner) Option {
	return func(a *App) {
		if r != nil {
			a.runners = append(a.runners, namedRunner{name: name, r: r})
		}
	}
}

// WithCloser registers a resource closed last, in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, closer{name: name, fn: fn})
		}
	}
}

// WithServerOptions appends options for the HTTP server.
func WithServerOptions(opts ...xhttp.ServerOption) Option {
	return func(a *App) { a.serverOpts = append(a.serverOpts, opts...) }
}

type namedRunner struct {
	name string
	r    Runner
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	handler    xhttp.Handler
	consumer   *pkgkafka.Consumer
	runners    []namedRunner
	closers    []closer
	serverOpts []xhttp.ServerOption
	httpServer *xhttp.Server
}

// New creates a new App serving handler over HTTP.
func New(cfg *config.Config, l *applogger.Logger, handler xhttp.Handler, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{cfg: cfg, l: l, handler: handler}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started")
	}

	for _, nr := range a.runners {
		nr := nr
		go func() {
			if err := nr.r.Start(runCtx); err != nil && runCtx.Err() == nil {
				a.l.Error("runner stopped", applogger.String("runner", nr.name), applogger.Error(err))
			}
		}()
		a.l.Info("runner started", applogger.String("runner", nr.name))
	}

	opts := []xhttp.ServerOption{
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(a.cfg.Server.SlowThreshold),
		xhttp.WithLogger(a.l),
	}
	if a.cfg.Server.AllowedOrigins != nil {
		opts = append(opts, xhttp.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...))
	}
	opts = append(opts, a.serverOpts...)
	a.httpServer = xhttp.NewServer(a.handler, opts...)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		cancel()
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	cancel()
	a.shutdown()
	return nil
}

// shutdown stops intake first (HTTP, runners, consumer) and then closes the
// shared clients those components write to.
func (a *App) shutdown() {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	for i := len(a.runners) - 1; i >= 0; i-- {
		nr := a.runners[i]
		if err := nr.r.Shutdown(ctx); err != nil {
			a.l.Warn("runner stop error", applogger.String("runner", nr.name), applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
}
