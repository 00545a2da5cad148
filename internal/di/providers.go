package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FinFolio/internal/domain/repository"
	domsvc "FinFolio/internal/domain/service"
	"FinFolio/internal/handler/api"
	internalrepo "FinFolio/internal/repository"
	icache "FinFolio/internal/service/cache"
	"FinFolio/internal/service/finnhub"
	"FinFolio/internal/service/marketdata"
	"FinFolio/internal/service/narrative"
	"FinFolio/internal/usecase"
	pkgcache "FinFolio/pkg/cache"
	pkgch "FinFolio/pkg/clickhouse"
	"FinFolio/pkg/config"
	xhttp "FinFolio/pkg/http"
	pkgkafka "FinFolio/pkg/kafka"
	applogger "FinFolio/pkg/logger"
	"FinFolio/pkg/metrics"
	"FinFolio/pkg/queue"
	"FinFolio/pkg/server"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideRedisClient connects to Redis when the store, the cache or the job
// queue needs it. Returns nil otherwise.
func ProvideRedisClient(cfg *config.Config, l *applogger.Logger) (redis.UniversalClient, error) {
	if !cfg.NeedsRedis() {
		return nil, nil
	}
	client, err := pkgcache.NewRedisClient(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAddrs(cfg.Redis.Addrs...),
		pkgcache.WithRedisSentinel(cfg.Redis.MasterName),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 0, cfg.Redis.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	l.Info("redis connected",
		applogger.String("host", cfg.Redis.Host),
		applogger.Int("port", cfg.Redis.Port),
		applogger.Strings("addrs", cfg.Redis.Addrs),
	)
	return client, nil
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
// Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse schema ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer. Returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts, cfg.Kafka.Producer.Async),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePortfolioStore selects the portfolio store backend.
func ProvidePortfolioStore(cfg *config.Config, client redis.UniversalClient, l *applogger.Logger) domrepo.PortfolioStore {
	if cfg.Storage.Backend == "redis" {
		return internalrepo.NewRedisPortfolioStore(client, cfg.Redis.Prefix, cfg.Storage.MaxRetries, l)
	}
	return internalrepo.NewMemoryPortfolioStore()
}

// ProvideAnalysisCache selects the analysis cache backend and instruments it.
// Layered caches share L1 evictions over Redis pub/sub.
func ProvideAnalysisCache(cfg *config.Config, client redis.UniversalClient, m domrepo.Metrics) (icache.AnalysisCache, error) {
	prefix := cfg.Redis.Prefix + ":analysis"
	switch cfg.Analysis.CacheBackend {
	case "redis":
		return icache.NewInstrumented(icache.NewServiceAnalysisCache(pkgcache.NewRedisCache(client, prefix)), m), nil
	case "layered":
		lc := pkgcache.NewLayeredCache(
			pkgcache.NewRedisCache(client, prefix),
			pkgcache.WithLayeredMemorySize(cfg.Analysis.MemoryMaxSize),
			pkgcache.WithLayeredL1TTL(time.Minute),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lc.SubscribeInvalidations(ctx, pkgcache.NewRedisInvalidationBus(client, prefix+":invalidate")); err != nil {
			return nil, err
		}
		return icache.NewInstrumented(icache.NewServiceAnalysisCache(lc), m), nil
	}
	return icache.NewInstrumented(icache.NewMemoryAnalysisCache(icache.WithMaxEntries(cfg.Analysis.MemoryMaxSize)), m), nil
}

// ProvideOperationPublisher publishes operation events and quotes to Kafka, or
// drops them when Kafka is disabled.
func ProvideOperationPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.OperationPublisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaOperationPublisher(producer, cfg.Kafka.Topics.Operations, cfg.Kafka.Topics.Prices)
}

// ProvideMarketData creates the quote and bar provider client.
func ProvideMarketData(cfg *config.Config, l *applogger.Logger) *marketdata.Client {
	return marketdata.New(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, cfg.MarketData.Timeout, l,
		marketdata.WithRequestsPerMinute(cfg.MarketData.RequestsPerMinute))
}

// ProvidePriceStore returns the ClickHouse bar store, or nil when ClickHouse is
// disabled so history reads go straight to the provider.
func ProvidePriceStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) domrepo.PriceStore {
	if ch == nil {
		return nil
	}
	s := internalrepo.NewCHPriceStore(ch, cfg.ClickHouse.Database)
	s.SetLogger(l)
	return s
}

// ProvideOperationAudit returns the ClickHouse audit trail, or nil when
// ClickHouse is disabled.
func ProvideOperationAudit(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) domrepo.OperationAudit {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHOperationAudit(ch, cfg.ClickHouse.Database, l)
}

// ProvideAnalysisLog records generated analyses in ClickHouse, or in memory
// when ClickHouse is disabled.
func ProvideAnalysisLog(cfg *config.Config, ch *pkgch.Client) domrepo.AnalysisLog {
	if ch == nil {
		return internalrepo.NewMemoryAnalysisLog()
	}
	return internalrepo.NewCHAnalysisLog(ch, cfg.ClickHouse.Database)
}

// ProvideHistoryService creates the read-through price history.
func ProvideHistoryService(store domrepo.PriceStore, market *marketdata.Client, m domrepo.Metrics, l *applogger.Logger) *usecase.HistoryService {
	var md domsvc.MarketData
	if market != nil {
		md = market
	}
	return usecase.NewHistoryService(store, md, m, l)
}

// ProvideNarrativeGenerator creates the Gemini client. Without an API key the
// generator is disabled and every analysis fails with a narrative error.
func ProvideNarrativeGenerator(cfg *config.Config, l *applogger.Logger) (domsvc.NarrativeGenerator, error) {
	if cfg.Analysis.Gemini.APIKey == "" {
		l.Warn("gemini api key not set, narrative generation disabled")
		return narrative.Disabled{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, err := narrative.NewGemini(ctx, cfg.Analysis.Gemini.APIKey,
		narrative.WithModel(cfg.Analysis.Gemini.Model),
		narrative.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return g, nil
}

// ProvidePortfolioUseCase creates the portfolio ledger use case.
func ProvidePortfolioUseCase(
	store domrepo.PortfolioStore,
	c icache.AnalysisCache,
	pub domrepo.OperationPublisher,
	market *marketdata.Client,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.PortfolioUseCase {
	var quotes domsvc.QuoteProvider
	if market != nil {
		quotes = market
	}
	return usecase.NewPortfolioUseCase(store, c, pub, quotes, m, l)
}

// ProvideAnalysisUseCase creates the analysis use case.
func ProvideAnalysisUseCase(
	cfg *config.Config,
	c icache.AnalysisCache,
	history *usecase.HistoryService,
	store domrepo.PortfolioStore,
	portfolios *usecase.PortfolioUseCase,
	gen domsvc.NarrativeGenerator,
	log domrepo.AnalysisLog,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.AnalysisUseCase {
	ac := usecase.DefaultAnalysisConfig()
	ac.TTL = cfg.Analysis.CacheTTL
	ac.HistoryBars = cfg.MarketData.HistoryBars
	ac.MinHistory = cfg.MarketData.MinHistory
	ac.ContextBars = cfg.Analysis.ContextBars
	ac.RefreshPrices = cfg.Analysis.RefreshPrices
	ac.LockWait = cfg.Analysis.LockWait
	return usecase.NewAnalysisUseCase(ac, c, history, store, portfolios, gen, log, m, l)
}

// ProvideJobQueue creates the Redis regeneration queue and attaches it to the
// analysis use case. Returns nil when the queue is disabled, in which case
// regeneration runs in-process.
func ProvideJobQueue(cfg *config.Config, client redis.UniversalClient, analysis *usecase.AnalysisUseCase, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Analysis.Queue.Enabled {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Analysis.Queue.Workers,
		RetryLimit: cfg.Analysis.Queue.RetryLimit,
		RetryDelay: cfg.Analysis.Queue.RetryDelay,
	}, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(usecase.NewRegenerateJob(analysis))
	analysis.SetQueue(q)
	return q
}

// ProvideKafkaConsumer subscribes the audit and price handlers. Returns nil
// when Kafka is disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	l *applogger.Logger,
	audit domrepo.OperationAudit,
	portfolios *usecase.PortfolioUseCase,
	m domrepo.Metrics,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	if audit != nil {
		consumer.RegisterHandler(usecase.NewKafkaOperationsHandler(cfg.Kafka.Topics.Operations, audit, m))
	}
	consumer.RegisterHandler(usecase.NewKafkaPricesHandler(cfg.Kafka.Topics.Prices, portfolios, m, l))
	consumer.SetHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, _ kafkago.Message, _ error, final bool) {
			if final {
				m.RecordError("kafka_" + topic)
			}
		},
	})
	return consumer, nil
}

// ProvideQuoteCollector streams realtime quotes from Finnhub into the prices
// topic. Returns nil when Finnhub is disabled.
func ProvideQuoteCollector(cfg *config.Config, pub domrepo.OperationPublisher, m domrepo.Metrics, l *applogger.Logger) *usecase.QuoteCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	stream := finnhub.New(finnhub.Config{
		APIKey:            cfg.Finnhub.APIKey,
		URL:               cfg.Finnhub.WebSocketURL,
		Symbols:           cfg.Finnhub.Symbols,
		ReconnectDelay:    cfg.Finnhub.ReconnectDelay,
		MaxReconnectDelay: cfg.Finnhub.MaxReconnectDelay,
		PingInterval:      cfg.Finnhub.PingInterval,
	}, l)
	return usecase.NewQuoteCollector(stream, pub, cfg.Finnhub.PublishInterval, m, l)
}

// ProvideRouter builds the HTTP API with health probes for every enabled
// dependency.
func ProvideRouter(
	cfg *config.Config,
	l *applogger.Logger,
	portfolios *usecase.PortfolioUseCase,
	analysis *usecase.AnalysisUseCase,
	audit domrepo.OperationAudit,
	q *queue.RedisQueue,
	client redis.UniversalClient,
	ch *pkgch.Client,
) *api.Router {
	ph := api.NewPortfolioHandler(l, portfolios)
	if audit != nil {
		ph.SetAudit(audit)
	}
	ah := api.NewAnalysisHandler(l, analysis, api.RateLimit{
		Burst:     cfg.Analysis.RateLimit.Burst,
		PerSecond: cfg.Analysis.RateLimit.PerSecond,
	})
	r := api.NewRouter(ph, ah)
	if client != nil {
		r.AddHealthCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}
	if ch != nil {
		r.AddHealthCheck("clickhouse", ch.Health)
	}
	if q != nil {
		r.AddHealthCheck("queue", func(ctx context.Context) error {
			_, err := q.Stats(ctx)
			return err
		})
	}
	return r
}

// ProvideApp assembles the application and its shutdown order.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	router *api.Router,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	collector *usecase.QuoteCollector,
	pub domrepo.OperationPublisher,
	producer *pkgkafka.Producer,
	client redis.UniversalClient,
	ch *pkgch.Client,
) *server.App {
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.FlushInterval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			Topic:          cfg.Log.Collector.Topic,
			Service:        "finfolio-" + cfg.Environment,
			Publisher:      producer,
		})
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts := []server.Option{
		server.WithServerOptions(xhttp.WithMetricsPath(metricsPath)),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if q != nil {
		opts = append(opts, server.WithRunner("regenerate-queue", queueRunner{q: q}))
	}
	if collector != nil {
		opts = append(opts, server.WithRunner("quote-collector", collector))
	}

	// log collector flushes through the producer, so it closes first
	opts = append(opts, server.WithCloser("log-collector", func() error {
		l.RemoveCollector()
		return nil
	}))
	// closes the Kafka producer when one is configured
	opts = append(opts, server.WithCloser("publisher", pub.Close))
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	if client != nil {
		opts = append(opts, server.WithCloser("redis", client.Close))
	}
	return server.New(cfg, l, router, opts...)
}

// queueRunner adapts the job queue to the server runner lifecycle.
type queueRunner struct {
	q *queue.RedisQueue
}

func (r queueRunner) Start(context.Context) error        { return r.q.Start() }
func (r queueRunner) Shutdown(ctx context.Context) error { return r.q.Stop(ctx) }
