package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		TimeFormat string `yaml:"time_format"`
		Collector  struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic"`
			FlushInterval  time.Duration `yaml:"flush_interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
		AllowedOrigins  []string      `yaml:"allowed_origins"` // nil allows any origin, [] disables CORS
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Storage struct {
		Backend    string `yaml:"backend"` // memory | redis
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"storage"`
	Redis struct {
		Host       string        `yaml:"host"`
		Port       int           `yaml:"port"`
		Addrs      []string      `yaml:"addrs"`
		MasterName string        `yaml:"master_name"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		Prefix     string        `yaml:"prefix"`
		PoolSize   int           `yaml:"pool_size"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Operations string `yaml:"operations"`
			Prices     string `yaml:"prices"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	MarketData struct {
		BaseURL     string        `yaml:"base_url"`
		APIKey      string        `yaml:"api_key"`
		Timeout     time.Duration `yaml:"timeout"`
		HistoryBars int           `yaml:"history_bars"`
		MinHistory  int           `yaml:"min_history"`
		// RequestsPerMinute throttles upstream calls; 0 disables throttling.
		RequestsPerMinute int `yaml:"requests_per_minute"`
	} `yaml:"market_data"`
	Finnhub struct {
		Enabled           bool          `yaml:"enabled"`
		APIKey            string        `yaml:"api_key"`
		WebSocketURL      string        `yaml:"websocket_url"`
		Symbols           []string      `yaml:"symbols"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
		MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
		PingInterval      time.Duration `yaml:"ping_interval"`
		PublishInterval   time.Duration `yaml:"publish_interval"`
	} `yaml:"finnhub"`
	Analysis struct {
		CacheBackend   string        `yaml:"cache_backend"` // memory | redis | layered
		CacheTTL       time.Duration `yaml:"cache_ttl"`
		MemoryMaxSize  int           `yaml:"memory_max_size"`
		ContextBars    int           `yaml:"context_bars"`
		RefreshPrices  bool          `yaml:"refresh_prices"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		LockWait       time.Duration `yaml:"lock_wait"`
		RateLimit      struct {
			Burst     float64 `yaml:"burst"`
			PerSecond float64 `yaml:"per_second"`
		} `yaml:"rate_limit"`
		Gemini struct {
			APIKey string `yaml:"api_key"`
			Model  string `yaml:"model"`
		} `yaml:"gemini"`
		Queue struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers"`
			RetryLimit int           `yaml:"retry_limit"`
			RetryDelay time.Duration `yaml:"retry_delay"`
		} `yaml:"queue"`
	} `yaml:"analysis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs after the overrides so secrets may come from the environment only.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyDefaults()
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.Analysis.Gemini.APIKey = v
	}
	if v := getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Finnhub.Symbols = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
}

// ApplyDefaults fills zero values with the service defaults.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Log.Collector.Topic == "" {
		c.Log.Collector.Topic = "finfolio.logs"
	}
	if c.Log.Collector.FlushInterval == 0 {
		c.Log.Collector.FlushInterval = 30 * time.Second
	}
	if c.Log.Collector.CountThreshold == 0 {
		c.Log.Collector.CountThreshold = 100
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.MaxRetries == 0 {
		c.Storage.MaxRetries = 5
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "finfolio"
	}
	if c.Kafka.Topics.Operations == "" {
		c.Kafka.Topics.Operations = "finfolio.operations"
	}
	if c.Kafka.Topics.Prices == "" {
		c.Kafka.Topics.Prices = "finfolio.prices"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "finfolio"
	}
	if c.MarketData.HistoryBars == 0 {
		c.MarketData.HistoryBars = 100
	}
	if c.MarketData.MinHistory == 0 {
		c.MarketData.MinHistory = 30
	}
	if c.MarketData.Timeout == 0 {
		c.MarketData.Timeout = 10 * time.Second
	}
	if c.Finnhub.PublishInterval == 0 {
		c.Finnhub.PublishInterval = 5 * time.Second
	}
	if c.Analysis.CacheBackend == "" {
		c.Analysis.CacheBackend = "memory"
	}
	if c.Analysis.CacheTTL == 0 {
		c.Analysis.CacheTTL = 24 * time.Hour
	}
	if c.Analysis.MemoryMaxSize == 0 {
		c.Analysis.MemoryMaxSize = 1000
	}
	if c.Analysis.ContextBars == 0 {
		c.Analysis.ContextBars = 30
	}
	if c.Analysis.RequestTimeout == 0 {
		c.Analysis.RequestTimeout = 60 * time.Second
	}
	if c.Analysis.LockWait == 0 {
		c.Analysis.LockWait = 5 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Storage.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("storage.backend must be 'memory' or 'redis', got '%s'", c.Storage.Backend)
	}
	switch c.Analysis.CacheBackend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("analysis.cache_backend must be 'memory', 'redis' or 'layered', got '%s'", c.Analysis.CacheBackend)
	}
	if c.NeedsRedis() && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required when redis is used")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Log.Collector.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log.collector requires kafka to be enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Finnhub.Enabled {
		if len(c.Finnhub.Symbols) == 0 {
			return fmt.Errorf("finnhub.symbols cannot be empty")
		}
		if c.Finnhub.APIKey == "" {
			return fmt.Errorf("finnhub.api_key is required")
		}
		if !c.Kafka.Enabled {
			return fmt.Errorf("finnhub requires kafka to be enabled")
		}
	}
	if c.MarketData.MinHistory > c.MarketData.HistoryBars {
		return fmt.Errorf("market_data.min_history (%d) exceeds history_bars (%d)", c.MarketData.MinHistory, c.MarketData.HistoryBars)
	}
	return nil
}

// NeedsRedis reports whether any configured component requires a Redis connection.
func (c *Config) NeedsRedis() bool {
	return c.Storage.Backend == "redis" ||
		c.Analysis.CacheBackend == "redis" ||
		c.Analysis.CacheBackend == "layered" ||
		c.Analysis.Queue.Enabled
}
