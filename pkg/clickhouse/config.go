package clickhouse

import (
	"errors"
	"time"
)

// ClientConfig holds connection settings. Zero values fall back to
// defaultClientConfig.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseHTTP  bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxExecTime  time.Duration

	AsyncInsert  bool
	WaitForAsync bool
}

type ClientOption func(*ClientConfig)

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:            9000,
		Database:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

func (c ClientConfig) validate() error {
	switch {
	case c.Host == "":
		return errors.New("clickhouse: host is required")
	case c.MaxIdleConns > c.MaxOpenConns:
		return errors.New("clickhouse: max idle connections exceed max open")
	}
	return nil
}

// WithHost sets the server host.
func WithHost(host string) ClientOption { return func(c *ClientConfig) { c.Host = host } }

// WithPort ignores non-positive ports.
func WithPort(port int) ClientOption {
	return func(c *ClientConfig) {
		if port > 0 {
			c.Port = port
		}
	}
}

// WithDatabase ignores an empty name.
func WithDatabase(name string) ClientOption {
	return func(c *ClientConfig) {
		if name != "" {
			c.Database = name
		}
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) { c.User, c.Password = user, password }
}

// WithMaxConnections sizes the pool; non-positive values keep the default.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.MaxIdleConns = maxIdle
		}
	}
}

// WithTimeouts overrides dial, read and write timeouts that are set.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) {
		setPositive(&c.DialTimeout, dial)
		setPositive(&c.ReadTimeout, read)
		setPositive(&c.WriteTimeout, write)
	}
}

func setPositive(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// WithHTTP switches from the native protocol to the HTTP interface.
func WithHTTP(on bool) ClientOption { return func(c *ClientConfig) { c.UseHTTP = on } }

// WithAsyncInsert enables server-side insert buffering. wait makes the
// server acknowledge only after the buffer is flushed.
func WithAsyncInsert(on, wait bool) ClientOption {
	return func(c *ClientConfig) { c.AsyncInsert, c.WaitForAsync = on, on && wait }
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
