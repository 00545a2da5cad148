package cache

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// RedisConfig describes how to reach Redis. More than one address selects a
// cluster client, MasterName a sentinel client.
type RedisConfig struct {
	Addrs        []string
	MasterName   string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	DialTimeout  time.Duration
}

type RedisOption func(*RedisConfig)

func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addrs:        []string{"localhost:6379"},
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
		DialTimeout:  5 * time.Second,
	}
}

func (c RedisConfig) validate() error {
	if len(c.Addrs) == 0 {
		return errors.New("redis: at least one address is required")
	}
	if c.PoolSize <= 0 {
		return errors.New("redis: pool size must be positive")
	}
	return nil
}

// WithRedisAddr points the client at a single host:port. Empty host keeps
// the default.
func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		if host == "" {
			return
		}
		if port <= 0 {
			port = 6379
		}
		c.Addrs = []string{net.JoinHostPort(host, strconv.Itoa(port))}
	}
}

// WithRedisAddrs replaces the address list; empty input is ignored.
func WithRedisAddrs(addrs ...string) RedisOption {
	return func(c *RedisConfig) {
		if len(addrs) > 0 {
			c.Addrs = append([]string(nil), addrs...)
		}
	}
}

func WithRedisSentinel(masterName string) RedisOption {
	return func(c *RedisConfig) { c.MasterName = masterName }
}

func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) { c.Password, c.DB = password, db }
}

// WithRedisPool sets pool sizing. Zero values keep the defaults.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if poolSize > 0 {
			c.PoolSize = poolSize
		}
		if minIdleConns > 0 {
			c.MinIdleConns = minIdleConns
		}
		if timeout > 0 {
			c.PoolTimeout = timeout
			c.DialTimeout = timeout
		}
	}
}

type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
	Now             func() time.Time
}

type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}

// WithMemoryCleanup sets the expiry sweep interval; zero disables the sweeper.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) { c.Now = now }
}

type LayeredConfig struct {
	MemoryMaxSize int
	// L1TTL bounds how long a value read from L2 is served from memory.
	L1TTL time.Duration
}

type LayeredOption func(*LayeredConfig)

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) {
		if size > 0 {
			c.MemoryMaxSize = size
		}
	}
}

func WithLayeredL1TTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if ttl > 0 {
			c.L1TTL = ttl
		}
	}
}
