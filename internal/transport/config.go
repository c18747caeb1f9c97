package transport

import (
	"time"

	"github.com/danmuck/treenet/internal/protocol/frame"
)

// BackoffConfig defines redial backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection registry limits and timeouts.
type Config struct {
	// ListenAddr is the host:port the registry accepts neighbor connections on.
	ListenAddr         string
	DialTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	// InboundCapacity bounds frames buffered between two drains.
	InboundCapacity int
	Limits          frame.Limits
	Backoff         BackoffConfig
	// FlushInterval is the engine tick; it caps the redial delay.
	FlushInterval time.Duration
	// Node labels metrics.
	Node string
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		MaxConnectAttempts: 5,
		InboundCapacity:    4096,
		Limits:             frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 200 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = d.MaxConnectAttempts
	}
	if c.InboundCapacity <= 0 {
		c.InboundCapacity = d.InboundCapacity
	}
	if c.Limits.MaxBodyBytes == 0 {
		c.Limits = d.Limits
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	if c.Node == "" {
		c.Node = c.ListenAddr
	}
	return c
}
