package peer

import (
	"time"

	"github.com/danmuck/treenet/internal/protocol"
	"github.com/danmuck/treenet/internal/topology"
)

// Config defines engine timing and identity.
type Config struct {
	Self protocol.Address
	Root protocol.Address

	EngineTick time.Duration
	DaemonTick time.Duration
	MaxDepth   int
	// MaxWait bounds one heartbeat round trip. Zero derives it from the
	// other timings.
	MaxWait time.Duration

	// InboxSize bounds the delivered-message history kept for Status.
	InboxSize int
	// CommandQueueSize bounds commands waiting for the next engine tick.
	CommandQueueSize int
}

func DefaultConfig() Config {
	return Config{
		EngineTick:       2 * time.Second,
		DaemonTick:       4 * time.Second,
		MaxDepth:         topology.DefaultMaxDepth,
		InboxSize:        64,
		CommandQueueSize: 256,
	}
}

// WithDefaults fills zero fields and derives MaxWait when unset.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.EngineTick <= 0 {
		c.EngineTick = d.EngineTick
	}
	if c.DaemonTick <= 0 {
		c.DaemonTick = d.DaemonTick
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DeriveMaxWait(c.EngineTick, c.DaemonTick, c.MaxDepth)
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = d.CommandQueueSize
	}
	return c
}

// IsRoot reports whether this peer is the well-known root.
func (c Config) IsRoot() bool {
	return c.Self == c.Root
}

// DeriveMaxWait covers a round trip through the deepest permitted tree, one
// engine tick per hop each way, plus one daemon tick of slack.
func DeriveMaxWait(engineTick, daemonTick time.Duration, maxDepth int) time.Duration {
	return 2*engineTick*time.Duration(maxDepth) + daemonTick
}
