package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/treenet/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("config: invalid")

// PeerFile is the on-disk peer configuration. Durations are Go duration
// strings ("2s", "500ms"); an empty max_wait is derived from the ticks.
type PeerFile struct {
	Listen      string   `toml:"listen"`
	Root        string   `toml:"root"`
	IsRoot      bool     `toml:"is_root"`
	AdminAddr   string   `toml:"admin_addr"`
	AdminToken  string   `toml:"admin_token"`
	CorsOrigins []string `toml:"cors_origins"`

	EngineTick string `toml:"engine_tick"`
	DaemonTick string `toml:"daemon_tick"`
	MaxDepth   int    `toml:"max_depth"`
	MaxWait    string `toml:"max_wait"`

	DialTimeout        string `toml:"dial_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	MaxBodyBytes       uint32 `toml:"max_body_bytes"`
}

func DefaultPeerFile() PeerFile {
	return PeerFile{
		Listen:             "127.0.0.1:7001",
		Root:               "127.0.0.1:7000",
		CorsOrigins:        []string{"http://localhost:3000"},
		EngineTick:         "2s",
		DaemonTick:         "4s",
		MaxDepth:           8,
		DialTimeout:        "3s",
		WriteTimeout:       "3s",
		MaxConnectAttempts: 5,
		MaxBodyBytes:       64 * 1024,
	}
}

// Load reads and validates a peer config file.
func Load(path string) (PeerFile, error) {
	cfg := DefaultPeerFile()
	data, err := os.ReadFile(path)
	if err != nil {
		return PeerFile{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return PeerFile{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return PeerFile{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks addresses, durations and bounds.
func Validate(cfg PeerFile) error {
	listen, err := protocol.ParseHostPort(strings.TrimSpace(cfg.Listen))
	if err != nil {
		return fmt.Errorf("%w: listen: %v", ErrInvalid, err)
	}
	if root := strings.TrimSpace(cfg.Root); root != "" {
		rootAddr, err := protocol.ParseHostPort(root)
		if err != nil {
			return fmt.Errorf("%w: root: %v", ErrInvalid, err)
		}
		if cfg.IsRoot && rootAddr != listen {
			return fmt.Errorf("%w: is_root set but root %s differs from listen %s", ErrInvalid, rootAddr, listen)
		}
		if !cfg.IsRoot && rootAddr == listen {
			return fmt.Errorf("%w: root %s equals listen; set is_root to run as the root", ErrInvalid, rootAddr)
		}
	} else if !cfg.IsRoot {
		return fmt.Errorf("%w: root is required unless is_root is set", ErrInvalid)
	}

	durations := []struct {
		key      string
		value    string
		optional bool
	}{
		{"engine_tick", cfg.EngineTick, false},
		{"daemon_tick", cfg.DaemonTick, false},
		{"max_wait", cfg.MaxWait, true},
		{"dial_timeout", cfg.DialTimeout, false},
		{"write_timeout", cfg.WriteTimeout, false},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.value) == "" && d.optional {
			continue
		}
		if _, err := parsePositiveDuration(d.key, d.value); err != nil {
			return err
		}
	}

	if cfg.MaxDepth < 1 {
		return fmt.Errorf("%w: max_depth must be at least 1", ErrInvalid)
	}
	if cfg.MaxConnectAttempts < 1 {
		return fmt.Errorf("%w: max_connect_attempts must be at least 1", ErrInvalid)
	}
	if cfg.MaxBodyBytes < 64 {
		return fmt.Errorf("%w: max_body_bytes must be at least 64", ErrInvalid)
	}
	return nil
}

func parsePositiveDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalid, key)
	}
	return d, nil
}
