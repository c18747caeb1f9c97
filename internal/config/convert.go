package config

import (
	"strings"

	"github.com/danmuck/treenet/internal/admin"
	"github.com/danmuck/treenet/internal/peer"
	"github.com/danmuck/treenet/internal/protocol"
	"github.com/danmuck/treenet/internal/protocol/frame"
	"github.com/danmuck/treenet/internal/transport"
)

// Settings is a validated PeerFile split into per-component configs.
type Settings struct {
	Peer      peer.Config
	Transport transport.Config
	Admin     admin.Config
}

// Resolve validates cfg and converts it into component configs.
func Resolve(cfg PeerFile) (Settings, error) {
	if err := Validate(cfg); err != nil {
		return Settings{}, err
	}
	self, _ := protocol.ParseHostPort(strings.TrimSpace(cfg.Listen))
	root := self
	if r := strings.TrimSpace(cfg.Root); r != "" {
		root, _ = protocol.ParseHostPort(r)
	}

	engineTick, _ := parsePositiveDuration("engine_tick", cfg.EngineTick)
	daemonTick, _ := parsePositiveDuration("daemon_tick", cfg.DaemonTick)
	dialTimeout, _ := parsePositiveDuration("dial_timeout", cfg.DialTimeout)
	writeTimeout, _ := parsePositiveDuration("write_timeout", cfg.WriteTimeout)

	peerCfg := peer.Config{
		Self:       self,
		Root:       root,
		EngineTick: engineTick,
		DaemonTick: daemonTick,
		MaxDepth:   cfg.MaxDepth,
	}
	if strings.TrimSpace(cfg.MaxWait) != "" {
		peerCfg.MaxWait, _ = parsePositiveDuration("max_wait", cfg.MaxWait)
	}

	transportCfg := transport.DefaultConfig()
	transportCfg.ListenAddr = self.HostPort()
	transportCfg.Node = self.String()
	transportCfg.DialTimeout = dialTimeout
	transportCfg.WriteTimeout = writeTimeout
	transportCfg.MaxConnectAttempts = cfg.MaxConnectAttempts
	transportCfg.Limits = frame.Limits{MaxBodyBytes: cfg.MaxBodyBytes}
	transportCfg.FlushInterval = engineTick

	return Settings{
		Peer:      peerCfg.WithDefaults(),
		Transport: transportCfg.WithDefaults(),
		Admin: admin.Config{
			Addr:        strings.TrimSpace(cfg.AdminAddr),
			Node:        self.String(),
			CorsOrigins: cfg.CorsOrigins,
			Token:       strings.TrimSpace(cfg.AdminToken),
		},
	}, nil
}
