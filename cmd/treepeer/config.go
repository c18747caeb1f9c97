package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/treenet/internal/config"
)

// fileConfig mirrors config.PeerFile for BurntSushi decoding so that only
// keys present in the file override defaults.
type fileConfig struct {
	Listen             string   `toml:"listen"`
	Root               string   `toml:"root"`
	IsRoot             bool     `toml:"is_root"`
	AdminAddr          string   `toml:"admin_addr"`
	AdminToken         string   `toml:"admin_token"`
	CorsOrigins        []string `toml:"cors_origins"`
	EngineTick         string   `toml:"engine_tick"`
	DaemonTick         string   `toml:"daemon_tick"`
	MaxDepth           int      `toml:"max_depth"`
	MaxWait            string   `toml:"max_wait"`
	DialTimeout        string   `toml:"dial_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`
	MaxBodyBytes       uint32   `toml:"max_body_bytes"`
}

func loadPeerFile(path string) (config.PeerFile, error) {
	cfg := config.DefaultPeerFile()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.PeerFile{}, fmt.Errorf("load peer config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.PeerFile{}, fmt.Errorf("load peer config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("root") {
		cfg.Root = strings.TrimSpace(raw.Root)
	}
	if meta.IsDefined("is_root") {
		cfg.IsRoot = raw.IsRoot
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("engine_tick") {
		cfg.EngineTick = strings.TrimSpace(raw.EngineTick)
	}
	if meta.IsDefined("daemon_tick") {
		cfg.DaemonTick = strings.TrimSpace(raw.DaemonTick)
	}
	if meta.IsDefined("max_depth") {
		cfg.MaxDepth = raw.MaxDepth
	}
	if meta.IsDefined("max_wait") {
		cfg.MaxWait = strings.TrimSpace(raw.MaxWait)
	}
	if meta.IsDefined("dial_timeout") {
		cfg.DialTimeout = strings.TrimSpace(raw.DialTimeout)
	}
	if meta.IsDefined("write_timeout") {
		cfg.WriteTimeout = strings.TrimSpace(raw.WriteTimeout)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("max_body_bytes") {
		cfg.MaxBodyBytes = raw.MaxBodyBytes
	}
	return cfg, nil
}

// cliFlags holds command-line overrides; only flags the user set apply.
type cliFlags struct {
	configPath string
	listen     string
	root       string
	isRoot     bool
	adminAddr  string
}

func parseFlags(fs *flag.FlagSet, args []string) (cliFlags, map[string]bool, error) {
	var f cliFlags
	fs.StringVar(&f.configPath, "config", "", "peer config path (TOML)")
	fs.StringVar(&f.listen, "listen", "", "this peer's ip:port")
	fs.StringVar(&f.root, "root", "", "root peer ip:port")
	fs.BoolVar(&f.isRoot, "is-root", false, "run as the root; root defaults to listen")
	fs.StringVar(&f.adminAddr, "admin", "", "admin HTTP listen address (empty disables)")
	if err := fs.Parse(args); err != nil {
		return cliFlags{}, nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

func applyFlags(cfg config.PeerFile, f cliFlags, set map[string]bool) config.PeerFile {
	if set["listen"] {
		cfg.Listen = strings.TrimSpace(f.listen)
	}
	if set["root"] {
		cfg.Root = strings.TrimSpace(f.root)
	}
	if set["is-root"] {
		cfg.IsRoot = f.isRoot
		if f.isRoot && !set["root"] {
			cfg.Root = cfg.Listen
		}
	}
	if set["admin"] {
		cfg.AdminAddr = strings.TrimSpace(f.adminAddr)
	}
	return cfg
}
