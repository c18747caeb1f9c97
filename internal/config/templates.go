package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Template renders a starter config. kind is "root" or "peer".
func Template(kind string) (string, error) {
	cfg := DefaultPeerFile()
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "root":
		cfg.IsRoot = true
		cfg.Listen = cfg.Root
		cfg.AdminAddr = "127.0.0.1:9000"
	case "peer":
		cfg.AdminAddr = "127.0.0.1:9001"
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return string(out), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
