package main

import (
	"flag"
	"log"

	"github.com/danmuck/treenet/internal/config"
)

func main() {
	kind := flag.String("kind", "peer", "config kind: root|peer")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
		if _, err := config.Resolve(cfg); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "root":
		return "cmd/treepeer/root.toml"
	case "peer":
		return "cmd/treepeer/peer.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
