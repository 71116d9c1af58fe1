package main

import (
	"flag"
	"log"

	"github.com/danmuck/clubsite/internal/config"
)

const defaultPath = "clubsite.toml"

func main() {
	kind := flag.String("kind", "server", "config kind: server|publish")
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		if *kind == "publish" && cfg.Publish.Bucket == "" {
			log.Fatalf("publish config at %s has no bucket", *input)
		}
		log.Printf("Validated %s config at %s", *kind, *input)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
