package main

import (
	"fmt"

	"github.com/danmuck/clubsite/internal/assets"
	"github.com/danmuck/clubsite/internal/config"
	"github.com/danmuck/clubsite/internal/dataset"
	"github.com/danmuck/clubsite/internal/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string

	cfg      config.Config
	loader   *dataset.Loader
	resolver *assets.Resolver
	logger   zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "clubsite",
		Short: "Read-only content API for the club website",
		Long: `clubsite serves the members, events and timeline datasets and the
site's image assets over HTTP, validates the data directory, and publishes
a static copy of the API to S3.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "TOML config file (defaults and environment when empty)")

	root.AddCommand(newServeCmd(a), newValidateCmd(a), newPublishCmd(a))
	return root
}

func (a *app) init() error {
	a.logger = observability.InitLogger("clubsite")

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	resolver, err := assets.NewResolver(cfg.AssetRoots)
	if err != nil {
		return fmt.Errorf("asset roots: %w", err)
	}
	a.cfg = cfg
	a.loader = dataset.NewLoader(cfg.DataDir)
	a.resolver = resolver
	return nil
}
