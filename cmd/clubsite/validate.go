package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/clubsite/internal/audit"
	"github.com/danmuck/clubsite/internal/dataset"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 300 * time.Millisecond

var errInvalidData = errors.New("data directory has validation errors")

func newValidateCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every dataset and the member images it references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := a.validate(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if watch {
				return a.watch(cmd.Context(), cmd.OutOrStdout())
			}
			if !ok {
				return errInvalidData
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate whenever a file in the data directory changes")
	return cmd
}

func (a *app) validate(ctx context.Context, out io.Writer) (bool, error) {
	report, err := audit.Run(ctx, a.loader, a.resolver)
	if err != nil {
		return false, err
	}
	for _, name := range dataset.Names() {
		if n, ok := report.Records[name]; ok {
			fmt.Fprintf(out, "ok    %-8s %d records\n", name, n)
		}
	}
	for _, f := range report.Findings {
		fmt.Fprintf(out, "FAIL  %s\n", f)
	}
	return report.OK(), nil
}

func (a *app) watch(ctx context.Context, out io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	dir, err := filepath.Abs(a.loader.Dir())
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	a.logger.Info().Str("dir", dir).Msg("watching data directory")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				a.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("change detected")
				pending = time.After(watchDebounce)
			}
		case <-pending:
			pending = nil
			fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
			if _, err := a.validate(ctx, out); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				a.logger.Error().Err(err).Msg("validate failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
