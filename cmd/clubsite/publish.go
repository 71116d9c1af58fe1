package main

import (
	"fmt"

	"github.com/danmuck/clubsite/internal/publish"
	"github.com/spf13/cobra"
)

func newPublishCmd(a *app) *cobra.Command {
	var dryRun bool
	var bucket string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a static copy of the API and assets to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Publish
			if bucket != "" {
				cfg.Bucket = bucket
			}
			p, err := publish.NewAWS(cmd.Context(), cfg, a.loader, a.resolver, a.logger)
			if err != nil {
				return err
			}
			report, err := p.Publish(cmd.Context(), dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			verb := "uploaded"
			if report.DryRun {
				verb = "would upload"
			}
			for _, obj := range report.Objects {
				fmt.Fprintf(out, "%s s3://%s/%s (%s, %d bytes)\n", verb, report.Bucket, obj.Key, obj.ContentType, obj.Size)
			}
			if report.InvalidationID != "" {
				fmt.Fprintf(out, "invalidation %s created\n", report.InvalidationID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the objects without uploading")
	cmd.Flags().StringVar(&bucket, "bucket", "", "override the configured bucket")
	return cmd
}
