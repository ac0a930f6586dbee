package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dunamismax/downsize/internal/id"
	"github.com/dunamismax/downsize/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRootCmd(logger *log.Logger) *cobra.Command {
	var (
		flags    resizeFlags
		failFast bool
		jobs     int
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "downsize <file|folder>",
		Short: "Shrink images so they fit inside a bounding box",
		Long: strings.TrimSpace(`
Downsize every jpg, jpeg, png and bmp image directly inside a folder (or a
single image) so that it fits within the given width and height, keeping the
aspect ratio. Images that already fit are left alone and never upscaled.

By default the resized image replaces nothing: unless --overwrite is given the
output path must not exist, so use --append, --format or --output to write
next to the originals.
`),
		Example: strings.TrimSpace(`
  downsize ./photos --append _small
  downsize ./photos -s 1280 720 -f jpg -o ./web
  downsize scan.png --overwrite
`),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fail-fast") {
				cfg.Resize.FailFast = failFast
			}
			if cmd.Flags().Changed("jobs") {
				cfg.Resize.Concurrency = max(1, jobs)
			}

			target := args[0]
			info, err := os.Stat(target)
			if err != nil {
				return fmt.Errorf("input: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			var bar pipeline.Progress
			if progress {
				bar = newProgressBar(cmd.ErrOrStderr())
			}
			batch := a.newBatch(bar)

			bound, spec := cfg.Resize.Bound(), cfg.Resize.OutputSpec()
			runID := id.New()
			logger.Printf("run_id=%s path=%s bound=%s", runID, target, bound)

			var summary pipeline.Summary
			if info.IsDir() {
				summary, err = batch.Run(ctx, runID, target, bound, spec)
			} else {
				summary, err = batch.RunFile(ctx, runID, target, bound, spec)
			}
			a.finish(context.WithoutCancel(ctx), summary)

			logger.Printf("run_id=%s %s duration=%s", runID, summary, summary.Duration)
			if err != nil {
				return err
			}
			if failed := summary.Err(); failed != nil {
				return failed
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Done! %d image(s) resized.\n", summary.Resized)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first file that fails")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "number of images processed in parallel")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar")

	cmd.AddCommand(
		newWatchCmd(logger, &flags),
		newEnqueueCmd(logger, &flags),
		newWorkerCmd(logger, &flags),
	)
	return cmd
}
