package main

import (
	"context"
	"log"
	"time"

	"github.com/dunamismax/downsize/internal/id"
	"github.com/dunamismax/downsize/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(logger *log.Logger, flags *resizeFlags) *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:           "watch <folder>",
		Short:         "Downsize images as they are added to a folder",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			watchLogger := log.New(logger.Writer(), "[watch] ", logger.Flags())
			a, err := newApp(ctx, cfg, watchLogger)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			batch := a.newBatch(nil)
			bound, spec := cfg.Resize.Bound(), cfg.Resize.OutputSpec()
			runID := id.New()

			w, err := watch.New(args[0], func(ctx context.Context, path string) {
				summary, err := batch.RunFile(ctx, runID, path, bound, spec)
				if err != nil {
					watchLogger.Printf("failed input=%s err=%v", path, err)
					return
				}
				if summary.Resized > 0 {
					watchLogger.Printf("resized input=%s output=%s", path, summary.Outcomes[0].OutputPath)
				}
			}, watch.WithSettle(settle), watch.WithLogger(watchLogger))
			if err != nil {
				return err
			}

			watchLogger.Printf("run_id=%s bound=%s", runID, bound)
			return w.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", watch.DefaultSettle, "quiet period before a new file is processed")
	return cmd
}
