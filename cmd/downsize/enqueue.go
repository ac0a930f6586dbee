package main

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/dunamismax/downsize/internal/config"
	"github.com/dunamismax/downsize/internal/id"
	"github.com/dunamismax/downsize/internal/pipeline"
	"github.com/dunamismax/downsize/internal/queue"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

func newEnqueueCmd(logger *log.Logger, flags *resizeFlags) *cobra.Command {
	return &cobra.Command{
		Use:           "enqueue <folder>",
		Short:         "Queue every image in a folder for the worker",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			dir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			candidates, unsupported, err := pipeline.ListCandidates(dir)
			if err != nil {
				return err
			}
			for _, path := range unsupported {
				logger.Printf("skipping unsupported input=%s", path)
			}

			client := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
			defer func() {
				if err := client.Close(); err != nil {
					logger.Printf("queue client close error: %v", err)
				}
			}()

			runID := id.New()
			payloads, err := downsizePayloads(runID, candidates, cfg, time.Now().UTC())
			if err != nil {
				return err
			}

			enqueued := 0
			for _, payload := range payloads {
				info, err := client.EnqueueDownsizeImage(cmd.Context(), payload)
				if errors.Is(err, asynq.ErrTaskIDConflict) {
					continue
				}
				if err != nil {
					return fmt.Errorf("enqueue %s: %w", payload.InputPath, err)
				}
				logger.Printf("enqueued task_id=%s input=%s", info.ID, payload.InputPath)
				enqueued++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d image(s) run_id=%s\n", enqueued, runID)
			return nil
		},
	}
}

// downsizePayloads builds one task per candidate. Workers resolve paths in
// their own working directory, so a relative output folder is made absolute
// here, against the directory enqueue was run from.
func downsizePayloads(runID string, candidates []string, cfg config.Config, requestedAt time.Time) ([]queue.DownsizeImagePayload, error) {
	spec := cfg.Resize.OutputSpec()
	if spec.Dir != "" {
		dir, err := filepath.Abs(spec.Dir)
		if err != nil {
			return nil, fmt.Errorf("resolve output dir %s: %w", spec.Dir, err)
		}
		spec.Dir = dir
	}

	payloads := make([]queue.DownsizeImagePayload, 0, len(candidates))
	for _, path := range candidates {
		payloads = append(payloads, queue.DownsizeImagePayload{
			RunID:       runID,
			InputPath:   path,
			Bound:       cfg.Resize.Bound(),
			Output:      spec,
			RequestedAt: requestedAt,
		})
	}
	return payloads, nil
}
