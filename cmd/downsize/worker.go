package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/downsize/internal/pathlock"
	"github.com/dunamismax/downsize/internal/pipeline"
	"github.com/dunamismax/downsize/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newWorkerCmd(logger *log.Logger, flags *resizeFlags) *cobra.Command {
	return &cobra.Command{
		Use:           "worker",
		Short:         "Process queued images",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			workerLogger := log.New(logger.Writer(), "[worker] ", logger.Flags())

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Queue.RedisAddr,
				Password: cfg.Queue.RedisPassword,
				DB:       cfg.Queue.RedisDB,
			})
			defer rdb.Close()

			locker, err := pathlock.NewRedis(rdb, "downsize:lock", cfg.Worker.LockTTL)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, cfg, workerLogger, pipeline.WithLocker(locker))
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			srv, err := worker.NewServer(workerLogger, cfg.Queue, cfg.Worker, a.processor, a.results, a.metrics)
			if err != nil {
				return err
			}

			metricsServer := &http.Server{
				Addr:              cfg.Worker.MetricsAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				workerLogger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					workerLogger.Printf("metrics server failed: %v", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsServer.Shutdown(shutdownCtx)
			}()

			workerLogger.Printf(
				"starting worker concurrency=%d queue=%s redis=%s",
				cfg.Worker.Concurrency,
				cfg.Queue.Name,
				cfg.Queue.RedisAddr,
			)
			if err := srv.Run(); err != nil {
				return fmt.Errorf("worker failed: %w", err)
			}
			return nil
		},
	}
}
