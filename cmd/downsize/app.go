package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dunamismax/downsize/internal/codec"
	"github.com/dunamismax/downsize/internal/config"
	"github.com/dunamismax/downsize/internal/pipeline"
	"github.com/dunamismax/downsize/internal/storage"
	"github.com/dunamismax/downsize/internal/store"
	"github.com/dunamismax/downsize/internal/telemetry"
	"github.com/dunamismax/downsize/internal/webhook"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg       config.Config
	logger    *log.Logger
	metrics   *telemetry.Metrics
	results   store.ResultStore
	processor *pipeline.Processor
	notifier  *webhook.Notifier
	closers   []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger, extra ...pipeline.Option) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: telemetry.NewMetrics(),
		notifier: webhook.NewNotifier(webhook.Config{
			URL:           cfg.Notify.WebhookURL,
			SigningSecret: cfg.Notify.WebhookSecret,
			MaxAttempts:   cfg.Notify.MaxAttempts,
		}),
	}
	defer func() {
		if err != nil {
			a.close(context.WithoutCancel(ctx))
		}
	}()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "downsize",
		Exporter:     cfg.Telemetry.TraceExporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresResultStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open run ledger: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pg.Close() })
		a.results = pg
	} else {
		a.results = store.NewMemoryResultStore()
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.metrics),
	}
	if cfg.Storage.Enabled() {
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create object store client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("prepare bucket %s: %w", cfg.Storage.Bucket, err)
		}
		logger.Printf("mirroring outputs bucket=%s prefix=%s", cfg.Storage.Bucket, cfg.Storage.Prefix)
		opts = append(opts, pipeline.WithPublisher(storage.NewMirror(client, cfg.Storage.Prefix)))
	}
	opts = append(opts, extra...)

	if err := codec.Startup(); err != nil {
		return nil, fmt.Errorf("start codec runtime: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { codec.Shutdown(); return nil })

	c, err := codec.New(codec.Options{
		JPEGQuality: cfg.Resize.JPEGQuality,
		AutoOrient:  cfg.Resize.AutoOrient,
	})
	if err != nil {
		return nil, fmt.Errorf("build codec: %w", err)
	}
	a.processor = pipeline.NewProcessor(c, opts...)
	return a, nil
}

func (a *app) newBatch(progress pipeline.Progress) *pipeline.Batch {
	opts := []pipeline.BatchOption{
		pipeline.WithResultStore(a.results),
		pipeline.WithBatchMetrics(a.metrics),
		pipeline.WithBatchLogger(a.logger),
		pipeline.WithConcurrency(a.cfg.Resize.Concurrency),
		pipeline.WithFailFast(a.cfg.Resize.FailFast),
	}
	if progress != nil {
		opts = append(opts, pipeline.WithProgress(progress))
	}
	return pipeline.NewBatch(a.processor, opts...)
}

// pushMetrics sends the run's metrics to the configured Pushgateway, if any.
func (a *app) pushMetrics(ctx context.Context) {
	url := a.cfg.Telemetry.PushgatewayURL
	if url == "" {
		return
	}
	if err := a.metrics.Push(ctx, url, "downsize"); err != nil {
		a.logger.Printf("metrics push failed url=%s err=%v", url, err)
	}
}

// finish pushes metrics and posts the run report, if either is configured.
func (a *app) finish(ctx context.Context, summary pipeline.Summary) {
	a.pushMetrics(ctx)
	if !a.notifier.Enabled() {
		return
	}

	report := webhook.RunReport{
		RunID:        summary.RunID,
		Path:         summary.Path,
		Resized:      summary.Resized,
		WithinBounds: summary.WithinBounds,
		Failed:       summary.Failed,
		Unsupported:  len(summary.Unsupported),
		DurationMS:   summary.Duration.Milliseconds(),
		FinishedAt:   time.Now().UTC(),
	}
	for _, f := range summary.Failures {
		report.Errors = append(report.Errors, f.Path+": "+f.Err.Error())
	}
	if err := a.notifier.Notify(ctx, report); err != nil {
		a.logger.Printf("run report failed run_id=%s err=%v", summary.RunID, err)
	}
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Printf("shutdown error: %v", err)
		}
	}
	a.closers = nil
}
