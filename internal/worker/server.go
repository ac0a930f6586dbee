package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/downsize/internal/config"
	"github.com/dunamismax/downsize/internal/domain"
	"github.com/dunamismax/downsize/internal/pipeline"
	"github.com/dunamismax/downsize/internal/queue"
	"github.com/dunamismax/downsize/internal/store"
	"github.com/dunamismax/downsize/internal/telemetry"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Server consumes downsize tasks from the queue. Each task is one file; the
// processor it is given should hold a cross-process path lock when several
// workers share an output directory.
type Server struct {
	logger    *log.Logger
	server    *asynq.Server
	processor *pipeline.Processor
	results   store.ResultStore
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	processor *pipeline.Processor,
	results store.ResultStore,
	metrics *telemetry.Metrics,
) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if results == nil {
		results = store.NewMemoryResultStore()
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: max(1, workerCfg.Concurrency),
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		processor: processor,
		results:   results,
		metrics:   metrics,
		tracer:    otel.Tracer("downsize/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeDownsizeImage, s.handleDownsizeImage)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

// Handler serves /metrics and /healthz for the worker's side listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleDownsizeImage(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseDownsizeImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.downsize_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("run.id", payload.RunID),
		attribute.String("image.input", payload.InputPath),
	)
	defer span.End()

	s.logger.Printf("Working... run_id=%s input=%s bound=%s", payload.RunID, payload.InputPath, payload.Bound)

	out, err := s.processor.Process(ctx, pipeline.Request{
		RunID:     payload.RunID,
		InputPath: payload.InputPath,
		Bound:     payload.Bound,
		Output:    payload.Output,
	})

	result := domain.FileResult{
		RunID:      payload.RunID,
		InputPath:  payload.InputPath,
		OutputPath: out.OutputPath,
		Format:     out.Format,
		Source:     out.Source,
		Target:     out.Target,
		Bytes:      out.Bytes,
		CreatedAt:  time.Now().UTC(),
	}
	switch {
	case err != nil:
		result.Status = domain.StatusFailed
		result.Error = err.Error()
	case out.Resized:
		result.Status = domain.StatusResized
	default:
		result.Status = domain.StatusWithinBounds
	}
	if recErr := s.results.Record(context.WithoutCancel(ctx), result); recErr != nil {
		s.logger.Printf("ledger write failed run_id=%s input=%s err=%v", payload.RunID, payload.InputPath, recErr)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "downsize failed")
		if permanent(err) {
			return fmt.Errorf("downsize %s: %w: %w", payload.InputPath, err, asynq.SkipRetry)
		}
		return fmt.Errorf("downsize %s: %w", payload.InputPath, err)
	}

	s.logger.Printf("Processed run_id=%s input=%s status=%s", payload.RunID, payload.InputPath, result.Status)
	span.SetStatus(codes.Ok, result.Status)
	return nil
}

// permanent reports failures a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrDestinationExists) ||
		errors.Is(err, domain.ErrInvalidFormat) ||
		errors.Is(err, domain.ErrInvalidBound)
}
