package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dunamismax/downsize/internal/domain"
	"github.com/dunamismax/downsize/internal/store"
	"github.com/dunamismax/downsize/internal/telemetry"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Progress is notified as a batch advances.
type Progress interface {
	Start(total int)
	Increment()
	Finish()
}

type FileFailure struct {
	Path string
	Err  error
}

type Summary struct {
	RunID        string
	Path         string
	Visited      int
	Resized      int
	WithinBounds int
	Failed       int
	Unsupported  []string
	Failures     []FileFailure
	Outcomes     []Outcome
	Aborted      bool
	Duration     time.Duration
}

// Err joins every per-file failure, or returns nil when none occurred.
func (s Summary) Err() error {
	var merr *multierror.Error
	for _, f := range s.Failures {
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return merr.ErrorOrNil()
}

func (s Summary) String() string {
	return fmt.Sprintf("resized=%d within_bounds=%d failed=%d unsupported=%d",
		s.Resized, s.WithinBounds, s.Failed, len(s.Unsupported))
}

type Batch struct {
	processor   *Processor
	results     store.ResultStore
	metrics     *telemetry.Metrics
	logger      *log.Logger
	tracer      trace.Tracer
	progress    Progress
	concurrency int
	failFast    bool
	now         func() time.Time
}

type BatchOption func(*Batch)

func WithResultStore(s store.ResultStore) BatchOption {
	return func(b *Batch) { b.results = s }
}

func WithBatchMetrics(m *telemetry.Metrics) BatchOption {
	return func(b *Batch) { b.metrics = m }
}

func WithBatchLogger(l *log.Logger) BatchOption {
	return func(b *Batch) { b.logger = l }
}

func WithProgress(p Progress) BatchOption {
	return func(b *Batch) { b.progress = p }
}

// WithConcurrency bounds how many files are processed at once. Values below 1
// mean sequential processing in directory order.
func WithConcurrency(n int) BatchOption {
	return func(b *Batch) { b.concurrency = n }
}

// WithFailFast stops the batch at the first failing file.
func WithFailFast(enabled bool) BatchOption {
	return func(b *Batch) { b.failFast = enabled }
}

func NewBatch(processor *Processor, opts ...BatchOption) *Batch {
	b := &Batch{
		processor:   processor,
		results:     store.NewMemoryResultStore(),
		logger:      log.New(io.Discard, "", 0),
		tracer:      otel.Tracer("downsize/pipeline"),
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}
	return b
}

// ListCandidates returns the regular files directly inside dir, split into
// supported images and everything else. Symlinks are followed; both slices are
// in name order.
func ListCandidates(dir string) (supported, unsupported []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if domain.IsSupportedPath(path) {
			supported = append(supported, path)
		} else {
			unsupported = append(unsupported, path)
		}
	}
	return supported, unsupported, nil
}

// Run processes every supported image directly inside dir. Per-file failures
// are collected in the summary; the returned error is reserved for problems
// that stop the run as a whole (bad bound or format, unreadable directory,
// cancellation, or the first failure when fail-fast is on).
func (b *Batch) Run(ctx context.Context, runID, dir string, bound domain.Dimensions, spec domain.OutputSpec) (Summary, error) {
	startedAt := b.now()
	summary := Summary{RunID: runID, Path: dir}

	ctx, span := b.tracer.Start(ctx, "downsize.batch", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.dir", dir),
	))
	defer span.End()

	if err := bound.ValidateBound(); err != nil {
		return summary, err
	}
	if err := spec.Validate(); err != nil {
		return summary, err
	}

	candidates, unsupported, err := ListCandidates(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return summary, err
	}
	summary.Unsupported = unsupported
	for _, path := range unsupported {
		b.metrics.ObserveUnsupported()
		b.record(ctx, domain.FileResult{
			RunID:     runID,
			InputPath: path,
			Status:    domain.StatusUnsupported,
			Error:     domain.ErrInvalidFormat.Error(),
		})
	}
	span.SetAttributes(attribute.Int("run.candidates", len(candidates)))

	if b.progress != nil {
		b.progress.Start(len(candidates))
		defer b.progress.Finish()
	}

	runErr := b.processAll(ctx, runID, candidates, bound, spec, &summary)

	summary.Duration = b.now().Sub(startedAt)
	sort.Slice(summary.Failures, func(i, j int) bool { return summary.Failures[i].Path < summary.Failures[j].Path })
	sort.Slice(summary.Outcomes, func(i, j int) bool { return summary.Outcomes[i].InputPath < summary.Outcomes[j].InputPath })
	span.SetAttributes(
		attribute.Int("run.resized", summary.Resized),
		attribute.Int("run.within_bounds", summary.WithinBounds),
		attribute.Int("run.failed", summary.Failed),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "batch aborted")
		return summary, runErr
	}
	if summary.Failed > 0 {
		span.SetStatus(codes.Error, "some files failed")
	}
	return summary, nil
}

// RunFile processes a single file and reports it as a one-entry summary.
// Unlike Run, an unsupported extension is a failure rather than a skip.
func (b *Batch) RunFile(ctx context.Context, runID, path string, bound domain.Dimensions, spec domain.OutputSpec) (Summary, error) {
	startedAt := b.now()
	summary := Summary{RunID: runID, Path: path}

	if b.progress != nil {
		b.progress.Start(1)
		defer b.progress.Finish()
	}

	err := b.processOne(ctx, runID, path, bound, spec, &summary, &sync.Mutex{})
	summary.Duration = b.now().Sub(startedAt)
	return summary, err
}

func (b *Batch) processAll(ctx context.Context, runID string, paths []string, bound domain.Dimensions, spec domain.OutputSpec, summary *Summary) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		sem      = make(chan struct{}, b.concurrency)
	)

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := b.processOne(ctx, runID, path, bound, spec, summary, &mu)
			if err != nil && b.failFast {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					summary.Aborted = true
				}
				mu.Unlock()
				cancel()
			}
		}(path)
	}
	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("batch aborted: %w", firstErr)
	}
	return ctx.Err()
}

func (b *Batch) processOne(ctx context.Context, runID, path string, bound domain.Dimensions, spec domain.OutputSpec, summary *Summary, mu *sync.Mutex) error {
	out, err := b.processor.Process(ctx, Request{
		RunID:     runID,
		InputPath: path,
		Bound:     bound,
		Output:    spec,
	})

	result := domain.FileResult{
		RunID:      runID,
		InputPath:  path,
		OutputPath: out.OutputPath,
		Format:     out.Format,
		Source:     out.Source,
		Target:     out.Target,
		Bytes:      out.Bytes,
		CreatedAt:  b.now().UTC(),
	}

	mu.Lock()
	switch {
	case err != nil && errors.Is(err, context.Canceled) && summary.Aborted:
		// a sibling already failed; this file was never really attempted
		mu.Unlock()
		return nil
	case err != nil:
		summary.Failed++
		summary.Failures = append(summary.Failures, FileFailure{Path: path, Err: err})
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		b.logger.Printf("failed input=%s err=%v", path, err)
	case out.Resized:
		summary.Resized++
		result.Status = domain.StatusResized
	default:
		summary.WithinBounds++
		result.Status = domain.StatusWithinBounds
	}
	summary.Visited++
	summary.Outcomes = append(summary.Outcomes, out)
	if b.progress != nil {
		b.progress.Increment()
	}
	mu.Unlock()

	b.record(ctx, result)
	return err
}

func (b *Batch) record(ctx context.Context, result domain.FileResult) {
	if b.results == nil {
		return
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = b.now().UTC()
	}
	if err := b.results.Record(context.WithoutCancel(ctx), result); err != nil {
		b.logger.Printf("ledger write failed input=%s err=%v", result.InputPath, err)
	}
}
