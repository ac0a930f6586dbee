package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/dunamismax/downsize/internal/codec"
	"github.com/dunamismax/downsize/internal/domain"
	"github.com/dunamismax/downsize/internal/output"
	"github.com/dunamismax/downsize/internal/pathlock"
	"github.com/dunamismax/downsize/internal/sizing"
	"github.com/dunamismax/downsize/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Request struct {
	RunID     string
	InputPath string
	Bound     domain.Dimensions
	Output    domain.OutputSpec
}

// Outcome describes one processed file. Resized is false when the source
// already fit inside the bound and nothing was written.
type Outcome struct {
	InputPath  string
	OutputPath string
	ObjectKey  string
	Format     domain.Format
	Source     domain.Dimensions
	Target     domain.Dimensions
	Bytes      int
	Resized    bool
}

// Publisher receives every written output, e.g. an object-store mirror.
type Publisher interface {
	Publish(ctx context.Context, runID, outputPath string, data []byte, format domain.Format, overwrite bool) (string, error)
}

type Processor struct {
	codec     codec.Codec
	locker    pathlock.Locker
	publisher Publisher
	metrics   *telemetry.Metrics
	logger    *log.Logger
	tracer    trace.Tracer
}

type Option func(*Processor)

func WithLocker(l pathlock.Locker) Option {
	return func(p *Processor) { p.locker = l }
}

func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

func NewProcessor(c codec.Codec, opts ...Option) *Processor {
	p := &Processor{
		codec:  c,
		locker: pathlock.NewMemory(),
		logger: log.New(io.Discard, "", 0),
		tracer: otel.Tracer("downsize/pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewLocalProcessor wires the build-selected codec with in-process locking.
func NewLocalProcessor(logger *log.Logger, opts codec.Options) (*Processor, error) {
	c, err := codec.New(opts)
	if err != nil {
		return nil, fmt.Errorf("build codec: %w", err)
	}
	return NewProcessor(c, WithLogger(logger)), nil
}

// Process downsizes a single image. Output path failures (unsupported format,
// collision) are returned unwrapped so callers can match them with errors.Is.
func (p *Processor) Process(ctx context.Context, req Request) (out Outcome, err error) {
	ctx, span := p.tracer.Start(ctx, "downsize.image", trace.WithAttributes(
		attribute.String("image.input", req.InputPath),
		attribute.String("image.bound", req.Bound.String()),
	))
	defer span.End()

	finish := p.metrics.Begin()
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "downsize failed")
			finish(domain.StatusFailed)
		case out.Resized:
			span.SetAttributes(
				attribute.String("image.output", out.OutputPath),
				attribute.String("image.target", out.Target.String()),
			)
			span.SetStatus(codes.Ok, "resized")
			finish(domain.StatusResized)
		default:
			span.SetStatus(codes.Ok, "within bounds")
			finish(domain.StatusWithinBounds)
		}
	}()

	out = Outcome{InputPath: req.InputPath}
	if err := req.Bound.ValidateBound(); err != nil {
		return out, err
	}
	if err := req.Output.Validate(); err != nil {
		return out, err
	}
	if _, err := domain.FormatFromPath(req.InputPath); err != nil {
		return out, err
	}

	img, err := p.codec.Decode(ctx, req.InputPath)
	if err != nil {
		return out, fmt.Errorf("decode stage: %w", err)
	}
	defer img.Close()
	out.Source = codec.SizeOf(img)

	plan, err := sizing.Calculate(out.Source, req.Bound)
	if err != nil {
		return out, fmt.Errorf("size stage %s: %w", req.InputPath, err)
	}
	target, ok := plan.Target()
	if !ok {
		p.logger.Printf("within bounds input=%s size=%s bound=%s", filepath.Base(req.InputPath), out.Source, req.Bound)
		return out, nil
	}

	dest, err := output.Resolve(req.InputPath, req.Output)
	if err != nil {
		return out, err
	}
	out.Format = dest.Format

	unlock, err := p.locker.Lock(ctx, dest.Path)
	if err != nil {
		return out, fmt.Errorf("lock %s: %w", dest.Path, err)
	}
	defer unlock()

	p.logger.Printf("resizing input=%s from=%s to=%s", filepath.Base(req.InputPath), out.Source, target)

	resized, err := p.codec.Resample(ctx, img, target)
	if err != nil {
		return out, fmt.Errorf("resample stage: %w", err)
	}
	defer resized.Close()

	data, err := p.codec.Encode(ctx, resized, dest.Format)
	if err != nil {
		return out, fmt.Errorf("encode stage: %w", err)
	}

	if err := writeOutput(dest.Path, data, req.Output.Overwrite); err != nil {
		return out, err
	}

	out.OutputPath = dest.Path
	out.Target = codec.SizeOf(resized)
	out.Bytes = len(data)
	out.Resized = true
	p.metrics.ObserveResize(out.Source.Pixels(), out.Target.Pixels(), out.Bytes)
	p.logger.Printf("saved output=%s size=%s bytes=%d", dest.Path, out.Target, out.Bytes)

	if p.publisher != nil {
		key, err := p.publisher.Publish(ctx, req.RunID, dest.Path, data, dest.Format, req.Output.Overwrite)
		if err != nil {
			p.metrics.ObserveMirrorFailure()
			p.logger.Printf("mirror failed output=%s err=%v", dest.Path, err)
		} else {
			out.ObjectKey = key
		}
	}

	return out, nil
}

// writeOutput performs the single write of a run. Without overwrite the file
// is created exclusively, so a destination that appeared after Resolve still
// surfaces as a collision.
func writeOutput(path string, data []byte, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &domain.CollisionError{Path: path}
		}
		return fmt.Errorf("write stage: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write stage %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write stage %s: %w", path, err)
	}
	return nil
}
