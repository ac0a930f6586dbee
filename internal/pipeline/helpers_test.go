package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dunamismax/downsize/internal/codec"
	"github.com/dunamismax/downsize/internal/domain"
)

func newTestProcessor(opts ...Option) (*Processor, *countingCodec) {
	c := &countingCodec{Codec: codec.NewImaging(codec.Options{})}
	return NewProcessor(c, opts...), c
}

type countingCodec struct {
	codec.Codec
	decodes int32
	encodes int32
}

func (c *countingCodec) Decode(ctx context.Context, path string) (codec.Image, error) {
	atomic.AddInt32(&c.decodes, 1)
	return c.Codec.Decode(ctx, path)
}

func (c *countingCodec) Encode(ctx context.Context, img codec.Image, format domain.Format) ([]byte, error) {
	atomic.AddInt32(&c.encodes, 1)
	return c.Codec.Encode(ctx, img, format)
}

type capturePublisher struct {
	calls int
	runID string
	path  string
	err   error
}

func (p *capturePublisher) Publish(_ context.Context, runID, outputPath string, _ []byte, _ domain.Format, _ bool) (string, error) {
	p.calls++
	p.runID = runID
	p.path = outputPath
	if p.err != nil {
		return "", p.err
	}
	return "outputs/" + runID + "/" + filepath.Base(outputPath), nil
}

var errMirrorDown = errors.New("mirror down")

func writePNG(t testing.TB, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeJPEG(t testing.TB, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func imageSize(t *testing.T, path string) domain.Dimensions {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}
	return domain.Dimensions{Width: cfg.Width, Height: cfg.Height}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
