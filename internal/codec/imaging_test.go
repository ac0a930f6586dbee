package codec

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
	"testing"

	"github.com/dunamismax/downsize/internal/domain"
	"golang.org/x/image/bmp"
)

func TestImagingCodecZeroSideBecomesOnePixel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strip.png")
	if err := os.WriteFile(path, buildTestPNG(t, 400, 2), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	c := NewImaging(Options{})
	img, err := c.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer img.Close()

	resized, err := c.Resample(context.Background(), img, domain.Dimensions{Width: 100, Height: 0})
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if got := SizeOf(resized); got != (domain.Dimensions{Width: 100, Height: 1}) {
		t.Fatalf("expected 100x1, got %s", got)
	}
}

func TestImagingCodecRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.png")
	if err := os.WriteFile(path, buildTestPNG(t, 240, 120), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	c := NewImaging(Options{AutoOrient: true})
	ctx := context.Background()

	img, err := c.Decode(ctx, path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer img.Close()
	if got := SizeOf(img); got != (domain.Dimensions{Width: 240, Height: 120}) {
		t.Fatalf("expected 240x120, got %s", got)
	}

	resized, err := c.Resample(ctx, img, domain.Dimensions{Width: 60, Height: 30})
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if got := SizeOf(resized); got != (domain.Dimensions{Width: 60, Height: 30}) {
		t.Fatalf("expected 60x30, got %s", got)
	}

	for _, format := range domain.SupportedFormats {
		data, err := c.Encode(ctx, resized, format)
		if err != nil {
			t.Fatalf("encode %s: %v", format, err)
		}

		var decoded image.Image
		switch format {
		case domain.FormatBMP:
			decoded, err = bmp.Decode(bytes.NewReader(data))
		case domain.FormatPNG:
			decoded, err = png.Decode(bytes.NewReader(data))
		default:
			decoded, err = jpeg.Decode(bytes.NewReader(data))
		}
		if err != nil {
			t.Fatalf("decode encoded %s: %v", format, err)
		}
		if decoded.Bounds().Dx() != 60 || decoded.Bounds().Dy() != 30 {
			t.Fatalf("expected 60x30 %s, got %dx%d", format, decoded.Bounds().Dx(), decoded.Bounds().Dy())
		}
	}
}

func TestImagingCodecDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if _, err := NewImaging(Options{}).Decode(context.Background(), path); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}

func TestImagingCodecRejectsForeignImage(t *testing.T) {
	_, err := NewImaging(Options{}).Encode(context.Background(), fakeImage{}, domain.FormatPNG)
	if !errors.Is(err, ErrForeignImage) {
		t.Fatalf("expected ErrForeignImage, got %v", err)
	}
}

func TestImagingCodecHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewImaging(Options{}).Decode(ctx, "ignored.png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOptionsJPEGQualityDefault(t *testing.T) {
	if got := (Options{}).jpegQuality(); got != DefaultJPEGQuality {
		t.Fatalf("expected default quality %d, got %d", DefaultJPEGQuality, got)
	}
	if got := (Options{JPEGQuality: 101}).jpegQuality(); got != DefaultJPEGQuality {
		t.Fatalf("expected out-of-range quality to fall back, got %d", got)
	}
	if got := (Options{JPEGQuality: 70}).jpegQuality(); got != 70 {
		t.Fatalf("expected quality 70, got %d", got)
	}
}

type fakeImage struct{}

func (fakeImage) Width() int  { return 1 }
func (fakeImage) Height() int { return 1 }
func (fakeImage) Close()      {}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

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

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}
