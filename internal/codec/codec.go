// Package codec decodes, resamples and encodes images. The default build uses
// disintegration/imaging; building with the govips tag (and cgo) switches to
// libvips.
package codec

import (
	"context"
	"errors"

	"github.com/dunamismax/downsize/internal/domain"
)

const DefaultJPEGQuality = 95

var ErrForeignImage = errors.New("image was not produced by this codec")

// Image is a decoded image owned by the codec that produced it.
type Image interface {
	Width() int
	Height() int
	Close()
}

type Codec interface {
	Decode(ctx context.Context, path string) (Image, error)
	// Resample scales img to target. A zero side, which the size calculator
	// produces for extreme aspect ratios, is written as 1 pixel.
	Resample(ctx context.Context, img Image, target domain.Dimensions) (Image, error)
	Encode(ctx context.Context, img Image, format domain.Format) ([]byte, error)
}

type Options struct {
	JPEGQuality int
	AutoOrient  bool
}

func (o Options) jpegQuality() int {
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		return DefaultJPEGQuality
	}
	return o.JPEGQuality
}

// New returns the codec selected at build time.
func New(opts Options) (Codec, error) {
	return newCodec(opts)
}

func SizeOf(img Image) domain.Dimensions {
	return domain.Dimensions{Width: img.Width(), Height: img.Height()}
}

// drawable raises zero or negative sides of target to 1 pixel.
func drawable(target domain.Dimensions) domain.Dimensions {
	return domain.Dimensions{Width: max(1, target.Width), Height: max(1, target.Height)}
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
