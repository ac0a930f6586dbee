package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/downsize/internal/domain"
)

type rasterImage struct {
	image.Image
}

func (r rasterImage) Width() int  { return r.Bounds().Dx() }
func (r rasterImage) Height() int { return r.Bounds().Dy() }
func (r rasterImage) Close()      {}

type imagingCodec struct {
	opts Options
}

// NewImaging returns the pure-Go codec regardless of build tags.
func NewImaging(opts Options) Codec {
	return imagingCodec{opts: opts}
}

func (c imagingCodec) Decode(ctx context.Context, path string) (Image, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(c.opts.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rasterImage{Image: img}, nil
}

func (c imagingCodec) Resample(ctx context.Context, img Image, target domain.Dimensions) (Image, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	src, ok := img.(rasterImage)
	if !ok {
		return nil, fmt.Errorf("resample: %w", ErrForeignImage)
	}
	target = drawable(target)
	return rasterImage{Image: imaging.Resize(src.Image, target.Width, target.Height, imaging.Lanczos)}, nil
}

func (c imagingCodec) Encode(ctx context.Context, img Image, format domain.Format) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	src, ok := img.(rasterImage)
	if !ok {
		return nil, fmt.Errorf("encode: %w", ErrForeignImage)
	}
	f, err := imaging.FormatFromExtension(string(format))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFormat, format)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src.Image, f, imaging.JPEGQuality(c.opts.jpegQuality())); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
