//go:build govips && cgo

package codec

import (
	"bytes"
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/downsize/internal/domain"
	"golang.org/x/image/bmp"
)

type vipsCodec struct {
	opts Options
}

func (c vipsCodec) Decode(ctx context.Context, path string) (Image, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	img, err := vips.NewImageFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if c.opts.AutoOrient {
		if err := img.AutoRotate(); err != nil {
			img.Close()
			return nil, fmt.Errorf("auto-rotate %s: %w", path, err)
		}
	}
	return img, nil
}

func (c vipsCodec) Resample(ctx context.Context, img Image, target domain.Dimensions) (Image, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	ref, ok := img.(*vips.ImageRef)
	if !ok {
		return nil, fmt.Errorf("resample: %w", ErrForeignImage)
	}
	if ref.Width() <= 0 || ref.Height() <= 0 {
		return nil, fmt.Errorf("resample: source image has invalid dimensions")
	}

	target = drawable(target)
	hscale := float64(target.Width) / float64(ref.Width())
	vscale := float64(target.Height) / float64(ref.Height())
	if err := ref.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
		return nil, fmt.Errorf("resize image: %w", err)
	}
	return ref, nil
}

func (c vipsCodec) Encode(ctx context.Context, img Image, format domain.Format) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	ref, ok := img.(*vips.ImageRef)
	if !ok {
		return nil, fmt.Errorf("encode: %w", ErrForeignImage)
	}

	switch format {
	case domain.FormatJPG, domain.FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = c.opts.jpegQuality()
		data, _, err := ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case domain.FormatPNG:
		data, _, err := ref.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case domain.FormatBMP:
		// libvips has no bmp saver; go through image.Image.
		raster, err := ref.ToImage(vips.NewDefaultExportParams())
		if err != nil {
			return nil, fmt.Errorf("export raster: %w", err)
		}
		var buf bytes.Buffer
		if err := bmp.Encode(&buf, raster); err != nil {
			return nil, fmt.Errorf("encode bmp: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFormat, format)
	}
}
