package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
)

var SupportedFormats = []Format{FormatJPG, FormatJPEG, FormatPNG, FormatBMP}

func (f Format) String() string {
	return string(f)
}

func (f Format) Supported() bool {
	for _, s := range SupportedFormats {
		if f == s {
			return true
		}
	}
	return false
}

// ContentType returns the MIME type used when publishing an encoded image.
func (f Format) ContentType() string {
	switch f {
	case FormatJPG, FormatJPEG:
		return "image/jpeg"
	case FormatBMP:
		return "image/bmp"
	default:
		return "image/png"
	}
}

// ParseFormat matches an explicitly requested output format. The match is
// exact: "PNG" is rejected, "png" is accepted.
func ParseFormat(in string) (Format, error) {
	f := Format(in)
	if !f.Supported() {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrInvalidFormat, in, SupportedFormatList())
	}
	return f, nil
}

// FormatFromPath derives a format from a file extension, ignoring case. A
// name that is only an extension (".png") has no extension at all.
func FormatFromPath(path string) (Format, error) {
	name := filepath.Base(path)
	if strings.TrimSuffix(name, filepath.Ext(name)) == "" {
		return "", fmt.Errorf("%w: no extension in %s", ErrInvalidFormat, name)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	f := Format(ext)
	if !f.Supported() {
		return "", fmt.Errorf("%w: %q in %s", ErrInvalidFormat, ext, filepath.Base(path))
	}
	return f, nil
}

func IsSupportedPath(path string) bool {
	_, err := FormatFromPath(path)
	return err == nil
}

func SupportedFormatList() string {
	names := make([]string, 0, len(SupportedFormats))
	for _, f := range SupportedFormats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
