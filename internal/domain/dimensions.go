package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Dimensions is a width/height pair in pixels. It describes either the size of
// an image or a maximum bounding box.
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

var DefaultBound = Dimensions{Width: 1920, Height: 1080}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Validate reports ErrInvalidDimensions when either component is not positive.
func (d Dimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDimensions, d)
	}
	return nil
}

// ValidateBound is Validate for a maximum bounding box.
func (d Dimensions) ValidateBound() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBound, d)
	}
	return nil
}

func (d Dimensions) Fits(bound Dimensions) bool {
	return d.Width <= bound.Width && d.Height <= bound.Height
}

func (d Dimensions) Pixels() int64 {
	return int64(d.Width) * int64(d.Height)
}

// ParseDimensions accepts "1920x1080", "1920X1080" and "1920,1080".
func ParseDimensions(in string) (Dimensions, error) {
	in = strings.TrimSpace(in)
	sep := strings.IndexAny(in, "xX,")
	if sep <= 0 || sep == len(in)-1 {
		return Dimensions{}, fmt.Errorf("invalid size %q: expected WIDTHxHEIGHT", in)
	}

	width, err := strconv.Atoi(strings.TrimSpace(in[:sep]))
	if err != nil {
		return Dimensions{}, fmt.Errorf("invalid width in %q: %w", in, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(in[sep+1:]))
	if err != nil {
		return Dimensions{}, fmt.Errorf("invalid height in %q: %w", in, err)
	}
	return Dimensions{Width: width, Height: height}, nil
}
