package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat     = errors.New("unsupported format")
	ErrInvalidBound      = errors.New("invalid bound: width and height must be positive")
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	ErrDestinationExists = errors.New("destination already exists")
)

// CollisionError names the output path that would have been overwritten.
type CollisionError struct {
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf(
		"%s already exists. Use --overwrite to overwrite the file or provide one or more of the "+
			"--append, --format, or --output arguments to ensure the output path is different",
		e.Path,
	)
}

func (e *CollisionError) Is(target error) bool {
	return target == ErrDestinationExists
}
