package domain

import (
	"fmt"
	"strings"
)

// OutputSpec controls where and how resized images are written. It is built
// once per run and passed by value.
type OutputSpec struct {
	Suffix    string `json:"suffix,omitempty"`
	Dir       string `json:"dir,omitempty"`
	Format    Format `json:"format,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

func (s OutputSpec) Validate() error {
	if s.Format != "" && !s.Format.Supported() {
		return fmt.Errorf("%w: %q (supported: %s)", ErrInvalidFormat, s.Format, SupportedFormatList())
	}
	if strings.ContainsAny(s.Suffix, `/\`) {
		return fmt.Errorf("suffix must not contain path separators: %q", s.Suffix)
	}
	return nil
}
