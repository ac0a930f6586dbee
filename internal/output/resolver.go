// Package output derives the destination path of a resized image.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/downsize/internal/domain"
)

type Destination struct {
	Path   string
	Dir    string
	Format domain.Format
}

// Resolve maps inputPath to its output location under spec. An explicit
// spec.Dir is created if missing (one level only). An existing destination is
// reported as *domain.CollisionError unless spec.Overwrite is set.
func Resolve(inputPath string, spec domain.OutputSpec) (Destination, error) {
	format, err := TargetFormat(inputPath, spec)
	if err != nil {
		return Destination{}, err
	}

	dir, err := targetDir(inputPath, spec)
	if err != nil {
		return Destination{}, err
	}

	dest := Destination{
		Path:   filepath.Join(dir, BaseName(inputPath, spec.Suffix)+"."+string(format)),
		Dir:    dir,
		Format: format,
	}

	if spec.Overwrite {
		return dest, nil
	}
	exists, err := pathExists(dest.Path)
	if err != nil {
		return Destination{}, err
	}
	if exists {
		return Destination{}, &domain.CollisionError{Path: dest.Path}
	}
	return dest, nil
}

// TargetFormat is spec.Format when set, otherwise the input's own extension.
func TargetFormat(inputPath string, spec domain.OutputSpec) (domain.Format, error) {
	if spec.Format != "" {
		if !spec.Format.Supported() {
			return "", fmt.Errorf("%w: %q (supported: %s)", domain.ErrInvalidFormat, spec.Format, domain.SupportedFormatList())
		}
		return spec.Format, nil
	}
	return domain.FormatFromPath(inputPath)
}

// BaseName is the input file name without its extension, followed by suffix.
func BaseName(inputPath, suffix string) string {
	name := filepath.Base(inputPath)
	return strings.TrimSuffix(name, filepath.Ext(name)) + suffix
}

func targetDir(inputPath string, spec domain.OutputSpec) (string, error) {
	if strings.TrimSpace(spec.Dir) == "" {
		return filepath.Dir(inputPath), nil
	}

	dir := filepath.Clean(spec.Dir)
	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat output dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output path %s is not a directory", dir)
	}
	return dir, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("check destination %s: %w", path, err)
	}
}
