package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/dunamismax/downsize/internal/domain"
)

type objectWriter interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// Mirror copies written outputs into a bucket under <prefix>/<run id>/<name>.
// The overwrite policy of the run applies to objects as well.
type Mirror struct {
	store  objectWriter
	prefix string
}

func NewMirror(store objectWriter, prefix string) *Mirror {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "outputs"
	}
	return &Mirror{store: store, prefix: prefix}
}

func (m *Mirror) ObjectKey(runID, outputPath string) string {
	return path.Join(m.prefix, sanitizePathToken(runID), filepath.Base(outputPath))
}

func (m *Mirror) Publish(ctx context.Context, runID, outputPath string, data []byte, format domain.Format, overwrite bool) (string, error) {
	if m == nil || m.store == nil {
		return "", errors.New("object storage is not configured")
	}

	key := m.ObjectKey(runID, outputPath)
	if !overwrite {
		exists, err := m.store.ObjectExists(ctx, key)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("mirror: %w", &domain.CollisionError{Path: key})
		}
	}

	if err := m.store.WriteObject(ctx, key, data, format.ContentType()); err != nil {
		return "", fmt.Errorf("mirror %s: %w", outputPath, err)
	}
	return key, nil
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
