package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/downsize/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Resize.Bound() != domain.DefaultBound {
		t.Fatalf("expected default bound 1920x1080, got %s", cfg.Resize.Bound())
	}
	if cfg.Resize.Overwrite {
		t.Fatal("expected overwrite to default to false")
	}
	if cfg.Resize.Concurrency != 1 {
		t.Fatalf("expected sequential default, got %d", cfg.Resize.Concurrency)
	}
	if cfg.Storage.Enabled() {
		t.Fatal("expected object-store mirror to be disabled by default")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downsize.yaml")
	body := `
resize:
  max_width: 1080
  max_height: 720
  suffix: _resize
  format: jpg
worker:
  lock_ttl: 30s
storage:
  bucket: photos
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOWNSIZE_MAX_HEIGHT", "600")
	t.Setenv("DOWNSIZE_OVERWRITE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Resize.Bound() != (domain.Dimensions{Width: 1080, Height: 600}) {
		t.Fatalf("expected 1080x600, got %s", cfg.Resize.Bound())
	}

	spec := cfg.Resize.OutputSpec()
	if spec.Suffix != "_resize" || spec.Format != domain.FormatJPG || !spec.Overwrite {
		t.Fatalf("unexpected output spec %+v", spec)
	}
	if cfg.Worker.LockTTL != 30*time.Second {
		t.Fatalf("expected lock ttl 30s, got %s", cfg.Worker.LockTTL)
	}
	if !cfg.Storage.Enabled() || cfg.Storage.Prefix != "outputs" {
		t.Fatalf("expected mirror enabled with default prefix, got %+v", cfg.Storage)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DOWNSIZE_MAX_WIDTH", "0")
	if _, err := Load(""); !errors.Is(err, domain.ErrInvalidBound) {
		t.Fatalf("expected ErrInvalidBound, got %v", err)
	}
}

func TestLoadRejectsUnsupportedFormat(t *testing.T) {
	t.Setenv("DOWNSIZE_FORMAT", "tiff")
	if _, err := Load(""); !errors.Is(err, domain.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestLoadRejectsQualityOutOfRange(t *testing.T) {
	for _, value := range []string{"0", "101", "150"} {
		t.Setenv("DOWNSIZE_JPEG_QUALITY", value)
		if _, err := Load(""); !errors.Is(err, ErrInvalidQuality) {
			t.Fatalf("expected ErrInvalidQuality for %s, got %v", value, err)
		}
	}
	t.Setenv("DOWNSIZE_JPEG_QUALITY", "100")
	if _, err := Load(""); err != nil {
		t.Fatalf("expected quality 100 to load, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("DOWNSIZE_TEST_INT", "abc")
	if got := envInt("DOWNSIZE_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	t.Setenv("DOWNSIZE_TEST_BOOL", "maybe")
	if got := envBool("DOWNSIZE_TEST_BOOL", true); !got {
		t.Fatal("expected fallback true")
	}
	t.Setenv("DOWNSIZE_TEST_DUR", "soon")
	if got := envDuration("DOWNSIZE_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("expected fallback 1s, got %s", got)
	}
}
