package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/downsize/internal/config"
	"github.com/dunamismax/downsize/internal/domain"
	"github.com/dunamismax/downsize/internal/webhook"
)

// executeCommand runs a fresh root command and captures stdout and the log.
func executeCommand(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	logger := log.New(&errOut, "[downsize] ", log.Lmsgprefix)

	cmd := newRootCmd(logger)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(normalizeSizeArgs(args))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func pngSize(t *testing.T, path string) domain.Dimensions {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return domain.Dimensions{Width: cfg.Width, Height: cfg.Height}
}

func TestRootCmd_Folder(t *testing.T) {
	t.Run("resizes oversized images and reports the count", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "big.png"), 300, 200)
		writePNG(t, filepath.Join(dir, "small.png"), 50, 40)

		out, errOut, err := executeCommand(dir, "-s", "192", "108", "--append", "_small")
		if err != nil {
			t.Fatalf("command failed: %v, log: %s", err, errOut)
		}
		if !strings.Contains(out, "Done! 1 image(s) resized.") {
			t.Fatalf("expected done line, got %q", out)
		}
		if got := pngSize(t, filepath.Join(dir, "big_small.png")); got != (domain.Dimensions{Width: 162, Height: 108}) {
			t.Fatalf("expected 162x108, got %s", got)
		}
		if _, err := os.Stat(filepath.Join(dir, "small_small.png")); !os.IsNotExist(err) {
			t.Fatal("expected compliant image not to be rewritten")
		}
	})

	t.Run("second run collides and exits with an error", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "big.png"), 300, 200)

		if _, errOut, err := executeCommand(dir, "--size", "192x108", "--append", "_s"); err != nil {
			t.Fatalf("first run failed: %v, log: %s", err, errOut)
		}
		out, _, err := executeCommand(dir, "--size", "192x108", "--append", "_s")
		if !errors.Is(err, domain.ErrDestinationExists) {
			t.Fatalf("expected collision error, got %v", err)
		}
		if !strings.Contains(err.Error(), "--overwrite") {
			t.Fatalf("expected error to suggest --overwrite, got %v", err)
		}
		if strings.Contains(out, "Done!") {
			t.Fatalf("expected no done line on failure, got %q", out)
		}
	})

	t.Run("writes converted images into the output folder", func(t *testing.T) {
		dir := t.TempDir()
		outDir := filepath.Join(dir, "web")
		writePNG(t, filepath.Join(dir, "big.png"), 400, 100)

		_, errOut, err := executeCommand(dir, "-s", "192", "108", "-f", "jpg", "-o", outDir, "-j", "2")
		if err != nil {
			t.Fatalf("command failed: %v, log: %s", err, errOut)
		}
		if _, err := os.Stat(filepath.Join(outDir, "big.jpg")); err != nil {
			t.Fatalf("expected big.jpg in output folder: %v", err)
		}
	})
}

func TestRootCmd_PostsRunReport(t *testing.T) {
	reports := make(chan webhook.RunReport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var report webhook.RunReport
		if err := json.NewDecoder(r.Body).Decode(&report); err == nil {
			reports <- report
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	t.Setenv("DOWNSIZE_WEBHOOK_URL", srv.URL)

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "big.png"), 300, 200)

	if _, errOut, err := executeCommand(dir, "-s", "100", "100", "--append", "_x"); err != nil {
		t.Fatalf("command failed: %v, log: %s", err, errOut)
	}

	select {
	case report := <-reports:
		if report.Resized != 1 || report.Path != dir || report.RunID == "" {
			t.Fatalf("unexpected report %+v", report)
		}
	default:
		t.Fatal("expected a run report to be posted")
	}
}

func TestRootCmd_InvalidArguments(t *testing.T) {
	t.Run("unsupported format fails before touching files", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "big.png"), 300, 200)

		_, _, err := executeCommand(dir, "-f", "gif")
		if !errors.Is(err, domain.ErrInvalidFormat) {
			t.Fatalf("expected ErrInvalidFormat, got %v", err)
		}
		if entries, _ := os.ReadDir(dir); len(entries) != 1 {
			t.Fatalf("expected folder to be untouched, got %d entries", len(entries))
		}
	})

	t.Run("format match is exact", func(t *testing.T) {
		_, _, err := executeCommand(t.TempDir(), "-f", "PNG")
		if !errors.Is(err, domain.ErrInvalidFormat) {
			t.Fatalf("expected ErrInvalidFormat for upper-case format, got %v", err)
		}
	})

	t.Run("zero bound is rejected", func(t *testing.T) {
		_, _, err := executeCommand(t.TempDir(), "-s", "0", "1080")
		if !errors.Is(err, domain.ErrInvalidBound) {
			t.Fatalf("expected ErrInvalidBound, got %v", err)
		}
	})

	t.Run("quality outside 1-100 is rejected", func(t *testing.T) {
		_, _, err := executeCommand(t.TempDir(), "--quality", "150")
		if !errors.Is(err, config.ErrInvalidQuality) {
			t.Fatalf("expected ErrInvalidQuality, got %v", err)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, _, err := executeCommand(filepath.Join(t.TempDir(), "nope"))
		if err == nil {
			t.Fatal("expected an error for a missing path")
		}
	})

	t.Run("unsupported single file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "anim.gif")
		if err := os.WriteFile(path, []byte("GIF89a"), 0o644); err != nil {
			t.Fatalf("write gif: %v", err)
		}
		_, _, err := executeCommand(path)
		if !errors.Is(err, domain.ErrInvalidFormat) {
			t.Fatalf("expected ErrInvalidFormat, got %v", err)
		}
	})
}

func TestNormalizeSizeArgs(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"dir", "-s", "800", "600"}, []string{"dir", "-s", "800,600"}},
		{[]string{"--size", "800", "600", "dir"}, []string{"--size", "800,600", "dir"}},
		{[]string{"dir", "-s", "800x600"}, []string{"dir", "-s", "800x600"}},
		{[]string{"-s", "800", "dir"}, []string{"-s", "800", "dir"}},
		{[]string{"--", "-s", "1", "2"}, []string{"--", "-s", "1", "2"}},
	}
	for _, tc := range cases {
		if got := normalizeSizeArgs(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("normalizeSizeArgs(%v) = %v, expected %v", tc.in, got, tc.want)
		}
	}
}

func TestSizeValue(t *testing.T) {
	var v sizeValue
	if err := v.Set("1280,720"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v.String() != "1280x720" {
		t.Fatalf("expected 1280x720, got %s", v.String())
	}
	if err := v.Set("wide"); err == nil {
		t.Fatal("expected error for malformed size")
	}
}
