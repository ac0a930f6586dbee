package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/dunamismax/downsize/internal/domain"
)

func TestMirrorPublish(t *testing.T) {
	objects := &memoryObjects{data: map[string][]byte{}}
	m := NewMirror(objects, "/resized/")

	key, err := m.Publish(context.Background(), "run 1", "/tmp/out/photo_small.png", []byte("png"), domain.FormatPNG, false)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if key != "resized/run_1/photo_small.png" {
		t.Fatalf("expected resized/run_1/photo_small.png, got %s", key)
	}
	if objects.contentType != "image/png" {
		t.Fatalf("expected image/png, got %s", objects.contentType)
	}

	_, err = m.Publish(context.Background(), "run 1", "/tmp/out/photo_small.png", []byte("png"), domain.FormatPNG, false)
	if !errors.Is(err, domain.ErrDestinationExists) {
		t.Fatalf("expected collision on second publish, got %v", err)
	}

	if _, err := m.Publish(context.Background(), "run 1", "/tmp/out/photo_small.png", []byte("png2"), domain.FormatPNG, true); err != nil {
		t.Fatalf("publish with overwrite: %v", err)
	}
	if string(objects.data[key]) != "png2" {
		t.Fatalf("expected overwritten object, got %q", objects.data[key])
	}
}

func TestMirrorDefaultPrefix(t *testing.T) {
	m := NewMirror(&memoryObjects{}, "")
	if got := m.ObjectKey("", "a.jpg"); got != "outputs/unknown/a.jpg" {
		t.Fatalf("expected outputs/unknown/a.jpg, got %s", got)
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

type memoryObjects struct {
	data        map[string][]byte
	contentType string
}

func (m *memoryObjects) ObjectExists(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

func (m *memoryObjects) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	m.data[key] = data
	m.contentType = contentType
	return nil
}
