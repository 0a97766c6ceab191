package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

func TestFetch_LocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lh.white")
	content := []byte{0xff, 0xff, 0xfe, 'h', 'i'}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	f := New(time.Second, 0)

	for _, ref := range []string{path, "file://" + path} {
		data, err := f.Fetch(context.Background(), ref)
		if err != nil {
			t.Fatalf("Fetch(%s) failed: %v", ref, err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("Fetch(%s) = %v, want %v", ref, data, content)
		}
	}
}

func TestFetch_Gzip(t *testing.T) {
	content := bytes.Repeat([]byte("TRACK"), 100)
	path := filepath.Join(t.TempDir(), "tracts.trk.gz")
	if err := os.WriteFile(path, gzipBytes(t, content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	data, err := New(time.Second, 0).Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("expected decompressed content, got %d bytes", len(data))
	}
}

func TestFetch_Zstd(t *testing.T) {
	content := bytes.Repeat([]byte{0xff, 0xff, 0xfe, 0x00}, 256)
	path := filepath.Join(t.TempDir(), "lh.white.zst")
	if err := os.WriteFile(path, zstdBytes(t, content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	data, err := New(time.Second, 0).Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("expected decompressed content, got %d bytes", len(data))
	}
}

func TestFetch_DecompressedSizeLimit(t *testing.T) {
	content := make([]byte, 4096)
	path := filepath.Join(t.TempDir(), "big.trk.gz")
	if err := os.WriteFile(path, gzipBytes(t, content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	// The compressed file fits; the decompressed data does not.
	_, err := New(time.Second, 1024).Fetch(context.Background(), path)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestFetch_HTTP(t *testing.T) {
	content := []byte("surface bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lh.white" {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	}))
	defer srv.Close()

	f := New(time.Second, 0)

	data, err := f.Fetch(context.Background(), srv.URL+"/lh.white")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("Fetch = %q, want %q", data, content)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(5*time.Second, 0).Fetch(ctx, srv.URL); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestFetch_MaxBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.trk")
	if err := os.WriteFile(path, make([]byte, 64), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	_, err := New(time.Second, 32).Fetch(context.Background(), path)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}

	data, err := New(time.Second, 64).Fetch(context.Background(), path)
	if err != nil || len(data) != 64 {
		t.Errorf("exact-size fetch: %d bytes, %v", len(data), err)
	}
}

func TestFetch_Errors(t *testing.T) {
	f := New(time.Second, 0)

	if _, err := f.Fetch(context.Background(), "ftp://example.com/lh.white"); !errors.Is(err, ErrUnsupportedRef) {
		t.Errorf("expected ErrUnsupportedRef, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
