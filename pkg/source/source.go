// Package source fetches complete file buffers for the format decoders from
// local paths or HTTP(S) URLs.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Source errors.
var (
	ErrTooLarge       = errors.New("resource exceeds size limit")
	ErrUnsupportedRef = errors.New("unsupported resource scheme")
)

// Compressed stream prefixes, e.g. lh.white.gz or tracts.trk.zst.
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Fetcher retrieves fully buffered resources.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64 // 0 disables the limit
}

// New returns a Fetcher with the given HTTP timeout and size limit.
func New(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: maxBytes,
	}
}

// Fetch reads ref into memory. ref is a local path, a file:// URL or an
// http(s):// URL. Gzip and zstd content is decompressed transparently.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	data, err := f.fetchRaw(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return f.gunzip(data)
	case bytes.HasPrefix(data, zstdMagic):
		return f.unzstd(data)
	default:
		return data, nil
	}
}

func (f *Fetcher) fetchRaw(ctx context.Context, ref string) ([]byte, error) {
	scheme, rest, ok := strings.Cut(ref, "://")
	if !ok {
		return f.readFile(ref)
	}

	switch strings.ToLower(scheme) {
	case "file":
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ref, err)
		}
		return f.readFile(u.Path)
	case "http", "https":
		return f.get(ctx, ref)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedRef, scheme, rest)
	}
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	return f.readAll(file, path)
}

func (f *Fetcher) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", ref, resp.Status)
	}

	return f.readAll(resp.Body, ref)
}

func (f *Fetcher) gunzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer reader.Close()

	return f.readAll(reader, "gzip stream")
}

func (f *Fetcher) unzstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream: %w", err)
	}
	defer decoder.Close()

	return f.readAll(decoder, "zstd stream")
}

// readAll reads r to the end, honouring MaxBytes.
func (f *Fetcher) readAll(r io.Reader, name string) ([]byte, error) {
	if f.MaxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, name, f.MaxBytes)
	}
	return data, nil
}
