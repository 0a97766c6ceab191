// Package loader fetches and decodes a surface, its curvature overlay and a
// streamline set concurrently.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/neuroview/internal/config"
	"github.com/Faultbox/neuroview/internal/logger"
	"github.com/Faultbox/neuroview/pkg/formats"
	"github.com/Faultbox/neuroview/pkg/source"
)

// ErrCurvatureWithoutSurface is returned when a curvature file is requested
// without the surface it belongs to.
var ErrCurvatureWithoutSurface = errors.New("curvature requires a surface")

// Fetcher retrieves a complete resource by reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Request names the resources to load. Empty fields are skipped.
type Request struct {
	Surface   string
	Curvature string
	Tracks    string
}

// Result holds the decoded resources of a Request.
type Result struct {
	Mesh      *formats.MRIS
	Curvature *formats.CRV
	Tracks    *formats.TRK
}

// Loader decodes requests.
type Loader struct {
	fetcher Fetcher
	opts    formats.MRISOptions
	log     *zap.Logger
}

// New creates a Loader from configuration.
func New(cfg *config.Config) *Loader {
	return NewWithFetcher(source.New(cfg.Source.HTTPTimeout, cfg.Source.MaxBytes), cfg.Decode)
}

// NewWithFetcher creates a Loader that reads resources through f.
func NewWithFetcher(f Fetcher, decode config.DecodeConfig) *Loader {
	return &Loader{
		fetcher: f,
		opts:    formats.MRISOptions{AllowIsolatedVertices: decode.AllowIsolatedVertices},
		log:     logger.Named("loader"),
	}
}

// Load fetches and decodes everything named in req. The surface and tracks
// are processed in parallel. The curvature file is fetched in parallel but
// decoded only once the surface is complete. Any failure aborts the load.
func (l *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	if req.Curvature != "" && req.Surface == "" {
		return nil, ErrCurvatureWithoutSurface
	}

	res := &Result{}
	meshReady := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	if req.Surface != "" {
		g.Go(func() error {
			data, err := l.fetch(gctx, "surface", req.Surface)
			if err != nil {
				return err
			}

			start := time.Now()
			mesh, err := formats.ParseMRISWithOptions(data, l.opts)
			if err != nil {
				return fmt.Errorf("decoding surface %s: %w", req.Surface, err)
			}
			l.log.Info("decoded surface",
				zap.String("file", req.Surface),
				zap.Int("vertices", mesh.NumVertices),
				zap.Int("faces", mesh.NumFaces),
				zap.Duration("elapsed", time.Since(start)))

			res.Mesh = mesh
			close(meshReady)
			return nil
		})
	}

	if req.Curvature != "" {
		g.Go(func() error {
			data, err := l.fetch(gctx, "curvature", req.Curvature)
			if err != nil {
				return err
			}

			select {
			case <-meshReady:
			case <-gctx.Done():
				return gctx.Err()
			}

			start := time.Now()
			crv, err := formats.ParseCRV(data, res.Mesh)
			if err != nil {
				return fmt.Errorf("decoding curvature %s: %w", req.Curvature, err)
			}
			l.log.Info("decoded curvature",
				zap.String("file", req.Curvature),
				zap.Int("vertices", crv.NumVertices),
				zap.Float32("min", crv.MinCurv[0]),
				zap.Float32("max", crv.MaxCurv[0]),
				zap.Duration("elapsed", time.Since(start)))

			res.Curvature = crv
			return nil
		})
	}

	if req.Tracks != "" {
		g.Go(func() error {
			data, err := l.fetch(gctx, "tracks", req.Tracks)
			if err != nil {
				return err
			}

			start := time.Now()
			trk, err := formats.ParseTRK(data)
			if err != nil {
				return fmt.Errorf("decoding tracks %s: %w", req.Tracks, err)
			}
			l.log.Info("decoded tracks",
				zap.String("file", req.Tracks),
				zap.Int("tracks", len(trk.Tracks)),
				zap.Int("vertices", trk.NumVertices),
				zap.Duration("elapsed", time.Since(start)))

			res.Tracks = trk
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		l.log.Error("load failed", zap.Error(err))
		return nil, err
	}

	return res, nil
}

func (l *Loader) fetch(ctx context.Context, kind, ref string) ([]byte, error) {
	start := time.Now()
	data, err := l.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s: %w", kind, ref, err)
	}
	l.log.Debug("fetched",
		zap.String("kind", kind),
		zap.String("file", ref),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}
