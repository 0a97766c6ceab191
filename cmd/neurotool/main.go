// neurotool is a CLI utility for inspecting and exporting FreeSurfer surfaces,
// curvature overlays and TrackVis streamlines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/neuroview/internal/config"
	"github.com/Faultbox/neuroview/internal/loader"
	"github.com/Faultbox/neuroview/internal/logger"
	"github.com/Faultbox/neuroview/pkg/bundle"
	"github.com/Faultbox/neuroview/pkg/formats"
	"github.com/Faultbox/neuroview/pkg/source"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "stats":
		err = cmdStats(args)
	case "export", "x":
		err = cmdExport(args)
	case "config":
		err = cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Debug("command failed", zap.String("command", command), zap.Error(err))
	}
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`neurotool - FreeSurfer surface / curvature and TrackVis utility

Usage:
  neurotool <command> [options]

Commands:
  info [-surface <surf>] <file>                  Show a summary of any supported file
  info <name.manifest.yaml>                      Show an exported bundle and verify its buffers
  stats -surface <surf> -curv <curv>             Show curvature statistics
  stats -tracks <file.trk>                       Show streamline statistics
  export -surface <surf> [-curv <curv>] [-tracks <file.trk>] [-name <name>]
                                                 Write render buffers and a manifest
  config [-o <file>]                             Print or save the effective configuration

Common options:
  -config <file>     Configuration file (default ./neurotool.yaml)
  -debug, -quiet     Log level override
  -timeout <dur>     HTTP fetch timeout
  -out <dir>         Export directory
  -allow-isolated    Accept surfaces with vertices outside every face

Files may be local paths, file:// or http(s):// URLs, optionally gzipped.

Examples:
  neurotool info lh.white
  neurotool info -surface lh.white lh.curv
  neurotool info ./bundles/lh.manifest.yaml
  neurotool stats -surface lh.white -curv lh.curv
  neurotool export -surface lh.white -curv lh.curv -out ./bundles
  neurotool export -tracks https://example.org/tracts.trk.gz -name tracts`)
}

// setup parses common flags into fs and prepares configuration and logging.
func setup(fs *flag.FlagSet, args []string) (*config.Config, error) {
	flags := config.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	return cfg, nil
}

func initLogger(lc config.LoggingConfig) error {
	if !lc.JSON || lc.LogFile == "" {
		return logger.Init(lc.Level, lc.LogFile)
	}

	fc := logger.DefaultFileConfig(lc.LogFile)
	fc.JSON = true
	return logger.InitWithOptions(logger.Options{
		Level:   lc.Level,
		Console: true,
		File:    fc,
	})
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	surface := fs.String("surface", "", "Surface the curvature file belongs to")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: neurotool info [-surface <surf>] <file>")
		os.Exit(1)
	}
	ref := fs.Arg(0)

	if strings.HasSuffix(ref, bundle.SuffixManifest) {
		return infoBundle(strings.TrimPrefix(ref, "file://"))
	}

	ctx := context.Background()
	data, err := source.New(cfg.Source.HTTPTimeout, cfg.Source.MaxBytes).Fetch(ctx, ref)
	if err != nil {
		return err
	}

	kind := formats.Detect(data)
	logger.Debug("detected format", zap.String("file", ref), zap.Stringer("kind", kind))

	fmt.Printf("File:    %s\n", ref)
	fmt.Printf("Format:  %s\n", kind)
	fmt.Printf("Size:    %d bytes\n", len(data))

	switch kind {
	case formats.KindMRIS:
		mesh, err := formats.ParseMRISWithOptions(data, formats.MRISOptions{
			AllowIsolatedVertices: cfg.Decode.AllowIsolatedVertices,
		})
		if err != nil {
			return err
		}
		printMesh(mesh)

	case formats.KindCRV:
		if *surface == "" {
			return fmt.Errorf("%s is a curvature file: -surface is required", ref)
		}
		res, err := loader.New(cfg).Load(ctx, loader.Request{Surface: *surface})
		if err != nil {
			return err
		}
		crv, err := formats.ParseCRV(data, res.Mesh)
		if err != nil {
			return err
		}
		printCurvature(crv)

	case formats.KindTRK:
		trk, err := formats.ParseTRK(data)
		if err != nil {
			return err
		}
		printTracks(trk)

	default:
		return fmt.Errorf("%s: unrecognized format", ref)
	}

	return nil
}

func cmdStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	surface := fs.String("surface", "", "Surface file")
	curv := fs.String("curv", "", "Curvature file")
	tracks := fs.String("tracks", "", "TrackVis file")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	if *curv == "" && *tracks == "" {
		fmt.Fprintln(os.Stderr, "Usage: neurotool stats -surface <surf> -curv <curv> | -tracks <file.trk>")
		os.Exit(1)
	}

	res, err := loader.New(cfg).Load(context.Background(), loader.Request{
		Surface:   *surface,
		Curvature: *curv,
		Tracks:    *tracks,
	})
	if err != nil {
		return err
	}

	if res.Curvature != nil {
		crv := res.Curvature
		lo, hi := crv.ClampRange()
		fmt.Printf("Curvature: %s\n", *curv)
		fmt.Printf("  Values:     %d\n", crv.NumVertices)
		fmt.Printf("  Range:      [%.4f, %.4f]\n", crv.MinCurv[0], crv.MaxCurv[0])
		fmt.Printf("  Clamped:    [%.4f, %.4f]\n", lo, hi)
		fmt.Printf("  Positive:   mean %.4f  stddev %.4f\n", crv.PosMean, crv.PosStdDev)
		fmt.Printf("  Negative:   mean %.4f  stddev %.4f\n", crv.NegMean, crv.NegStdDev)
	}

	if res.Tracks != nil {
		trk := res.Tracks
		logger.Sugar.Debugf("computing statistics over %d tracks", len(trk.Tracks))
		lengths := make([]float64, len(trk.Tracks))
		points := make([]float64, len(trk.Tracks))
		for i := range trk.Tracks {
			lengths[i] = float64(trk.Tracks[i].Length())
			points[i] = float64(len(trk.Tracks[i].Points))
		}

		fmt.Printf("Tracks: %s\n", *tracks)
		fmt.Printf("  Count:      %d\n", len(trk.Tracks))
		if len(trk.Tracks) > 0 {
			meanLen, sdLen := stat.MeanStdDev(lengths, nil)
			meanPts := stat.Mean(points, nil)
			fmt.Printf("  Length:     mean %.2f  stddev %.2f\n", meanLen, sdLen)
			fmt.Printf("  Points:     mean %.1f per track\n", meanPts)
		}
	}

	return nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	surface := fs.String("surface", "", "Surface file")
	curv := fs.String("curv", "", "Curvature file")
	tracks := fs.String("tracks", "", "TrackVis file")
	name := fs.String("name", "", "Bundle name (default: base name of the first input)")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	if *surface == "" && *tracks == "" {
		fmt.Fprintln(os.Stderr, "Usage: neurotool export -surface <surf> [-curv <curv>] [-tracks <file.trk>] [-name <name>]")
		os.Exit(1)
	}

	if *name == "" {
		first := *surface
		if first == "" {
			first = *tracks
		}
		*name = bundleName(first)
	}

	res, err := loader.New(cfg).Load(context.Background(), loader.Request{
		Surface:   *surface,
		Curvature: *curv,
		Tracks:    *tracks,
	})
	if err != nil {
		return err
	}

	path, _, err := bundle.Write(cfg.Export.OutputDir, *name, bundle.Contents{
		Mesh:      res.Mesh,
		Curvature: res.Curvature,
		Tracks:    res.Tracks,
	})
	if err != nil {
		return err
	}

	logger.Info("bundle written", zap.String("manifest", path))
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	output := fs.String("o", "", "Write configuration to this file instead of stdout")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	if *output != "" {
		if err := cfg.SaveTo(*output); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", *output)
		return nil
	}

	fmt.Printf("Source:  timeout=%s max_bytes=%d\n", cfg.Source.HTTPTimeout, cfg.Source.MaxBytes)
	fmt.Printf("Decode:  allow_isolated_vertices=%t\n", cfg.Decode.AllowIsolatedVertices)
	fmt.Printf("Export:  output_dir=%s\n", cfg.Export.OutputDir)
	fmt.Printf("Logging: level=%s file=%q json=%t\n", cfg.Logging.Level, cfg.Logging.LogFile, cfg.Logging.JSON)
	return nil
}

var errBundleMismatch = errors.New("bundle buffers do not match the manifest")

// infoBundle prints an exported bundle and checks every buffer file against
// the counts recorded in its manifest.
func infoBundle(path string) error {
	m, err := bundle.ReadManifest(path)
	if err != nil {
		return err
	}

	fmt.Printf("Bundle:  %s\n", m.Name)
	fmt.Printf("File:    %s\n", path)

	type buffer struct {
		file string
		want int // float count, -1 when the manifest does not determine it
	}
	var buffers []buffer

	if s := m.Surface; s != nil {
		fmt.Printf("Surface: %d vertices, %d faces (%d render vertices)\n", s.Vertices, s.Faces, s.RenderVertices)
		fmt.Printf("  Center: %s\n", formatVec(s.Center))
		fmt.Printf("  Scale:  %s\n", formatVec(s.Scale))
		buffers = append(buffers,
			buffer{s.Positions, s.RenderVertices * 3},
			buffer{s.Normals, s.RenderVertices * 3})
	}
	if c := m.Curvature; c != nil {
		fmt.Printf("Curvature: %d values\n", c.Values)
		fmt.Printf("  Range:   [%.4f, %.4f]\n", c.Range[0], c.Range[1])
		fmt.Printf("  Clamped: [%.4f, %.4f]\n", c.ClampRange[0], c.ClampRange[1])
		want := -1
		if m.Surface != nil {
			want = m.Surface.RenderVertices
		}
		buffers = append(buffers, buffer{c.File, want})
	}
	if t := m.Tracks; t != nil {
		fmt.Printf("Tracks:  %d (%d points, %d render vertices)\n", t.Tracks, t.Points, t.RenderVertices)
		fmt.Printf("  Center: %s\n", formatVec(t.Center))
		fmt.Printf("  Scale:  %s\n", formatVec(t.Scale))
		buffers = append(buffers,
			buffer{t.Positions, t.RenderVertices * 3},
			buffer{t.Colors, t.RenderVertices * 3})
	}

	dir := filepath.Dir(path)
	bad := 0
	for _, b := range buffers {
		values, err := bundle.ReadBuffer(filepath.Join(dir, b.file))
		if err != nil {
			logger.Error("unreadable buffer", zap.String("file", b.file), zap.Error(err))
			bad++
			continue
		}
		if b.want >= 0 && len(values) != b.want {
			logger.Warn("buffer length mismatch", zap.String("file", b.file),
				zap.Int("floats", len(values)), zap.Int("want", b.want))
			bad++
			continue
		}
		fmt.Printf("  %-28s %d floats\n", b.file, len(values))
	}

	if bad > 0 {
		return fmt.Errorf("%w: %d of %d buffers", errBundleMismatch, bad, len(buffers))
	}
	return nil
}

func printMesh(mesh *formats.MRIS) {
	fmt.Printf("Magic:   %#06x\n", mesh.Magic)
	fmt.Printf("Comment: %s\n", mesh.Comment)
	fmt.Printf("Vertices: %d\n", mesh.NumVertices)
	fmt.Printf("Faces:    %d (%d render vertices)\n", mesh.NumFaces, mesh.NumRenderVertices())
	fmt.Printf("Center:   %s\n", formatVec(mesh.Center))
	fmt.Printf("Scale:    %s\n", formatVec(mesh.Scale))
}

func printCurvature(crv *formats.CRV) {
	lo, hi := crv.ClampRange()
	fmt.Printf("Vertices: %d\n", crv.NumVertices)
	fmt.Printf("Range:    [%.4f, %.4f]\n", crv.MinCurv[0], crv.MaxCurv[0])
	fmt.Printf("Clamped:  [%.4f, %.4f]\n", lo, hi)
}

func printTracks(trk *formats.TRK) {
	h := &trk.Header
	fmt.Printf("Version:  %d (header %d bytes)\n", h.Version, h.HeaderSize)
	fmt.Printf("Dim:      %d x %d x %d\n", h.Dim[0], h.Dim[1], h.Dim[2])
	fmt.Printf("Voxel:    %s (%s)\n", formatVec(h.VoxelSize), h.VoxelOrder)
	fmt.Printf("Tracks:   %d (%d points, %d render vertices)\n", len(trk.Tracks), trk.NumPoints(), trk.NumVertices)
	if h.NumScalars > 0 {
		fmt.Printf("Scalars:  %d (%s)\n", h.NumScalars, h.ScalarName)
	}
	if h.NumProperties > 0 {
		fmt.Printf("Props:    %d (%s)\n", h.NumProperties, h.PropertyName)
	}
	if h.HasVoxelToWorld() {
		m := h.VoxelToWorld()
		fmt.Println("Voxel to RAS:")
		for row := 0; row < 4; row++ {
			fmt.Printf("  % .4f % .4f % .4f % .4f\n", m.At(row, 0), m.At(row, 1), m.At(row, 2), m.At(row, 3))
		}
	}
	fmt.Printf("Center:   %s\n", formatVec(trk.Center))
	fmt.Printf("Scale:    %s\n", formatVec(trk.Scale))
}

func formatVec(v [3]float32) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v[0], v[1], v[2])
}

// bundleName derives a bundle name from an input reference, e.g.
// "https://host/lh.white.gz" becomes "lh.white" and "tracts.trk.zst" becomes
// "tracts".
func bundleName(ref string) string {
	if i := strings.LastIndexAny(ref, "/\\"); i >= 0 {
		ref = ref[i+1:]
	}
	for _, ext := range []string{".gz", ".zst"} {
		ref = strings.TrimSuffix(ref, ext)
	}
	ref = strings.TrimSuffix(ref, ".trk")
	if ref == "" || ref == "." || ref == ".." {
		return "bundle"
	}
	return ref
}
