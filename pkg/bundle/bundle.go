// Package bundle writes decoded render buffers to disk for an external
// renderer.
//
// A bundle named "lh" consists of raw little-endian float32 files plus a
// YAML manifest describing them:
//
//	lh.positions.f32         surface triangle positions (xyz per corner)
//	lh.normals.f32           surface triangle normals (xyz per corner)
//	lh.curvature.f32         curvature scalar per corner
//	lh.tracks.positions.f32  streamline segment endpoints (xyz)
//	lh.tracks.colors.f32     streamline segment colors (rgb)
//	lh.manifest.yaml
package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	stdmath "math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/neuroview/pkg/binparse"
	"github.com/Faultbox/neuroview/pkg/formats"
)

// File suffixes.
const (
	SuffixPositions      = ".positions.f32"
	SuffixNormals        = ".normals.f32"
	SuffixCurvature      = ".curvature.f32"
	SuffixTrackPositions = ".tracks.positions.f32"
	SuffixTrackColors    = ".tracks.colors.f32"
	SuffixManifest       = ".manifest.yaml"
)

// Bundle errors.
var (
	ErrEmpty       = errors.New("bundle has no contents")
	ErrInvalidName = errors.New("invalid bundle name")
	ErrUnaligned   = errors.New("buffer size is not a multiple of 4")
)

// Contents are the decoded resources to export. Nil fields are skipped.
type Contents struct {
	Mesh      *formats.MRIS
	Curvature *formats.CRV
	Tracks    *formats.TRK
}

// Manifest describes the files of a bundle. File names are relative to the
// manifest's directory.
type Manifest struct {
	Name      string         `yaml:"name"`
	Surface   *SurfaceInfo   `yaml:"surface,omitempty"`
	Curvature *CurvatureInfo `yaml:"curvature,omitempty"`
	Tracks    *TrackSetInfo  `yaml:"tracks,omitempty"`
}

// SurfaceInfo describes the surface buffers.
type SurfaceInfo struct {
	Vertices       int        `yaml:"vertices"`
	Faces          int        `yaml:"faces"`
	RenderVertices int        `yaml:"render_vertices"`
	Center         [3]float32 `yaml:"center,flow"`
	Scale          [3]float32 `yaml:"scale,flow"`
	Positions      string     `yaml:"positions"`
	Normals        string     `yaml:"normals"`
}

// CurvatureInfo describes the curvature buffer and its value ranges.
type CurvatureInfo struct {
	Values     int        `yaml:"values"`
	Range      [2]float32 `yaml:"range,flow"`       // true min, max
	ClampRange [2]float32 `yaml:"clamp_range,flow"` // mean -/+ 2.5 sigma
	PosMean    float64    `yaml:"pos_mean"`
	PosStdDev  float64    `yaml:"pos_stddev"`
	NegMean    float64    `yaml:"neg_mean"`
	NegStdDev  float64    `yaml:"neg_stddev"`
	File       string     `yaml:"file"`
}

// TrackSetInfo describes the streamline buffers.
type TrackSetInfo struct {
	Tracks         int        `yaml:"tracks"`
	Points         int        `yaml:"points"`
	RenderVertices int        `yaml:"render_vertices"`
	Center         [3]float32 `yaml:"center,flow"`
	Scale          [3]float32 `yaml:"scale,flow"`
	Positions      string     `yaml:"positions"`
	Colors         string     `yaml:"colors"`
}

// Write exports c into dir as a bundle called name and returns the manifest
// path.
func Write(dir, name string, c Contents) (string, *Manifest, error) {
	if name == "" || filepath.Base(name) != name {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if c.Mesh == nil && c.Curvature == nil && c.Tracks == nil {
		return "", nil, ErrEmpty
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("creating output directory: %w", err)
	}

	m := &Manifest{Name: name}

	if mesh := c.Mesh; mesh != nil {
		m.Surface = &SurfaceInfo{
			Vertices:       mesh.NumVertices,
			Faces:          mesh.NumFaces,
			RenderVertices: mesh.NumRenderVertices(),
			Center:         mesh.Center,
			Scale:          mesh.Scale,
			Positions:      name + SuffixPositions,
			Normals:        name + SuffixNormals,
		}
		if err := writeBuffer(dir, m.Surface.Positions, mesh.PositionBuffer); err != nil {
			return "", nil, err
		}
		if err := writeBuffer(dir, m.Surface.Normals, mesh.NormalBuffer); err != nil {
			return "", nil, err
		}
	}

	if crv := c.Curvature; crv != nil {
		lo, hi := crv.ClampRange()
		m.Curvature = &CurvatureInfo{
			Values:     crv.NumVertices,
			Range:      [2]float32{crv.MinCurv[0], crv.MaxCurv[0]},
			ClampRange: [2]float32{lo, hi},
			PosMean:    crv.PosMean,
			PosStdDev:  crv.PosStdDev,
			NegMean:    crv.NegMean,
			NegStdDev:  crv.NegStdDev,
			File:       name + SuffixCurvature,
		}
		if err := writeBuffer(dir, m.Curvature.File, crv.CurvatureBuffer); err != nil {
			return "", nil, err
		}
	}

	if trk := c.Tracks; trk != nil {
		m.Tracks = &TrackSetInfo{
			Tracks:         len(trk.Tracks),
			Points:         trk.NumPoints(),
			RenderVertices: trk.NumVertices,
			Center:         trk.Center,
			Scale:          trk.Scale,
			Positions:      name + SuffixTrackPositions,
			Colors:         name + SuffixTrackColors,
		}
		if err := writeBuffer(dir, m.Tracks.Positions, trk.PositionBuffer); err != nil {
			return "", nil, err
		}
		if err := writeBuffer(dir, m.Tracks.Colors, trk.ColorBuffer); err != nil {
			return "", nil, err
		}
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return "", nil, fmt.Errorf("encoding manifest: %w", err)
	}

	path := filepath.Join(dir, name+SuffixManifest)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", nil, fmt.Errorf("writing manifest: %w", err)
	}

	return path, m, nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// ReadBuffer loads a raw float32 buffer file.
func ReadBuffer(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading buffer: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrUnaligned, path, len(data))
	}
	return binparse.Float32ArrayLE(data, 0, len(data)/4)
}

func writeBuffer(dir, file string, values []float32) error {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], stdmath.Float32bits(v))
	}
	if err := os.WriteFile(filepath.Join(dir, file), data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return nil
}
