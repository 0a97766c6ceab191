// CRV (FreeSurfer curvature) format parser.
package formats

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/neuroview/pkg/binparse"
)

// CRV format errors.
var (
	ErrInvalidCRVMagic      = errors.New("invalid CRV magic: expected 0xFFFFFF")
	ErrUnsupportedCRVValues = errors.New("only scalar curvature (1 value per vertex) is supported")
	ErrVertexCountMismatch  = errors.New("curvature vertex count does not match surface")
	ErrNilMesh              = errors.New("curvature requires a decoded surface")
)

const (
	// CRVMagic identifies the "new" curvature format.
	CRVMagic = 0xFFFFFF

	// CRVClampSigma is the number of standard deviations around each
	// partition mean used for the render range.
	CRVClampSigma = 2.5
)

// CRV represents a per-vertex curvature field bound to a surface.
type CRV struct {
	NumVertices     int
	NumFaces        int // Face count recorded in the file, informational
	ValuesPerVertex int

	Curvatures []float32

	// Slot 0 holds the true extrema, slot 1 the render clamp range
	// (NegMean - 2.5σ, PosMean + 2.5σ).
	MinCurv [2]float32
	MaxCurv [2]float32

	PosMean   float64
	NegMean   float64
	PosStdDev float64
	NegStdDev float64

	// One value per rendered triangle corner, matching the surface's
	// expanded buffers.
	CurvatureBuffer []float32
}

// ParseCRV parses a curvature file. The surface must be fully decoded; its
// face list determines the layout of CurvatureBuffer.
func ParseCRV(data []byte, mesh *MRIS) (*CRV, error) {
	if mesh == nil {
		return nil, ErrNilMesh
	}

	c := binparse.NewCursor(data, 0)

	magic, err := c.Uint24BE()
	if err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if magic != CRVMagic {
		return nil, formatErr("CRV", ErrInvalidCRVMagic)
	}

	var header [3]uint32 // vertex count, face count, values per vertex
	for i := range header {
		if header[i], err = c.Uint32BE(); err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
	}
	numVertices, numFaces, valsPerVertex := header[0], header[1], header[2]

	if valsPerVertex != 1 {
		return nil, formatErr("CRV", fmt.Errorf("%w: got %d", ErrUnsupportedCRVValues, valsPerVertex))
	}
	if int(numVertices) != mesh.NumVertices {
		return nil, formatErr("CRV", fmt.Errorf("%w: %d in file, %d in surface", ErrVertexCountMismatch, numVertices, mesh.NumVertices))
	}
	if err := c.Need(int(numVertices) * 4); err != nil {
		return nil, fmt.Errorf("reading curvature values: %w", err)
	}

	crv := &CRV{
		NumVertices:     int(numVertices),
		NumFaces:        int(numFaces),
		ValuesPerVertex: int(valsPerVertex),
		Curvatures:      make([]float32, numVertices),
	}

	var pos, neg []float64
	for i := range crv.Curvatures {
		v, err := c.Float32BE()
		if err != nil {
			return nil, fmt.Errorf("reading curvature %d: %w", i, err)
		}
		crv.Curvatures[i] = v

		if i == 0 {
			crv.MinCurv[0], crv.MaxCurv[0] = v, v
		}
		if v > crv.MaxCurv[0] {
			crv.MaxCurv[0] = v
		}
		if v < crv.MinCurv[0] {
			crv.MinCurv[0] = v
		}

		if v >= 0 {
			pos = append(pos, float64(v))
		} else {
			neg = append(neg, float64(v))
		}
	}

	crv.PosMean, crv.PosStdDev = partitionStats(pos)
	crv.NegMean, crv.NegStdDev = partitionStats(neg)

	crv.MinCurv[1] = float32(crv.NegMean - CRVClampSigma*crv.NegStdDev)
	crv.MaxCurv[1] = float32(crv.PosMean + CRVClampSigma*crv.PosStdDev)

	crv.expand(mesh)

	return crv, nil
}

// partitionStats returns the mean and sample standard deviation of values.
// An empty partition has mean 0; fewer than two samples have deviation 0.
func partitionStats(values []float64) (mean, stdDev float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	default:
		return stat.MeanStdDev(values, nil)
	}
}

// expand maps the per-vertex values onto the surface's triangle corners.
func (crv *CRV) expand(mesh *MRIS) {
	crv.CurvatureBuffer = make([]float32, len(mesh.Faces)*3)
	index := 0
	for _, face := range mesh.Faces {
		for _, v := range face {
			crv.CurvatureBuffer[index] = crv.Curvatures[v]
			index++
		}
	}
}

// ClampRange returns the render clamp range (slot 1).
func (crv *CRV) ClampRange() (lo, hi float32) {
	return crv.MinCurv[1], crv.MaxCurv[1]
}

// ParseCRVFile parses a CRV file from disk.
func ParseCRVFile(path string, mesh *MRIS) (*CRV, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CRV file: %w", err)
	}
	return ParseCRV(data, mesh)
}
