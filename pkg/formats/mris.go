// MRIS (FreeSurfer triangle surface) format parser.
package formats

import (
	"errors"
	"fmt"
	"os"

	"github.com/Faultbox/neuroview/pkg/binparse"
	"github.com/Faultbox/neuroview/pkg/math"
)

// MRIS format errors.
var (
	ErrUnterminatedHeader  = errors.New("MRIS header line not terminated")
	ErrFaceIndexOutOfRange = errors.New("face references a vertex out of range")
	ErrIsolatedVertex      = errors.New("vertex is not referenced by any face")
)

const (
	// MRISMagic identifies a triangle surface. Decoding does not require
	// it; Detect uses it to recognise surfaces.
	MRISMagic = 0xFFFFFE

	// MRISMaxHeaderScan bounds the search for the header line terminator.
	MRISMaxHeaderScan = 200

	mrisVertexSize = 3 * 4
	mrisFaceSize   = 3 * 4
)

// MRISOptions controls optional decoding behaviour.
type MRISOptions struct {
	// AllowIsolatedVertices keeps vertices that no face references instead
	// of failing. Their normal stays (0, 0, 0).
	AllowIsolatedVertices bool
}

// MRIS represents a decoded surface mesh together with its render buffers.
type MRIS struct {
	Magic       uint32 // Leading 3 bytes, normally MRISMagic
	Comment     string // Header line, e.g. "created by user on date"
	NumVertices int
	NumFaces    int

	Vertices     [][3]float32 // Vertex positions
	Normals      [][3]float32 // Averaged vertex normals
	NormalCounts []int32      // Number of faces incident to each vertex
	Faces        [][3]uint32  // Vertex indices per triangle

	// Non-indexed triangle list, NumFaces*9 floats each.
	PositionBuffer []float32
	NormalBuffer   []float32

	Center [3]float32
	Scale  [3]float32
}

// ParseMRIS parses an MRIS surface with default options.
func ParseMRIS(data []byte) (*MRIS, error) {
	return ParseMRISWithOptions(data, MRISOptions{})
}

// ParseMRISWithOptions parses an MRIS surface from raw bytes.
func ParseMRISWithOptions(data []byte, opts MRISOptions) (*MRIS, error) {
	c := binparse.NewCursor(data, 0)

	magic, err := c.Uint24BE()
	if err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}

	comment, err := readHeaderLine(data, c)
	if err != nil {
		return nil, err
	}

	// A second newline follows the header line.
	if err := c.Skip(1); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	numVertices, err := c.Uint32BE()
	if err != nil {
		return nil, fmt.Errorf("reading vertex count: %w", err)
	}
	numFaces, err := c.Uint32BE()
	if err != nil {
		return nil, fmt.Errorf("reading face count: %w", err)
	}

	// Validate sizes up front so a corrupt count cannot trigger a huge allocation.
	payload := int(numVertices)*mrisVertexSize + int(numFaces)*mrisFaceSize
	if err := c.Need(payload); err != nil {
		return nil, fmt.Errorf("reading geometry: %w", err)
	}

	mris := &MRIS{
		Magic:        magic,
		Comment:      comment,
		NumVertices:  int(numVertices),
		NumFaces:     int(numFaces),
		Vertices:     make([][3]float32, numVertices),
		Normals:      make([][3]float32, numVertices),
		NormalCounts: make([]int32, numVertices),
		Faces:        make([][3]uint32, numFaces),
	}

	for i := range mris.Vertices {
		for j := 0; j < 3; j++ {
			if mris.Vertices[i][j], err = c.Float32BE(); err != nil {
				return nil, fmt.Errorf("reading vertex %d: %w", i, err)
			}
		}
	}

	for i := range mris.Faces {
		if err := parseMRISFace(c, mris, i); err != nil {
			return nil, fmt.Errorf("parsing face %d: %w", i, err)
		}
	}

	if err := averageNormals(mris, opts); err != nil {
		return nil, err
	}

	mris.expand()

	return mris, nil
}

// readHeaderLine consumes bytes up to and including the first newline and
// returns the text before it.
func readHeaderLine(data []byte, c *binparse.Cursor) (string, error) {
	start := c.Offset()
	for i := 0; i < MRISMaxHeaderScan; i++ {
		b, err := c.Uint8()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnterminatedHeader, err)
		}
		if b == '\n' {
			return string(data[start : c.Offset()-1]), nil
		}
	}
	return "", fmt.Errorf("%w: no newline within %d bytes: %w", ErrUnterminatedHeader, MRISMaxHeaderScan,
		&binparse.TruncatedError{Offset: start, Want: MRISMaxHeaderScan + 1, Size: len(data)})
}

// parseMRISFace reads face i and adds its normal to each of its corners.
func parseMRISFace(c *binparse.Cursor, mris *MRIS, i int) error {
	face := &mris.Faces[i]
	for n := 0; n < 3; n++ {
		idx, err := c.Uint32BE()
		if err != nil {
			return err
		}
		if int(idx) >= mris.NumVertices {
			return formatErr("MRIS", fmt.Errorf("%w: index %d, %d vertices", ErrFaceIndexOutOfRange, idx, mris.NumVertices))
		}
		face[n] = idx
		mris.NormalCounts[idx]++
	}

	v0 := math.V3(mris.Vertices[face[0]])
	v1 := math.V3(mris.Vertices[face[1]])
	v2 := math.V3(mris.Vertices[face[2]])
	normal := v1.Sub(v0).Cross(v2.Sub(v1)).Normalize()

	for _, idx := range face {
		mris.Normals[idx] = math.V3(mris.Normals[idx]).Add(normal).Array()
	}
	return nil
}

// averageNormals divides each accumulated normal by its incident face count
// and rescales the mean back to unit length.
func averageNormals(mris *MRIS, opts MRISOptions) error {
	for i, count := range mris.NormalCounts {
		if count == 0 {
			if opts.AllowIsolatedVertices {
				continue
			}
			return formatErr("MRIS", fmt.Errorf("%w: vertex %d", ErrIsolatedVertex, i))
		}
		mris.Normals[i] = math.V3(mris.Normals[i]).Scale(1 / float32(count)).Normalize().Array()
	}
	return nil
}

// expand unrolls the indexed mesh into a flat triangle list and computes the
// bounding box of the result.
func (m *MRIS) expand() {
	m.PositionBuffer = make([]float32, m.NumFaces*9)
	m.NormalBuffer = make([]float32, m.NumFaces*9)

	bounds := NewBounds()
	index := 0
	for _, face := range m.Faces {
		for _, v := range face {
			pos := m.Vertices[v]
			nrm := m.Normals[v]
			copy(m.PositionBuffer[index:index+3], pos[:])
			copy(m.NormalBuffer[index:index+3], nrm[:])
			bounds.Add(pos)
			index += 3
		}
	}

	m.Center, m.Scale = bounds.CenterScale()
}

// NumRenderVertices returns the number of vertices in the expanded buffers.
func (m *MRIS) NumRenderVertices() int {
	return m.NumFaces * 3
}

// ParseMRISFile parses an MRIS file from disk.
func ParseMRISFile(path string) (*MRIS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MRIS file: %w", err)
	}
	return ParseMRIS(data)
}
