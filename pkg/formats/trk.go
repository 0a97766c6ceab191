// TRK (TrackVis streamline) format parser.
package formats

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Faultbox/neuroview/pkg/binparse"
	"github.com/Faultbox/neuroview/pkg/math"
)

// TRK format errors.
var (
	ErrInvalidTRKMagic      = errors.New("invalid TRK magic: expected 'TRACK'")
	ErrInvalidTRKHeaderSize = errors.New("invalid TRK header size")
)

const (
	// TRKMagic prefixes the 6-byte id string.
	TRKMagic = "TRACK"

	// TRKHeaderSize is the size of a version 1/2 header.
	TRKHeaderSize = 1000
)

// TRKHeader holds the TrackVis header fields. Apart from the counts and the
// header size they are carried through without interpretation.
type TRKHeader struct {
	IDString                string
	Dim                     [3]uint16
	VoxelSize               [3]float32
	Origin                  [3]float32
	NumScalars              uint16
	ScalarName              string
	NumProperties           uint16
	PropertyName            string
	VoxToRAS                [16]float32 // Row-major
	Reserved                string
	VoxelOrder              string
	Pad2                    string
	ImageOrientationPatient [6]float32
	Pad1                    string
	InvertX                 uint8
	InvertY                 uint8
	InvertZ                 uint8
	SwapXY                  uint8
	SwapYZ                  uint8
	SwapZX                  uint8
	NumTracks               uint32 // 0 means "not stored"
	Version                 uint32
	HeaderSize              uint32
}

// HasVoxelToWorld reports whether the voxel-to-RAS matrix is set.
// TrackVis leaves the last element zero when it is not.
func (h *TRKHeader) HasVoxelToWorld() bool {
	return h.VoxToRAS[15] != 0
}

// VoxelToWorld returns the voxel-to-RAS transform.
func (h *TRKHeader) VoxelToWorld() math.Mat4 {
	return math.FromRowMajor(h.VoxToRAS)
}

// TRKPoint is one streamline sample.
type TRKPoint struct {
	Position [3]float32
	Scalars  []float32 // nil when the header declares no scalars
}

// TRKTrack is one streamline.
type TRKTrack struct {
	Points     []TRKPoint
	Properties []float32 // nil when the header declares no properties
}

// NumSegments returns the number of line segments the track renders as.
func (t *TRKTrack) NumSegments() int {
	if len(t.Points) < 2 {
		return 0
	}
	return len(t.Points) - 1
}

// Color returns the direction-coded color of the track: the normalized
// absolute difference between its last and first point.
func (t *TRKTrack) Color() [3]float32 {
	if len(t.Points) == 0 {
		return [3]float32{}
	}
	first := math.V3(t.Points[0].Position)
	last := math.V3(t.Points[len(t.Points)-1].Position)
	return last.Sub(first).Abs().Normalize().Array()
}

// Length returns the arc length of the track.
func (t *TRKTrack) Length() float32 {
	var length float32
	for i := 1; i < len(t.Points); i++ {
		length += math.V3(t.Points[i].Position).Distance(math.V3(t.Points[i-1].Position))
	}
	return length
}

// TRK represents a decoded streamline set with its render buffers.
type TRK struct {
	Header TRKHeader
	Tracks []TRKTrack

	// NumVertices is the number of line-list vertices, two per segment.
	NumVertices int

	// Line list buffers, NumVertices*3 floats each.
	PositionBuffer []float32
	ColorBuffer    []float32

	Center [3]float32
	Scale  [3]float32
}

// ParseTRK parses a TRK file from raw bytes.
func ParseTRK(data []byte) (*TRK, error) {
	header, err := parseTRKHeader(data)
	if err != nil {
		return nil, err
	}

	trk := &TRK{Header: *header}

	tracks, err := parseTRKTracks(data, header)
	if err != nil {
		return nil, err
	}
	trk.Tracks = tracks

	trk.expand()

	return trk, nil
}

// parseTRKHeader decodes the fixed header at the start of data.
func parseTRKHeader(data []byte) (*TRKHeader, error) {
	if err := binparse.Check(data, 0, TRKHeaderSize); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	h := &TRKHeader{}
	// The buffer is known to hold the full header, so the field reads
	// below cannot fail.
	h.IDString, _ = binparse.String(data, 0, 6)
	if !strings.HasPrefix(h.IDString, TRKMagic) {
		return nil, formatErr("TRK", ErrInvalidTRKMagic)
	}

	dim, _ := binparse.Uint16ArrayLE(data, 6, 3)
	copy(h.Dim[:], dim)
	voxelSize, _ := binparse.Float32ArrayLE(data, 12, 3)
	copy(h.VoxelSize[:], voxelSize)
	origin, _ := binparse.Float32ArrayLE(data, 24, 3)
	copy(h.Origin[:], origin)
	h.NumScalars, _ = binparse.Uint16LE(data, 36)
	h.ScalarName, _ = binparse.CString(data, 40, 200)
	h.NumProperties, _ = binparse.Uint16LE(data, 240)
	h.PropertyName, _ = binparse.CString(data, 242, 200)
	voxToRAS, _ := binparse.Float32ArrayLE(data, 442, 16)
	copy(h.VoxToRAS[:], voxToRAS)
	h.Reserved, _ = binparse.String(data, 506, 444)
	h.VoxelOrder, _ = binparse.CString(data, 950, 4)
	h.Pad2, _ = binparse.String(data, 954, 2)
	orientation, _ := binparse.Float32ArrayLE(data, 956, 6)
	copy(h.ImageOrientationPatient[:], orientation)
	h.Pad1, _ = binparse.String(data, 980, 2)
	h.InvertX, _ = binparse.Uint8(data, 982)
	h.InvertY, _ = binparse.Uint8(data, 983)
	h.InvertZ, _ = binparse.Uint8(data, 984)
	h.SwapXY, _ = binparse.Uint8(data, 985)
	h.SwapYZ, _ = binparse.Uint8(data, 986)
	h.SwapZX, _ = binparse.Uint8(data, 987)
	h.NumTracks, _ = binparse.Uint32LE(data, 988)
	h.Version, _ = binparse.Uint32LE(data, 992)
	h.HeaderSize, _ = binparse.Uint32LE(data, 996)

	if h.HeaderSize < TRKHeaderSize {
		return nil, formatErr("TRK", fmt.Errorf("%w: %d", ErrInvalidTRKHeaderSize, h.HeaderSize))
	}

	return h, nil
}

// parseTRKTracks decodes the track payload that starts at the declared
// header size. A track count of zero reads tracks until the data ends.
func parseTRKTracks(data []byte, h *TRKHeader) ([]TRKTrack, error) {
	c := binparse.NewCursor(data, 0)
	if err := c.Seek(int(h.HeaderSize)); err != nil {
		return nil, fmt.Errorf("seeking to track data: %w", err)
	}

	var tracks []TRKTrack
	if h.NumTracks > 0 {
		tracks = make([]TRKTrack, 0, min(int(h.NumTracks), c.Len()/4))
	}

	for i := 0; h.NumTracks == 0 || i < int(h.NumTracks); i++ {
		if h.NumTracks == 0 && c.Len() == 0 {
			break
		}
		track, err := parseTRKTrack(c, h)
		if err != nil {
			return nil, fmt.Errorf("parsing track %d: %w", i, err)
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}

// parseTRKTrack decodes one track at the cursor.
func parseTRKTrack(c *binparse.Cursor, h *TRKHeader) (TRKTrack, error) {
	var track TRKTrack

	numPoints, err := c.Uint32LE()
	if err != nil {
		return track, fmt.Errorf("reading point count: %w", err)
	}

	pointSize := (3 + int(h.NumScalars)) * 4
	if err := c.Need(int(numPoints)*pointSize + int(h.NumProperties)*4); err != nil {
		return track, fmt.Errorf("reading %d points: %w", numPoints, err)
	}

	track.Points = make([]TRKPoint, numPoints)
	for j := range track.Points {
		p := &track.Points[j]
		for k := 0; k < 3; k++ {
			if p.Position[k], err = c.Float32LE(); err != nil {
				return track, fmt.Errorf("reading point %d: %w", j, err)
			}
		}
		if h.NumScalars > 0 {
			if p.Scalars, err = c.Float32ArrayLE(int(h.NumScalars)); err != nil {
				return track, fmt.Errorf("reading scalars of point %d: %w", j, err)
			}
		}
	}

	if h.NumProperties > 0 {
		if track.Properties, err = c.Float32ArrayLE(int(h.NumProperties)); err != nil {
			return track, fmt.Errorf("reading properties: %w", err)
		}
	}

	return track, nil
}

// expand builds the line-list buffers. Each segment writes both of its
// endpoints, and every segment of a track shares the track color. The
// bounding box covers segment start points only.
func (trk *TRK) expand() {
	segments := 0
	for i := range trk.Tracks {
		segments += trk.Tracks[i].NumSegments()
	}
	trk.NumVertices = segments * 2
	trk.PositionBuffer = make([]float32, trk.NumVertices*3)
	trk.ColorBuffer = make([]float32, trk.NumVertices*3)

	bounds := NewBounds()
	index := 0
	for i := range trk.Tracks {
		track := &trk.Tracks[i]
		color := track.Color()

		for p := 0; p < track.NumSegments(); p++ {
			bounds.Add(track.Points[p].Position)

			for seg := 0; seg < 2; seg++ {
				pos := track.Points[p+seg].Position
				copy(trk.PositionBuffer[index:index+3], pos[:])
				copy(trk.ColorBuffer[index:index+3], color[:])
				index += 3
			}
		}
	}

	trk.Center, trk.Scale = bounds.CenterScale()
}

// NumPoints returns the total number of points over all tracks.
func (trk *TRK) NumPoints() int {
	n := 0
	for i := range trk.Tracks {
		n += len(trk.Tracks[i].Points)
	}
	return n
}

// ParseTRKFile parses a TRK file from disk.
func ParseTRKFile(path string) (*TRK, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading TRK file: %w", err)
	}
	return ParseTRK(data)
}
