package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/neuroview/pkg/formats"
)

func testMesh(t *testing.T) *formats.MRIS {
	t.Helper()

	buf := new(bytes.Buffer)
	buf.Write([]byte{0xff, 0xff, 0xfe})
	buf.WriteString("created by bundle test\n\n")
	vertices := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	faces := [][3]uint32{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}}
	binary.Write(buf, binary.BigEndian, uint32(len(vertices)))
	binary.Write(buf, binary.BigEndian, uint32(len(faces)))
	for _, v := range vertices {
		binary.Write(buf, binary.BigEndian, v)
	}
	for _, f := range faces {
		binary.Write(buf, binary.BigEndian, f)
	}

	mesh, err := formats.ParseMRIS(buf.Bytes())
	if err != nil {
		t.Fatalf("building test mesh: %v", err)
	}
	return mesh
}

func testCurvature(t *testing.T, mesh *formats.MRIS) *formats.CRV {
	t.Helper()

	buf := new(bytes.Buffer)
	buf.Write([]byte{0xff, 0xff, 0xff})
	binary.Write(buf, binary.BigEndian, uint32(4))
	binary.Write(buf, binary.BigEndian, uint32(4))
	binary.Write(buf, binary.BigEndian, uint32(1))
	binary.Write(buf, binary.BigEndian, []float32{0.5, -0.25, 1, -1})

	crv, err := formats.ParseCRV(buf.Bytes(), mesh)
	if err != nil {
		t.Fatalf("building test curvature: %v", err)
	}
	return crv
}

func testTracks(t *testing.T) *formats.TRK {
	t.Helper()

	h := make([]byte, formats.TRKHeaderSize)
	copy(h, "TRACK\x00")
	binary.LittleEndian.PutUint32(h[988:], 2)
	binary.LittleEndian.PutUint32(h[992:], 2)
	binary.LittleEndian.PutUint32(h[996:], formats.TRKHeaderSize)

	buf := bytes.NewBuffer(h)
	for _, track := range [][][3]float32{
		{{0, 0, 0}, {2, 0, 0}, {2, 2, 0}},
		{{0, 0, 0}, {0, 0, 4}},
	} {
		binary.Write(buf, binary.LittleEndian, uint32(len(track)))
		for _, p := range track {
			binary.Write(buf, binary.LittleEndian, p)
		}
	}

	trk, err := formats.ParseTRK(buf.Bytes())
	if err != nil {
		t.Fatalf("building test tracks: %v", err)
	}
	return trk
}

func equalFloats(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	mesh := testMesh(t)
	c := Contents{
		Mesh:      mesh,
		Curvature: testCurvature(t, mesh),
		Tracks:    testTracks(t),
	}

	path, written, err := Write(dir, "lh", c)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != filepath.Join(dir, "lh"+SuffixManifest) {
		t.Errorf("manifest path = %s", path)
	}

	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}

	if m.Name != "lh" {
		t.Errorf("Name = %q, want lh", m.Name)
	}
	if m.Surface == nil || *m.Surface != *written.Surface {
		t.Errorf("surface info = %+v, want %+v", m.Surface, written.Surface)
	}
	if m.Curvature == nil || *m.Curvature != *written.Curvature {
		t.Errorf("curvature info = %+v, want %+v", m.Curvature, written.Curvature)
	}
	if m.Tracks == nil || *m.Tracks != *written.Tracks {
		t.Errorf("track info = %+v, want %+v", m.Tracks, written.Tracks)
	}

	if m.Surface.RenderVertices != 12 || m.Surface.Faces != 4 {
		t.Errorf("surface counts = %+v", m.Surface)
	}
	if m.Curvature.Range != [2]float32{-1, 1} {
		t.Errorf("curvature range = %v", m.Curvature.Range)
	}
	if m.Tracks.Tracks != 2 || m.Tracks.Points != 5 || m.Tracks.RenderVertices != 6 {
		t.Errorf("track counts = %+v", m.Tracks)
	}

	buffers := []struct {
		file string
		want []float32
	}{
		{m.Surface.Positions, mesh.PositionBuffer},
		{m.Surface.Normals, mesh.NormalBuffer},
		{m.Curvature.File, c.Curvature.CurvatureBuffer},
		{m.Tracks.Positions, c.Tracks.PositionBuffer},
		{m.Tracks.Colors, c.Tracks.ColorBuffer},
	}
	for _, b := range buffers {
		got, err := ReadBuffer(filepath.Join(dir, b.file))
		if err != nil {
			t.Fatalf("ReadBuffer(%s) failed: %v", b.file, err)
		}
		if !equalFloats(got, b.want) {
			t.Errorf("%s does not match the decoded buffer", b.file)
		}
	}
}

func TestWrite_Partial(t *testing.T) {
	dir := t.TempDir()

	path, m, err := Write(dir, "tracts", Contents{Tracks: testTracks(t)})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if m.Surface != nil || m.Curvature != nil {
		t.Error("expected only track info")
	}

	if _, err := os.Stat(filepath.Join(dir, "tracts"+SuffixPositions)); !os.IsNotExist(err) {
		t.Error("surface buffer should not be written")
	}

	loaded, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if loaded.Surface != nil || loaded.Tracks == nil {
		t.Errorf("unexpected manifest: %+v", loaded)
	}
}

func TestWrite_Errors(t *testing.T) {
	dir := t.TempDir()
	tracks := testTracks(t)

	tests := []struct {
		name    string
		bundle  string
		c       Contents
		wantErr error
	}{
		{"empty", "lh", Contents{}, ErrEmpty},
		{"empty name", "", Contents{Tracks: tracks}, ErrInvalidName},
		{"name with path", "../lh", Contents{Tracks: tracks}, ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Write(dir, tt.bundle, tt.c); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadBuffer_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odd.f32")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := ReadBuffer(path); !errors.Is(err, ErrUnaligned) {
		t.Errorf("expected ErrUnaligned, got %v", err)
	}
	if _, err := ReadBuffer(filepath.Join(dir, "missing.f32")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadManifest_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.manifest.yaml")
	if err := os.WriteFile(path, []byte("surface: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := ReadManifest(path); err == nil {
		t.Error("expected error for invalid manifest")
	}
}
