package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	stdmath "math"
	"os"
	"path/filepath"
	"testing"
)

// createTestCRV builds a curvature file in memory.
func createTestCRV(values []float32) []byte {
	buf := new(bytes.Buffer)

	// Magic 0xFFFFFF
	buf.Write([]byte{0xff, 0xff, 0xff})
	binary.Write(buf, binary.BigEndian, uint32(len(values)))
	binary.Write(buf, binary.BigEndian, uint32(0)) // face count
	binary.Write(buf, binary.BigEndian, uint32(1)) // values per vertex
	binary.Write(buf, binary.BigEndian, values)

	return buf.Bytes()
}

// meshWithVertices returns a surface with n vertices fanned into triangles.
func meshWithVertices(t *testing.T, n int) *MRIS {
	t.Helper()

	vertices := make([][3]float32, n)
	for i := range vertices {
		angle := float64(i) / float64(n) * 2 * stdmath.Pi
		vertices[i] = [3]float32{float32(stdmath.Cos(angle)), float32(stdmath.Sin(angle)), float32(i)}
	}
	var faces [][3]uint32
	for i := 1; i+1 < n; i++ {
		faces = append(faces, [3]uint32{0, uint32(i), uint32(i + 1)})
	}

	mris, err := ParseMRIS(createTestMRIS(vertices, faces))
	if err != nil {
		t.Fatalf("building test surface: %v", err)
	}
	return mris
}

func approxEqual(a, b, eps float64) bool {
	return stdmath.Abs(a-b) <= eps
}

func TestParseCRV_Statistics(t *testing.T) {
	mesh := meshWithVertices(t, 4)

	crv, err := ParseCRV(createTestCRV([]float32{1, -1, 2, -2}), mesh)
	if err != nil {
		t.Fatalf("ParseCRV failed: %v", err)
	}

	if crv.PosMean != 1.5 {
		t.Errorf("PosMean = %v, want 1.5", crv.PosMean)
	}
	if crv.NegMean != -1.5 {
		t.Errorf("NegMean = %v, want -1.5", crv.NegMean)
	}
	want := 0.5 * stdmath.Sqrt2
	if !approxEqual(crv.PosStdDev, want, 1e-9) {
		t.Errorf("PosStdDev = %v, want %v", crv.PosStdDev, want)
	}
	if !approxEqual(crv.NegStdDev, want, 1e-9) {
		t.Errorf("NegStdDev = %v, want %v", crv.NegStdDev, want)
	}

	if crv.MinCurv[0] != -2 || crv.MaxCurv[0] != 2 {
		t.Errorf("true range = [%v, %v], want [-2, 2]", crv.MinCurv[0], crv.MaxCurv[0])
	}

	lo, hi := crv.ClampRange()
	if !approxEqual(float64(lo), -1.5-2.5*want, 1e-5) {
		t.Errorf("clamp min = %v, want %v", lo, -1.5-2.5*want)
	}
	if !approxEqual(float64(hi), 1.5+2.5*want, 1e-5) {
		t.Errorf("clamp max = %v, want %v", hi, 1.5+2.5*want)
	}
}

func TestParseCRV_OneSided(t *testing.T) {
	tests := []struct {
		name   string
		values []float32
		check  func(t *testing.T, crv *CRV)
	}{
		{
			name:   "all positive",
			values: []float32{0, 0.5, 1, 1.5},
			check: func(t *testing.T, crv *CRV) {
				if crv.NegMean != 0 || crv.NegStdDev != 0 {
					t.Errorf("negative stats = (%v, %v), want zeros", crv.NegMean, crv.NegStdDev)
				}
				if crv.PosMean != 0.75 {
					t.Errorf("PosMean = %v, want 0.75", crv.PosMean)
				}
				if crv.MinCurv[1] != 0 {
					t.Errorf("clamp min = %v, want 0", crv.MinCurv[1])
				}
			},
		},
		{
			name:   "all negative",
			values: []float32{-1, -2, -3, -4},
			check: func(t *testing.T, crv *CRV) {
				if crv.PosMean != 0 || crv.PosStdDev != 0 {
					t.Errorf("positive stats = (%v, %v), want zeros", crv.PosMean, crv.PosStdDev)
				}
				if crv.NegMean != -2.5 {
					t.Errorf("NegMean = %v, want -2.5", crv.NegMean)
				}
				if crv.MaxCurv[1] != 0 {
					t.Errorf("clamp max = %v, want 0", crv.MaxCurv[1])
				}
			},
		},
		{
			name:   "single sample per partition",
			values: []float32{3, -3, 3, 3},
			check: func(t *testing.T, crv *CRV) {
				if crv.NegMean != -3 || crv.NegStdDev != 0 {
					t.Errorf("negative stats = (%v, %v), want (-3, 0)", crv.NegMean, crv.NegStdDev)
				}
				if crv.PosStdDev != 0 {
					t.Errorf("PosStdDev = %v, want 0 for identical samples", crv.PosStdDev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crv, err := ParseCRV(createTestCRV(tt.values), meshWithVertices(t, len(tt.values)))
			if err != nil {
				t.Fatalf("ParseCRV failed: %v", err)
			}
			for _, v := range []float64{crv.PosMean, crv.NegMean, crv.PosStdDev, crv.NegStdDev} {
				if stdmath.IsNaN(v) {
					t.Fatal("statistics must never be NaN")
				}
			}
			tt.check(t, crv)
		})
	}
}

func TestParseCRV_CurvatureBuffer(t *testing.T) {
	mesh := meshWithVertices(t, 5) // faces (0,1,2) (0,2,3) (0,3,4)
	values := []float32{10, 11, 12, 13, 14}

	crv, err := ParseCRV(createTestCRV(values), mesh)
	if err != nil {
		t.Fatalf("ParseCRV failed: %v", err)
	}

	want := []float32{10, 11, 12, 10, 12, 13, 10, 13, 14}
	if len(crv.CurvatureBuffer) != len(want) {
		t.Fatalf("buffer length %d, want %d", len(crv.CurvatureBuffer), len(want))
	}
	if len(crv.CurvatureBuffer)*3 != len(mesh.PositionBuffer) {
		t.Errorf("buffer does not match surface: %d corners vs %d position floats",
			len(crv.CurvatureBuffer), len(mesh.PositionBuffer))
	}
	for i, v := range want {
		if crv.CurvatureBuffer[i] != v {
			t.Errorf("CurvatureBuffer[%d] = %v, want %v", i, crv.CurvatureBuffer[i], v)
		}
	}
}

func TestParseCRV_Errors(t *testing.T) {
	mesh := meshWithVertices(t, 4)
	valid := createTestCRV([]float32{1, 2, 3, 4})

	badMagic := append([]byte{}, valid...)
	badMagic[0] = 0x00

	vectorValued := append([]byte{}, valid...)
	binary.BigEndian.PutUint32(vectorValued[11:], 3)

	tests := []struct {
		name    string
		data    []byte
		mesh    *MRIS
		wantErr error
	}{
		{"invalid magic", badMagic, mesh, ErrInvalidCRVMagic},
		{"invalid magic is a format error", badMagic, mesh, ErrFormat},
		{"vertex count mismatch", createTestCRV([]float32{1, 2, 3}), mesh, ErrVertexCountMismatch},
		{"vector valued", vectorValued, mesh, ErrUnsupportedCRVValues},
		{"truncated header", valid[:8], mesh, ErrTruncated},
		{"truncated values", valid[:len(valid)-2], mesh, ErrTruncated},
		{"empty", nil, mesh, ErrTruncated},
		{"nil mesh", valid, nil, ErrNilMesh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crv, err := ParseCRV(tt.data, tt.mesh)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if crv != nil {
				t.Error("expected no curvature field on error")
			}
		})
	}
}

func TestParseCRVFile(t *testing.T) {
	mesh := meshWithVertices(t, 4)
	path := filepath.Join(t.TempDir(), "lh.curv")
	if err := os.WriteFile(path, createTestCRV([]float32{0.1, -0.1, 0.2, -0.2}), 0644); err != nil {
		t.Fatalf("failed to write test curvature: %v", err)
	}

	crv, err := ParseCRVFile(path, mesh)
	if err != nil {
		t.Fatalf("ParseCRVFile failed: %v", err)
	}
	if crv.NumVertices != 4 || crv.ValuesPerVertex != 1 {
		t.Errorf("unexpected header: %d vertices, %d values", crv.NumVertices, crv.ValuesPerVertex)
	}
}
