// Package formats provides decoders for neuroimaging file formats.
//
// Each decoder is a pure function of its input buffer: it returns a fully
// populated value with flat float32 buffers ready to upload to a GPU, or an
// error and no value at all.
package formats

// Note: MRIS (FreeSurfer triangle surface) is implemented in mris.go
// Note: CRV (FreeSurfer "new" curvature) is implemented in crv.go
// Note: TRK (TrackVis streamlines) is implemented in trk.go
// Note: Detect identifies a buffer's format from its magic number
