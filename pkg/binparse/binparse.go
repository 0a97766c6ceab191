// Package binparse provides bounds-checked primitive readers for fixed-layout
// binary file formats.
//
// Every function is pure: it reads from a caller-owned buffer at an explicit
// offset and never retains the buffer. Reads that would run past the end of
// the buffer fail with a *TruncatedError instead of returning garbage.
//
// "LE" readers decode little-endian (the byte order TrackVis uses), "BE"
// readers decode big-endian (the byte order FreeSurfer uses).
package binparse

import (
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is matched by every out-of-bounds read.
var ErrTruncated = errors.New("truncated input")

// TruncatedError describes a read that does not fit in the buffer.
type TruncatedError struct {
	Offset int // Offset of the attempted read
	Want   int // Number of bytes requested
	Size   int // Length of the buffer
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated input: need %d bytes at offset %d, buffer has %d", e.Want, e.Offset, e.Size)
}

// Is reports whether target is ErrTruncated.
func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// Check returns an error unless n bytes starting at off lie inside buf.
func Check(buf []byte, off, n int) error {
	if off < 0 || n < 0 || off > len(buf) || n > len(buf)-off {
		return &TruncatedError{Offset: off, Want: n, Size: len(buf)}
	}
	return nil
}

// String returns n raw bytes at off as a string.
func String(buf []byte, off, n int) (string, error) {
	if err := Check(buf, off, n); err != nil {
		return "", err
	}
	return string(buf[off : off+n]), nil
}

// CString returns the n-byte field at off, cut at the first NUL byte.
func CString(buf []byte, off, n int) (string, error) {
	if err := Check(buf, off, n); err != nil {
		return "", err
	}
	field := buf[off : off+n]
	for i, b := range field {
		if b == 0 {
			return string(field[:i]), nil
		}
	}
	return string(field), nil
}

// Uint8 reads one unsigned byte.
func Uint8(buf []byte, off int) (uint8, error) {
	if err := Check(buf, off, 1); err != nil {
		return 0, err
	}
	return buf[off], nil
}

// Int8 reads one byte as a two's-complement signed value.
func Int8(buf []byte, off int) (int8, error) {
	b, err := Uint8(buf, off)
	if err != nil {
		return 0, err
	}
	if b > 127 {
		return int8(int(b) - 256), nil
	}
	return int8(b), nil
}

// Uint16LE reads a little-endian uint16.
func Uint16LE(buf []byte, off int) (uint16, error) {
	if err := Check(buf, off, 2); err != nil {
		return 0, err
	}
	return uint16(buf[off]) | uint16(buf[off+1])<<8, nil
}

// Uint16BE reads a big-endian uint16.
func Uint16BE(buf []byte, off int) (uint16, error) {
	if err := Check(buf, off, 2); err != nil {
		return 0, err
	}
	return uint16(buf[off])<<8 | uint16(buf[off+1]), nil
}

// Uint24LE reads a little-endian 24-bit unsigned integer.
func Uint24LE(buf []byte, off int) (uint32, error) {
	if err := Check(buf, off, 3); err != nil {
		return 0, err
	}
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16, nil
}

// Uint24BE reads a big-endian 24-bit unsigned integer.
func Uint24BE(buf []byte, off int) (uint32, error) {
	if err := Check(buf, off, 3); err != nil {
		return 0, err
	}
	return uint32(buf[off])<<16 | uint32(buf[off+1])<<8 | uint32(buf[off+2]), nil
}

// Uint32LE reads a little-endian uint32.
func Uint32LE(buf []byte, off int) (uint32, error) {
	if err := Check(buf, off, 4); err != nil {
		return 0, err
	}
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24, nil
}

// Uint32BE reads a big-endian uint32.
func Uint32BE(buf []byte, off int) (uint32, error) {
	if err := Check(buf, off, 4); err != nil {
		return 0, err
	}
	return uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3]), nil
}

// Float32LE reads a little-endian IEEE-754 single precision value.
func Float32LE(buf []byte, off int) (float32, error) {
	bits, err := Uint32LE(buf, off)
	if err != nil {
		return 0, err
	}
	return FromBits(bits), nil
}

// Float32BE reads a big-endian IEEE-754 single precision value.
func Float32BE(buf []byte, off int) (float32, error) {
	bits, err := Uint32BE(buf, off)
	if err != nil {
		return 0, err
	}
	return FromBits(bits), nil
}

const (
	exponentBias = 127
	mantissaBits = 23
	mantissaMask = 1<<mantissaBits - 1
)

// FromBits rebuilds a float from its sign, exponent and mantissa fields.
//
// Normal numbers come out exactly as math.Float32frombits would produce them.
// The all-zero exponent with a zero mantissa (signed zero) is special-cased to
// 0.0. Denormals, infinities and NaNs are not given IEEE treatment: they are
// evaluated with the implicit leading one like any normal number.
func FromBits(bits uint32) float32 {
	sign := 1.0
	if bits>>31 != 0 {
		sign = -1.0
	}
	exponent := int((bits>>mantissaBits)&0xff) - exponentBias
	mantissa := bits & mantissaMask

	if isZero(exponent, mantissa) {
		return 0.0
	}

	frac := 1 + float64(mantissa)*math.Ldexp(1, -mantissaBits)
	return float32(sign * math.Ldexp(frac, exponent))
}

// isZero reports the encoding of ±0: a biased exponent of 0 and no mantissa.
func isZero(exponent int, mantissa uint32) bool {
	return exponent == -exponentBias && mantissa == 0
}

// Uint16ArrayLE reads n consecutive little-endian uint16 values.
func Uint16ArrayLE(buf []byte, off, n int) ([]uint16, error) {
	if err := Check(buf, off, n*2); err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i], _ = Uint16LE(buf, off+i*2)
	}
	return out, nil
}

// Float32ArrayLE reads n consecutive little-endian floats.
func Float32ArrayLE(buf []byte, off, n int) ([]float32, error) {
	if err := Check(buf, off, n*4); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i], _ = Float32LE(buf, off+i*4)
	}
	return out, nil
}

// Float32ArrayBE reads n consecutive big-endian floats.
func Float32ArrayBE(buf []byte, off, n int) ([]float32, error) {
	if err := Check(buf, off, n*4); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i], _ = Float32BE(buf, off+i*4)
	}
	return out, nil
}
