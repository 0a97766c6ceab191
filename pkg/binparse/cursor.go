package binparse

// Cursor walks a buffer sequentially. It does not own the buffer and keeps
// no state besides the current offset, so decoders can create one per call.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at off.
func NewCursor(buf []byte, off int) *Cursor {
	return &Cursor{buf: buf, off: off}
}

// Offset returns the current position.
func (c *Cursor) Offset() int { return c.off }

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	if c.off >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.off
}

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(off int) error {
	if err := Check(c.buf, off, 0); err != nil {
		return err
	}
	c.off = off
	return nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := Check(c.buf, c.off, n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Need fails unless n more bytes are available.
func (c *Cursor) Need(n int) error {
	return Check(c.buf, c.off, n)
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	v, err := Uint8(c.buf, c.off)
	if err == nil {
		c.off++
	}
	return v, err
}

// Uint24BE reads a big-endian 24-bit value.
func (c *Cursor) Uint24BE() (uint32, error) {
	v, err := Uint24BE(c.buf, c.off)
	if err == nil {
		c.off += 3
	}
	return v, err
}

// Uint32BE reads a big-endian uint32.
func (c *Cursor) Uint32BE() (uint32, error) {
	v, err := Uint32BE(c.buf, c.off)
	if err == nil {
		c.off += 4
	}
	return v, err
}

// Uint32LE reads a little-endian uint32.
func (c *Cursor) Uint32LE() (uint32, error) {
	v, err := Uint32LE(c.buf, c.off)
	if err == nil {
		c.off += 4
	}
	return v, err
}

// Float32BE reads a big-endian float.
func (c *Cursor) Float32BE() (float32, error) {
	v, err := Float32BE(c.buf, c.off)
	if err == nil {
		c.off += 4
	}
	return v, err
}

// Float32LE reads a little-endian float.
func (c *Cursor) Float32LE() (float32, error) {
	v, err := Float32LE(c.buf, c.off)
	if err == nil {
		c.off += 4
	}
	return v, err
}

// Float32ArrayLE reads n little-endian floats.
func (c *Cursor) Float32ArrayLE(n int) ([]float32, error) {
	v, err := Float32ArrayLE(c.buf, c.off, n)
	if err == nil {
		c.off += n * 4
	}
	return v, err
}
