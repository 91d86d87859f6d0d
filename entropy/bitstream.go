package entropy

import "math/bits"

// A BitWriter accumulates bits from the least significant end and appends
// them to a byte slice. The stream it produces is meant to be read backward by
// a BitReader.
type BitWriter struct {
	out   []byte
	cont  uint64
	nBits uint
}

// Reset starts a new stream that will be appended to dst.
func (w *BitWriter) Reset(dst []byte) {
	w.out = dst
	w.cont = 0
	w.nBits = 0
}

// AddBits writes the low n bits of v. n must not exceed 56.
func (w *BitWriter) AddBits(v uint64, n uint) {
	if n == 0 {
		return
	}
	w.cont |= (v & (1<<n - 1)) << w.nBits
	w.nBits += n
	for w.nBits >= 8 {
		w.out = append(w.out, byte(w.cont))
		w.cont >>= 8
		w.nBits -= 8
	}
}

// Close terminates the stream with a marker bit, pads the final byte, and
// returns the slice passed to Reset with the stream appended.
func (w *BitWriter) Close() []byte {
	w.AddBits(1, 1)
	if w.nBits > 0 {
		w.out = append(w.out, byte(w.cont))
	}
	w.cont = 0
	w.nBits = 0
	return w.out
}

// A BitReader reads a stream produced by BitWriter, starting from its end.
// Reading past the beginning of the stream yields zero bits and sets the
// overflow flag, which callers must check before trusting decoded values.
type BitReader struct {
	in    []byte
	pos   int    // in[:pos] has not been loaded yet
	cont  uint64 // the low nBits bits are unread; bit nBits-1 comes next
	nBits uint
	over  bool
}

// Init prepares r to read in. It fails if in is empty or its last byte lacks
// the end marker.
func (r *BitReader) Init(in []byte) error {
	if len(in) == 0 {
		return ErrCorrupt
	}
	last := in[len(in)-1]
	if last == 0 {
		return ErrCorrupt
	}
	r.in = in
	r.pos = len(in) - 1
	r.nBits = uint(bits.Len8(last)) - 1
	r.cont = uint64(last) & (1<<r.nBits - 1)
	r.over = false
	return nil
}

func (r *BitReader) fill() {
	for r.nBits <= 56 && r.pos > 0 {
		r.pos--
		r.cont = r.cont<<8 | uint64(r.in[r.pos])
		r.nBits += 8
	}
}

// ReadBits returns the next n bits, n <= 56.
func (r *BitReader) ReadBits(n uint) uint64 {
	if n == 0 {
		return 0
	}
	if r.nBits < n {
		r.fill()
		if r.nBits < n {
			v := r.cont << (n - r.nBits)
			r.cont = 0
			r.nBits = 0
			r.over = true
			return v
		}
	}
	r.nBits -= n
	v := r.cont >> r.nBits
	r.cont &= 1<<r.nBits - 1
	return v
}

// PeekBits returns the next n bits without consuming them. Missing bits
// past the start of the stream read as zero.
func (r *BitReader) PeekBits(n uint) uint64 {
	if r.nBits < n {
		r.fill()
		if r.nBits < n {
			return r.cont << (n - r.nBits)
		}
	}
	return r.cont >> (r.nBits - n)
}

// SkipBits consumes n bits, typically after PeekBits.
func (r *BitReader) SkipBits(n uint) {
	r.ReadBits(n)
}

// Overflowed reports whether more bits were read than the stream holds.
func (r *BitReader) Overflowed() bool {
	return r.over
}

// Finished reports whether every bit of the stream has been consumed
// exactly.
func (r *BitReader) Finished() bool {
	return !r.over && r.pos == 0 && r.nBits == 0
}

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int {
	return int(r.nBits) + 8*r.pos
}
