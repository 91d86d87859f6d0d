package zpack

import (
	"fmt"
	"io"
)

// A Reader decompresses the frames read from an underlying io.Reader.
// Concatenated frames are decoded one after another.
type Reader struct {
	d   *Decompressor
	src io.Reader
	buf []byte
	in  InBuffer

	srcErr   error
	boundary bool // no frame is partly decoded
	err      error
}

// NewReader returns a Reader that decompresses src.
func NewReader(src io.Reader, p DecoderParams, opts ...Option) (*Reader, error) {
	d, err := NewDecompressor(p, opts...)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		d:   d,
		buf: make([]byte, DecompressInSize()),
	}
	r.reset(src)
	return r, nil
}

// LoadDictionary makes d available to the frames that follow.
func (r *Reader) LoadDictionary(d *Dictionary) error {
	return r.d.LoadDictionary(d)
}

func (r *Reader) reset(src io.Reader) {
	r.src = src
	r.in = InBuffer{Src: r.buf[:0]}
	r.srcErr = nil
	r.boundary = false
	r.err = nil
}

// Reset discards the state of r and starts reading from src.
func (r *Reader) Reset(src io.Reader) error {
	if err := r.d.Reset(ResetSession); err != nil {
		return err
	}
	r.reset(src)
	return nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		out := OutBuffer{Dst: p}
		start := r.in.Pos
		hint, err := r.d.DecompressStream(&out, &r.in)
		if err != nil {
			r.err = err
			return out.Pos, err
		}
		if hint == 0 {
			r.boundary = true
		} else if r.in.Pos > start {
			r.boundary = false
		}
		if out.Pos > 0 {
			return out.Pos, nil
		}
		if r.in.Pos < len(r.in.Src) {
			// The next frame starts in the buffer.
			continue
		}

		if r.srcErr != nil {
			r.err = r.srcErr
			if r.err == io.EOF && !r.boundary {
				r.err = fmt.Errorf("%w: %w", ErrCorruption, io.ErrUnexpectedEOF)
			}
			return 0, r.err
		}
		n, err := r.src.Read(r.buf)
		r.in = InBuffer{Src: r.buf[:n]}
		if err != nil {
			r.srcErr = err
		}
	}
}

// Close releases the decoder. It does not close the underlying reader.
func (r *Reader) Close() error {
	r.err = errReaderClosed
	return r.d.Close()
}

var errReaderClosed = fmt.Errorf("%w: Reader is closed", ErrWrongStage)
