package zpack

import (
	"errors"
	"io"
)

var errWriterClosed = errors.New("zpack: Writer is closed")

// A Writer compresses everything written to it into one frame on an
// underlying io.Writer.
type Writer struct {
	c   *Compressor
	dst io.Writer
	buf []byte
	err error
}

// NewWriter returns a Writer that writes a frame compressed with p to dst.
func NewWriter(dst io.Writer, p Params, opts ...Option) (*Writer, error) {
	c, err := NewCompressor(p, opts...)
	if err != nil {
		return nil, err
	}
	return &Writer{
		c:   c,
		dst: dst,
		buf: make([]byte, CompressOutSize()),
	}, nil
}

// SetPledgedSize announces the total size that will be written, so the
// frame header can record it. It must be called before the first Write.
func (w *Writer) SetPledgedSize(n int64) error {
	return w.c.SetPledgedSize(n)
}

// LoadDictionary primes the frame with d. It must be called before the
// first Write.
func (w *Writer) LoadDictionary(d *Dictionary) error {
	return w.c.LoadDictionary(d)
}

func (w *Writer) writeChunk(p []byte, end EndDirective) (n int, err error) {
	if w.dst == nil {
		return 0, errWriterClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	in := InBuffer{Src: p}
	for {
		out := OutBuffer{Dst: w.buf}
		remaining, err := w.c.CompressStream(&out, &in, end)
		n = in.Pos
		if err != nil {
			w.err = err
			return n, err
		}
		if out.Pos > 0 {
			if _, err := w.dst.Write(w.buf[:out.Pos]); err != nil {
				w.err = err
				return n, err
			}
		}
		if in.Pos == len(p) && remaining == 0 {
			return n, nil
		}
	}
}

// Write compresses p. Output is written to the underlying writer a block at
// a time, though without a pledged size it may wait for Flush or Close.
func (w *Writer) Write(p []byte) (int, error) {
	return w.writeChunk(p, Continue)
}

// Flush writes out everything written so far, so that it can be
// decompressed, without ending the frame.
func (w *Writer) Flush() error {
	_, err := w.writeChunk(nil, Flush)
	return err
}

// Close completes the frame. It does not close the underlying writer.
func (w *Writer) Close() error {
	_, err := w.writeChunk(nil, End)
	w.dst = nil
	return err
}

// Reset discards the state of w and starts a new frame on dst, keeping the
// parameters and dictionary.
func (w *Writer) Reset(dst io.Writer) error {
	if err := w.c.Reset(ResetSession); err != nil {
		return err
	}
	w.dst = dst
	w.err = nil
	return nil
}
