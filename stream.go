package zpack

import (
	"encoding/binary"
)

// An InBuffer is input for a streaming call. Src[Pos:] has not been
// consumed yet; the call advances Pos.
type InBuffer struct {
	Src []byte
	Pos int
}

// An OutBuffer is room for output of a streaming call. The call writes to
// Dst[Pos:] and advances Pos.
type OutBuffer struct {
	Dst []byte
	Pos int
}

// An EndDirective tells CompressStream what to do with buffered input.
type EndDirective int

const (
	// Continue buffers input and emits blocks as they fill.
	Continue EndDirective = iota

	// Flush emits everything buffered, so the output so far can be
	// decoded, without ending the frame.
	Flush

	// End emits everything buffered and completes the frame.
	End
)

// CompressInSize returns a good input chunk size for CompressStream: one
// block.
func CompressInSize() int {
	return MaxBlockSize
}

// CompressOutSize returns an output buffer size that lets CompressStream
// emit a whole block in one call.
func CompressOutSize() int {
	return compressBound(MaxBlockSize, MaxBlockSize)
}

// DecompressInSize returns a good input chunk size for DecompressStream:
// one block with its header.
func DecompressInSize() int {
	return MaxBlockSize + blockHeaderSize
}

// DecompressOutSize returns an output buffer size that holds the content of
// a whole block.
func DecompressOutSize() int {
	return MaxBlockSize
}

func checkBuffers(out *OutBuffer, in *InBuffer) error {
	if out == nil || out.Pos < 0 || out.Pos > len(out.Dst) {
		return invalidf("output buffer position out of range")
	}
	if in == nil || in.Pos < 0 || in.Pos > len(in.Src) {
		return invalidf("input buffer position out of range")
	}
	return nil
}

// CompressStream consumes input from in and writes compressed output to
// out, as far as both allow. It returns how many bytes are still waiting to
// be written: with Flush or End, the call must be repeated with more output
// room until it returns 0. Once End has returned 0 the frame is complete,
// and the next frame needs a Reset.
//
// Without a pledged size, output is held back until End, or until the
// input outgrows the window, so that the frame comes out the same as from
// Compress. A Flush ends the wait, at the cost of a header without the
// content size. A Flush with nothing new to write emits an empty block.
func (c *Compressor) CompressStream(out *OutBuffer, in *InBuffer, end EndDirective) (int, error) {
	switch c.state {
	case stateClosed:
		return 0, ErrContextClosed
	case stateEnded:
		return 0, ErrStreamEnded
	}
	if end < Continue || end > End {
		return 0, invalidf("unknown end directive %d", int(end))
	}
	if err := checkBuffers(out, in); err != nil {
		return 0, err
	}
	f := &c.frame
	if c.state == stateReady {
		c.beginFrame()
		c.state = stateActive
	}
	bs := c.blockSize()
	owed := end == Flush && f.outPos == len(f.out)

	for {
		c.drain(out)
		if (!f.deferred && f.outPos < len(f.out)) || f.ended {
			break
		}
		if in.Pos < len(in.Src) {
			if len(f.in) == bs {
				// Only emit a full block once more input shows it is not
				// the last one.
				c.emit(f.in, false)
				f.in = f.in[:0]
				continue
			}
			n := bs - len(f.in)
			if avail := len(in.Src) - in.Pos; avail < n {
				n = avail
			}
			if f.pledged >= 0 && f.consumed+uint64(n) > uint64(f.pledged) {
				return 0, invalidf("input exceeds the pledged size of %d bytes", f.pledged)
			}
			f.in = reserve(c.opts.alloc, f.in, n)
			f.in = append(f.in, in.Src[in.Pos:in.Pos+n]...)
			in.Pos += n
			f.consumed += uint64(n)
			continue
		}
		if end == Flush && (owed || len(f.in) > 0 || len(f.pend) > 0 || f.deferred) {
			c.flush()
			owed = false
			continue
		}
		if end == End {
			if f.pledged >= 0 && f.consumed != uint64(f.pledged) {
				return 0, invalidf("stream of %d bytes ends short of the pledged %d", f.consumed, f.pledged)
			}
			c.emit(f.in, true)
			f.in = f.in[:0]
			continue
		}
		break
	}

	remaining := 0
	if !f.deferred {
		remaining = len(f.out) - f.outPos
	}
	if end != Continue {
		remaining += len(f.in) + len(f.pend)
		if end == End && !f.ended {
			remaining += blockHeaderSize
		}
	}
	if end == End && remaining == 0 {
		c.state = stateEnded
		f.pledged = -1
	}
	return remaining, nil
}

// emit compresses one block, starting the frame first if needed. Before
// the content size is known, blocks are held in pend while the frame may
// still fit a single segment.
func (c *Compressor) emit(block []byte, last bool) {
	f := &c.frame
	if !f.started {
		if !last && f.pledged < 0 && !c.p.NoContentSize {
			f.pend = reserve(c.opts.alloc, f.pend, len(block))
			f.pend = append(f.pend, block...)
			if len(f.pend) <= 1<<c.p.WindowLog {
				return
			}
			// Past the window the setup no longer depends on the size;
			// only the header waits for it.
			c.startBlocks(-1)
			f.deferred = true
			c.compressPending()
			return
		}
		c.start(last)
	}
	c.compressBlock(block, last)
}

// start begins the frame with the best content size known so far, and
// compresses any held blocks.
func (c *Compressor) start(last bool) {
	f := &c.frame
	size := int64(-1)
	switch {
	case f.pledged >= 0:
		size = f.pledged
	case last:
		size = int64(f.consumed)
	}
	c.startBlocks(size)
	c.compressPending()
}

func (c *Compressor) compressPending() {
	f := &c.frame
	bs := c.blockSize()
	for p := f.pend; len(p) > 0; {
		n := bs
		if n > len(p) {
			n = len(p)
		}
		c.compressBlock(p[:n], false)
		p = p[n:]
	}
	f.pend = f.pend[:0]
}

// flush writes out everything held so far, with an empty block if there is
// nothing else to write.
func (c *Compressor) flush() {
	f := &c.frame
	held := len(f.pend) > 0 || f.deferred
	if !f.started {
		c.start(false)
	}
	if len(f.in) > 0 || !held {
		c.compressBlock(f.in, false)
		f.in = f.in[:0]
	}
	if f.deferred {
		c.finishHeader(-1)
	}
}

func (c *Compressor) drain(out *OutBuffer) {
	f := &c.frame
	if f.deferred {
		return
	}
	n := copy(out.Dst[out.Pos:], f.out[f.outPos:])
	out.Pos += n
	f.outPos += n
	if f.outPos == len(f.out) {
		f.out = f.out[:0]
		f.outPos = 0
	}
}

type decStage uint8

const (
	stageHeader decStage = iota
	stageSkip
	stageBlockHeader
	stageBlock
	stageChecksum
	stageFrameDone
)

// decStream is the state of a frame being decoded incrementally.
type decStream struct {
	stage   decStage
	header  FrameHeader
	block   blockHeader
	hdr     []byte // frame header bytes gathered so far
	buf     []byte // block or checksum bytes gathered so far
	skip    int    // bytes of a skippable frame left to skip
	hist    []byte // decoded content kept as the window
	flushed int    // hist[:flushed] has been written out
	dropped bool   // content was dropped from the front of hist
	total   uint64 // content decoded in this frame
	alloc   Allocator
}

func (s *decStream) reset() {
	*s = decStream{
		hdr:   s.hdr[:0],
		buf:   s.buf[:0],
		hist:  s.hist[:0],
		alloc: s.alloc,
	}
}

// gather collects n bytes for the current stage. It returns them once all
// are available; the result may alias in.Src or s.buf.
func (s *decStream) gather(in *InBuffer, n int) ([]byte, bool) {
	if len(s.buf) == 0 && len(in.Src)-in.Pos >= n {
		b := in.Src[in.Pos : in.Pos+n]
		in.Pos += n
		return b, true
	}
	take := n - len(s.buf)
	if avail := len(in.Src) - in.Pos; avail < take {
		take = avail
	}
	s.buf = reserve(s.alloc, s.buf, take)
	s.buf = append(s.buf, in.Src[in.Pos:in.Pos+take]...)
	in.Pos += take
	if len(s.buf) < n {
		return nil, false
	}
	b := s.buf
	s.buf = s.buf[:0]
	return b, true
}

// fillHeader appends input to s.hdr until it holds n bytes.
func (s *decStream) fillHeader(in *InBuffer, n int) bool {
	if take := n - len(s.hdr); take > 0 {
		if avail := len(in.Src) - in.Pos; avail < take {
			take = avail
		}
		s.hdr = append(s.hdr, in.Src[in.Pos:in.Pos+take]...)
		in.Pos += take
	}
	return len(s.hdr) >= n
}

// trim drops flushed content that is no longer within the window.
func (s *decStream) trim() {
	if s.header.SingleSegment || s.flushed < len(s.hist) {
		return
	}
	w := int(s.header.WindowSize)
	if len(s.hist) <= 2*w {
		return
	}
	drop := len(s.hist) - w
	copy(s.hist, s.hist[drop:])
	s.hist = s.hist[:w]
	s.flushed -= drop
	s.dropped = true
}

// DecompressStream consumes input from in and writes decoded content to
// out, as far as both allow. It returns 0 when a frame has been completely
// decoded and written out; the next call starts on the following frame.
// Otherwise it returns a hint of how many more input bytes the current
// stage needs, or a positive value if output is waiting for room.
func (d *Decompressor) DecompressStream(out *OutBuffer, in *InBuffer) (int, error) {
	if d.state == stateClosed {
		return 0, ErrContextClosed
	}
	if err := checkBuffers(out, in); err != nil {
		return 0, err
	}
	s := &d.stream
	for {
		if s.flushed < len(s.hist) {
			n := copy(out.Dst[out.Pos:], s.hist[s.flushed:])
			out.Pos += n
			s.flushed += n
			if s.flushed < len(s.hist) {
				return len(s.hist) - s.flushed, nil
			}
		}

		switch s.stage {
		case stageHeader:
			if !s.fillHeader(in, 4) {
				return 5 - len(s.hdr), nil
			}
			if isSkippable(s.hdr) {
				if !s.fillHeader(in, 8) {
					return 8 - len(s.hdr), nil
				}
				s.skip = int(binary.LittleEndian.Uint32(s.hdr[4:]))
				s.hdr = s.hdr[:0]
				s.stage = stageSkip
				d.state = stateActive
				continue
			}
			if string(s.hdr[:4]) != string(frameMagic) {
				s.hdr = s.hdr[:0]
				return 0, ErrNotThisFormat
			}
			if !s.fillHeader(in, 5) {
				return 1, nil
			}
			n, err := frameHeaderSize(s.hdr)
			if err != nil {
				return 0, err
			}
			if !s.fillHeader(in, n) {
				return n - len(s.hdr), nil
			}
			h, err := ParseFrameHeader(s.hdr)
			if err != nil {
				return 0, err
			}
			if err := d.checkFrame(h); err != nil {
				return 0, err
			}
			s.hdr = s.hdr[:0]
			s.header = h
			s.hist = s.hist[:0]
			s.flushed = 0
			s.dropped = false
			s.total = 0
			d.dec.reset(d.dict)
			d.hasher.Reset()
			s.stage = stageBlockHeader
			d.state = stateActive

		case stageSkip:
			n := len(in.Src) - in.Pos
			if n > s.skip {
				n = s.skip
			}
			in.Pos += n
			s.skip -= n
			if s.skip > 0 {
				return s.skip, nil
			}
			s.stage = stageHeader
			d.state = stateReady

		case stageBlockHeader:
			b, ok := s.gather(in, blockHeaderSize)
			if !ok {
				return blockHeaderSize - len(s.buf), nil
			}
			s.block = parseBlockHeader(b)
			if s.block.typ == blockReserved {
				return 0, corruptf("reserved block type")
			}
			if n := s.block.payloadSize(); n > MaxBlockSize {
				return 0, corruptf("block of %d bytes", n)
			}
			s.stage = stageBlock

		case stageBlock:
			n := s.block.payloadSize()
			p, ok := s.gather(in, n)
			if !ok {
				return n - len(s.buf), nil
			}
			s.trim()
			s.hist = reserve(s.alloc, s.hist, MaxBlockSize)
			before := len(s.hist)
			var err error
			s.hist, err = d.dec.decode(s.hist, s.block, p, d.refs(s.header, 0, s.dropped))
			if err != nil {
				return 0, err
			}
			s.total += uint64(len(s.hist) - before)
			if s.header.HasContentSize && s.total > s.header.ContentSize {
				return 0, corruptf("content exceeds the declared %d bytes", s.header.ContentSize)
			}
			if s.header.SingleSegment && s.total > uint64(d.p.MaxMemory) {
				return 0, allocf("content exceeds the memory limit of %d", d.p.MaxMemory)
			}
			if s.header.Checksum && !d.p.IgnoreChecksum {
				d.hasher.Write(s.hist[before:])
			}
			switch {
			case !s.block.last:
				s.stage = stageBlockHeader
			case s.header.HasContentSize && s.total != s.header.ContentSize:
				return 0, corruptf("content is %d bytes, header declares %d", s.total, s.header.ContentSize)
			case s.header.Checksum:
				s.stage = stageChecksum
			default:
				s.stage = stageFrameDone
			}

		case stageChecksum:
			b, ok := s.gather(in, checksumSize)
			if !ok {
				return checksumSize - len(s.buf), nil
			}
			if !d.p.IgnoreChecksum && binary.LittleEndian.Uint32(b) != uint32(d.hasher.Sum64()) {
				return 0, ErrChecksumMismatch
			}
			s.stage = stageFrameDone

		case stageFrameDone:
			s.stage = stageHeader
			d.state = stateReady
			return 0, nil
		}
	}
}
