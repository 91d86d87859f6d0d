package zpack

import (
	"encoding/binary"
	"hash"
	"sync"

	"github.com/pierrec/xxHash/xxHash64"
)

// A Decompressor decodes frames. Like a Compressor, it keeps its buffers
// between frames and is not safe for concurrent use.
type Decompressor struct {
	user   DecoderParams
	p      DecoderParams
	opts   options
	state  ctxState
	dict   *Dictionary
	dec    blockDec
	hasher hash.Hash64

	stream decStream
}

// NewDecompressor returns a Decompressor configured with p.
func NewDecompressor(p DecoderParams, opts ...Option) (*Decompressor, error) {
	if err := p.Verify(); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	d := &Decompressor{
		opts:   o,
		hasher: xxHash64.New(0),
	}
	d.dec.alloc = o.alloc
	d.stream.alloc = o.alloc
	d.setParams(p)
	return d, nil
}

func (d *Decompressor) setParams(p DecoderParams) {
	d.user = p
	p.setDefaults()
	d.p = p
}

// Params returns the parameters in effect, with defaults filled in.
func (d *Decompressor) Params() DecoderParams {
	return d.p
}

// SetParams changes the parameters for the following frames.
func (d *Decompressor) SetParams(p DecoderParams) error {
	if err := d.checkIdle(); err != nil {
		return err
	}
	if err := p.Verify(); err != nil {
		return err
	}
	d.setParams(p)
	return nil
}

// LoadDictionary makes d available to the following frames. Frames that
// name a dictionary ID must match d's. A nil d unloads the dictionary.
func (d *Decompressor) LoadDictionary(dict *Dictionary) error {
	if err := d.checkIdle(); err != nil {
		return err
	}
	d.dict = dict
	return nil
}

// Reset discards the frame in progress and, with ResetFull, the parameters
// and dictionary.
func (d *Decompressor) Reset(r ResetDirective) error {
	if d.state == stateClosed {
		return ErrContextClosed
	}
	switch r {
	case ResetSession:
	case ResetFull:
		d.setParams(DecoderParams{})
		d.dict = nil
	default:
		return invalidf("unknown reset directive %d", int(r))
	}
	d.state = stateReady
	d.stream.reset()
	return nil
}

// Close releases the buffers of d. It cannot be used afterward.
func (d *Decompressor) Close() error {
	if d.state == stateClosed {
		return nil
	}
	for _, b := range [][]byte{d.stream.hist, d.stream.buf, d.dec.lits} {
		if cap(b) > 0 {
			d.opts.alloc.Free(b)
		}
	}
	d.stream = decStream{}
	d.dec = blockDec{}
	d.state = stateClosed
	return nil
}

func (d *Decompressor) checkIdle() error {
	switch d.state {
	case stateClosed:
		return ErrContextClosed
	case stateActive:
		return ErrWrongStage
	}
	return nil
}

// checkFrame enforces the memory limits and the dictionary requirement of
// the frame h.
func (d *Decompressor) checkFrame(h FrameHeader) error {
	if !h.SingleSegment && h.WindowSize > uint64(1)<<d.p.MaxWindowLog {
		return allocf("window of %d bytes exceeds the limit of %d", h.WindowSize, uint64(1)<<d.p.MaxWindowLog)
	}
	if h.WindowSize > uint64(d.p.MaxMemory) {
		return allocf("window of %d bytes exceeds the memory limit of %d", h.WindowSize, d.p.MaxMemory)
	}
	if h.DictID != 0 && (d.dict == nil || d.dict.id != h.DictID) {
		return ErrWrongDictionary
	}
	return nil
}

func (d *Decompressor) refs(h FrameHeader, base int, dropped bool) frameRefs {
	r := frameRefs{base: base, dropped: dropped, maxBlock: MaxBlockSize}
	if d.dict != nil {
		r.dict = d.dict.content
	}
	if !h.SingleSegment {
		r.maxDist = h.WindowSize
	}
	if h.WindowSize < uint64(r.maxBlock) {
		r.maxBlock = int(h.WindowSize)
	}
	return r
}

// Decompress decodes every frame in src and appends the content to dst.
// Skippable frames are stepped over.
func (d *Decompressor) Decompress(dst, src []byte) ([]byte, error) {
	if err := d.checkIdle(); err != nil {
		return dst, err
	}
	if len(src) == 0 {
		return dst, ErrNotThisFormat
	}
	for len(src) > 0 {
		if isSkippable(src) {
			n, err := skippableSize(src)
			if err != nil {
				return dst, err
			}
			src = src[n:]
			continue
		}
		var n int
		var err error
		dst, n, err = d.decompressFrame(dst, src)
		if err != nil {
			return dst, err
		}
		src = src[n:]
	}
	return dst, nil
}

// DecompressInto decodes src into the fixed buffer dst and returns the
// content size. It fails with ErrBufferTooSmall if the content does not
// fit.
func (d *Decompressor) DecompressInto(dst, src []byte) (int, error) {
	if size, err := FrameContentSize(src); err == nil && size > uint64(len(dst)) {
		return 0, ErrBufferTooSmall
	}
	out, err := d.Decompress(dst[:0:len(dst)], src)
	if err != nil {
		return 0, err
	}
	if len(out) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return len(out), nil
}

// decompressFrame decodes the frame at the start of src, appending its
// content to dst. It returns the size of the frame.
func (d *Decompressor) decompressFrame(dst, src []byte) ([]byte, int, error) {
	h, err := ParseFrameHeader(src)
	if err != nil {
		return dst, 0, err
	}
	if err := d.checkFrame(h); err != nil {
		return dst, 0, err
	}
	if debugDecoder {
		printf("frame: %+v", h)
	}
	start := len(dst)
	if h.HasContentSize {
		if h.ContentSize > uint64(d.p.MaxMemory) {
			return dst, 0, allocf("content of %d bytes exceeds the memory limit of %d", h.ContentSize, d.p.MaxMemory)
		}
		if need := int(h.ContentSize); cap(dst)-len(dst) < need {
			grown := make([]byte, len(dst), len(dst)+need)
			copy(grown, dst)
			dst = grown
		}
	}

	d.dec.reset(d.dict)
	d.hasher.Reset()
	refs := d.refs(h, start, false)
	verify := h.Checksum && !d.p.IgnoreChecksum
	pos := h.HeaderSize
	for {
		if len(src)-pos < blockHeaderSize {
			return dst, 0, corruptf("truncated block header")
		}
		bh := parseBlockHeader(src[pos:])
		pos += blockHeaderSize
		n := bh.payloadSize()
		if len(src)-pos < n {
			return dst, 0, corruptf("truncated block")
		}
		blockStart := len(dst)
		if dst, err = d.dec.decode(dst, bh, src[pos:pos+n], refs); err != nil {
			return dst, 0, err
		}
		pos += n
		produced := uint64(len(dst) - start)
		if h.HasContentSize && produced > h.ContentSize {
			return dst, 0, corruptf("content exceeds the declared %d bytes", h.ContentSize)
		}
		if produced > uint64(d.p.MaxMemory) {
			return dst, 0, allocf("content exceeds the memory limit of %d", d.p.MaxMemory)
		}
		if verify {
			d.hasher.Write(dst[blockStart:])
		}
		if bh.last {
			break
		}
	}
	if h.HasContentSize && uint64(len(dst)-start) != h.ContentSize {
		return dst, 0, corruptf("content is %d bytes, header declares %d", len(dst)-start, h.ContentSize)
	}
	if h.Checksum {
		if len(src)-pos < checksumSize {
			return dst, 0, corruptf("truncated checksum")
		}
		if verify && binary.LittleEndian.Uint32(src[pos:]) != uint32(d.hasher.Sum64()) {
			return dst, 0, ErrChecksumMismatch
		}
		pos += checksumSize
	}
	return dst, pos, nil
}

var decompressorPool sync.Pool

// Decompress decodes every frame in src with default parameters and no
// dictionary.
func Decompress(src []byte) ([]byte, error) {
	d, _ := decompressorPool.Get().(*Decompressor)
	if d == nil {
		var err error
		if d, err = NewDecompressor(DecoderParams{}); err != nil {
			return nil, err
		}
	}
	defer decompressorPool.Put(d)
	return d.Decompress(nil, src)
}
