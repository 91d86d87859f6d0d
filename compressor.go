package zpack

import (
	"encoding/binary"
	"hash"
	"math"
	"math/bits"
	"sync"

	"github.com/pierrec/xxHash/xxHash64"

	"github.com/ndrean/zpack/matchfinder"
)

// A ResetDirective tells Reset how much state to discard.
type ResetDirective int

const (
	// ResetSession abandons the frame in progress but keeps the
	// parameters and the dictionary.
	ResetSession ResetDirective = iota + 1

	// ResetFull also restores the default parameters and unloads the
	// dictionary.
	ResetFull
)

type ctxState uint8

const (
	stateReady  ctxState = iota // configured, no frame in progress
	stateActive                 // a streamed frame is in progress
	stateEnded                  // a streamed frame was completed with End
	stateClosed
)

// A Compressor compresses data into frames. It keeps its tables and
// buffers between frames, so reusing one for many inputs avoids most
// allocations. A Compressor is not safe for concurrent use.
type Compressor struct {
	user  Params // as set by the caller
	p     Params // with defaults applied
	lp    levelParams
	opts  options
	state ctxState
	dict  *Dictionary

	fast    *matchfinder.SingleHash
	dual    *matchfinder.DualHash
	chain   *matchfinder.HashChain
	tree    *matchfinder.BinaryTree
	greedy  matchfinder.GreedyParser
	lazy    matchfinder.LazyParser
	mf      matchfinder.MatchFinder
	matches []matchfinder.Match

	enc    blockEnc
	hasher hash.Hash64
	block  []byte

	frame compFrame
}

// compFrame is the state of the frame being written.
type compFrame struct {
	pledged    int64 // -1 when unknown
	consumed   uint64
	header     FrameHeader
	started    bool
	headerDone bool
	ended      bool

	in     []byte // input waiting to fill a block
	out    []byte // output not handed out yet
	outPos int
	direct bool // out is the caller's buffer

	// Until the content size is known, a streamed frame holds back whole
	// blocks of input in pend, or, once it has outgrown a single segment,
	// its compressed blocks in out with the header deferred.
	pend     []byte
	deferred bool
}

// NewCompressor returns a Compressor configured with p.
func NewCompressor(p Params, opts ...Option) (*Compressor, error) {
	if err := p.Verify(); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	c := &Compressor{
		opts:   o,
		hasher: xxHash64.New(0),
	}
	c.setParams(p)
	c.frame.pledged = -1
	return c, nil
}

func (c *Compressor) setParams(p Params) {
	c.user = p
	p.setDefaults()
	c.p = p
	c.lp = levels[p.Level]
}

// Params returns the parameters in effect, with defaults filled in.
func (c *Compressor) Params() Params {
	return c.p
}

// SetParams changes the parameters for the following frames. It fails
// while a streamed frame is in progress.
func (c *Compressor) SetParams(p Params) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if err := p.Verify(); err != nil {
		return err
	}
	c.setParams(p)
	return nil
}

// LoadDictionary primes the following frames with d. A nil d unloads the
// dictionary.
func (c *Compressor) LoadDictionary(d *Dictionary) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	c.dict = d
	return nil
}

// SetPledgedSize announces the total size of the next streamed frame, so
// its header can record the content size. -1 means unknown. The frame
// fails at End if the actual size differs.
func (c *Compressor) SetPledgedSize(n int64) error {
	if c.state == stateClosed {
		return ErrContextClosed
	}
	if c.state == stateActive {
		return ErrWrongStage
	}
	if n < -1 {
		return invalidf("pledged size %d", n)
	}
	c.frame.pledged = n
	return nil
}

// Reset discards the frame in progress and, with ResetFull, the
// parameters and dictionary. Allocated memory is kept.
func (c *Compressor) Reset(r ResetDirective) error {
	if c.state == stateClosed {
		return ErrContextClosed
	}
	switch r {
	case ResetSession:
	case ResetFull:
		c.setParams(Params{})
		c.dict = nil
	default:
		return invalidf("unknown reset directive %d", int(r))
	}
	c.state = stateReady
	c.frame.pledged = -1
	c.beginFrame()
	return nil
}

// Close releases the buffers of c. It cannot be used afterward.
func (c *Compressor) Close() error {
	if c.state == stateClosed {
		return nil
	}
	for _, b := range [][]byte{c.frame.in, c.frame.out, c.frame.pend, c.block} {
		if cap(b) > 0 {
			c.opts.alloc.Free(b)
		}
	}
	if c.fast != nil {
		c.fast.Release()
	}
	if c.dual != nil {
		c.dual.Release()
	}
	if c.chain != nil {
		c.chain.Release()
	}
	if c.tree != nil {
		c.tree.Release()
	}
	c.frame = compFrame{}
	c.block = nil
	c.mf = nil
	c.fast, c.dual, c.chain, c.tree = nil, nil, nil, nil
	c.state = stateClosed
	return nil
}

func (c *Compressor) checkIdle() error {
	switch c.state {
	case stateClosed:
		return ErrContextClosed
	case stateActive:
		return ErrWrongStage
	}
	return nil
}

// blockSize is the content size of every block but the last.
func (c *Compressor) blockSize() int {
	bs := c.p.BlockSize
	if w := 1 << c.p.WindowLog; w < bs {
		bs = w
	}
	return bs
}

// Compress appends a complete frame holding src to dst.
func (c *Compressor) Compress(dst, src []byte) ([]byte, error) {
	if err := c.checkIdle(); err != nil {
		return dst, err
	}
	c.beginFrame()
	c.startBlocks(int64(len(src)))

	// Write straight into dst.
	f := &c.frame
	saved := f.out
	f.out = dst
	f.direct = true
	bs := c.blockSize()
	for {
		n := len(src)
		if n > bs {
			n = bs
		}
		last := n == len(src)
		c.compressBlock(src[:n], last)
		src = src[n:]
		if last {
			break
		}
	}
	dst = f.out
	f.out = saved[:0]
	f.direct = false
	c.state = stateReady
	return dst, nil
}

// CompressInto compresses src into the fixed buffer dst and returns the
// frame size. It fails with ErrBufferTooSmall if the frame does not fit;
// a dst of CompressBound(len(src)) bytes always suffices.
func (c *Compressor) CompressInto(dst, src []byte) (int, error) {
	out, err := c.Compress(dst[:0:len(dst)], src)
	if err != nil {
		return 0, err
	}
	if len(out) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return len(out), nil
}

// CompressBound returns the largest frame c can produce from n bytes.
func (c *Compressor) CompressBound(n int) int {
	return compressBound(n, c.blockSize())
}

func (c *Compressor) beginFrame() {
	f := &c.frame
	f.consumed = 0
	f.started = false
	f.headerDone = false
	f.ended = false
	if f.in == nil {
		f.in = c.opts.alloc.Alloc(c.blockSize())
	}
	f.in = f.in[:0]
	if f.out == nil {
		f.out = c.opts.alloc.Alloc(CompressOutSize())
	}
	f.out = f.out[:0]
	f.outPos = 0
	f.pend = f.pend[:0]
	f.deferred = false
	c.hasher.Reset()
	c.enc.reset(c.dict)
}

// startBlocks fixes the frame header and sets up the match finder, given
// the content size if it is known (or -1).
func (c *Compressor) startBlocks(size int64) {
	f := &c.frame
	window := uint64(1) << c.p.WindowLog
	h := FrameHeader{
		Checksum:   !c.p.NoChecksum,
		WindowSize: window,
	}
	if size >= 0 && !c.p.NoContentSize {
		h.HasContentSize = true
		h.ContentSize = uint64(size)
		if h.ContentSize <= window {
			h.SingleSegment = true
			h.WindowSize = h.ContentSize
		}
	}

	var dictContent []byte
	if c.dict != nil {
		dictContent = c.dict.content
	}
	maxDist := int(window)
	if window > math.MaxInt32 {
		maxDist = math.MaxInt32
	}
	if h.SingleSegment {
		maxDist = int(h.ContentSize) + len(dictContent)
	}
	if maxDist < 1 {
		maxDist = 1
	}
	if !h.SingleSegment {
		// Larger frames get the level's full tables whatever their size,
		// so a stream sets up the same way before its size is known.
		size = -1
	}
	c.setupFinder(maxDist, size, len(dictContent))
	c.mf.Reset(dictContent)

	f.header = h
	f.started = true
	if debugEncoder {
		printf("frame: level %d, %v, window %d, content size %d", c.p.Level, c.p.Strategy, h.WindowSize, h.ContentSize)
	}
}

// setupFinder configures the match finder of the current strategy for a
// frame.
func (c *Compressor) setupFinder(maxDist int, size int64, dictLen int) {
	lp := c.lp
	tableBits := lp.tableBits
	if size >= 0 {
		// Small inputs do not need big tables.
		need := bits.Len64(uint64(size)+uint64(dictLen)) + 1
		if need < 10 {
			need = 10
		}
		if tableBits == 0 || tableBits > need {
			tableBits = need
		}
	}

	switch {
	case c.p.Strategy == StrategyFast && lp.dualHash:
		if c.dual == nil {
			c.dual = new(matchfinder.DualHash)
		}
		c.dual.MaxDistance = maxDist
		c.dual.Buffers = c.opts.alloc
		c.dual.MinLength = lp.minMatch
		c.dual.TableBits = tableBits
		c.dual.Parser = c.parser()
		c.mf = c.dual
	case c.p.Strategy == StrategyFast:
		if c.fast == nil {
			c.fast = new(matchfinder.SingleHash)
		}
		c.fast.MaxDistance = maxDist
		c.fast.Buffers = c.opts.alloc
		c.fast.MinLength = lp.minMatch
		c.fast.HashLen = lp.hashLen
		c.fast.TableBits = tableBits
		c.fast.Parser = c.parser()
		c.mf = c.fast
	case c.p.Strategy == StrategyExhaustive:
		if c.tree == nil {
			c.tree = new(matchfinder.BinaryTree)
		}
		chainBits := bits.Len(uint(maxDist))
		if lp.chainBits != 0 && chainBits > lp.chainBits {
			chainBits = lp.chainBits
		}
		c.tree.SearchDepth = lp.depth
		c.tree.NiceLength = lp.nice
		c.tree.MaxDistance = maxDist
		c.tree.Buffers = c.opts.alloc
		c.tree.MinLength = lp.minMatch
		c.tree.TableBits = tableBits
		c.tree.ChainBits = chainBits
		c.tree.Parser = c.parser()
		c.mf = c.tree
	default:
		if c.chain == nil {
			c.chain = new(matchfinder.HashChain)
		}
		c.chain.SearchDepth = lp.depth
		c.chain.NiceLength = lp.nice
		c.chain.MaxDistance = maxDist
		c.chain.Buffers = c.opts.alloc
		c.chain.MinLength = lp.minMatch
		c.chain.TableBits = tableBits
		c.chain.Parser = c.parser()
		c.mf = c.chain
	}
}

func (c *Compressor) parser() matchfinder.Parser {
	switch c.lp.parser {
	case parseLazy, parseLazy2:
		c.lazy.MinLength = c.lp.minMatch
		c.lazy.Depth = 1
		if c.lp.parser == parseLazy2 {
			c.lazy.Depth = 2
		}
		return &c.lazy
	}
	c.greedy.MinLength = c.lp.minMatch
	return &c.greedy
}

// compressBlock appends the block for src to the frame output, preceded by
// the frame header if this is the first block.
func (c *Compressor) compressBlock(src []byte, last bool) {
	f := &c.frame
	c.matches = c.mf.FindMatches(c.matches[:0], src)

	idSize := 0
	if !f.headerDone && c.dict != nil && !c.p.NoDictID {
		idSize = dictIDSize(c.dict.id)
	}
	var typ uint8
	c.block = reserve(c.opts.alloc, c.block[:0], len(src)+blockHeaderSize+1)
	c.block, typ = c.enc.encode(c.block, src, c.matches, last, idSize)

	if !f.headerDone {
		if idSize > 0 && typ == blockCompressed {
			f.header.DictID = c.dict.id
		}
		if !f.deferred {
			var hb [maxFrameHeader]byte
			c.appendOut(f.header.appendTo(hb[:0]))
		}
		f.headerDone = true
	}
	c.appendOut(c.block)
	if !c.p.NoChecksum {
		c.hasher.Write(src)
	}
	if last {
		if !c.p.NoChecksum {
			var sum [checksumSize]byte
			binary.LittleEndian.PutUint32(sum[:], uint32(c.hasher.Sum64()))
			c.appendOut(sum[:])
		}
		if f.deferred {
			c.finishHeader(int64(f.consumed))
		}
		f.ended = true
	}
}

// appendOut adds b to the frame output. Only a buffer of the caller's
// grows with append; others come from the allocator.
func (c *Compressor) appendOut(b []byte) {
	f := &c.frame
	if !f.direct {
		f.out = reserve(c.opts.alloc, f.out, len(b))
	}
	f.out = append(f.out, b...)
}

// finishHeader puts the deferred frame header in front of the blocks held
// for it. A size of -1 leaves the content size out.
func (c *Compressor) finishHeader(size int64) {
	f := &c.frame
	if size >= 0 {
		f.header.HasContentSize = true
		f.header.ContentSize = uint64(size)
	}
	var hb [maxFrameHeader]byte
	hdr := f.header.appendTo(hb[:0])
	n := len(f.out)
	c.appendOut(hdr)
	copy(f.out[len(hdr):], f.out[:n])
	copy(f.out, hdr)
	f.deferred = false
}

var compressorPools [MaxLevel + 1]sync.Pool

// Compress returns a frame holding src, compressed at level.
func Compress(src []byte, level int) ([]byte, error) {
	if level < 0 || level > MaxLevel {
		return nil, invalidf("level %d out of range [%d, %d]", level, MinLevel, MaxLevel)
	}
	c, _ := compressorPools[level].Get().(*Compressor)
	if c == nil {
		var err error
		if c, err = NewCompressor(Params{Level: level}); err != nil {
			return nil, err
		}
	}
	defer compressorPools[level].Put(c)
	return c.Compress(make([]byte, 0, CompressBound(len(src))), src)
}
