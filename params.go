package zpack

import (
	"fmt"
	"strings"
	"sync"
)

// A Strategy selects the match finding family.
type Strategy int

const (
	// StrategyDefault derives the strategy from the level.
	StrategyDefault Strategy = iota

	// StrategyFast looks up one candidate per position.
	StrategyFast

	// StrategyBalanced walks a hash chain to a bounded depth.
	StrategyBalanced

	// StrategyExhaustive searches binary trees of suffixes.
	StrategyExhaustive
)

var strategyNames = [...]string{"default", "fast", "balanced", "exhaustive"}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(strategyNames) {
		return nil, invalidf("unknown strategy %d", int(s))
	}
	return []byte(strategyNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range strategyNames {
		if n == name {
			*s = Strategy(i)
			return nil
		}
	}
	return invalidf("unknown strategy %q", text)
}

// Params configures a Compressor. The zero value means level 3 with a
// checksum and the content size recorded.
type Params struct {
	// Level is the compression level, 1 to 22. Zero means DefaultLevel.
	Level int

	// Strategy overrides the match finding family implied by Level.
	Strategy Strategy

	// WindowLog is the log2 of the window size, 10 to 31. Zero means the
	// level's default.
	WindowLog int

	// BlockSize caps the content of each block, from 1 KiB to
	// MaxBlockSize. Zero means MaxBlockSize.
	BlockSize int

	// NoChecksum omits the content checksum.
	NoChecksum bool

	// NoContentSize omits the content size from frame headers.
	NoContentSize bool

	// NoDictID omits the dictionary ID from frame headers.
	NoDictID bool
}

// Verify reports whether p is within range.
func (p Params) Verify() error {
	if p.Level < 0 || p.Level > MaxLevel {
		return invalidf("level %d out of range [%d, %d]", p.Level, MinLevel, MaxLevel)
	}
	if p.Strategy < StrategyDefault || p.Strategy > StrategyExhaustive {
		return invalidf("unknown strategy %d", int(p.Strategy))
	}
	if p.WindowLog != 0 && (p.WindowLog < MinWindowLog || p.WindowLog > MaxWindowLog) {
		return invalidf("window log %d out of range [%d, %d]", p.WindowLog, MinWindowLog, MaxWindowLog)
	}
	if p.BlockSize != 0 && (p.BlockSize < 1<<10 || p.BlockSize > MaxBlockSize) {
		return invalidf("block size %d out of range [%d, %d]", p.BlockSize, 1<<10, MaxBlockSize)
	}
	return nil
}

func (p *Params) setDefaults() {
	if p.Level == 0 {
		p.Level = DefaultLevel
	}
	lp := levels[p.Level]
	if p.Strategy == StrategyDefault {
		p.Strategy = lp.strategy
	}
	if p.WindowLog == 0 {
		p.WindowLog = lp.windowLog
	}
	if p.BlockSize == 0 {
		p.BlockSize = MaxBlockSize
	}
}

type parserKind uint8

const (
	parseGreedy parserKind = iota
	parseLazy
	parseLazy2
)

// levelParams is the recipe behind one compression level.
type levelParams struct {
	strategy  Strategy
	windowLog int
	tableBits int
	chainBits int
	hashLen   int
	dualHash  bool
	minMatch  int
	depth     int
	nice      int
	parser    parserKind
}

var levels = [MaxLevel + 1]levelParams{
	0: {},

	1: {strategy: StrategyFast, windowLog: 19, tableBits: 14, hashLen: 5, minMatch: 3, parser: parseGreedy},
	2: {strategy: StrategyFast, windowLog: 20, tableBits: 16, dualHash: true, minMatch: 4, parser: parseGreedy},

	3:  {strategy: StrategyBalanced, windowLog: 21, tableBits: 17, minMatch: 4, depth: 4, nice: 16, parser: parseGreedy},
	4:  {strategy: StrategyBalanced, windowLog: 21, tableBits: 17, minMatch: 4, depth: 8, nice: 24, parser: parseGreedy},
	5:  {strategy: StrategyBalanced, windowLog: 21, tableBits: 17, minMatch: 4, depth: 8, nice: 32, parser: parseLazy},
	6:  {strategy: StrategyBalanced, windowLog: 21, tableBits: 18, minMatch: 4, depth: 16, nice: 48, parser: parseLazy},
	7:  {strategy: StrategyBalanced, windowLog: 22, tableBits: 18, minMatch: 4, depth: 32, nice: 64, parser: parseLazy},
	8:  {strategy: StrategyBalanced, windowLog: 22, tableBits: 18, minMatch: 4, depth: 48, nice: 96, parser: parseLazy2},
	9:  {strategy: StrategyBalanced, windowLog: 22, tableBits: 18, minMatch: 4, depth: 64, nice: 128, parser: parseLazy2},
	10: {strategy: StrategyBalanced, windowLog: 22, tableBits: 19, minMatch: 4, depth: 128, nice: 128, parser: parseLazy2},
	11: {strategy: StrategyBalanced, windowLog: 23, tableBits: 19, minMatch: 4, depth: 256, nice: 192, parser: parseLazy2},
	12: {strategy: StrategyBalanced, windowLog: 23, tableBits: 19, minMatch: 4, depth: 512, nice: 256, parser: parseLazy2},

	13: {strategy: StrategyExhaustive, windowLog: 23, tableBits: 19, chainBits: 20, minMatch: 4, depth: 16, nice: 32, parser: parseLazy},
	14: {strategy: StrategyExhaustive, windowLog: 23, tableBits: 19, chainBits: 21, minMatch: 4, depth: 24, nice: 48, parser: parseLazy},
	15: {strategy: StrategyExhaustive, windowLog: 23, tableBits: 20, chainBits: 21, minMatch: 4, depth: 32, nice: 64, parser: parseLazy2},
	16: {strategy: StrategyExhaustive, windowLog: 24, tableBits: 20, chainBits: 22, minMatch: 4, depth: 48, nice: 96, parser: parseLazy2},
	17: {strategy: StrategyExhaustive, windowLog: 24, tableBits: 20, chainBits: 22, minMatch: 4, depth: 64, nice: 128, parser: parseLazy2},
	18: {strategy: StrategyExhaustive, windowLog: 25, tableBits: 21, chainBits: 23, minMatch: 4, depth: 128, nice: 192, parser: parseLazy2},
	19: {strategy: StrategyExhaustive, windowLog: 25, tableBits: 21, chainBits: 23, minMatch: 4, depth: 256, nice: 256, parser: parseLazy2},
	20: {strategy: StrategyExhaustive, windowLog: 26, tableBits: 22, chainBits: 24, minMatch: 4, depth: 384, nice: 512, parser: parseLazy2},
	21: {strategy: StrategyExhaustive, windowLog: 27, tableBits: 22, chainBits: 24, minMatch: 4, depth: 512, nice: 768, parser: parseLazy2},
	22: {strategy: StrategyExhaustive, windowLog: 27, tableBits: 22, chainBits: 25, minMatch: 4, depth: 1024, nice: 1024, parser: parseLazy2},
}

// DecoderParams configures a Decompressor. The zero value accepts windows
// up to 1<<27 and output up to 1 GiB per frame.
type DecoderParams struct {
	// MaxWindowLog is the largest window log accepted, 10 to 31.
	MaxWindowLog int

	// MaxMemory caps the memory a single frame may need, in bytes.
	MaxMemory int64

	// IgnoreChecksum skips checksum verification.
	IgnoreChecksum bool
}

// Verify reports whether p is within range.
func (p DecoderParams) Verify() error {
	if p.MaxWindowLog != 0 && (p.MaxWindowLog < MinWindowLog || p.MaxWindowLog > MaxWindowLog) {
		return invalidf("max window log %d out of range [%d, %d]", p.MaxWindowLog, MinWindowLog, MaxWindowLog)
	}
	if p.MaxMemory < 0 {
		return invalidf("negative memory limit")
	}
	return nil
}

func (p *DecoderParams) setDefaults() {
	if p.MaxWindowLog == 0 {
		p.MaxWindowLog = defaultDecWindow
	}
	if p.MaxMemory == 0 {
		p.MaxMemory = 1 << 30
	}
}

// An Allocator supplies the working buffers of a context. Alloc returns a
// slice of length zero and capacity at least n; Free takes back a slice the
// context no longer uses.
type Allocator interface {
	Alloc(n int) []byte
	Free(b []byte)
}

type heapAllocator struct{}

func (heapAllocator) Alloc(n int) []byte { return make([]byte, 0, n) }
func (heapAllocator) Free([]byte)        {}

// HeapAllocator allocates with make and leaves freed buffers to the garbage
// collector. It is the default.
var HeapAllocator Allocator = heapAllocator{}

// A PoolAllocator recycles buffers through a sync.Pool, so contexts that
// are created and closed often can share them. It is safe for concurrent
// use.
type PoolAllocator struct {
	pool sync.Pool
}

func (a *PoolAllocator) Alloc(n int) []byte {
	if b, ok := a.pool.Get().(*[]byte); ok && cap(*b) >= n {
		return (*b)[:0]
	}
	return make([]byte, 0, n)
}

func (a *PoolAllocator) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:0]
	a.pool.Put(&b)
}

// reserve returns b with room for n more bytes, moving it to a bigger
// buffer from a if needed.
func reserve(a Allocator, b []byte, n int) []byte {
	need := len(b) + n
	if need <= cap(b) {
		return b
	}
	if a == nil {
		a = HeapAllocator
	}
	c := 2 * cap(b)
	if c < need {
		c = need
	}
	grown := append(a.Alloc(c), b...)
	if cap(b) > 0 {
		a.Free(b)
	}
	return grown
}

// An Option configures a Compressor or Decompressor.
type Option func(*options)

type options struct {
	alloc Allocator
}

// WithAllocator sets the allocator for working buffers.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{alloc: HeapAllocator}
	for _, opt := range opts {
		if opt == nil {
			return o, invalidf("nil option")
		}
		opt(&o)
	}
	if o.alloc == nil {
		return o, invalidf("nil allocator")
	}
	return o, nil
}
