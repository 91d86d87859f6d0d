package zpack

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testWords = []string{
	"light", "refraction", "colours", "prism", "rays", "of", "the", "and",
	"in", "which", "experiment", "glass", "lens", "image", "red", "violet",
	"reflexion", "bodies", "white", "is", "are", "by", "more", "less",
}

// testText returns n bytes of word salad with some punctuation and line
// structure, compressible in the way natural text is.
func testText(n int, seed int64) []byte {
	rnd := rand.New(rand.NewSource(seed))
	var b bytes.Buffer
	for b.Len() < n {
		b.WriteString(testWords[rnd.Intn(len(testWords))])
		switch rnd.Intn(16) {
		case 0:
			b.WriteString(".\n")
		case 1:
			b.WriteString(", ")
		default:
			b.WriteByte(' ')
		}
	}
	return b.Bytes()[:n]
}

// testRecords returns small JSON-like records that share their structure.
func testRecords(n int, seed int64) [][]byte {
	rnd := rand.New(rand.NewSource(seed))
	kinds := []string{"click", "view", "purchase", "signup"}
	var out [][]byte
	for i := 0; i < n; i++ {
		r := fmt.Sprintf(`{"event":"%s","user":%d,"session":"s-%06d","ts":%d,"ok":%t}`,
			kinds[rnd.Intn(len(kinds))], rnd.Intn(100000), rnd.Intn(1000000), 1700000000+rnd.Intn(1000000), rnd.Intn(4) != 0)
		out = append(out, []byte(r))
	}
	return out
}

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// testInputs covers the block types and the edges of the block size.
func testInputs() map[string][]byte {
	return map[string][]byte{
		"empty":      {},
		"one byte":   {'x'},
		"two bytes":  []byte("ab"),
		"run":        bytes.Repeat([]byte{0}, 1000),
		"short text": []byte("The quick brown fox jumps over the lazy dog."),
		"text":       testText(50000, 1),
		"random":     randomBytes(20000, 2),
		"two blocks": testText(MaxBlockSize+1000, 3),
		"exact block": func() []byte {
			return testText(MaxBlockSize, 4)
		}(),
		"mixed": append(append(testText(30000, 5), randomBytes(30000, 6)...), bytes.Repeat([]byte("abc"), 10000)...),
	}
}

func mustCompress(t testing.TB, p Params, src []byte) []byte {
	t.Helper()
	c, err := NewCompressor(p)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	out, err := c.Compress(nil, src)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRoundTripLevels(t *testing.T) {
	inputs := testInputs()
	for level := MinLevel; level <= MaxLevel; level++ {
		for name, src := range inputs {
			if testing.Short() && level > 12 && len(src) > 60000 {
				continue
			}
			t.Run(fmt.Sprintf("%d/%s", level, name), func(t *testing.T) {
				frame, err := Compress(src, level)
				if err != nil {
					t.Fatal(err)
				}
				got, err := Decompress(frame)
				if err != nil {
					t.Fatalf("Decompress: %v", err)
				}
				if !bytes.Equal(got, src) {
					t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(src))
				}
			})
		}
	}
}

func TestRoundTripParams(t *testing.T) {
	src := testText(300000, 7)
	for _, p := range []Params{
		{Strategy: StrategyFast},
		{Level: 9, Strategy: StrategyFast},
		{Level: 1, Strategy: StrategyBalanced},
		{Level: 2, Strategy: StrategyExhaustive},
		{Level: 5, WindowLog: MinWindowLog},
		{Level: 15, WindowLog: 12, BlockSize: 1 << 10},
		{Level: 3, NoChecksum: true},
		{Level: 3, NoContentSize: true},
		{Level: 19, NoContentSize: true, WindowLog: 16},
		{Level: 7, BlockSize: 5000},
	} {
		t.Run(fmt.Sprintf("%+v", p), func(t *testing.T) {
			frame := mustCompress(t, p, src)
			got, err := Decompress(frame)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, src) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestHelloWorld(t *testing.T) {
	src := bytes.Repeat([]byte("Hello, world!"), 1000)
	frame, err := Compress(src, DefaultLevel)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) >= 200 {
		t.Errorf("compressed to %d bytes; want under 200", len(frame))
	}
	got, err := Decompress(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("round trip mismatch")
	}
	if size, err := FrameContentSize(frame); err != nil || size != 13000 {
		t.Errorf("FrameContentSize = %d, %v; want 13000", size, err)
	}
}

func TestCompressBound(t *testing.T) {
	for _, n := range []int{0, 1, 100, 20000, MaxBlockSize, 3*MaxBlockSize + 17} {
		src := randomBytes(n, int64(n))
		for _, level := range []int{1, 3, 13} {
			frame, err := Compress(src, level)
			if err != nil {
				t.Fatal(err)
			}
			if len(frame) > CompressBound(n) {
				t.Errorf("level %d: %d random bytes compressed to %d; bound is %d", level, n, len(frame), CompressBound(n))
			}
		}
	}

	c, err := NewCompressor(Params{BlockSize: 1 << 10})
	if err != nil {
		t.Fatal(err)
	}
	src := randomBytes(10000, 9)
	frame, err := c.Compress(nil, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) > c.CompressBound(len(src)) {
		t.Errorf("small blocks: %d bytes compressed to %d; bound is %d", len(src), len(frame), c.CompressBound(len(src)))
	}
}

func TestLevelMonotonicity(t *testing.T) {
	var corpus [][]byte
	corpus = append(corpus, testText(120000, 10))
	var records []byte
	for _, r := range testRecords(1500, 11) {
		records = append(records, r...)
		records = append(records, '\n')
	}
	corpus = append(corpus, records)
	corpus = append(corpus, append(testText(20000, 12), randomBytes(5000, 13)...))

	total := func(level int) int {
		n := 0
		for _, src := range corpus {
			frame, err := Compress(src, level)
			if err != nil {
				t.Fatal(err)
			}
			n += len(frame)
		}
		return n
	}

	families := map[string][2]int{
		"fast":       {1, 2},
		"balanced":   {3, 12},
		"exhaustive": {13, 22},
	}
	for name, r := range families {
		prev := total(r[0])
		for level := r[0] + 1; level <= r[1]; level++ {
			n := total(level)
			if n > prev {
				t.Errorf("%s: level %d compresses to %d bytes, level %d to %d", name, level, n, level-1, prev)
			}
			prev = n
		}
	}
}

func TestParamsVerify(t *testing.T) {
	bad := []Params{
		{Level: -1},
		{Level: MaxLevel + 1},
		{Strategy: Strategy(9)},
		{WindowLog: MinWindowLog - 1},
		{WindowLog: MaxWindowLog + 1},
		{BlockSize: 100},
		{BlockSize: MaxBlockSize + 1},
	}
	for _, p := range bad {
		if err := p.Verify(); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%+v: Verify = %v", p, err)
		}
		if _, err := NewCompressor(p); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%+v: NewCompressor = %v", p, err)
		}
	}

	for _, p := range []DecoderParams{{MaxWindowLog: 9}, {MaxWindowLog: 32}, {MaxMemory: -1}} {
		if _, err := NewDecompressor(p); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%+v: NewDecompressor = %v", p, err)
		}
	}
	if _, err := Compress(nil, 23); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Compress at level 23 = %v", err)
	}
	if _, err := NewCompressor(Params{}, WithAllocator(nil)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("nil allocator = %v", err)
	}
}

func TestParamsDefaults(t *testing.T) {
	c, err := NewCompressor(Params{})
	if err != nil {
		t.Fatal(err)
	}
	want := Params{
		Level:     DefaultLevel,
		Strategy:  StrategyBalanced,
		WindowLog: levels[DefaultLevel].windowLog,
		BlockSize: MaxBlockSize,
	}
	if diff := cmp.Diff(want, c.Params()); diff != "" {
		t.Errorf("default params (-want +got):\n%s", diff)
	}

	for level := MinLevel; level <= MaxLevel; level++ {
		lp := levels[level]
		if lp.strategy == StrategyDefault || lp.windowLog < MinWindowLog || lp.windowLog > MaxWindowLog {
			t.Errorf("level %d has an incomplete recipe: %+v", level, lp)
		}
		if level > MinLevel && lp.strategy < levels[level-1].strategy {
			t.Errorf("level %d uses a weaker strategy than level %d", level, level-1)
		}
	}
}

func TestStrategyText(t *testing.T) {
	for s := StrategyDefault; s <= StrategyExhaustive; s++ {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got Strategy
		if err := got.UnmarshalText(bytes.ToUpper(text)); err != nil || got != s {
			t.Errorf("UnmarshalText(%q) = %v, %v", text, got, err)
		}
	}
	var s Strategy
	if err := s.UnmarshalText([]byte("quick")); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("UnmarshalText(quick) = %v", err)
	}
}

func TestResetIdempotent(t *testing.T) {
	src := testText(200000, 14)
	c, err := NewCompressor(Params{Level: 6})
	if err != nil {
		t.Fatal(err)
	}
	first, err := c.Compress(nil, src)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Reset(ResetSession); err != nil {
			t.Fatal(err)
		}
	}
	second, err := c.Compress(nil, src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("output differs after ResetSession")
	}

	if err := c.Reset(ResetFull); err != nil {
		t.Fatal(err)
	}
	if c.Params().Level != DefaultLevel {
		t.Errorf("level after ResetFull = %d", c.Params().Level)
	}
	third, err := c.Compress(nil, src)
	if err != nil {
		t.Fatal(err)
	}
	if want := mustCompress(t, Params{}, src); !bytes.Equal(third, want) {
		t.Error("output after ResetFull differs from a new Compressor")
	}
	if err := c.Reset(ResetDirective(0)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Reset(0) = %v", err)
	}
}

func TestClosedContext(t *testing.T) {
	c, err := NewCompressor(Params{})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := c.Compress(nil, []byte("abc")); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Compress after Close = %v", err)
	}
	if err := c.Reset(ResetSession); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Reset after Close = %v", err)
	}

	d, err := NewDecompressor(DecoderParams{})
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	if _, err := d.Decompress(nil, []byte("abc")); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Decompress after Close = %v", err)
	}
	if !errors.Is(ErrContextClosed, ErrInvalidParameter) {
		t.Error("ErrContextClosed does not wrap ErrInvalidParameter")
	}
}

func TestBufferTooSmall(t *testing.T) {
	src := testText(10000, 15)
	c, err := NewCompressor(Params{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CompressInto(make([]byte, 10), src); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("CompressInto small buffer = %v", err)
	}
	dst := make([]byte, CompressBound(len(src)))
	n, err := c.CompressInto(dst, src)
	if err != nil {
		t.Fatal(err)
	}
	frame := dst[:n]

	d, err := NewDecompressor(DecoderParams{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.DecompressInto(make([]byte, len(src)-1), frame); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("DecompressInto small buffer = %v", err)
	}
	out := make([]byte, len(src))
	n, err = d.DecompressInto(out, frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out[:n], src) {
		t.Error("DecompressInto mismatch")
	}

	// Without a recorded size the overflow is found while decoding.
	unsized := mustCompress(t, Params{NoContentSize: true}, src)
	if _, err := d.DecompressInto(make([]byte, 100), unsized); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("DecompressInto small buffer, no size = %v", err)
	}
}

func TestFrameContentSize(t *testing.T) {
	for _, n := range []int{0, 255, 256, 65791, 65792, 1 << 20} {
		frame := mustCompress(t, Params{Level: 1}, bytes.Repeat([]byte("ab"), n/2))
		size, err := FrameContentSize(frame)
		if err != nil || size != uint64(n/2*2) {
			t.Errorf("FrameContentSize = %d, %v; want %d", size, err, n/2*2)
		}
	}
	frame := mustCompress(t, Params{NoContentSize: true}, []byte("hello"))
	if size, err := FrameContentSize(frame); !errors.Is(err, ErrSizeUnknown) || size != ContentSizeUnknown {
		t.Errorf("FrameContentSize without size = %d, %v", size, err)
	}
	if _, err := FrameContentSize([]byte("nope, not a frame")); !errors.Is(err, ErrNotThisFormat) {
		t.Errorf("FrameContentSize of garbage = %v", err)
	}
}

func TestFrameHeader(t *testing.T) {
	frame := mustCompress(t, Params{WindowLog: 20, NoContentSize: true}, testText(5000, 16))
	h, err := ParseFrameHeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	want := FrameHeader{WindowSize: 1 << 20, Checksum: true, HeaderSize: 6}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}

	frame = mustCompress(t, Params{NoChecksum: true}, testText(1000, 17))
	h, err = ParseFrameHeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	want = FrameHeader{ContentSize: 1000, HasContentSize: true, WindowSize: 1000, SingleSegment: true, HeaderSize: 7}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
}

func TestMemoryLimits(t *testing.T) {
	src := testText(5000, 18)
	wide := mustCompress(t, Params{WindowLog: 28, NoContentSize: true}, src)

	if _, err := Decompress(wide); !errors.Is(err, ErrAllocation) {
		t.Errorf("window over the default limit: %v", err)
	}
	d, err := NewDecompressor(DecoderParams{MaxWindowLog: 28})
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.Decompress(nil, wide)
	if err != nil {
		t.Fatalf("raised window limit: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Error("round trip mismatch")
	}

	d, err = NewDecompressor(DecoderParams{MaxMemory: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Decompress(nil, mustCompress(t, Params{}, src)); !errors.Is(err, ErrAllocation) {
		t.Errorf("content over the memory limit: %v", err)
	}
}

// countingAllocator keeps track of the buffers it hands out.
type countingAllocator struct {
	Allocator
	allocs  int
	frees   int
	largest int
}

func (a *countingAllocator) Alloc(n int) []byte {
	a.allocs++
	if n > a.largest {
		a.largest = n
	}
	return a.Allocator.Alloc(n)
}

func (a *countingAllocator) Free(b []byte) {
	a.frees++
	a.Allocator.Free(b)
}

func TestPoolAllocator(t *testing.T) {
	var pool PoolAllocator
	src := testText(300000, 19)
	for i := 0; i < 3; i++ {
		ca := &countingAllocator{Allocator: &pool}
		c, err := NewCompressor(Params{Level: 4}, WithAllocator(ca))
		if err != nil {
			t.Fatal(err)
		}
		var frame []byte
		w := OutBuffer{Dst: make([]byte, CompressOutSize())}
		in := InBuffer{Src: src}
		for {
			w.Pos = 0
			rem, err := c.CompressStream(&w, &in, End)
			if err != nil {
				t.Fatal(err)
			}
			frame = append(frame, w.Dst[:w.Pos]...)
			if rem == 0 {
				break
			}
		}
		c.Close()
		// Only the match finder history holds all of src at once.
		if ca.largest < len(src) {
			t.Errorf("round %d: compressor history not from the allocator: largest buffer %d bytes", i, ca.largest)
		}
		if ca.allocs != ca.frees {
			t.Errorf("round %d: compressor allocated %d buffers, freed %d", i, ca.allocs, ca.frees)
		}

		da := &countingAllocator{Allocator: &pool}
		d, err := NewDecompressor(DecoderParams{}, WithAllocator(da))
		if err != nil {
			t.Fatal(err)
		}
		got := streamDecompress(t, d, frame, 1000, 4096)
		d.Close()
		if !bytes.Equal(got, src) {
			t.Fatalf("round %d: mismatch", i)
		}
		if da.largest < len(src) {
			t.Errorf("round %d: decoder window not from the allocator: largest buffer %d bytes", i, da.largest)
		}
		if da.allocs == 0 || da.allocs != da.frees {
			t.Errorf("round %d: decompressor allocated %d buffers, freed %d", i, da.allocs, da.frees)
		}
	}
}
