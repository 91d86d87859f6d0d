package entropy

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// skewed returns n bytes drawn from a geometric-like distribution over
// the first alphabet symbols.
func skewed(n, alphabet int, seed int64) []byte {
	rnd := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	for i := range b {
		s := 0
		for s < alphabet-1 && rnd.Intn(3) != 0 {
			s++
		}
		b[i] = byte(s)
	}
	return b
}

func TestBitStream(t *testing.T) {
	vals := []struct {
		v uint64
		n uint
	}{{1, 1}, {0, 3}, {0x1234, 16}, {5, 3}, {0xabcdef, 24}, {0, 0}, {1<<56 - 1, 56}, {7, 7}}

	var w BitWriter
	w.Reset(nil)
	for _, x := range vals {
		w.AddBits(x.v, x.n)
	}
	stream := w.Close()

	var r BitReader
	if err := r.Init(stream); err != nil {
		t.Fatal(err)
	}
	for i := len(vals) - 1; i >= 0; i-- {
		if got := r.ReadBits(vals[i].n); got != vals[i].v {
			t.Errorf("value %d: got %#x, want %#x", i, got, vals[i].v)
		}
	}
	if !r.Finished() {
		t.Errorf("stream not finished: %d bits left", r.Remaining())
	}
	r.ReadBits(1)
	if !r.Overflowed() {
		t.Error("reading past the start did not overflow")
	}
}

func TestBitReaderRejectsMissingMarker(t *testing.T) {
	var r BitReader
	if err := r.Init(nil); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Init(nil) = %v", err)
	}
	if err := r.Init([]byte{0x12, 0x00}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Init without marker = %v", err)
	}
}

func TestHuffmanRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"two symbols", []byte("abababababbbbbbbaaaaab")},
		{"skewed", skewed(10000, 40, 1)},
		{"text", bytes.Repeat([]byte("It was the best of times, it was the worst of times. "), 20)},
		{"all bytes", func() []byte {
			b := make([]byte, 2048)
			for i := range b {
				b[i] = byte(i * 7)
			}
			return b
		}()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var hist [256]uint32
			Histogram(hist[:], tc.data)
			table, err := BuildHuffman(hist[:], MaxHuffmanBits)
			if err != nil {
				t.Fatal(err)
			}
			if table.MaxBits() > MaxHuffmanBits {
				t.Fatalf("code length %d exceeds the limit", table.MaxBits())
			}

			desc := table.AppendDescription(nil)
			if len(desc) != table.DescriptionSize() {
				t.Errorf("description is %d bytes; DescriptionSize says %d", len(desc), table.DescriptionSize())
			}
			parsed, n, err := ReadHuffmanTable(desc)
			if err != nil {
				t.Fatalf("ReadHuffmanTable: %v", err)
			}
			if n != len(desc) {
				t.Errorf("ReadHuffmanTable consumed %d of %d bytes", n, len(desc))
			}

			enc := table.Encode(nil, tc.data)
			if est := table.EstimateSize(hist[:]); est != len(enc) {
				t.Errorf("EstimateSize = %d; encoded %d bytes", est, len(enc))
			}
			dec, err := parsed.Decode(nil, enc, len(tc.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tc.data, dec); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHuffmanLengthLimit(t *testing.T) {
	// Fibonacci weights force very deep trees without a limit.
	var hist [256]uint32
	a, b := uint32(1), uint32(1)
	for i := 0; i < 30; i++ {
		hist[i] = a
		a, b = b, a+b
	}
	table, err := BuildHuffman(hist[:], 8)
	if err != nil {
		t.Fatal(err)
	}
	kraft := 0
	for s := 0; s < 30; s++ {
		l := table.Len(byte(s))
		if l == 0 || l > 8 {
			t.Fatalf("symbol %d has length %d", s, l)
		}
		kraft += 1 << (8 - l)
	}
	if kraft != 1<<8 {
		t.Errorf("code lengths are not a complete prefix code: kraft sum %d", kraft)
	}
}

func TestHuffmanSingleSymbol(t *testing.T) {
	var hist [256]uint32
	hist['x'] = 10
	if _, err := BuildHuffman(hist[:], MaxHuffmanBits); !errors.Is(err, ErrTooLarge) {
		t.Errorf("BuildHuffman with one symbol = %v", err)
	}
}

func TestHuffmanCorrupt(t *testing.T) {
	data := skewed(500, 20, 2)
	var hist [256]uint32
	Histogram(hist[:], data)
	table, err := BuildHuffman(hist[:], MaxHuffmanBits)
	if err != nil {
		t.Fatal(err)
	}
	enc := table.Encode(nil, data)
	if _, err := table.Decode(nil, enc, len(data)+5); !errors.Is(err, ErrCorrupt) {
		t.Errorf("decoding too many symbols = %v", err)
	}
	if _, err := table.Decode(nil, enc[:len(enc)/2], len(data)); err == nil {
		t.Error("truncated stream decoded without error")
	}

	desc := table.AppendDescription(nil)
	if _, _, err := ReadHuffmanTable(desc[:1]); !errors.Is(err, ErrCorrupt) {
		t.Errorf("truncated description = %v", err)
	}
}

func TestNormalizeCounts(t *testing.T) {
	hist := []uint32{1000, 1, 1, 500, 0, 3, 250, 1}
	for tableLog := uint8(MinTableLog); tableLog <= MaxTableLog; tableLog++ {
		norm, err := NormalizeCounts(hist, tableLog)
		if err != nil {
			t.Fatalf("log %d: %v", tableLog, err)
		}
		sum := 0
		for s, n := range norm {
			switch {
			case hist[s] == 0 && n != 0:
				t.Errorf("log %d: absent symbol %d got %d", tableLog, s, n)
			case hist[s] != 0 && n == 0:
				t.Errorf("log %d: symbol %d got no slot", tableLog, s)
			}
			if n == -1 {
				sum++
			} else {
				sum += int(n)
			}
		}
		if sum != 1<<tableLog {
			t.Errorf("log %d: counts sum to %d", tableLog, sum)
		}
	}
}

func TestFSERoundTrip(t *testing.T) {
	for _, alphabet := range []int{2, 8, 36, 53, 64} {
		syms := skewed(5000, alphabet, int64(alphabet))
		var hist [64]uint32
		maxSym := 0
		for _, s := range syms {
			hist[s]++
			if int(s) > maxSym {
				maxSym = int(s)
			}
		}
		tableLog := OptimalTableLog(9, len(syms), maxSym)
		norm, err := NormalizeCounts(hist[:maxSym+1], tableLog)
		if err != nil {
			t.Fatalf("alphabet %d: %v", alphabet, err)
		}

		desc := AppendNormDescription(nil, norm, tableLog)
		norm2, log2, n, err := ReadNormDescription(desc, 9)
		if err != nil {
			t.Fatalf("alphabet %d: ReadNormDescription: %v", alphabet, err)
		}
		if n != len(desc) || log2 != tableLog {
			t.Errorf("alphabet %d: read %d of %d bytes, log %d want %d", alphabet, n, len(desc), log2, tableLog)
		}
		if diff := cmp.Diff(norm, norm2); diff != "" {
			t.Errorf("alphabet %d: description mismatch (-want +got):\n%s", alphabet, diff)
		}

		enc, err := NewEncTable(norm, tableLog)
		if err != nil {
			t.Fatal(err)
		}
		dec, err := NewDecTable(norm2, log2)
		if err != nil {
			t.Fatal(err)
		}
		stream := enc.EncodeSymbols(nil, syms)
		got, err := dec.DecodeSymbols(nil, stream, len(syms))
		if err != nil {
			t.Fatalf("alphabet %d: DecodeSymbols: %v", alphabet, err)
		}
		if !bytes.Equal(got, syms) {
			t.Errorf("alphabet %d: round trip mismatch", alphabet)
		}
		if cost, ok := enc.Cost(hist[:maxSym+1]); !ok || cost <= 0 {
			t.Errorf("alphabet %d: Cost = %d, %t", alphabet, cost, ok)
		}
	}
}

func TestFSERLE(t *testing.T) {
	syms := bytes.Repeat([]byte{7}, 100)
	stream := NewRLEEncTable(7).EncodeSymbols(nil, syms)
	got, err := NewRLEDecTable(7).DecodeSymbols(nil, stream, len(syms))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, syms) {
		t.Error("RLE round trip mismatch")
	}
	if _, ok := NewRLEEncTable(7).Cost([]uint32{0, 1, 0, 0, 0, 0, 0, 5}); ok {
		t.Error("RLE table claims to encode a second symbol")
	}
}

func TestFSECorrupt(t *testing.T) {
	syms := skewed(1000, 10, 3)
	var hist [16]uint32
	for _, s := range syms {
		hist[s]++
	}
	norm, err := NormalizeCounts(hist[:10], 6)
	if err != nil {
		t.Fatal(err)
	}
	enc, _ := NewEncTable(norm, 6)
	dec, _ := NewDecTable(norm, 6)
	stream := enc.EncodeSymbols(nil, syms)
	if _, err := dec.DecodeSymbols(nil, stream, len(syms)+10); !errors.Is(err, ErrCorrupt) {
		t.Errorf("decoding extra symbols = %v", err)
	}
	if _, _, _, err := ReadNormDescription(AppendNormDescription(nil, norm, 6), 5); !errors.Is(err, ErrCorrupt) {
		t.Errorf("description over the log limit = %v", err)
	}
}

func BenchmarkHuffmanEncode(b *testing.B) {
	data := skewed(1<<16, 64, 4)
	var hist [256]uint32
	Histogram(hist[:], data)
	table, err := BuildHuffman(hist[:], MaxHuffmanBits)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	buf := make([]byte, 0, len(data))
	for i := 0; i < b.N; i++ {
		buf = table.Encode(buf[:0], data)
	}
}
