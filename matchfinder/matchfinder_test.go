package matchfinder

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

var words = []string{
	"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog", "light",
	"refraction", "colours", "prism", "rays", "of", "and", "in", "which",
	"experiment", "opticks", "reflexions", "inflexions",
}

// testText returns n bytes of word salad, repetitive enough to hold plenty
// of matches at all distances.
func testText(n int, seed int64) []byte {
	rnd := rand.New(rand.NewSource(seed))
	var b bytes.Buffer
	for b.Len() < n {
		b.WriteString(words[rnd.Intn(len(words))])
		if rnd.Intn(12) == 0 {
			b.WriteString(".\n")
		} else {
			b.WriteByte(' ')
		}
	}
	return b.Bytes()[:n]
}

// apply reconstructs src from matches, copying matched bytes from out,
// which holds the content before src. It returns out with src appended.
func apply(t *testing.T, out, src []byte, matches []Match, minLength, maxDistance int) []byte {
	t.Helper()
	pos := 0
	for i, m := range matches {
		if m.Unmatched < 0 || m.Length < 0 || pos+m.Unmatched+m.Length > len(src) {
			t.Fatalf("match %d %+v runs past the block", i, m)
		}
		out = append(out, src[pos:pos+m.Unmatched]...)
		pos += m.Unmatched
		if m.Length == 0 {
			continue
		}
		if m.Length < minLength {
			t.Fatalf("match %d %+v is shorter than %d", i, m, minLength)
		}
		if m.Distance <= 0 || m.Distance > len(out) || m.Distance > maxDistance {
			t.Fatalf("match %d %+v has a bad distance (window %d)", i, m, len(out))
		}
		start := len(out) - m.Distance
		for k := 0; k < m.Length; k++ {
			out = append(out, out[start+k])
		}
		pos += m.Length
	}
	if pos != len(src) {
		t.Fatalf("matches cover %d of %d bytes", pos, len(src))
	}
	return out
}

type finderCase struct {
	name        string
	mf          MatchFinder
	minLength   int
	maxDistance int
}

func finderCases() []finderCase {
	const dist = 1 << 14
	return []finderCase{
		{"SingleHash", &SingleHash{MaxDistance: dist, MinLength: 4, HashLen: 5, TableBits: 12}, 4, dist},
		{"SingleHash/lazy", &SingleHash{MaxDistance: dist, MinLength: 3, Parser: &LazyParser{MinLength: 3}}, 3, dist},
		{"DualHash", &DualHash{MaxDistance: dist, MinLength: 4, TableBits: 12}, 4, dist},
		{"DualHash/lazy", &DualHash{MaxDistance: dist, MinLength: 5, Parser: &LazyParser{MinLength: 5}}, 5, dist},
		{"HashChain", &HashChain{MaxDistance: dist, MinLength: 4, SearchDepth: 8}, 4, dist},
		{"HashChain/lazy2", &HashChain{MaxDistance: dist, MinLength: 4, Parser: &LazyParser{MinLength: 4, Depth: 2}}, 4, dist},
		{"HashChain/overlap", &HashChain{MaxDistance: dist, MinLength: 4, Parser: &OverlapParser{MinLength: 4}}, 4, dist},
		{"BinaryTree", &BinaryTree{MaxDistance: dist, MinLength: 4}, 4, dist},
		{"BinaryTree/overlap", &BinaryTree{MaxDistance: dist, MinLength: 5, Parser: &OverlapParser{MinLength: 5}}, 5, dist},
	}
}

func TestFindMatchesReconstructs(t *testing.T) {
	data := testText(100000, 1)
	for _, tc := range finderCases() {
		t.Run(tc.name, func(t *testing.T) {
			tc.mf.Reset(nil)
			var out []byte
			var matches []Match
			matched := 0
			for block := 0; block < len(data); block += 7000 {
				end := block + 7000
				if end > len(data) {
					end = len(data)
				}
				matches = tc.mf.FindMatches(matches[:0], data[block:end])
				for _, m := range matches {
					matched += m.Length
				}
				out = apply(t, out, data[block:end], matches, tc.minLength, tc.maxDistance)
			}
			if !bytes.Equal(out, data) {
				t.Fatal("reconstructed data does not match")
			}
			if matched < len(data)/2 {
				t.Errorf("only %d of %d bytes matched", matched, len(data))
			}
		})
	}
}

func TestFindMatchesHistory(t *testing.T) {
	history := []byte("a dictionary of common phrases: content-type: application/json; ")
	src := []byte("content-type: application/json; charset=utf-8")
	for _, tc := range finderCases() {
		t.Run(tc.name, func(t *testing.T) {
			tc.mf.Reset(history)
			matches := tc.mf.FindMatches(nil, src)
			out := apply(t, append([]byte(nil), history...), src, matches, tc.minLength, tc.maxDistance)
			if !bytes.Equal(out[len(history):], src) {
				t.Fatal("reconstructed data does not match")
			}
			if len(matches) == 0 || matches[0].Length < 20 {
				t.Errorf("history was not used: %v", matches)
			}
		})
	}
}

func TestResetForgetsInput(t *testing.T) {
	src := testText(3000, 2)
	for _, tc := range finderCases() {
		t.Run(tc.name, func(t *testing.T) {
			tc.mf.Reset(nil)
			first := tc.mf.FindMatches(nil, src)
			tc.mf.Reset(nil)
			second := tc.mf.FindMatches(nil, src)
			if fmt.Sprint(first) != fmt.Sprint(second) {
				t.Error("matches differ after Reset")
			}
		})
	}
}

type countingBuffers struct {
	allocs, frees int
}

func (c *countingBuffers) Alloc(n int) []byte {
	c.allocs++
	return make([]byte, 0, n)
}

func (c *countingBuffers) Free(b []byte) {
	c.frees++
}

func TestBuffers(t *testing.T) {
	data := testText(100000, 3)
	var bufs countingBuffers
	q := &HashChain{MaxDistance: 1 << 14, MinLength: 4, Buffers: &bufs}
	q.Reset(nil)
	var out []byte
	var matches []Match
	for block := 0; block < len(data); block += 7000 {
		end := block + 7000
		if end > len(data) {
			end = len(data)
		}
		matches = q.FindMatches(matches[:0], data[block:end])
		out = apply(t, out, data[block:end], matches, 4, 1<<14)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("reconstructed data does not match")
	}
	if bufs.allocs == 0 {
		t.Fatal("history did not come from Buffers")
	}
	if cap(q.history) > 4<<14 {
		t.Errorf("history grew to %d bytes", cap(q.history))
	}
	q.Release()
	if bufs.allocs != bufs.frees {
		t.Errorf("%d buffers allocated, %d freed", bufs.allocs, bufs.frees)
	}
}

func TestTextEncoder(t *testing.T) {
	src := []byte("abcabcabcabc!")
	matches := []Match{{Unmatched: 3, Length: 9, Distance: 3}, {Unmatched: 1}}
	got := string(TextEncoder{}.Encode(nil, src, matches))
	if want := "abc<9,3>!"; got != want {
		t.Errorf("Encode = %q; want %q", got, want)
	}
}

func BenchmarkFindMatches(b *testing.B) {
	data := testText(1<<20, 3)
	for _, tc := range finderCases() {
		b.Run(tc.name, func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			var matches []Match
			for i := 0; i < b.N; i++ {
				tc.mf.Reset(nil)
				for block := 0; block < len(data); block += 1 << 17 {
					matches = tc.mf.FindMatches(matches[:0], data[block:block+1<<17])
				}
			}
		})
	}
}
