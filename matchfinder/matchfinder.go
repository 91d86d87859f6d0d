// Package matchfinder implements the LZ77 stage of zpack: it looks for
// repeated sequences of bytes and describes the input as a series of
// literal runs and back-references.
//
// A MatchFinder keeps a sliding window of recent input (optionally primed
// with dictionary content) and turns each new block into Matches. Most
// finders are split in two parts: a Searcher that reports candidate matches
// at one position, and a Parser that decides which of them to use.
package matchfinder

import (
	"encoding/binary"
	"math/bits"
	"runtime"
)

// A Match is the basic unit of LZ77 compression.
type Match struct {
	Unmatched int // the number of unmatched bytes since the previous match
	Length    int // the number of bytes in the matched string; it may be 0 at the end of the input
	Distance  int // how far back in the stream to copy from
}

// A MatchFinder performs the LZ77 stage of compression, looking for matches.
type MatchFinder interface {
	// FindMatches looks for matches in src, appends them to dst, and returns dst.
	// The bytes of src are added to the window, so later calls can refer back
	// to them.
	FindMatches(dst []Match, src []byte) []Match

	// Reset clears any internal state, preparing the MatchFinder to be used with
	// a new stream. The window starts out holding history, which may be nil.
	Reset(history []byte)
}

// MinMatch is the shortest match the block format can represent.
const MinMatch = 3

const (
	defaultMaxDistance = 1 << 20
	defaultTableBits   = 16
	maxTableBits       = 24
)

const prime8bytes = 0xcf1bbcdcb7a56463

// load64 returns up to 8 bytes of b starting at i, zero padded.
func load64(b []byte, i int) uint64 {
	if i+8 <= len(b) {
		return binary.LittleEndian.Uint64(b[i:])
	}
	var v uint64
	for j := len(b) - 1; j >= i; j-- {
		v = v<<8 | uint64(b[j])
	}
	return v
}

// hashBytes hashes the low n bytes of u into a value of tableBits bits.
func hashBytes(u uint64, n int, tableBits uint) uint32 {
	return uint32(((u << (64 - 8*n)) * prime8bytes) >> (64 - tableBits))
}

// hashLen returns how many bytes to hash for a minimum match length.
func hashLen(minLength int) int {
	switch {
	case minLength < MinMatch:
		return MinMatch
	case minLength > 8:
		return 8
	}
	return minLength
}

// extendMatch returns the largest k such that k <= len(src) and that
// src[i:i+k-j] and src[j:k] have the same contents.
//
// It assumes that:
//
//	0 <= i && i < j && j <= len(src)
func extendMatch(src []byte, i, j int) int {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		// As long as we are 8 or more bytes before the end of src, we can load and
		// compare 8 bytes at a time. If those 8 bytes are equal, repeat.
		for j+8 < len(src) {
			iBytes := binary.LittleEndian.Uint64(src[i:])
			jBytes := binary.LittleEndian.Uint64(src[j:])
			if iBytes != jBytes {
				// If those 8 bytes were not equal, XOR the two 8 byte values, and return
				// the index of the first byte that differs.
				return j + bits.TrailingZeros64(iBytes^jBytes)>>3
			}
			i, j = i+8, j+8
		}
	case "386":
		// On a 32-bit CPU, we do it 4 bytes at a time.
		for j+4 < len(src) {
			iBytes := binary.LittleEndian.Uint32(src[i:])
			jBytes := binary.LittleEndian.Uint32(src[j:])
			if iBytes != jBytes {
				return j + bits.TrailingZeros32(iBytes^jBytes)>>3
			}
			i, j = i+4, j+4
		}
	}
	for ; j < len(src) && src[i] == src[j]; i, j = i+1, j+1 {
	}
	return j
}

// An Allocator supplies byte buffers. Alloc returns a slice of length zero
// and capacity at least n; Free takes back a slice that is no longer used.
type Allocator interface {
	Alloc(n int) []byte
	Free(b []byte)
}

type heapAllocator struct{}

func (heapAllocator) Alloc(n int) []byte { return make([]byte, 0, n) }
func (heapAllocator) Free([]byte)        {}

// window is the history buffer shared by the match finders. It holds at
// least MaxDistance bytes before the block being compressed, and is trimmed
// once it grows past twice that.
type window struct {
	history []byte
	alloc   Allocator
}

// slide trims the history if needed before more bytes are appended, and
// returns how many bytes were dropped from the front.
func (w *window) slide(maxDistance int) int {
	if len(w.history) <= 2*maxDistance {
		return 0
	}
	delta := len(w.history) - maxDistance
	copy(w.history, w.history[delta:])
	w.history = w.history[:maxDistance]
	return delta
}

func (w *window) reset(history []byte, a Allocator) {
	if a == nil {
		a = heapAllocator{}
	}
	w.alloc = a
	w.history = w.history[:0]
	w.add(history)
}

// add appends b to the history, moving it to a bigger buffer when it is
// full.
func (w *window) add(b []byte) {
	if need := len(w.history) + len(b); need > cap(w.history) {
		if w.alloc == nil {
			w.alloc = heapAllocator{}
		}
		n := 2 * cap(w.history)
		if n < need {
			n = need
		}
		grown := append(w.alloc.Alloc(n), w.history...)
		if cap(w.history) > 0 {
			w.alloc.Free(w.history)
		}
		w.history = grown
	}
	w.history = append(w.history, b...)
}

// Release hands the history buffer back to the allocator it came from.
// The match finder can still be used; it allocates again on Reset.
func (w *window) Release() {
	if w.alloc != nil && cap(w.history) > 0 {
		w.alloc.Free(w.history)
	}
	w.history = nil
}

// shiftTable moves the positions stored in t (as position+1, zero meaning
// empty) down by delta.
func shiftTable(t []uint32, delta int) {
	for i, v := range t {
		newV := int(v) - delta
		if newV < 0 {
			newV = 0
		}
		t[i] = uint32(newV)
	}
}

func longestMatch(matches []AbsoluteMatch) AbsoluteMatch {
	var longest AbsoluteMatch

	for _, m := range matches {
		if m.End-m.Start > longest.End-longest.Start {
			longest = m
		}
	}

	return longest
}
