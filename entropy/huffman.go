// Copyright (c) 2023, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package entropy

import (
	"bytes"
	"math/bits"

	"github.com/icza/bitio"
	"golang.org/x/exp/slices"
)

// MaxHuffmanBits is the longest code length a HuffmanTable may use.
const MaxHuffmanBits = 11

// A HuffmanTable is a canonical prefix code over byte values.
type HuffmanTable struct {
	lens    [256]uint8
	codes   [256]uint16
	maxSym  int
	maxBits uint8

	dec []huffEntry
}

type huffEntry struct {
	sym   uint8
	nBits uint8
}

type symCount struct {
	sym   uint16
	count uint32
}

// BuildHuffman builds a length-limited canonical code for the byte histogram
// hist. At least two symbols must have a non-zero count. The result only
// depends on hist: symbols with equal counts are ordered by value.
func BuildHuffman(hist []uint32, maxBits int) (*HuffmanTable, error) {
	if maxBits <= 0 || maxBits > MaxHuffmanBits {
		maxBits = MaxHuffmanBits
	}
	counts := make([]symCount, 0, 256)
	for s, c := range hist {
		if c == 0 {
			continue
		}
		if s > 255 {
			return nil, ErrTooLarge
		}
		counts = append(counts, symCount{sym: uint16(s), count: c})
	}
	if len(counts) < 2 {
		return nil, ErrTooLarge
	}
	slices.SortFunc(counts, func(a, b symCount) int {
		if a.count != b.count {
			if a.count > b.count {
				return -1
			}
			return 1
		}
		return int(a.sym) - int(b.sym)
	})

	w := make([]uint32, len(counts))
	for i, c := range counts {
		w[i] = c.count
	}
	longest := moffatCodeLens(w)
	if int(longest) > maxBits {
		limitLengths(w, maxBits)
	}

	t := new(HuffmanTable)
	for i, c := range counts {
		t.lens[c.sym] = uint8(w[i])
	}
	t.assignCodes()
	return t, nil
}

// moffatCodeLens computes minimum-redundancy code lengths in place, following
// Moffat and Katajainen's in-place algorithm. w must be sorted by decreasing
// weight; on return w[i] is the code length of the i-th symbol. It returns
// the longest length.
func moffatCodeLens(w []uint32) uint32 {
	n := len(w)
	if n == 0 {
		return 0
	}
	if n == 1 {
		w[0] = 1
		return 1
	}
	leaf := n - 1
	root := n - 1
	for next := n - 1; next >= 1; next-- {
		if leaf < 0 || (root > next && w[root] < w[leaf]) {
			w[next] = w[root]
			w[root] = uint32(next)
			root--
		} else {
			w[next] = w[leaf]
			leaf--
		}

		if leaf < 0 || (root > next && w[root] < w[leaf]) {
			w[next] += w[root]
			w[root] = uint32(next)
			root--
		} else {
			w[next] += w[leaf]
			leaf--
		}
	}

	w[1] = 0
	for next := 2; next <= n-1; next++ {
		w[next] = w[w[next]] + 1
	}

	avail := 1
	used := 0
	depth := 0
	root = 1
	next := 0
	for avail > 0 {
		for ; root < n && w[root] == uint32(depth); root++ {
			used++
		}
		for ; avail > used; avail-- {
			w[next] = uint32(depth)
			next++
		}
		avail = 2 * used
		depth++
		used = 0
	}
	return w[n-1]
}

// limitLengths rewrites the sorted code lengths in w so that none exceeds
// maxBits while the Kraft sum stays exactly one.
func limitLengths(w []uint32, maxBits int) {
	var lenCounts [64]int
	for _, l := range w {
		if int(l) > maxBits {
			l = uint32(maxBits)
		}
		lenCounts[l]++
	}
	total := 0
	for i := 1; i <= maxBits; i++ {
		total += lenCounts[i] << (maxBits - i)
	}
	for total > 1<<maxBits {
		lenCounts[maxBits]--
		for i := maxBits - 1; i > 0; i-- {
			if lenCounts[i] != 0 {
				lenCounts[i]--
				lenCounts[i+1] += 2
				break
			}
		}
		total--
	}
	idx := 0
	for l := 1; l <= maxBits; l++ {
		for j := 0; j < lenCounts[l]; j++ {
			w[idx] = uint32(l)
			idx++
		}
	}
}

// assignCodes gives each symbol its canonical code: codes are consecutive
// within a length, and symbols of the same length are ordered by value.
func (t *HuffmanTable) assignCodes() {
	var blCount [MaxHuffmanBits + 1]uint16
	t.maxBits = 0
	t.maxSym = 0
	for s, l := range t.lens {
		if l == 0 {
			continue
		}
		blCount[l]++
		t.maxSym = s
		if l > t.maxBits {
			t.maxBits = l
		}
	}
	var nextCode [MaxHuffmanBits + 2]uint16
	code := uint16(0)
	for l := 1; l <= MaxHuffmanBits; l++ {
		code = (code + blCount[l-1]) << 1
		nextCode[l] = code
	}
	for s, l := range t.lens {
		if l != 0 {
			t.codes[s] = nextCode[l]
			nextCode[l]++
		}
	}
	t.dec = nil
}

// Len returns the code length of sym, or 0 if sym is not in the code.
func (t *HuffmanTable) Len(sym byte) int {
	return int(t.lens[sym])
}

// MaxBits returns the longest code length in the table.
func (t *HuffmanTable) MaxBits() int {
	return int(t.maxBits)
}

// CanEncode reports whether every symbol counted in hist has a code.
func (t *HuffmanTable) CanEncode(hist []uint32) bool {
	for s, c := range hist {
		if c != 0 && (s > 255 || t.lens[s] == 0) {
			return false
		}
	}
	return true
}

// EstimateSize returns the number of bytes Encode would produce for data
// with the byte histogram hist.
func (t *HuffmanTable) EstimateSize(hist []uint32) int {
	n := 0
	for s, c := range hist {
		if s > 255 {
			break
		}
		n += int(c) * int(t.lens[s])
	}
	return (n + 8) / 8
}

// Encode appends the code for src to dst as a single backward stream. Every
// byte of src must have a code.
func (t *HuffmanTable) Encode(dst, src []byte) []byte {
	var w BitWriter
	w.Reset(dst)
	for i := len(src) - 1; i >= 0; i-- {
		b := src[i]
		w.AddBits(uint64(t.codes[b]), uint(t.lens[b]))
	}
	return w.Close()
}

func (t *HuffmanTable) buildDecoder() {
	size := 1 << t.maxBits
	if cap(t.dec) >= size {
		t.dec = t.dec[:size]
	} else {
		t.dec = make([]huffEntry, size)
	}
	for s, l := range t.lens {
		if l == 0 {
			continue
		}
		shift := t.maxBits - l
		start := int(t.codes[s]) << shift
		end := start + 1<<shift
		for i := start; i < end; i++ {
			t.dec[i] = huffEntry{sym: uint8(s), nBits: l}
		}
	}
}

// Decode decodes exactly n symbols from src and appends them to dst. The
// stream must be consumed exactly.
func (t *HuffmanTable) Decode(dst, src []byte, n int) ([]byte, error) {
	if t.maxBits == 0 {
		return dst, ErrCorrupt
	}
	if t.dec == nil {
		t.buildDecoder()
	}
	var r BitReader
	if err := r.Init(src); err != nil {
		return dst, err
	}
	if n > r.Remaining() {
		return dst, ErrCorrupt
	}
	maxBits := uint(t.maxBits)
	for i := 0; i < n; i++ {
		e := t.dec[r.PeekBits(maxBits)]
		if e.nBits == 0 {
			return dst, ErrCorrupt
		}
		r.SkipBits(uint(e.nBits))
		dst = append(dst, e.sym)
	}
	if !r.Finished() {
		return dst, ErrCorrupt
	}
	return dst, nil
}

// AppendDescription appends a compact description of the code lengths to
// dst: the largest symbol in 8 bits, then a 4-bit length per symbol where a
// zero length is followed by a 4-bit count of further zero lengths.
func (t *HuffmanTable) AppendDescription(dst []byte) []byte {
	buf := bytes.NewBuffer(dst)
	w := bitio.NewWriter(buf)
	w.TryWriteBits(uint64(t.maxSym), 8)
	for s := 0; s <= t.maxSym; s++ {
		l := t.lens[s]
		w.TryWriteBits(uint64(l), 4)
		if l != 0 {
			continue
		}
		run := 0
		for run < 15 && s+1 <= t.maxSym && t.lens[s+1] == 0 {
			run++
			s++
		}
		w.TryWriteBits(uint64(run), 4)
	}
	w.TryAlign()
	return buf.Bytes()
}

// DescriptionSize returns the number of bytes AppendDescription writes.
func (t *HuffmanTable) DescriptionSize() int {
	n := 8
	for s := 0; s <= t.maxSym; s++ {
		n += 4
		if t.lens[s] != 0 {
			continue
		}
		run := 0
		for run < 15 && s+1 <= t.maxSym && t.lens[s+1] == 0 {
			run++
			s++
		}
		n += 4
	}
	return (n + 7) / 8
}

// ReadHuffmanTable parses a description written by AppendDescription. It
// returns the table and the number of bytes consumed.
func ReadHuffmanTable(src []byte) (*HuffmanTable, int, error) {
	br := bytes.NewReader(src)
	r := bitio.NewReader(br)
	maxSym := int(r.TryReadBits(8))
	t := new(HuffmanTable)
	for s := 0; s <= maxSym && r.TryError == nil; s++ {
		l := uint8(r.TryReadBits(4))
		if l > MaxHuffmanBits {
			return nil, 0, ErrCorrupt
		}
		t.lens[s] = l
		if l != 0 {
			continue
		}
		run := int(r.TryReadBits(4))
		if s+run > maxSym {
			return nil, 0, ErrCorrupt
		}
		s += run
	}
	if r.TryError != nil {
		return nil, 0, ErrCorrupt
	}
	if t.lens[maxSym] == 0 {
		return nil, 0, ErrCorrupt
	}

	// The lengths must describe a complete prefix code.
	kraft := 0
	nSyms := 0
	for _, l := range t.lens {
		if l != 0 {
			kraft += 1 << (MaxHuffmanBits - l)
			nSyms++
		}
	}
	if nSyms < 2 || kraft != 1<<MaxHuffmanBits {
		return nil, 0, ErrCorrupt
	}
	t.assignCodes()
	t.buildDecoder()
	return t, len(src) - br.Len(), nil
}

// highBit returns the index of the highest set bit of v, which must be
// non-zero.
func highBit(v uint32) uint {
	return uint(bits.Len32(v)) - 1
}
