package zpack

import (
	"errors"
	"fmt"

	"github.com/ndrean/zpack/entropy"
)

// Literals section types, in the low two bits of its first byte.
const (
	litRaw      = 0
	litRLE      = 1
	litHuffman  = 2
	litTreeless = 3 // Huffman coded with the previous block's table
)

// Below this many literals a Huffman table never pays for itself.
const minLitsToCompress = 32

func rawLitHeaderSize(n int) int {
	switch {
	case n < 32:
		return 1
	case n < 1<<12:
		return 2
	}
	return 3
}

func appendRawLitHeader(dst []byte, typ uint8, n int) []byte {
	switch rawLitHeaderSize(n) {
	case 1:
		return append(dst, typ|uint8(n)<<3)
	case 2:
		return append(dst, typ|1<<2|uint8(n)<<4, uint8(n>>4))
	}
	return append(dst, typ|3<<2|uint8(n)<<4, uint8(n>>4), uint8(n>>12))
}

// compLitSizeFormat picks the header layout of a Huffman coded section: the
// number of bits for each of the two sizes, and the header length.
func compLitSizeFormat(regen, comp int) (format uint8, sizeBits uint, headerSize int) {
	m := regen
	if comp > m {
		m = comp
	}
	switch {
	case m < 1<<10:
		return 0, 10, 3
	case m < 1<<14:
		return 1, 14, 4
	}
	return 2, 18, 5
}

func appendCompLitHeader(dst []byte, typ uint8, regen, comp int) []byte {
	format, sizeBits, hs := compLitSizeFormat(regen, comp)
	v := uint64(typ) | uint64(format)<<2 | uint64(regen)<<4 | uint64(comp)<<(4+sizeBits)
	for i := 0; i < hs; i++ {
		dst = append(dst, uint8(v>>(8*i)))
	}
	return dst
}

// encodeLiterals appends the literals section for lits, choosing the
// smallest of the raw, RLE and Huffman forms.
func (b *blockEnc) encodeLiterals(dst, lits []byte) []byte {
	n := len(lits)
	if n == 0 {
		return appendRawLitHeader(dst, litRaw, 0)
	}
	hist := b.litHist[:]
	maxSym, maxCount := entropy.Histogram(hist, lits)
	if b.stats != nil {
		for i, c := range hist {
			b.stats.lit[i] += c
		}
	}
	if int(maxCount) == n && n > 1 {
		dst = appendRawLitHeader(dst, litRLE, n)
		return append(dst, lits[0])
	}

	best := rawLitHeaderSize(n) + n
	choice := uint8(litRaw)
	var fresh *entropy.HuffmanTable
	if n >= minLitsToCompress {
		if b.huff != nil && b.huff.CanEncode(hist) {
			sz := b.huff.EstimateSize(hist)
			_, _, hs := compLitSizeFormat(n, sz)
			if hs+sz < best {
				best = hs + sz
				choice = litTreeless
			}
		}
		t, err := entropy.BuildHuffman(hist[:maxSym+1], entropy.MaxHuffmanBits)
		if err == nil {
			sz := t.DescriptionSize() + t.EstimateSize(hist)
			_, _, hs := compLitSizeFormat(n, sz)
			if hs+sz < best {
				best = hs + sz
				choice = litHuffman
				fresh = t
			}
		}
	}

	switch choice {
	case litTreeless:
		sz := b.huff.EstimateSize(hist)
		dst = appendCompLitHeader(dst, litTreeless, n, sz)
		return b.huff.Encode(dst, lits)
	case litHuffman:
		desc := fresh.DescriptionSize()
		sz := desc + fresh.EstimateSize(hist)
		dst = appendCompLitHeader(dst, litHuffman, n, sz)
		dst = fresh.AppendDescription(dst)
		b.huff = fresh
		return fresh.Encode(dst, lits)
	}
	dst = appendRawLitHeader(dst, litRaw, n)
	return append(dst, lits...)
}

// decodeLiterals parses the literals section at the start of src. It
// returns the literals and the size of the section. The literals may alias
// src.
func (d *blockDec) decodeLiterals(src []byte) ([]byte, int, error) {
	if len(src) == 0 {
		return nil, 0, corruptf("missing literals section")
	}
	typ := src[0] & 3
	switch typ {
	case litRaw, litRLE:
		var n, hs int
		switch (src[0] >> 2) & 3 {
		case 0, 2:
			n, hs = int(src[0]>>3), 1
		case 1:
			if len(src) < 2 {
				return nil, 0, corruptf("truncated literals header")
			}
			n, hs = int(src[0]>>4)|int(src[1])<<4, 2
		case 3:
			if len(src) < 3 {
				return nil, 0, corruptf("truncated literals header")
			}
			n, hs = int(src[0]>>4)|int(src[1])<<4|int(src[2])<<12, 3
		}
		if n > MaxBlockSize {
			return nil, 0, corruptf("%d literals exceed block size", n)
		}
		if typ == litRaw {
			if len(src) < hs+n {
				return nil, 0, corruptf("truncated raw literals")
			}
			return src[hs : hs+n], hs + n, nil
		}
		if len(src) < hs+1 {
			return nil, 0, corruptf("truncated RLE literals")
		}
		lits := d.lits[:0]
		for i := 0; i < n; i++ {
			lits = append(lits, src[hs])
		}
		d.lits = lits
		return lits, hs + 1, nil
	}

	format := (src[0] >> 2) & 3
	if format == 3 {
		return nil, 0, corruptf("bad literals size format")
	}
	hs := 3 + int(format)
	sizeBits := 10 + 4*uint(format)
	if len(src) < hs {
		return nil, 0, corruptf("truncated literals header")
	}
	var v uint64
	for i := 0; i < hs; i++ {
		v |= uint64(src[i]) << (8 * i)
	}
	mask := uint64(1)<<sizeBits - 1
	regen := int((v >> 4) & mask)
	comp := int((v >> (4 + sizeBits)) & mask)
	if regen > MaxBlockSize {
		return nil, 0, corruptf("%d literals exceed block size", regen)
	}
	if len(src) < hs+comp {
		return nil, 0, corruptf("truncated Huffman literals")
	}
	body := src[hs : hs+comp]

	if typ == litHuffman {
		t, k, err := entropy.ReadHuffmanTable(body)
		if err != nil {
			return nil, 0, entropyErr("literals table", err)
		}
		d.huff = t
		body = body[k:]
	} else if d.huff == nil {
		return nil, 0, corruptf("literals reuse a missing table")
	}
	lits, err := d.huff.Decode(d.lits[:0], body, regen)
	if err != nil {
		return nil, 0, entropyErr("literals", err)
	}
	d.lits = lits
	return lits, hs + comp, nil
}

// entropyErr turns an error from the entropy package into a corruption
// error, keeping both in the chain.
func entropyErr(what string, err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrCorruption, what, err)
}
