package zpack

import (
	"github.com/ndrean/zpack/entropy"
)

type blockHeader struct {
	last bool
	typ  uint8
	size int
}

func parseBlockHeader(b []byte) blockHeader {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return blockHeader{
		last: v&1 != 0,
		typ:  uint8(v>>1) & 3,
		size: int(v >> 3),
	}
}

// payloadSize returns how many bytes follow the header.
func (h blockHeader) payloadSize() int {
	if h.typ == blockRLE {
		return 1
	}
	return h.size
}

// blockDec decodes the blocks of one frame.
type blockDec struct {
	huff                   *entropy.HuffmanTable
	prevLL, prevOF, prevML *entropy.DecTable
	reps                   repOffsets

	lits  []byte
	seqs  []seq
	alloc Allocator
}

func (d *blockDec) reset(dict *Dictionary) {
	*d = blockDec{reps: startReps, lits: d.lits[:0], seqs: d.seqs[:0], alloc: d.alloc}
	if dict != nil {
		d.huff = dict.huff
		d.prevLL, d.prevOF, d.prevML = dict.llDec, dict.ofDec, dict.mlDec
	}
}

// frameRefs describes what a block may copy from: out[base:] is the frame
// content still held, and dict precedes it unless content was dropped from
// the front.
type frameRefs struct {
	base    int
	dropped bool
	dict    []byte
	// maxDist is the window size, or 0 when only availability limits
	// distances.
	maxDist  uint64
	maxBlock int
}

// decode validates the block h with payload p and appends its content to
// out.
func (d *blockDec) decode(out []byte, h blockHeader, p []byte, refs frameRefs) ([]byte, error) {
	switch h.typ {
	case blockRaw:
		if h.size > refs.maxBlock {
			return out, corruptf("raw block of %d bytes exceeds %d", h.size, refs.maxBlock)
		}
		return append(out, p[:h.size]...), nil
	case blockRLE:
		if h.size > refs.maxBlock {
			return out, corruptf("RLE block of %d bytes exceeds %d", h.size, refs.maxBlock)
		}
		for i := 0; i < h.size; i++ {
			out = append(out, p[0])
		}
		return out, nil
	case blockReserved:
		return out, corruptf("reserved block type")
	}

	if h.size > refs.maxBlock {
		return out, corruptf("compressed block of %d bytes exceeds %d", h.size, refs.maxBlock)
	}
	if cap(d.lits) < MaxBlockSize {
		d.lits = reserve(d.alloc, d.lits[:0], MaxBlockSize)
	}
	lits, n, err := d.decodeLiterals(p)
	if err != nil {
		return out, err
	}
	if err := d.decodeSequences(p[n:]); err != nil {
		return out, err
	}
	if debugDecoder {
		printf("block: %d literals, %d sequences", len(lits), len(d.seqs))
	}
	return d.execute(out, lits, refs)
}

// execute appends the literals and matches of the decoded sequences to out.
func (d *blockDec) execute(out, lits []byte, refs frameRefs) ([]byte, error) {
	start := len(out)
	for _, s := range d.seqs {
		if int(s.litLen) > len(lits) {
			return out, corruptf("literal length %d exceeds %d literals left", s.litLen, len(lits))
		}
		ml := int(s.matchLen)
		if len(out)-start+int(s.litLen)+ml > refs.maxBlock {
			return out, corruptf("block content exceeds %d bytes", refs.maxBlock)
		}
		out = append(out, lits[:s.litLen]...)
		lits = lits[s.litLen:]

		dist := d.reps.resolve(s.offBase, s.litLen)
		if dist == 0 || (refs.maxDist != 0 && uint64(dist) > refs.maxDist) {
			return out, corruptf("offset %d out of range", dist)
		}
		have := len(out) - refs.base
		if int(dist) <= have {
			src := len(out) - int(dist)
			if int(dist) >= ml {
				out = append(out, out[src:src+ml]...)
			} else {
				for i := 0; i < ml; i++ {
					out = append(out, out[src+i])
				}
			}
			continue
		}

		// The match starts in the dictionary.
		extra := int(dist) - have
		if refs.dropped || extra > len(refs.dict) {
			return out, corruptf("offset %d reaches before the window", dist)
		}
		ds := len(refs.dict) - extra
		n := extra
		if n > ml {
			n = ml
		}
		out = append(out, refs.dict[ds:ds+n]...)
		for i := 0; i < ml-n; i++ {
			out = append(out, out[refs.base+i])
		}
	}
	if len(out)-start+len(lits) > refs.maxBlock {
		return out, corruptf("block content exceeds %d bytes", refs.maxBlock)
	}
	return append(out, lits...), nil
}
