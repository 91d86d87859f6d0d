package zpack

import (
	"github.com/ndrean/zpack/entropy"
	"github.com/ndrean/zpack/matchfinder"
)

// Block types, in bits 1-2 of the block header.
const (
	blockRaw        = 0
	blockRLE        = 1
	blockCompressed = 2
	blockReserved   = 3
)

func appendBlockHeader(dst []byte, last bool, typ uint8, size int) []byte {
	v := uint32(size)<<3 | uint32(typ)<<1
	if last {
		v |= 1
	}
	return append(dst, uint8(v), uint8(v>>8), uint8(v>>16))
}

// blockStats accumulates symbol statistics across blocks, for building
// dictionary tables.
type blockStats struct {
	lit [256]uint32
	ll  [maxLLCode + 1]uint32
	of  [maxOFCode + 1]uint32
	ml  [maxMLCode + 1]uint32
}

// encState is what a block inherits from the blocks before it in the same
// frame. It is only committed when a compressed block is emitted.
type encState struct {
	huff                   *entropy.HuffmanTable
	prevLL, prevOF, prevML *entropy.EncTable
	reps                   repOffsets
}

type blockEnc struct {
	encState

	seqs []seq
	lits []byte

	litHist [256]uint32
	llHist  [maxLLCode + 1]uint32
	ofHist  [maxOFCode + 1]uint32
	mlHist  [maxMLCode + 1]uint32

	llCodes, mlCodes, ofCodes []uint8
	llDesc, ofDesc, mlDesc    []byte

	payload []byte
	stats   *blockStats
}

// reset prepares for a new frame, starting from the tables of dict if it
// has any.
func (b *blockEnc) reset(dict *Dictionary) {
	b.encState = encState{reps: startReps}
	if dict != nil {
		b.huff = dict.huff
		b.prevLL, b.prevOF, b.prevML = dict.llEnc, dict.ofEnc, dict.mlEnc
	}
}

// encode appends one block holding src to dst. matches must cover src
// exactly. The compressed form is only used when it is more than margin
// bytes smaller than src. encode returns the block type used.
func (b *blockEnc) encode(dst, src []byte, matches []matchfinder.Match, last bool, margin int) ([]byte, uint8) {
	if len(src) > 1 && isRun(src) {
		dst = appendBlockHeader(dst, last, blockRLE, len(src))
		return append(dst, src[0]), blockRLE
	}
	if len(src) > 0 {
		saved := b.encState
		b.buildSeqs(src, matches)
		payload := b.encodeLiterals(b.payload[:0], b.lits)
		payload = b.encodeSequences(payload)
		b.payload = payload
		if len(payload)+margin < len(src) {
			if debugEncoder {
				printf("block: %d -> %d bytes, %d sequences", len(src), len(payload), len(b.seqs))
			}
			dst = appendBlockHeader(dst, last, blockCompressed, len(payload))
			return append(dst, payload...), blockCompressed
		}
		b.encState = saved
	}
	dst = appendBlockHeader(dst, last, blockRaw, len(src))
	return append(dst, src...), blockRaw
}

// buildSeqs turns matches into sequences and collects the literals.
func (b *blockEnc) buildSeqs(src []byte, matches []matchfinder.Match) {
	b.seqs = b.seqs[:0]
	b.lits = b.lits[:0]
	pos := 0
	litLen := 0
	for _, m := range matches {
		b.lits = append(b.lits, src[pos:pos+m.Unmatched]...)
		pos += m.Unmatched
		litLen += m.Unmatched
		if m.Length == 0 {
			continue
		}
		ll := uint32(litLen)
		off := b.reps.offBaseFor(uint32(m.Distance), ll)
		b.reps.resolve(off, ll)
		b.seqs = append(b.seqs, seq{
			litLen:   ll,
			matchLen: uint32(m.Length),
			offBase:  off,
		})
		pos += m.Length
		litLen = 0
	}
	b.lits = append(b.lits, src[pos:]...)
}

func isRun(b []byte) bool {
	for _, c := range b[1:] {
		if c != b[0] {
			return false
		}
	}
	return true
}
