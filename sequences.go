package zpack

import (
	"math"

	"github.com/ndrean/zpack/entropy"
)

// A seq is one literal run followed by one match.
type seq struct {
	litLen   uint32
	matchLen uint32
	// offBase is 1 to 3 for a repeated offset, or the distance plus 3.
	offBase uint32
}

// repOffsets holds the three most recent match distances, most recent
// first.
type repOffsets [3]uint32

var startReps = repOffsets{1, 4, 8}

// offBaseFor returns the offset value that codes distance d for a match
// preceded by litLen literals.
func (r *repOffsets) offBaseFor(d, litLen uint32) uint32 {
	if litLen > 0 {
		switch d {
		case r[0]:
			return 1
		case r[1]:
			return 2
		case r[2]:
			return 3
		}
	} else {
		switch d {
		case r[1]:
			return 1
		case r[2]:
			return 2
		case r[0] - 1:
			return 3
		}
	}
	return d + 3
}

// resolve returns the distance coded by offBase and updates the history.
// A zero result means the offset is invalid.
func (r *repOffsets) resolve(offBase, litLen uint32) uint32 {
	if offBase > 3 {
		d := offBase - 3
		r[2], r[1], r[0] = r[1], r[0], d
		return d
	}
	code := offBase - 1
	if litLen == 0 {
		code++
	}
	if code == 0 {
		return r[0]
	}
	var d uint32
	if code == 3 {
		d = r[0] - 1
	} else {
		d = r[code]
	}
	if code > 1 {
		r[2] = r[1]
	}
	r[1] = r[0]
	r[0] = d
	return d
}

// Compression modes of the three code streams, in the modes byte.
const (
	modePredefined = 0
	modeRLE        = 1
	modeFSE        = 2
	modeRepeat     = 3
)

func appendSeqCount(dst []byte, n int) []byte {
	switch {
	case n < 128:
		return append(dst, uint8(n))
	case n < 0x7f00:
		return append(dst, uint8(n>>8)+128, uint8(n))
	}
	n -= 0x7f00
	return append(dst, 0xff, uint8(n), uint8(n>>8))
}

// seqStream describes how one of the three code streams is coded.
type seqStream struct {
	maxLog uint8
	predef *entropy.EncTable
}

var (
	llStream = seqStream{llMaxLog, predefined.llEnc}
	ofStream = seqStream{ofMaxLog, predefined.ofEnc}
	mlStream = seqStream{mlMaxLog, predefined.mlEnc}
)

// chooseTable picks the cheapest way to code a stream with histogram hist:
// the predefined table, the previous block's table, a single repeated
// symbol, or a new table described in the block. desc receives the table
// description, if any.
func chooseTable(s seqStream, hist []uint32, prev *entropy.EncTable, desc []byte) (mode uint8, t *entropy.EncTable, _ []byte) {
	total := 0
	distinct := 0
	maxSym := 0
	for sym, c := range hist {
		if c != 0 {
			total += int(c)
			distinct++
			maxSym = sym
		}
	}

	best := math.MaxInt
	if cost, ok := s.predef.Cost(hist); ok {
		mode, t, best = modePredefined, s.predef, cost
	}
	if prev != nil {
		if cost, ok := prev.Cost(hist); ok && cost < best {
			mode, t, best = modeRepeat, prev, cost
		}
	}
	if distinct == 1 && 8 < best {
		mode, t, best = modeRLE, entropy.NewRLEEncTable(uint8(maxSym)), 8
	}
	if distinct > 1 && (total >= 8 || t == nil) {
		tableLog := entropy.OptimalTableLog(s.maxLog, total, maxSym)
		norm, err := entropy.NormalizeCounts(hist[:maxSym+1], tableLog)
		if err == nil {
			fresh, err := entropy.NewEncTable(norm, tableLog)
			if err == nil {
				d := entropy.AppendNormDescription(desc[:0], norm, tableLog)
				if cost, ok := fresh.Cost(hist); ok && cost+8*len(d) < best {
					return modeFSE, fresh, d
				}
			}
		}
	}
	if mode == modeRLE {
		return mode, t, append(desc[:0], uint8(maxSym))
	}
	return mode, t, desc[:0]
}

// encodeSequences appends the sequences section for b.seqs.
func (b *blockEnc) encodeSequences(dst []byte) []byte {
	seqs := b.seqs
	dst = appendSeqCount(dst, len(seqs))
	if len(seqs) == 0 {
		return dst
	}

	b.llCodes = b.llCodes[:0]
	b.mlCodes = b.mlCodes[:0]
	b.ofCodes = b.ofCodes[:0]
	for i := range b.llHist {
		b.llHist[i] = 0
	}
	for i := range b.mlHist {
		b.mlHist[i] = 0
	}
	for i := range b.ofHist {
		b.ofHist[i] = 0
	}
	for _, s := range seqs {
		llc, mlc, ofc := llCode(s.litLen), mlCode(s.matchLen), ofCode(s.offBase)
		b.llCodes = append(b.llCodes, llc)
		b.mlCodes = append(b.mlCodes, mlc)
		b.ofCodes = append(b.ofCodes, ofc)
		b.llHist[llc]++
		b.mlHist[mlc]++
		b.ofHist[ofc]++
	}
	if b.stats != nil {
		for i, c := range b.llHist {
			b.stats.ll[i] += c
		}
		for i, c := range b.mlHist {
			b.stats.ml[i] += c
		}
		for i, c := range b.ofHist {
			b.stats.of[i] += c
		}
	}

	var llMode, ofMode, mlMode uint8
	var llT, ofT, mlT *entropy.EncTable
	llMode, llT, b.llDesc = chooseTable(llStream, b.llHist[:], b.prevLL, b.llDesc)
	ofMode, ofT, b.ofDesc = chooseTable(ofStream, b.ofHist[:], b.prevOF, b.ofDesc)
	mlMode, mlT, b.mlDesc = chooseTable(mlStream, b.mlHist[:], b.prevML, b.mlDesc)
	b.prevLL, b.prevOF, b.prevML = llT, ofT, mlT
	if debugSequences {
		printf("sequences: %d, modes ll=%d of=%d ml=%d", len(seqs), llMode, ofMode, mlMode)
	}

	dst = append(dst, llMode<<6|ofMode<<4|mlMode<<2)
	dst = append(dst, b.llDesc...)
	dst = append(dst, b.ofDesc...)
	dst = append(dst, b.mlDesc...)

	var w entropy.BitWriter
	w.Reset(dst)
	var llE, ofE, mlE entropy.Encoder

	n := len(seqs) - 1
	mlE.Init(mlT, b.mlCodes[n])
	ofE.Init(ofT, b.ofCodes[n])
	llE.Init(llT, b.llCodes[n])
	b.addExtraBits(&w, n)
	for i := n - 1; i >= 0; i-- {
		ofE.Encode(&w, b.ofCodes[i])
		mlE.Encode(&w, b.mlCodes[i])
		llE.Encode(&w, b.llCodes[i])
		b.addExtraBits(&w, i)
	}
	mlE.Flush(&w)
	ofE.Flush(&w)
	llE.Flush(&w)
	return w.Close()
}

func (b *blockEnc) addExtraBits(w *entropy.BitWriter, i int) {
	s := b.seqs[i]
	llc, mlc, ofc := b.llCodes[i], b.mlCodes[i], b.ofCodes[i]
	w.AddBits(uint64(s.litLen-llBase[llc]), uint(llBits[llc]))
	w.AddBits(uint64(s.matchLen-mlBase[mlc]), uint(mlBits[mlc]))
	w.AddBits(uint64(s.offBase-1<<ofc), uint(ofc))
}

// decodeSequences parses the sequences section src into d.seqs.
func (d *blockDec) decodeSequences(src []byte) error {
	d.seqs = d.seqs[:0]
	if len(src) == 0 {
		return corruptf("missing sequences section")
	}
	var n int
	switch b0 := int(src[0]); {
	case b0 < 128:
		n, src = b0, src[1:]
	case b0 < 0xff:
		if len(src) < 2 {
			return corruptf("truncated sequence count")
		}
		n, src = (b0-128)<<8|int(src[1]), src[2:]
	default:
		if len(src) < 3 {
			return corruptf("truncated sequence count")
		}
		n, src = (int(src[1])|int(src[2])<<8)+0x7f00, src[3:]
	}
	if n == 0 {
		if len(src) != 0 {
			return corruptf("%d bytes after empty sequences section", len(src))
		}
		return nil
	}
	if n > MaxBlockSize/minMatch {
		return corruptf("%d sequences in one block", n)
	}

	if len(src) == 0 {
		return corruptf("missing compression modes")
	}
	modes := src[0]
	src = src[1:]
	if modes&3 != 0 {
		return corruptf("reserved mode bits set")
	}

	var err error
	var llT, ofT, mlT *entropy.DecTable
	if llT, src, err = d.readTable(src, modes>>6, maxLLCode, llMaxLog, predefined.llDec, d.prevLL); err != nil {
		return err
	}
	if ofT, src, err = d.readTable(src, (modes>>4)&3, maxOFCode, ofMaxLog, predefined.ofDec, d.prevOF); err != nil {
		return err
	}
	if mlT, src, err = d.readTable(src, (modes>>2)&3, maxMLCode, mlMaxLog, predefined.mlDec, d.prevML); err != nil {
		return err
	}
	d.prevLL, d.prevOF, d.prevML = llT, ofT, mlT

	var r entropy.BitReader
	if err := r.Init(src); err != nil {
		return entropyErr("sequences", err)
	}
	var llD, ofD, mlD entropy.Decoder
	llD.Init(llT, &r)
	ofD.Init(ofT, &r)
	mlD.Init(mlT, &r)

	seqs := d.seqs
	for i := 0; i < n; i++ {
		llc, ofc, mlc := llD.Symbol(), ofD.Symbol(), mlD.Symbol()
		var s seq
		s.offBase = 1<<ofc + uint32(r.ReadBits(uint(ofc)))
		s.matchLen = mlBase[mlc] + uint32(r.ReadBits(uint(mlBits[mlc])))
		s.litLen = llBase[llc] + uint32(r.ReadBits(uint(llBits[llc])))
		if i < n-1 {
			llD.Next(&r)
			mlD.Next(&r)
			ofD.Next(&r)
		}
		if r.Overflowed() {
			d.seqs = seqs
			return corruptf("sequence bitstream overrun")
		}
		seqs = append(seqs, s)
	}
	d.seqs = seqs
	if !r.Finished() {
		return corruptf("%d bits left in sequence bitstream", r.Remaining())
	}
	return nil
}

// readTable returns the decoding table of one code stream and the rest of
// src.
func (d *blockDec) readTable(src []byte, mode uint8, maxCode int, maxLog uint8, predef, prev *entropy.DecTable) (*entropy.DecTable, []byte, error) {
	switch mode {
	case modePredefined:
		return predef, src, nil
	case modeRLE:
		if len(src) == 0 {
			return nil, src, corruptf("missing RLE symbol")
		}
		if int(src[0]) > maxCode {
			return nil, src, corruptf("RLE symbol %d out of range", src[0])
		}
		return d.rleTable(src[0]), src[1:], nil
	case modeFSE:
		norm, tableLog, k, err := entropy.ReadNormDescription(src, maxLog)
		if err != nil {
			return nil, src, entropyErr("table description", err)
		}
		if len(norm)-1 > maxCode {
			return nil, src, corruptf("table symbol %d out of range", len(norm)-1)
		}
		t, err := entropy.NewDecTable(norm, tableLog)
		if err != nil {
			return nil, src, entropyErr("table", err)
		}
		return t, src[k:], nil
	}
	if prev == nil {
		return nil, src, corruptf("repeat mode without a previous table")
	}
	return prev, src, nil
}

// rleTables caches one decoding table per RLE symbol.
var rleTables = func() (t [maxMLCode + 1]*entropy.DecTable) {
	for i := range t {
		t[i] = entropy.NewRLEDecTable(uint8(i))
	}
	return t
}()

func (d *blockDec) rleTable(sym uint8) *entropy.DecTable {
	return rleTables[sym]
}
