// Copyright 2019+ Klaus Post. All rights reserved.
// License information can be found in the LICENSE file.
// Based on work by Yann Collet, released under BSD License.

package entropy

import (
	"bytes"
	"math"
	"math/bits"

	"github.com/icza/bitio"
)

const (
	// MinTableLog and MaxTableLog bound the table logs accepted in table
	// descriptions.
	MinTableLog = 5
	MaxTableLog = 12

	// MaxFSESymbol is the largest symbol an FSE table can carry.
	MaxFSESymbol = 63
)

func tableStep(tableSize uint32) uint32 {
	return (tableSize >> 1) + (tableSize >> 3) + 3
}

// OptimalTableLog picks a table log for total symbols over an alphabet
// ending at maxSymbol, not exceeding maxLog.
func OptimalTableLog(maxLog uint8, total int, maxSymbol int) uint8 {
	if total <= 1 {
		return MinTableLog
	}
	maxBitsSrc := int(highBit(uint32(total-1))) - 2
	minBitsSrc := int(highBit(uint32(total))) + 1
	minBitsSymbols := int(highBit(uint32(maxSymbol)|1)) + 2
	minBits := minBitsSrc
	if minBitsSymbols < minBits {
		minBits = minBitsSymbols
	}
	tableLog := int(maxLog)
	if maxBitsSrc < tableLog {
		tableLog = maxBitsSrc
	}
	if minBits > tableLog {
		tableLog = minBits
	}
	if tableLog < MinTableLog {
		tableLog = MinTableLog
	}
	if tableLog > MaxTableLog {
		tableLog = MaxTableLog
	}
	return uint8(tableLog)
}

// NormalizeCounts scales hist so the counts sum to 1<<tableLog. Symbols too
// rare to deserve a full slot get the special count -1, which occupies one
// slot. The result is deterministic; rounding error is absorbed by the
// largest counts, lowest symbol first.
func NormalizeCounts(hist []uint32, tableLog uint8) ([]int16, error) {
	if tableLog < MinTableLog || tableLog > MaxTableLog {
		return nil, ErrTooLarge
	}
	maxSymbol := -1
	total := uint64(0)
	nonZero := 0
	for s, c := range hist {
		if c != 0 {
			maxSymbol = s
			total += uint64(c)
			nonZero++
		}
	}
	tableSize := int64(1) << tableLog
	if maxSymbol < 0 || maxSymbol > MaxFSESymbol || int64(nonZero) > tableSize {
		return nil, ErrTooLarge
	}

	norm := make([]int16, maxSymbol+1)
	sum := int64(0)
	for s, c := range hist[:maxSymbol+1] {
		if c == 0 {
			continue
		}
		scaled := uint64(c) * uint64(tableSize)
		if scaled < total {
			norm[s] = -1
			sum++
			continue
		}
		p := int64((scaled + total/2) / total)
		if p < 1 {
			p = 1
		}
		norm[s] = int16(p)
		sum += p
	}

	for sum != tableSize {
		largest := -1
		for s, v := range norm {
			if sum > tableSize && v <= 1 {
				continue
			}
			if v > 0 && (largest < 0 || v > norm[largest]) {
				largest = s
			}
		}
		if largest < 0 {
			return nil, ErrTooLarge
		}
		if sum > tableSize {
			d := sum - tableSize
			if room := int64(norm[largest]) - 1; d > room {
				d = room
			}
			norm[largest] -= int16(d)
			sum -= d
		} else {
			norm[largest] += int16(tableSize - sum)
			sum = tableSize
		}
	}
	return norm, nil
}

type symbolTransform struct {
	deltaFindState int32
	deltaNbBits    uint32
}

// An EncTable holds the encoding transforms for one normalized distribution.
type EncTable struct {
	tableLog   uint8
	rle        bool
	rleSym     uint8
	norm       []int16
	stateTable []uint16
	symbolTT   []symbolTransform
}

// NewEncTable builds an encoding table from normalized counts summing to
// 1<<tableLog.
func NewEncTable(norm []int16, tableLog uint8) (*EncTable, error) {
	if tableLog > MaxTableLog || len(norm) == 0 || len(norm) > MaxFSESymbol+1 {
		return nil, ErrTooLarge
	}
	tableSize := uint32(1) << tableLog
	tableMask := tableSize - 1
	step := tableStep(tableSize)
	highThreshold := tableSize - 1

	tableSymbol := make([]uint8, tableSize)
	cumul := make([]uint32, len(norm)+1)
	for u := 1; u <= len(norm); u++ {
		if norm[u-1] == -1 {
			cumul[u] = cumul[u-1] + 1
			tableSymbol[highThreshold] = uint8(u - 1)
			highThreshold--
		} else {
			cumul[u] = cumul[u-1] + uint32(norm[u-1])
		}
	}
	if cumul[len(norm)] != tableSize {
		return nil, ErrCorrupt
	}

	position := uint32(0)
	for s, n := range norm {
		for i := 0; i < int(n); i++ {
			tableSymbol[position] = uint8(s)
			position = (position + step) & tableMask
			for position > highThreshold {
				position = (position + step) & tableMask
			}
		}
	}
	if position != 0 {
		return nil, ErrCorrupt
	}

	t := &EncTable{
		tableLog:   tableLog,
		norm:       append([]int16(nil), norm...),
		stateTable: make([]uint16, tableSize),
		symbolTT:   make([]symbolTransform, len(norm)),
	}
	for u := uint32(0); u < tableSize; u++ {
		s := tableSymbol[u]
		t.stateTable[cumul[s]] = uint16(tableSize + u)
		cumul[s]++
	}

	total := int32(0)
	for s, n := range norm {
		switch n {
		case 0:
			t.symbolTT[s].deltaNbBits = (uint32(tableLog)+1)<<16 - tableSize
		case -1, 1:
			t.symbolTT[s].deltaNbBits = uint32(tableLog)<<16 - tableSize
			t.symbolTT[s].deltaFindState = total - 1
			total++
		default:
			maxBitsOut := uint32(tableLog) - uint32(highBit(uint32(n-1)))
			minStatePlus := uint32(n) << maxBitsOut
			t.symbolTT[s].deltaNbBits = maxBitsOut<<16 - minStatePlus
			t.symbolTT[s].deltaFindState = total - int32(n)
			total += int32(n)
		}
	}
	return t, nil
}

// NewRLEEncTable returns a table for a stream made of a single repeated
// symbol. Encoding with it writes no bits.
func NewRLEEncTable(sym uint8) *EncTable {
	return &EncTable{rle: true, rleSym: sym}
}

// TableLog returns the table log.
func (t *EncTable) TableLog() uint8 {
	return t.tableLog
}

// Norm returns the normalized counts the table was built from. The slice
// must not be modified.
func (t *EncTable) Norm() []int16 {
	return t.norm
}

// Cost estimates the number of bits needed to encode symbols with the
// histogram hist. ok is false if some symbol in hist cannot be encoded.
func (t *EncTable) Cost(hist []uint32) (nBits int, ok bool) {
	if t.rle {
		for s, c := range hist {
			if c != 0 && s != int(t.rleSym) {
				return 0, false
			}
		}
		return 0, true
	}
	cost := 0.0
	for s, c := range hist {
		if c == 0 {
			continue
		}
		if s >= len(t.norm) || t.norm[s] == 0 {
			return 0, false
		}
		p := float64(t.norm[s])
		if p < 1 {
			p = 1
		}
		cost += float64(c) * (float64(t.tableLog) - math.Log2(p))
	}
	return int(math.Ceil(cost)), true
}

// An Encoder is the state of one FSE coder.
type Encoder struct {
	t     *EncTable
	state uint32
}

// Init starts encoding with sym, the last symbol of the stream.
func (e *Encoder) Init(t *EncTable, sym uint8) {
	e.t = t
	if t.rle {
		return
	}
	tt := t.symbolTT[sym]
	nbBitsOut := (tt.deltaNbBits + 1<<15) >> 16
	value := nbBitsOut<<16 - tt.deltaNbBits
	e.state = uint32(t.stateTable[int32(value>>nbBitsOut)+tt.deltaFindState])
}

// Encode encodes sym, moving backward through the stream.
func (e *Encoder) Encode(w *BitWriter, sym uint8) {
	if e.t.rle {
		return
	}
	tt := e.t.symbolTT[sym]
	nbBitsOut := (e.state + tt.deltaNbBits) >> 16
	w.AddBits(uint64(e.state), uint(nbBitsOut))
	e.state = uint32(e.t.stateTable[int32(e.state>>nbBitsOut)+tt.deltaFindState])
}

// Flush writes the final state.
func (e *Encoder) Flush(w *BitWriter) {
	if e.t.rle {
		return
	}
	w.AddBits(uint64(e.state), uint(e.t.tableLog))
}

// EncodeSymbols appends syms to dst as a single FSE stream. Every symbol
// must have a non-zero count in t.
func (t *EncTable) EncodeSymbols(dst []byte, syms []uint8) []byte {
	var w BitWriter
	w.Reset(dst)
	if len(syms) > 0 {
		var e Encoder
		e.Init(t, syms[len(syms)-1])
		for i := len(syms) - 2; i >= 0; i-- {
			e.Encode(&w, syms[i])
		}
		e.Flush(&w)
	}
	return w.Close()
}

type decEntry struct {
	newState uint16
	symbol   uint8
	nbBits   uint8
}

// A DecTable is the decoding table for one normalized distribution.
type DecTable struct {
	tableLog  uint8
	maxSymbol int
	entries   []decEntry
}

// NewDecTable builds a decoding table from normalized counts summing to
// 1<<tableLog.
func NewDecTable(norm []int16, tableLog uint8) (*DecTable, error) {
	if tableLog > MaxTableLog || len(norm) == 0 || len(norm) > MaxFSESymbol+1 {
		return nil, ErrTooLarge
	}
	tableSize := uint32(1) << tableLog
	highThreshold := tableSize - 1
	t := &DecTable{
		tableLog:  tableLog,
		maxSymbol: len(norm) - 1,
		entries:   make([]decEntry, tableSize),
	}

	symbolNext := make([]uint32, len(norm))
	sum := uint32(0)
	for s, n := range norm {
		switch {
		case n == -1:
			t.entries[highThreshold].symbol = uint8(s)
			highThreshold--
			symbolNext[s] = 1
			sum++
		case n < -1:
			return nil, ErrCorrupt
		default:
			symbolNext[s] = uint32(n)
			sum += uint32(n)
		}
	}
	if sum != tableSize {
		return nil, ErrCorrupt
	}

	tableMask := tableSize - 1
	step := tableStep(tableSize)
	position := uint32(0)
	for s, n := range norm {
		for i := 0; i < int(n); i++ {
			t.entries[position].symbol = uint8(s)
			position = (position + step) & tableMask
			for position > highThreshold {
				position = (position + step) & tableMask
			}
		}
	}
	if position != 0 {
		return nil, ErrCorrupt
	}

	for u := range t.entries {
		s := t.entries[u].symbol
		nextState := symbolNext[s]
		symbolNext[s]++
		nBits := uint32(tableLog) - uint32(highBit(nextState))
		t.entries[u].nbBits = uint8(nBits)
		t.entries[u].newState = uint16(nextState<<nBits - tableSize)
	}
	return t, nil
}

// NewRLEDecTable returns a table that always decodes sym and reads no bits.
func NewRLEDecTable(sym uint8) *DecTable {
	return &DecTable{
		maxSymbol: int(sym),
		entries:   []decEntry{{symbol: sym}},
	}
}

// MaxSymbol returns the largest symbol the table can produce.
func (t *DecTable) MaxSymbol() int {
	return t.maxSymbol
}

// A Decoder is the state of one FSE decoder.
type Decoder struct {
	t     *DecTable
	state uint32
}

// Init reads the initial state from r.
func (d *Decoder) Init(t *DecTable, r *BitReader) {
	d.t = t
	d.state = uint32(r.ReadBits(uint(t.tableLog)))
}

// Symbol returns the symbol of the current state.
func (d *Decoder) Symbol() uint8 {
	return d.t.entries[d.state].symbol
}

// Next moves to the state of the following symbol.
func (d *Decoder) Next(r *BitReader) {
	e := d.t.entries[d.state]
	d.state = uint32(e.newState) + uint32(r.ReadBits(uint(e.nbBits)))
}

// DecodeSymbols decodes n symbols from a stream written by EncodeSymbols
// and appends them to dst.
func (t *DecTable) DecodeSymbols(dst []uint8, src []byte, n int) ([]uint8, error) {
	var r BitReader
	if err := r.Init(src); err != nil {
		return dst, err
	}
	if n > 0 {
		var d Decoder
		d.Init(t, &r)
		for i := 0; i < n; i++ {
			dst = append(dst, d.Symbol())
			if i < n-1 {
				d.Next(&r)
			}
			if r.Overflowed() {
				return dst, ErrCorrupt
			}
		}
	}
	if !r.Finished() {
		return dst, ErrCorrupt
	}
	return dst, nil
}

// AppendNormDescription appends a description of norm to dst: the table log
// minus MinTableLog in 4 bits, the largest symbol in 6 bits, then every
// count plus one, each in just enough bits to hold the slots still
// unassigned plus one.
func AppendNormDescription(dst []byte, norm []int16, tableLog uint8) []byte {
	buf := bytes.NewBuffer(dst)
	w := bitio.NewWriter(buf)
	w.TryWriteBits(uint64(tableLog-MinTableLog), 4)
	w.TryWriteBits(uint64(len(norm)-1), 6)
	remaining := 1 << tableLog
	for _, n := range norm {
		if remaining == 0 {
			break
		}
		w.TryWriteBits(uint64(int(n)+1), uint8(bits.Len(uint(remaining+1))))
		if n == -1 {
			remaining--
		} else {
			remaining -= int(n)
		}
	}
	w.TryAlign()
	return buf.Bytes()
}

// ReadNormDescription parses a description written by AppendNormDescription.
// It returns the counts, the table log and the number of bytes consumed.
func ReadNormDescription(src []byte, maxLog uint8) ([]int16, uint8, int, error) {
	br := bytes.NewReader(src)
	r := bitio.NewReader(br)
	tableLog := uint8(r.TryReadBits(4)) + MinTableLog
	maxSymbol := int(r.TryReadBits(6))
	if r.TryError != nil {
		return nil, 0, 0, ErrCorrupt
	}
	if tableLog > maxLog {
		return nil, 0, 0, ErrCorrupt
	}
	norm := make([]int16, maxSymbol+1)
	remaining := 1 << tableLog
	for s := range norm {
		if remaining == 0 {
			break
		}
		v := int(r.TryReadBits(uint8(bits.Len(uint(remaining + 1))))) - 1
		if r.TryError != nil || v > remaining {
			return nil, 0, 0, ErrCorrupt
		}
		norm[s] = int16(v)
		if v == -1 {
			remaining--
		} else {
			remaining -= v
		}
	}
	if remaining != 0 {
		return nil, 0, 0, ErrCorrupt
	}
	return norm, tableLog, len(src) - br.Len(), nil
}
