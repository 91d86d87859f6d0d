package zpack

import (
	"encoding/binary"

	"github.com/ndrean/zpack/entropy"
)

var dictMagic = []byte{0x37, 0xa4, 0x30, 0xec}

const (
	dictHasHuffman = 1 << 0
	dictHasTables  = 1 << 1

	dictHeaderSize = 4 + 4 + 1
)

// A Dictionary primes compression and decompression with content that is
// likely to recur, and optionally with entropy tables tuned to it.
//
// A Dictionary is immutable once parsed, so it can be shared by any number
// of contexts.
type Dictionary struct {
	id      uint32
	content []byte

	huff                *entropy.HuffmanTable
	llEnc, ofEnc, mlEnc *entropy.EncTable
	llDec, ofDec, mlDec *entropy.DecTable
}

// ID returns the dictionary ID, or 0 for a raw content dictionary.
func (d *Dictionary) ID() uint32 {
	return d.id
}

// Content returns the dictionary content. It must not be modified.
func (d *Dictionary) Content() []byte {
	return d.content
}

// HasTables reports whether the dictionary carries entropy tables.
func (d *Dictionary) HasTables() bool {
	return d.huff != nil || d.llEnc != nil
}

// ParseDictionary parses a serialized dictionary. Input that does not start
// with the dictionary magic number is used as raw content, with ID 0.
func ParseDictionary(b []byte) (*Dictionary, error) {
	if len(b) < len(dictMagic) || string(b[:4]) != string(dictMagic) {
		return &Dictionary{content: append([]byte(nil), b...)}, nil
	}
	if len(b) < dictHeaderSize {
		return nil, corruptf("truncated dictionary header")
	}
	d := &Dictionary{id: binary.LittleEndian.Uint32(b[4:])}
	if d.id == 0 {
		return nil, corruptf("dictionary ID 0 is reserved for raw content")
	}
	flags := b[8]
	if flags&^(dictHasHuffman|dictHasTables) != 0 {
		return nil, corruptf("unknown dictionary flags %#x", flags)
	}
	b = b[dictHeaderSize:]

	if flags&dictHasHuffman != 0 {
		t, n, err := entropy.ReadHuffmanTable(b)
		if err != nil {
			return nil, entropyErr("dictionary literals table", err)
		}
		d.huff = t
		b = b[n:]
	}
	if flags&dictHasTables != 0 {
		var err error
		if d.llEnc, d.llDec, b, err = readDictTable(b, maxLLCode, llMaxLog); err != nil {
			return nil, err
		}
		if d.ofEnc, d.ofDec, b, err = readDictTable(b, maxOFCode, ofMaxLog); err != nil {
			return nil, err
		}
		if d.mlEnc, d.mlDec, b, err = readDictTable(b, maxMLCode, mlMaxLog); err != nil {
			return nil, err
		}
	}
	d.content = append([]byte(nil), b...)
	return d, nil
}

func readDictTable(b []byte, maxCode int, maxLog uint8) (*entropy.EncTable, *entropy.DecTable, []byte, error) {
	norm, tableLog, n, err := entropy.ReadNormDescription(b, maxLog)
	if err != nil {
		return nil, nil, b, entropyErr("dictionary table", err)
	}
	if len(norm)-1 > maxCode {
		return nil, nil, b, corruptf("dictionary table symbol %d out of range", len(norm)-1)
	}
	et, err := entropy.NewEncTable(norm, tableLog)
	if err != nil {
		return nil, nil, b, entropyErr("dictionary table", err)
	}
	dt, err := entropy.NewDecTable(norm, tableLog)
	if err != nil {
		return nil, nil, b, entropyErr("dictionary table", err)
	}
	return et, dt, b[n:], nil
}

// BuildDictionary serializes a dictionary with the given content and ID.
// Its entropy tables are fitted to how samples compress at level when
// primed with content. Without samples, the dictionary carries no tables.
func BuildDictionary(content []byte, id uint32, samples [][]byte, level int) ([]byte, error) {
	if id == 0 {
		return nil, invalidf("dictionary ID must not be 0")
	}
	if level < 0 || level > MaxLevel {
		return nil, invalidf("level %d out of range [%d, %d]", level, MinLevel, MaxLevel)
	}

	var stats blockStats
	if len(samples) > 0 {
		c, err := NewCompressor(Params{Level: level, NoChecksum: true})
		if err != nil {
			return nil, err
		}
		defer c.Close()
		if err := c.LoadDictionary(&Dictionary{content: content}); err != nil {
			return nil, err
		}
		c.enc.stats = &stats
		var buf []byte
		for _, s := range samples {
			if buf, err = c.Compress(buf[:0], s); err != nil {
				return nil, err
			}
		}
	}

	out := make([]byte, 0, dictHeaderSize+len(content)+256)
	out = append(out, dictMagic...)
	out = binary.LittleEndian.AppendUint32(out, id)
	flagsAt := len(out)
	out = append(out, 0)

	if sum(stats.lit[:]) > 0 {
		// Every byte gets a code, so the table can always be reused.
		for i := range stats.lit {
			stats.lit[i]++
		}
		t, err := entropy.BuildHuffman(stats.lit[:], entropy.MaxHuffmanBits)
		if err != nil {
			return nil, err
		}
		out = t.AppendDescription(out)
		out[flagsAt] |= dictHasHuffman
	}
	if sum(stats.ll[:]) > 0 {
		var err error
		for _, h := range [][]uint32{stats.ll[:], stats.of[:], stats.ml[:]} {
			if out, err = appendDictTable(out, h); err != nil {
				return nil, err
			}
		}
		out[flagsAt] |= dictHasTables
	}
	return append(out, content...), nil
}

func appendDictTable(dst []byte, hist []uint32) ([]byte, error) {
	maxLog := uint8(llMaxLog)
	switch len(hist) {
	case maxOFCode + 1:
		maxLog = ofMaxLog
	case maxMLCode + 1:
		maxLog = mlMaxLog
	}
	for i := range hist {
		hist[i]++
	}
	tableLog := entropy.OptimalTableLog(maxLog, int(sum(hist)), len(hist)-1)
	norm, err := entropy.NormalizeCounts(hist, tableLog)
	if err != nil {
		return nil, err
	}
	return entropy.AppendNormDescription(dst, norm, tableLog), nil
}

func sum(h []uint32) uint64 {
	var s uint64
	for _, c := range h {
		s += uint64(c)
	}
	return s
}
