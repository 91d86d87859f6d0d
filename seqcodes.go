package zpack

import (
	"math/bits"

	"github.com/ndrean/zpack/entropy"
)

// Literal lengths, match lengths and offsets are split into a code, coded
// with FSE, and extra bits stored verbatim.
const (
	maxLLCode = 35
	maxMLCode = 52
	maxOFCode = 31

	llMaxLog = 9
	mlMaxLog = 9
	ofMaxLog = 8
)

var llBits = [maxLLCode + 1]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 2, 2, 3, 3, 4, 6, 7, 8, 9, 10, 11, 12,
	13, 14, 15, 16,
}

var llBase = [maxLLCode + 1]uint32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	16, 18, 20, 22, 24, 28, 32, 40, 48, 64, 0x80, 0x100, 0x200, 0x400, 0x800, 0x1000,
	0x2000, 0x4000, 0x8000, 0x10000,
}

var mlBits = [maxMLCode + 1]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 2, 2, 3, 3, 4, 4, 5, 7, 8, 9, 10, 11,
	12, 13, 14, 15, 16,
}

// mlBase holds full match lengths, so it starts at minMatch.
var mlBase = [maxMLCode + 1]uint32{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18,
	19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 34,
	35, 37, 39, 41, 43, 47, 51, 59, 67, 83, 99, 0x83, 0x103, 0x203, 0x403, 0x803,
	0x1003, 0x2003, 0x4003, 0x8003, 0x10003,
}

// The predefined distributions are used when a block carries no table for
// a stream.
var (
	llPredefNorm = []int16{
		4, 3, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 1, 1, 1,
		2, 2, 2, 2, 2, 2, 2, 2, 2, 3, 2, 1, 1, 1, 1, 1,
		-1, -1, -1, -1,
	}
	mlPredefNorm = []int16{
		1, 4, 3, 2, 2, 2, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, -1, -1,
		-1, -1, -1, -1, -1,
	}
	ofPredefNorm = []int16{
		1, 1, 1, 1, 1, 1, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, -1, -1, -1, -1, -1,
	}
)

const (
	llPredefLog = 6
	mlPredefLog = 6
	ofPredefLog = 5
)

// predefined holds the encoding and decoding tables built from the
// predefined distributions. They are shared and never modified.
var predefined = func() (p struct {
	llEnc, mlEnc, ofEnc *entropy.EncTable
	llDec, mlDec, ofDec *entropy.DecTable
}) {
	must := func(err error) {
		if err != nil {
			panic("zpack: bad predefined table: " + err.Error())
		}
	}
	var err error
	p.llEnc, err = entropy.NewEncTable(llPredefNorm, llPredefLog)
	must(err)
	p.mlEnc, err = entropy.NewEncTable(mlPredefNorm, mlPredefLog)
	must(err)
	p.ofEnc, err = entropy.NewEncTable(ofPredefNorm, ofPredefLog)
	must(err)
	p.llDec, err = entropy.NewDecTable(llPredefNorm, llPredefLog)
	must(err)
	p.mlDec, err = entropy.NewDecTable(mlPredefNorm, mlPredefLog)
	must(err)
	p.ofDec, err = entropy.NewDecTable(ofPredefNorm, ofPredefLog)
	must(err)
	return p
}()

func highBit32(v uint32) uint8 {
	return uint8(bits.Len32(v) - 1)
}

func llCode(litLen uint32) uint8 {
	switch {
	case litLen < 16:
		return uint8(litLen)
	case litLen >= 64:
		return highBit32(litLen) + 19
	}
	c := uint8(24)
	for llBase[c] > litLen {
		c--
	}
	return c
}

func mlCode(matchLen uint32) uint8 {
	v := matchLen - minMatch
	switch {
	case v < 32:
		return uint8(v)
	case v >= 128:
		return highBit32(v) + 36
	}
	c := uint8(42)
	for mlBase[c] > matchLen {
		c--
	}
	return c
}

func ofCode(offBase uint32) uint8 {
	return highBit32(offBase)
}
