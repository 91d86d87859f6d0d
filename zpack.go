// Package zpack implements a frame-oriented lossless compression format in
// the LZ77 plus entropy coding family.
//
// A frame is a self-describing unit: a magic number, a header carrying the
// window size and optionally the content size and a dictionary ID, a series
// of blocks, and an optional checksum. Each block is stored raw, as a single
// repeated byte, or compressed. A compressed block holds a literals section
// (raw, run-length or Huffman coded) and a sequences section whose literal
// lengths, match lengths and offsets are coded with Finite State Entropy.
//
// Compression levels 1 to 22 select one of three match finding strategies
// from the matchfinder package. Compressor and Decompressor are reusable
// contexts; they support one-shot and streaming operation, and can be primed
// with a Dictionary built by the dict package.
package zpack

import (
	"log"
	"math"
)

// enable debug printing
const debug = false

// enable encoding debug printing
const debugEncoder = debug

// enable decoding debug printing
const debugDecoder = debug

// print sequence details
const debugSequences = false

const (
	// MinLevel and MaxLevel bound the compression levels.
	MinLevel = 1
	MaxLevel = 22

	// DefaultLevel is used when Params.Level is 0.
	DefaultLevel = 3

	// MinWindowLog and MaxWindowLog bound Params.WindowLog.
	MinWindowLog = 10
	MaxWindowLog = 31

	// MaxBlockSize is the largest amount of content a block regenerates.
	MaxBlockSize = 1 << 17

	// ContentSizeUnknown is returned by FrameContentSize, along with
	// ErrSizeUnknown, when the frame header does not record the content
	// size.
	ContentSizeUnknown = math.MaxUint64
)

const (
	minMatch         = 3
	blockHeaderSize  = 3
	checksumSize     = 4
	maxFrameHeader   = 4 + 1 + 1 + 4 + 8
	defaultDecWindow = 27
)

func println(a ...interface{}) {
	if debug || debugDecoder || debugEncoder {
		log.Println(a...)
	}
}

func printf(format string, a ...interface{}) {
	if debug || debugDecoder || debugEncoder {
		log.Printf(format, a...)
	}
}
