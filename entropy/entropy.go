// Package entropy implements the entropy coding stages used by zpack:
// canonical Huffman codes for literal bytes and finite state entropy (tANS)
// tables for the literal-length, match-length and offset code alphabets.
//
// Both coders write into a BitWriter and read with a BitReader. A stream is
// written front to back and read back to front, so the last symbol encoded is
// the first one decoded.
package entropy

import "errors"

var (
	// ErrCorrupt is returned when a bit stream or a table description is
	// truncated, inconsistent, or decodes to an invalid symbol.
	ErrCorrupt = errors.New("entropy: corrupt input")

	// ErrTooLarge is returned when a table would exceed the coder's limits
	// (table log, alphabet size, code length).
	ErrTooLarge = errors.New("entropy: table limit exceeded")
)

// Histogram counts the bytes of src into hist, which must have at least 256
// entries. It returns the largest symbol present and the count of the most
// frequent symbol.
func Histogram(hist []uint32, src []byte) (maxSymbol int, maxCount uint32) {
	for i := range hist[:256] {
		hist[i] = 0
	}
	for _, b := range src {
		hist[b]++
	}
	for s, c := range hist[:256] {
		if c == 0 {
			continue
		}
		maxSymbol = s
		if c > maxCount {
			maxCount = c
		}
	}
	return maxSymbol, maxCount
}
