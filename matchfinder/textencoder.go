package matchfinder

import "strconv"

// A TextEncoder produces a human-readable representation of the LZ77
// compression of a block. Matches are replaced with <Length,Distance>
// symbols. It is meant for debugging and tests.
type TextEncoder struct{}

// Encode appends the text form of src, as described by matches, to dst.
// Distances that reach before the start of src are printed the same way, so
// src does not need to hold the history.
func (t TextEncoder) Encode(dst []byte, src []byte, matches []Match) []byte {
	pos := 0
	for _, m := range matches {
		if m.Unmatched > 0 {
			dst = append(dst, src[pos:pos+m.Unmatched]...)
			pos += m.Unmatched
		}
		if m.Length > 0 {
			dst = append(dst, '<')
			dst = strconv.AppendInt(dst, int64(m.Length), 10)
			dst = append(dst, ',')
			dst = strconv.AppendInt(dst, int64(m.Distance), 10)
			dst = append(dst, '>')
			pos += m.Length
		}
	}
	if pos < len(src) {
		dst = append(dst, src[pos:]...)
	}
	return dst
}
