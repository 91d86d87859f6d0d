// Copyright 2019+ Klaus Post. All rights reserved.
// License information can be found in the LICENSE file.
// Based on work by Yann Collet, released under BSD License.

package zpack

import (
	"encoding/binary"
	"math/bits"
)

var frameMagic = []byte{0x5a, 0x50, 0x4b, 0xfd}

// Skippable frames start with a magic number in this range and carry a
// 4-byte length; decoders step over them.
const (
	skippableMagicMin  = 0x184d2a50
	skippableMagicMask = 0xfffffff0
)

// A FrameHeader describes a frame.
type FrameHeader struct {
	// ContentSize is the decompressed size, valid if HasContentSize.
	ContentSize    uint64
	HasContentSize bool

	// WindowSize is how far back matches may reach. For a single segment
	// frame it equals ContentSize.
	WindowSize uint64

	// SingleSegment means the content fits in one window, so the decoder
	// can keep it all.
	SingleSegment bool

	// Checksum means the frame ends with a 4-byte checksum of the content.
	Checksum bool

	// DictID is the ID of the dictionary needed, or 0.
	DictID uint32

	// HeaderSize is the encoded size of the header, magic included.
	HeaderSize int
}

func dictIDSize(id uint32) int {
	switch {
	case id == 0:
		return 0
	case id < 256:
		return 1
	case id < 1<<16:
		return 2
	}
	return 4
}

func (f FrameHeader) appendTo(dst []byte) []byte {
	dst = append(dst, frameMagic...)
	var fhd uint8
	if f.Checksum {
		fhd |= 1 << 2
	}
	if f.SingleSegment {
		fhd |= 1 << 5
	}

	switch dictIDSize(f.DictID) {
	case 1:
		fhd |= 1
	case 2:
		fhd |= 2
	case 4:
		fhd |= 3
	}

	var fcs uint8
	if f.HasContentSize {
		if f.ContentSize >= 256 {
			fcs++
		}
		if f.ContentSize >= 65536+256 {
			fcs++
		}
		if f.ContentSize >= 0xffffffff {
			fcs++
		}
	}
	fhd |= fcs << 6

	dst = append(dst, fhd)
	if !f.SingleSegment {
		exp := bits.Len64(f.WindowSize-1) - MinWindowLog
		if exp < 0 {
			exp = 0
		}
		dst = append(dst, uint8(exp<<3))
	}
	switch dictIDSize(f.DictID) {
	case 1:
		dst = append(dst, uint8(f.DictID))
	case 2:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(f.DictID))
	case 4:
		dst = binary.LittleEndian.AppendUint32(dst, f.DictID)
	}
	if f.HasContentSize {
		switch fcs {
		case 0:
			// Without SingleSegment, sizes below 256 are not stored.
			if f.SingleSegment {
				dst = append(dst, uint8(f.ContentSize))
			}
		case 1:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(f.ContentSize-256))
		case 2:
			dst = binary.LittleEndian.AppendUint32(dst, uint32(f.ContentSize))
		case 3:
			dst = binary.LittleEndian.AppendUint64(dst, f.ContentSize)
		}
	}
	return dst
}

// frameHeaderSize returns the header size announced by the first five
// bytes of a frame.
func frameHeaderSize(b []byte) (int, error) {
	if len(b) < 4 || string(b[:4]) != string(frameMagic) {
		return 0, ErrNotThisFormat
	}
	if len(b) < 5 {
		return 0, corruptf("truncated frame header")
	}
	fhd := b[4]
	if fhd&(3<<3) != 0 {
		return 0, corruptf("reserved frame header bits set")
	}
	n := 5
	single := fhd&(1<<5) != 0
	if !single {
		n++
	}
	switch fhd & 3 {
	case 1:
		n++
	case 2:
		n += 2
	case 3:
		n += 4
	}
	switch fhd >> 6 {
	case 0:
		if single {
			n++
		}
	case 1:
		n += 2
	case 2:
		n += 4
	case 3:
		n += 8
	}
	return n, nil
}

// ParseFrameHeader decodes the header at the start of src.
func ParseFrameHeader(src []byte) (FrameHeader, error) {
	var f FrameHeader
	n, err := frameHeaderSize(src)
	if err != nil {
		return f, err
	}
	if len(src) < n {
		return f, corruptf("truncated frame header")
	}
	f.HeaderSize = n
	fhd := src[4]
	f.Checksum = fhd&(1<<2) != 0
	f.SingleSegment = fhd&(1<<5) != 0
	b := src[5:n]

	if !f.SingleSegment {
		wd := b[0]
		b = b[1:]
		exp := uint(wd >> 3)
		if exp > MaxWindowLog-MinWindowLog {
			return f, corruptf("window log %d out of range", exp+MinWindowLog)
		}
		base := uint64(1) << (MinWindowLog + exp)
		f.WindowSize = base + (base/8)*uint64(wd&7)
	}

	switch fhd & 3 {
	case 1:
		f.DictID = uint32(b[0])
		b = b[1:]
	case 2:
		f.DictID = uint32(binary.LittleEndian.Uint16(b))
		b = b[2:]
	case 3:
		f.DictID = binary.LittleEndian.Uint32(b)
		b = b[4:]
	}

	switch fhd >> 6 {
	case 0:
		if f.SingleSegment {
			f.ContentSize = uint64(b[0])
			f.HasContentSize = true
		}
	case 1:
		f.ContentSize = uint64(binary.LittleEndian.Uint16(b)) + 256
		f.HasContentSize = true
	case 2:
		f.ContentSize = uint64(binary.LittleEndian.Uint32(b))
		f.HasContentSize = true
	case 3:
		f.ContentSize = binary.LittleEndian.Uint64(b)
		f.HasContentSize = true
	}
	if f.SingleSegment {
		f.WindowSize = f.ContentSize
	}
	return f, nil
}

// FrameContentSize returns the decompressed size recorded in the header of
// the frame at the start of src. If the header does not record it, the
// result is ContentSizeUnknown and ErrSizeUnknown; such frames need
// DecompressStream or a destination that is large enough.
func FrameContentSize(src []byte) (uint64, error) {
	f, err := ParseFrameHeader(src)
	if err != nil {
		return 0, err
	}
	if !f.HasContentSize {
		return ContentSizeUnknown, ErrSizeUnknown
	}
	return f.ContentSize, nil
}

// CompressBound returns the largest size a frame compressed from n bytes
// with the default block size can take.
func CompressBound(n int) int {
	return compressBound(n, MaxBlockSize)
}

func compressBound(n, blockSize int) int {
	blocks := (n + blockSize - 1) / blockSize
	if blocks == 0 {
		blocks = 1
	}
	return n + maxFrameHeader + blocks*blockHeaderSize + checksumSize
}

// isSkippable reports whether b starts with a skippable frame magic number.
func isSkippable(b []byte) bool {
	return len(b) >= 4 && binary.LittleEndian.Uint32(b)&skippableMagicMask == skippableMagicMin
}

// skippableSize returns the full size of the skippable frame at the start
// of b.
func skippableSize(b []byte) (int, error) {
	if len(b) < 8 {
		return 0, corruptf("truncated skippable frame")
	}
	n := uint64(binary.LittleEndian.Uint32(b[4:])) + 8
	if n > uint64(len(b)) {
		return 0, corruptf("truncated skippable frame")
	}
	return int(n), nil
}
