package zpack

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestCorruptionDetected(t *testing.T) {
	inputs := map[string][]byte{
		"text":   testText(6000, 40),
		"run":    bytes.Repeat([]byte("z"), 3000),
		"random": randomBytes(500, 41),
		"mixed":  append(testText(3000, 42), randomBytes(300, 43)...),
	}
	for name, src := range inputs {
		for _, level := range []int{1, 3, 19} {
			t.Run(fmt.Sprintf("%s/%d", name, level), func(t *testing.T) {
				frame := mustCompress(t, Params{Level: level}, src)
				h, err := ParseFrameHeader(frame)
				if err != nil {
					t.Fatal(err)
				}
				mod := make([]byte, len(frame))
				for i := h.HeaderSize; i < len(frame); i++ {
					for _, x := range []byte{0x01, 0x10, 0x80, 0xff} {
						copy(mod, frame)
						mod[i] ^= x
						got, err := Decompress(mod)
						if err == nil {
							if !bytes.Equal(got, src) {
								t.Fatalf("byte %d ^ %#x: decoded different content without error", i, x)
							}
							continue
						}
						if !errors.Is(err, ErrCorruption) {
							t.Fatalf("byte %d ^ %#x: error %v does not wrap ErrCorruption", i, x, err)
						}
					}
				}
			})
		}
	}
}

func TestChecksumMismatch(t *testing.T) {
	src := testText(5000, 44)
	frame := mustCompress(t, Params{}, src)
	frame[len(frame)-1] ^= 0x55

	if _, err := Decompress(frame); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Decompress = %v", err)
	}
	d, err := NewDecompressor(DecoderParams{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tryStreamDecompress(d, frame, 100, 100); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("DecompressStream = %v", err)
	}

	d, err = NewDecompressor(DecoderParams{IgnoreChecksum: true})
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.Decompress(nil, frame)
	if err != nil {
		t.Fatalf("IgnoreChecksum: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Error("IgnoreChecksum: mismatch")
	}
}

func TestNotThisFormat(t *testing.T) {
	for _, src := range [][]byte{nil, []byte("PK\x03\x04 zip file"), {0x28, 0xb5, 0x2f, 0xfd, 0, 0}} {
		if _, err := Decompress(src); !errors.Is(err, ErrNotThisFormat) {
			t.Errorf("Decompress(%q) = %v", src, err)
		}
	}
	d, err := NewDecompressor(DecoderParams{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tryStreamDecompress(d, []byte("definitely not"), 5, 100); !errors.Is(err, ErrNotThisFormat) {
		t.Errorf("DecompressStream = %v", err)
	}
}

func TestTruncated(t *testing.T) {
	frame := mustCompress(t, Params{Level: 5}, testText(20000, 45))
	for _, n := range []int{4, 5, 6, len(frame) / 2, len(frame) - 5, len(frame) - 1} {
		if _, err := Decompress(frame[:n]); !errors.Is(err, ErrCorruption) {
			t.Errorf("%d of %d bytes: %v", n, len(frame), err)
		}
		d, err := NewDecompressor(DecoderParams{})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tryStreamDecompress(d, frame[:n], 64, 1000); !errors.Is(err, ErrCorruption) {
			t.Errorf("stream, %d of %d bytes: %v", n, len(frame), err)
		}
	}
}

func TestReservedBits(t *testing.T) {
	frame := mustCompress(t, Params{}, []byte("reserved bits must be zero"))
	bad := append([]byte{}, frame...)
	bad[4] |= 1 << 3
	if _, err := Decompress(bad); !errors.Is(err, ErrCorruption) {
		t.Errorf("reserved header bit: %v", err)
	}

	// A block header of the reserved type.
	h, _ := ParseFrameHeader(frame)
	bad = append([]byte{}, frame...)
	bad[h.HeaderSize] |= 3 << 1
	if _, err := Decompress(bad); !errors.Is(err, ErrCorruption) {
		t.Errorf("reserved block type: %v", err)
	}
}

func FuzzDecompress(f *testing.F) {
	f.Add(mustCompress(f, Params{}, testText(2000, 46)))
	f.Add(mustCompress(f, Params{Level: 19}, bytes.Repeat([]byte("fuzz"), 300)))
	f.Add(mustCompress(f, Params{NoContentSize: true, WindowLog: 10}, testText(5000, 47)))
	f.Fuzz(func(t *testing.T, data []byte) {
		d, err := NewDecompressor(DecoderParams{MaxMemory: 1 << 24})
		if err != nil {
			t.Fatal(err)
		}
		one, err1 := d.Decompress(nil, data)
		d.Reset(ResetSession)
		two, err2 := tryStreamDecompress(d, data, 7, 999)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("one-shot error %v, streaming error %v", err1, err2)
		}
		if err1 == nil && !bytes.Equal(one, two) {
			t.Fatal("one-shot and streaming output differ")
		}
	})
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte(""), 3)
	f.Add([]byte("Hello, world! Hello, world!"), 1)
	f.Add(testText(3000, 48), 18)
	f.Fuzz(func(t *testing.T, data []byte, level int) {
		if level < 0 || level > MaxLevel {
			return
		}
		frame, err := Compress(data, level)
		if err != nil {
			t.Fatal(err)
		}
		if len(frame) > CompressBound(len(data)) {
			t.Fatalf("%d bytes compressed to %d, over the bound", len(data), len(frame))
		}
		got, err := Decompress(frame)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Fatal("round trip mismatch")
		}
	})
}
