// Package dict trains zpack dictionaries from sample data.
//
// Training looks for byte strings that recur across samples, and packs the
// most valuable ones into the dictionary content. When the target size
// allows, the content is wrapped with entropy tables fitted to the samples.
package dict

import (
	"bytes"
	"fmt"

	"github.com/ndrean/zpack"
	"github.com/ndrean/zpack/internal/suffix"
	"github.com/pierrec/xxHash/xxHash64"
	"golang.org/x/exp/slices"
)

const (
	// maxTrainInput caps how many sample bytes take part in training. The
	// most recent samples are kept.
	maxTrainInput = 1 << 24

	minUserID = 1 << 15
	maxUserID = 1 << 31
)

// TrainParams controls dictionary training.
type TrainParams struct {
	// TargetSize is the maximum size of the serialized dictionary.
	TargetSize int

	// Level is the compression level the entropy tables are fitted for.
	// 0 means zpack.DefaultLevel.
	Level int

	// ID is the dictionary ID. 0 derives one from the content.
	ID uint32

	// MinSegment and MaxSegment bound the length of the strings picked
	// for the content. They default to 4 and 256.
	MinSegment int
	MaxSegment int

	// RawContent returns plain content without tables or header.
	RawContent bool
}

func (p *TrainParams) verify() error {
	if p.TargetSize <= 0 {
		return fmt.Errorf("%w: target size %d", zpack.ErrInvalidParameter, p.TargetSize)
	}
	if p.Level < 0 || p.Level > zpack.MaxLevel {
		return fmt.Errorf("%w: level %d out of range [%d, %d]", zpack.ErrInvalidParameter, p.Level, zpack.MinLevel, zpack.MaxLevel)
	}
	if p.MinSegment < 0 || p.MaxSegment < 0 || (p.MaxSegment > 0 && p.MaxSegment < p.MinSegment) {
		return fmt.Errorf("%w: segment bounds [%d, %d]", zpack.ErrInvalidParameter, p.MinSegment, p.MaxSegment)
	}
	return nil
}

func (p *TrainParams) setDefaults() {
	if p.Level == 0 {
		p.Level = zpack.DefaultLevel
	}
	if p.MinSegment == 0 {
		p.MinSegment = 4
	}
	if p.MaxSegment == 0 {
		p.MaxSegment = 256
	}
	if p.MaxSegment < p.MinSegment {
		p.MaxSegment = p.MinSegment
	}
}

// Train builds a dictionary of at most targetSize bytes from samples,
// using default parameters.
func Train(samples [][]byte, targetSize int) ([]byte, error) {
	return TrainWithParams(samples, TrainParams{TargetSize: targetSize})
}

// TrainWithParams builds a dictionary from samples. The result is never
// empty, never larger than p.TargetSize, and depends only on the samples
// and p. Empty samples are ignored; if nothing is left, the error wraps
// zpack.ErrNoSamples.
func TrainWithParams(samples [][]byte, p TrainParams) ([]byte, error) {
	if err := p.verify(); err != nil {
		return nil, err
	}
	p.setDefaults()

	var used [][]byte
	total := 0
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if len(s) == 0 {
			continue
		}
		if total+len(s) > maxTrainInput {
			if total > 0 {
				break
			}
			s = s[len(s)-maxTrainInput:]
		}
		used = append(used, s)
		total += len(s)
	}
	if len(used) == 0 {
		return nil, zpack.ErrNoSamples
	}
	slices.Reverse(used)

	content := selectContent(used, p.TargetSize, p.MinSegment, p.MaxSegment)
	if p.RawContent {
		return rawContent(content), nil
	}
	return wrap(content, used, p)
}

// A segment is a string that recurs in the samples.
type segment struct {
	pos     int32 // first occurrence in the concatenated text
	length  int32
	samples int32 // number of samples that contain it
	freq    int32
	score   int64
}

// corpus is the concatenation of the training samples.
type corpus struct {
	text  []byte
	owner []int32 // owner[i] is the sample that holds text[i]
	end   []int32 // end[s] is the end of sample s in text
}

func newCorpus(samples [][]byte) *corpus {
	c := &corpus{}
	for i, s := range samples {
		c.text = append(c.text, s...)
		for range s {
			c.owner = append(c.owner, int32(i))
		}
		c.end = append(c.end, int32(len(c.text)))
	}
	return c
}

// remaining returns how many bytes of the sample holding pos follow it.
func (c *corpus) remaining(pos int32) int32 {
	return c.end[c.owner[pos]] - pos
}

// segments enumerates the strings, minLen to maxLen bytes long, that occur
// in more than one place. Matches never cross a sample boundary.
func (c *corpus) segments(minLen, maxLen int) []segment {
	n := len(c.text)
	sa := make([]int32, n)
	lcp := make([]int32, n)
	suffix.Sort(c.text, sa)
	suffix.LCP(c.text, sa, lcp)
	for k := 1; k < n; k++ {
		l := lcp[k]
		if r := c.remaining(sa[k]); r < l {
			l = r
		}
		if r := c.remaining(sa[k-1]); r < l {
			l = r
		}
		lcp[k] = l
	}

	var segs []segment
	seen := make([]int32, len(c.end))
	stamp := int32(0)
	suffix.Segments(sa, lcp, minLen, maxLen, func(m int, group []int32) {
		stamp++
		distinct := int32(0)
		first := group[0]
		for _, pos := range group {
			if s := c.owner[pos]; seen[s] != stamp {
				seen[s] = stamp
				distinct++
			}
			if pos < first {
				first = pos
			}
		}
		score := int64(distinct-1) * int64(m-2)
		if score <= 0 {
			return
		}
		segs = append(segs, segment{
			pos:     first,
			length:  int32(m),
			samples: distinct,
			freq:    int32(len(group)),
			score:   score,
		})
	})
	return segs
}

// selectContent picks the dictionary content: the highest scoring segments,
// best last, within budget bytes.
func selectContent(samples [][]byte, budget, minLen, maxLen int) []byte {
	c := newCorpus(samples)
	segs := c.segments(minLen, maxLen)
	slices.SortFunc(segs, func(a, b segment) int {
		switch {
		case a.score != b.score:
			return cmpInt64(b.score, a.score)
		case a.freq != b.freq:
			return int(b.freq - a.freq)
		case a.length != b.length:
			return int(b.length - a.length)
		}
		return bytes.Compare(c.text[a.pos:a.pos+a.length], c.text[b.pos:b.pos+b.length])
	})

	var picked [][]byte
	var covered []byte
	left := budget
	for _, s := range segs {
		if left < minLen {
			break
		}
		if int(s.length) > left {
			continue
		}
		b := c.text[s.pos : s.pos+s.length]
		if bytes.Contains(covered, b) {
			continue
		}
		picked = append(picked, b)
		covered = append(covered, b...)
		covered = append(covered, 0)
		left -= len(b)
	}

	if len(picked) == 0 {
		if len(c.text) > budget {
			return c.text[len(c.text)-budget:]
		}
		return c.text
	}
	content := make([]byte, 0, budget-left)
	for i := len(picked) - 1; i >= 0; i-- {
		content = append(content, picked[i]...)
	}
	return content
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// wrap serializes content as a dictionary with entropy tables, trimming the
// least valuable content to make room for them. If the tables would take
// more than a quarter of the target size, the raw content is returned.
func wrap(content []byte, samples [][]byte, p TrainParams) ([]byte, error) {
	id := p.ID
	if id == 0 {
		id = deriveID(content)
	}
	d, err := zpack.BuildDictionary(content, id, samples, p.Level)
	if err != nil {
		return nil, err
	}
	if len(d) <= p.TargetSize {
		return d, nil
	}
	overhead := len(d) - len(content)
	if 4*overhead > p.TargetSize {
		return rawContent(content), nil
	}

	trimmed := content
	for tries := 0; tries < 4 && len(d) > p.TargetSize; tries++ {
		cut := len(d) - p.TargetSize
		if cut >= len(trimmed) {
			break
		}
		trimmed = trimmed[cut:]
		if p.ID == 0 {
			id = deriveID(trimmed)
		}
		if d, err = zpack.BuildDictionary(trimmed, id, samples, p.Level); err != nil {
			return nil, err
		}
	}
	if len(d) > p.TargetSize {
		return rawContent(content), nil
	}
	return d, nil
}

// rawContent returns content as a raw-content dictionary, dropping a leading
// byte if the content would otherwise parse as a structured dictionary.
func rawContent(content []byte) []byte {
	if d, err := zpack.ParseDictionary(content); (err != nil || d.ID() != 0) && len(content) > 1 {
		content = content[1:]
	}
	return bytes.Clone(content)
}

// deriveID maps the content hash into the range of IDs free for user
// dictionaries.
func deriveID(content []byte) uint32 {
	h := xxHash64.Checksum(content, 0)
	return minUserID + uint32(h%(maxUserID-minUserID))
}
