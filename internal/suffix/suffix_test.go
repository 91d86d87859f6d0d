package suffix

import (
	"bytes"
	"fmt"
	"testing"
)

func verifySuffixArray(t []byte, sa []int32) error {
	if len(sa) != len(t) {
		return fmt.Errorf("len(sa)=%d; len(t)=%d", len(sa), len(t))
	}
	seen := make([]bool, len(t))
	for i, p := range sa {
		if p < 0 || int(p) >= len(t) || seen[p] {
			return fmt.Errorf("sa[%d]=%d is out of range or repeated", i, p)
		}
		seen[p] = true
		if i > 0 && bytes.Compare(t[sa[i-1]:], t[p:]) >= 0 {
			return fmt.Errorf("suffixes %d and %d are out of order", sa[i-1], p)
		}
	}
	return nil
}

func naiveLCP(a, b []byte) int32 {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return int32(n)
}

var sortTests = []string{
	"",
	"a",
	"abbaabbaabbaabba",
	"ababababababababac",
	"cdcdcdcdccdd$",
	"banana",
	"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	"The brown fox jumps over the lazy dog.",
	"<mediawiki xmlns=\"http://www.mediawik",
}

func TestSort(t *testing.T) {
	for i, tc := range sortTests {
		t.Run(fmt.Sprintf("%02d", i), func(t *testing.T) {
			text := []byte(tc)
			sa := make([]int32, len(text))
			Sort(text, sa)
			if err := verifySuffixArray(text, sa); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestLCP(t *testing.T) {
	for i, tc := range sortTests {
		t.Run(fmt.Sprintf("%02d", i), func(t *testing.T) {
			text := []byte(tc)
			sa := make([]int32, len(text))
			lcp := make([]int32, len(text))
			Sort(text, sa)
			LCP(text, sa, lcp)
			for k := 1; k < len(sa); k++ {
				want := naiveLCP(text[sa[k-1]:], text[sa[k]:])
				if lcp[k] != want {
					t.Fatalf("lcp[%d]=%d; want %d", k, lcp[k], want)
				}
			}
		})
	}
}

func TestSegments(t *testing.T) {
	text := []byte("abcXabcYabcZab")
	sa := make([]int32, len(text))
	lcp := make([]int32, len(text))
	Sort(text, sa)
	LCP(text, sa, lcp)

	found := make(map[string]int)
	Segments(sa, lcp, 2, 8, func(m int, group []int32) {
		s := string(text[group[0] : int(group[0])+m])
		for _, p := range group {
			if got := string(text[p : int(p)+m]); got != s {
				t.Fatalf("group for %q holds %q", s, got)
			}
		}
		found[s] = len(group)
	})
	if found["abc"] != 3 {
		t.Errorf("abc occurs %d times; want 3", found["abc"])
	}
	if found["ab"] != 4 {
		t.Errorf("ab occurs %d times; want 4", found["ab"])
	}
	for s := range found {
		if len(s) < 2 {
			t.Errorf("segment %q is shorter than minLen", s)
		}
	}
}

func FuzzLCP(f *testing.F) {
	for _, s := range sortTests {
		f.Add([]byte(s))
	}
	f.Fuzz(func(t *testing.T, text []byte) {
		sa := make([]int32, len(text))
		lcp := make([]int32, len(text))
		Sort(text, sa)
		if err := verifySuffixArray(text, sa); err != nil {
			t.Fatal(err)
		}
		LCP(text, sa, lcp)
		for k := 1; k < len(sa); k++ {
			if want := naiveLCP(text[sa[k-1]:], text[sa[k]:]); lcp[k] != want {
				t.Fatalf("lcp[%d]=%d; want %d", k, lcp[k], want)
			}
		}
	})
}
