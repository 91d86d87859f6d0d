// Package suffix builds suffix arrays and LCP tables, and enumerates the
// repeated substrings they reveal.
package suffix

import (
	"golang.org/x/exp/slices"
)

// Sort fills sa with the suffix array of t: the start positions of the
// suffixes of t in lexicographic order. It uses prefix doubling, so the
// worst case is O(n log² n) even for highly repetitive input. len(sa) must
// equal len(t).
func Sort(t []byte, sa []int32) {
	n := len(t)
	if len(sa) != n {
		panic("suffix: len(sa) != len(t)")
	}
	if n == 0 {
		return
	}
	rank := make([]int32, n)
	tmp := make([]int32, n)
	for i := range sa {
		sa[i] = int32(i)
		rank[i] = int32(t[i])
	}

	for k := 1; ; k <<= 1 {
		second := func(i int32) int32 {
			if j := int(i) + k; j < n {
				return rank[j]
			}
			return -1
		}
		compare := func(a, b int32) int {
			if rank[a] != rank[b] {
				return int(rank[a] - rank[b])
			}
			return int(second(a) - second(b))
		}
		slices.SortFunc(sa, compare)

		tmp[sa[0]] = 0
		for i := 1; i < n; i++ {
			tmp[sa[i]] = tmp[sa[i-1]]
			if compare(sa[i-1], sa[i]) != 0 {
				tmp[sa[i]]++
			}
		}
		copy(rank, tmp)
		if int(rank[sa[n-1]]) == n-1 || k >= n {
			return
		}
	}
}

// LCP fills lcp so that lcp[i] is the length of the common prefix of the
// suffixes at sa[i-1] and sa[i]; lcp[0] is 0. It runs in linear time using
// the inverse suffix array.
func LCP(t []byte, sa, lcp []int32) {
	n := len(t)
	if len(sa) != n || len(lcp) != n {
		panic("suffix: length mismatch")
	}
	inv := make([]int32, n)
	for i, p := range sa {
		inv[p] = int32(i)
	}
	l := 0
	for i := 0; i < n; i++ {
		k := inv[i]
		if k == 0 {
			lcp[0] = 0
			l = 0
			continue
		}
		j := int(sa[k-1])
		for i+l < n && j+l < n && t[i+l] == t[j+l] {
			l++
		}
		lcp[k] = int32(l)
		if l > 0 {
			l--
		}
	}
}

// Segments calls f for every maximal group of adjacent suffixes that share
// a common prefix of length m, minLen <= m. Prefix lengths above maxLen are
// treated as maxLen. The group is a subslice of sa and must not be
// modified; groups are reported innermost first.
func Segments(sa, lcp []int32, minLen, maxLen int, f func(m int, group []int32)) {
	if len(sa) != len(lcp) {
		panic("suffix: len(sa) != len(lcp)")
	}
	if maxLen < minLen || len(sa) < 2 {
		return
	}
	type item struct {
		n     int32
		start int
	}
	stack := make([]item, 1, 16)
	for j := 1; ; j++ {
		n := int32(-1)
		if j < len(lcp) {
			n = lcp[j]
			if n > int32(maxLen) {
				n = int32(maxLen)
			}
		}
		start := j - 1
		for {
			top := stack[len(stack)-1]
			if n > top.n {
				stack = append(stack, item{n, start})
				break
			}
			if n == top.n {
				break
			}
			stack = stack[:len(stack)-1]
			if top.n >= int32(minLen) && top.n > 0 {
				f(int(top.n), sa[top.start:j])
			}
			start = top.start
			if len(stack) == 0 {
				return
			}
		}
	}
}
