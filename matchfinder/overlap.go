package matchfinder

// An OverlapParser follows chains of overlapping matches: after choosing a
// match, it searches again near the match's end, and keeps going while each
// new match scores better than the last. The overlaps are then resolved by
// clipping the weaker match of each neighboring pair. This is the
// "advanced parsing" approach of
// https://fastcompression.blogspot.com/2011/12/advanced-parsing-strategies.html
type OverlapParser struct {
	// Score ranks candidate matches. The default is the match length.
	Score func(AbsoluteMatch) int

	// MinLength is the shortest match that will be used.
	// The default (and minimum) is 3.
	MinLength int

	found []AbsoluteMatch
	chain []candidate
}

func length(m AbsoluteMatch) int {
	return m.End - m.Start
}

// A candidate is the match currently chosen from a group of matches that
// were found at the same search position. Keeping the group allows a
// different member to win after the candidate is clipped.
type candidate struct {
	AbsoluteMatch
	group []AbsoluteMatch
}

// pick sets c to the highest scoring member of its group that still has
// bytes left after being clipped to [lo, hi). With no such member, c is
// left empty.
func (c *candidate) pick(lo, hi int, score func(AbsoluteMatch) int) {
	c.AbsoluteMatch = AbsoluteMatch{}
	best := 0
	for _, m := range c.group {
		m = clip(m, lo, hi)
		if m.End <= m.Start {
			continue
		}
		if s := score(m); s > best {
			c.AbsoluteMatch, best = m, s
		}
	}
}

// clip shortens m so that it lies inside [lo, hi), keeping its distance.
func clip(m AbsoluteMatch, lo, hi int) AbsoluteMatch {
	if m.Start < lo {
		m.Match += lo - m.Start
		m.Start = lo
	}
	if m.End > hi {
		m.End = hi
	}
	return m
}

func (p *OverlapParser) Parse(dst []Match, src Searcher, start, end int) []Match {
	if p.Score == nil {
		p.Score = length
	}
	minLength := minLengthOrDefault(p.MinLength)
	nextEmit := start

	for s := start; s < end; {
		p.found = src.Search(p.found[:0], s, nextEmit, end)
		first := candidate{group: p.found}
		first.pick(0, end, p.Score)
		if length(first.AbsoluteMatch) < minLength {
			s++
			continue
		}

		chain := append(p.chain[:0], first)
		for last := first; ; {
			n := len(p.found)
			p.found = src.Search(p.found, last.End-2, last.Start, end)
			next := candidate{group: p.found[n:]}
			next.pick(0, end, p.Score)
			if p.Score(next.AbsoluteMatch) <= p.Score(last.AbsoluteMatch) {
				break
			}
			chain = append(chain, next)
			last = next
		}

		chain = p.resolve(chain, nextEmit, end, minLength)
		for _, c := range chain {
			m := clip(c.AbsoluteMatch, nextEmit, end)
			if length(m) < minLength {
				continue
			}
			dst = append(dst, Match{
				Unmatched: m.Start - nextEmit,
				Length:    length(m),
				Distance:  m.Start - m.Match,
			})
			nextEmit = m.End
		}
		p.chain = chain[:0]

		if nextEmit > s {
			s = nextEmit
		} else {
			s++
		}
	}

	if nextEmit < end {
		dst = append(dst, Match{Unmatched: end - nextEmit})
	}
	return dst
}

// resolve removes the overlaps in a chain of matches, working from the end
// back. Each candidate in the chain scored better than its predecessor when
// it was found, but clipping can change that, so the longer match of each
// pair keeps the overlapping bytes. Matches that end up shorter than
// minLength are dropped.
func (p *OverlapParser) resolve(chain []candidate, lo, hi, minLength int) []candidate {
	for i := len(chain) - 2; i >= 0; i-- {
		cur, next := &chain[i], &chain[i+1]

		if length(cur.AbsoluteMatch) <= length(next.AbsoluteMatch) {
			if cur.End > next.Start {
				cur.pick(lo, next.Start, p.Score)
			}
			if length(cur.AbsoluteMatch) < minLength {
				chain = append(chain[:i], chain[i+1:]...)
			}
			continue
		}

		if cur.End > next.Start {
			limit := hi
			if i+2 < len(chain) {
				limit = chain[i+2].Start
			}
			next.pick(cur.End, limit, p.Score)
		}
		if length(next.AbsoluteMatch) < minLength {
			chain = append(chain[:i+1], chain[i+2:]...)
			if i+1 < len(chain) {
				// Check cur against its new neighbor.
				i++
			}
		}
	}
	return chain
}
