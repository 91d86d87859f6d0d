package matchfinder

import "math/bits"

// BinaryTree is an implementation of the MatchFinder interface that keeps,
// for every hash bucket, a binary search tree of the suffixes starting at
// the positions in that bucket. Walking the tree visits candidates in order
// of increasing common prefix, so it finds long matches with few
// comparisons. It is the exhaustive strategy.
//
// Tree nodes live in a cyclic buffer of 1<<ChainBits positions; candidates
// older than that are out of reach even if they are within MaxDistance.
type BinaryTree struct {
	// SearchDepth is how many tree nodes to visit per position.
	// The default is 32.
	SearchDepth int

	// NiceLength stops the search as soon as a match this long is found.
	// The default is 128.
	NiceLength int

	// MaxDistance is the maximum distance (in bytes) to look back for
	// a match. The default is 1 MiB.
	MaxDistance int

	// MinLength is the shortest match to report, and the number of bytes
	// hashed. The default (and minimum) is 3.
	MinLength int

	// TableBits is the log2 of the hash table size. The default is 16.
	TableBits int

	// ChainBits is the log2 of the number of tree nodes. The default is
	// enough to cover MaxDistance, up to 22.
	ChainBits int

	// Buffers supplies the history buffer. The default allocates with
	// make.
	Buffers Allocator

	// Parser chooses among the matches. The default is a LazyParser.
	Parser Parser

	// table and son hold absolute stream positions plus one; zero means
	// no entry.
	table []uint32
	son   []uint32

	base int // absolute position of history[0]
	next int // next history index to insert into the trees
	window
}

const maxChainBits = 26

func (q *BinaryTree) init() {
	if q.SearchDepth <= 0 {
		q.SearchDepth = 32
	}
	if q.NiceLength <= 0 {
		q.NiceLength = 128
	}
	if q.MaxDistance <= 0 {
		q.MaxDistance = defaultMaxDistance
	}
	q.MinLength = minLengthOrDefault(q.MinLength)
	if q.TableBits <= 0 {
		q.TableBits = defaultTableBits
	}
	if q.TableBits > maxTableBits {
		q.TableBits = maxTableBits
	}
	if q.ChainBits <= 0 {
		q.ChainBits = bits.Len(uint(q.MaxDistance))
		if q.ChainBits > 22 {
			q.ChainBits = 22
		}
	}
	if q.ChainBits > maxChainBits {
		q.ChainBits = maxChainBits
	}
	if q.Parser == nil {
		q.Parser = &LazyParser{MinLength: q.MinLength}
	}
	if len(q.table) != 1<<q.TableBits {
		q.table = make([]uint32, 1<<q.TableBits)
	}
	if len(q.son) != 2<<q.ChainBits {
		q.son = make([]uint32, 2<<q.ChainBits)
	}
}

func (q *BinaryTree) Reset(history []byte) {
	q.init()
	for i := range q.table {
		q.table[i] = 0
	}
	for i := range q.son {
		q.son[i] = 0
	}
	q.base = 0
	q.next = 0
	q.window.reset(history, q.Buffers)

	n := hashLen(q.MinLength)
	for ; q.next+n <= len(q.history); q.next++ {
		q.treeOp(nil, q.next, 0, len(q.history), false)
	}
}

// FindMatches looks for matches in src, appends them to dst, and returns dst.
func (q *BinaryTree) FindMatches(dst []Match, src []byte) []Match {
	if q.table == nil {
		q.Reset(nil)
	}

	if delta := q.slide(q.MaxDistance); delta > 0 {
		q.base += delta
		q.next -= delta
		if q.next < 0 {
			q.next = 0
		}
	}
	if q.base > 1<<30 {
		// Keep absolute positions well inside uint32.
		shiftTable(q.table, q.base)
		shiftTable(q.son, q.base)
		q.base = 0
	}

	nextEmit := len(q.history)
	q.add(src)

	return q.Parser.Parse(dst, q, nextEmit, len(q.history))
}

func (q *BinaryTree) Search(dst []AbsoluteMatch, pos, min, max int) []AbsoluteMatch {
	if pos < q.next {
		// Already in the tree; its candidates were reported then.
		return dst
	}
	n := hashLen(q.MinLength)
	if pos+n > len(q.history) {
		return dst
	}
	for ; q.next < pos; q.next++ {
		q.treeOp(nil, q.next, 0, len(q.history), false)
	}
	dst = q.treeOp(dst, pos, min, max, true)
	q.next = pos + 1
	return dst
}

// treeOp inserts pos into its tree, comparing suffixes up to limit. When
// search is set, it also appends every match that is longer than the ones
// before it.
func (q *BinaryTree) treeOp(dst []AbsoluteMatch, pos, min, limit int, search bool) []AbsoluteMatch {
	src := q.history
	n := hashLen(q.MinLength)
	h := hashBytes(load64(src, pos), n, uint(q.TableBits))

	cur := q.base + pos
	curMatch := int(q.table[h]) - 1
	q.table[h] = uint32(cur + 1)

	mask := 1<<q.ChainBits - 1
	maxDist := q.MaxDistance
	if maxDist > mask {
		maxDist = mask
	}
	ptr1 := (cur & mask) << 1 // smaller suffixes
	ptr0 := ptr1 + 1          // larger suffixes
	lenLimit := limit - pos
	bestLen := 0

	for depth := q.SearchDepth; ; depth-- {
		delta := cur - curMatch
		if curMatch < q.base || delta <= 0 || delta > maxDist || depth == 0 {
			q.son[ptr0] = 0
			q.son[ptr1] = 0
			break
		}
		mpos := curMatch - q.base
		pair := (curMatch & mask) << 1

		l := extendMatch(src[:limit], mpos, pos) - pos

		if search && l > bestLen {
			bestLen = l
			if l >= q.MinLength {
				start, match := pos, mpos
				for start > min && match > 0 && src[start-1] == src[match-1] {
					start--
					match--
				}
				dst = append(dst, AbsoluteMatch{
					Start: start,
					End:   pos + l,
					Match: match,
				})
			}
		}

		if l >= lenLimit || l >= q.NiceLength {
			// The candidate is as good as this position will ever find;
			// pos takes over its subtrees.
			q.son[ptr1] = q.son[pair]
			q.son[ptr0] = q.son[pair+1]
			break
		}

		if src[mpos+l] < src[pos+l] {
			q.son[ptr1] = uint32(curMatch + 1)
			ptr1 = pair + 1
			curMatch = int(q.son[ptr1]) - 1
		} else {
			q.son[ptr0] = uint32(curMatch + 1)
			ptr0 = pair
			curMatch = int(q.son[ptr0]) - 1
		}
	}
	return dst
}
