package matchfinder

// HashChain is an implementation of the MatchFinder interface that
// uses hash chaining to find longer matches. It is the balanced strategy:
// the chain walk is bounded by SearchDepth, so the worst case stays linear
// in the input size.
type HashChain struct {
	// SearchDepth is how many entries to examine on the hash chain.
	// The default is 16.
	SearchDepth int

	// NiceLength stops the chain walk as soon as a match this long is
	// found. The default is 64.
	NiceLength int

	// MaxDistance is the maximum distance (in bytes) to look back for
	// a match. The default is 1 MiB.
	MaxDistance int

	// MinLength is the shortest match to report, and the number of bytes
	// hashed. The default (and minimum) is 3.
	MinLength int

	// TableBits is the log2 of the hash table size. The default is 16.
	TableBits int

	// Buffers supplies the history buffer. The default allocates with
	// make.
	Buffers Allocator

	// Parser chooses among the matches. The default is a GreedyParser.
	Parser Parser

	table []uint32
	// chain[i] is one more than the previous position with the same hash
	// as position i, or 0.
	chain []uint32
	window
}

func (q *HashChain) init() {
	if q.SearchDepth <= 0 {
		q.SearchDepth = 16
	}
	if q.NiceLength <= 0 {
		q.NiceLength = 64
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
	if q.Parser == nil {
		q.Parser = &GreedyParser{MinLength: q.MinLength}
	}
	if len(q.table) != 1<<q.TableBits {
		q.table = make([]uint32, 1<<q.TableBits)
	}
}

func (q *HashChain) Reset(history []byte) {
	q.init()
	for i := range q.table {
		q.table[i] = 0
	}
	q.chain = q.chain[:0]
	q.window.reset(history, q.Buffers)
	q.updateChains()
}

// updateChains links every position that has enough bytes after it to be
// hashed.
func (q *HashChain) updateChains() {
	n := hashLen(q.MinLength)
	src := q.history
	chain := q.chain
	for i := len(chain); i+n <= len(src); i++ {
		h := hashBytes(load64(src, i), n, uint(q.TableBits))
		chain = append(chain, q.table[h])
		q.table[h] = uint32(i + 1)
	}
	q.chain = chain
}

// FindMatches looks for matches in src, appends them to dst, and returns dst.
func (q *HashChain) FindMatches(dst []Match, src []byte) []Match {
	if q.table == nil {
		q.Reset(nil)
	}

	if delta := q.slide(q.MaxDistance); delta > 0 {
		// Positions that were not hashed yet are still past the end of
		// the chain, so only the linked ones move.
		if delta < len(q.chain) {
			copy(q.chain, q.chain[delta:])
			q.chain = q.chain[:len(q.chain)-delta]
		} else {
			q.chain = q.chain[:0]
		}
		shiftTable(q.chain, delta)
		shiftTable(q.table, delta)
	}

	nextEmit := len(q.history)
	q.add(src)
	q.updateChains()

	return q.Parser.Parse(dst, q, nextEmit, len(q.history))
}

func (q *HashChain) Search(dst []AbsoluteMatch, pos, min, max int) []AbsoluteMatch {
	if pos >= len(q.chain) {
		return dst
	}
	src := q.history

	var length int
	candidate := pos
	for i := 0; i < q.SearchDepth; i++ {
		next := int(q.chain[candidate]) - 1
		if next < 0 || next >= candidate {
			break
		}
		candidate = next
		if pos-candidate > q.MaxDistance {
			break
		}

		newEnd := extendMatch(src[:max], candidate, pos)
		if newEnd-pos < q.MinLength || newEnd-pos <= length {
			continue
		}

		// Extend the match backward as far as possible.
		newStart := pos
		newMatch := candidate
		for newStart > min && newMatch > 0 && src[newStart-1] == src[newMatch-1] {
			newStart--
			newMatch--
		}

		if newEnd-newStart > length {
			dst = append(dst, AbsoluteMatch{
				Start: newStart,
				End:   newEnd,
				Match: newMatch,
			})
			length = newEnd - newStart
		}
		if length >= q.NiceLength {
			break
		}
	}

	return dst
}
