package matchfinder

// SingleHash is an implementation of the MatchFinder interface that keeps a
// single candidate per hash bucket: the most recent position whose first
// MinLength bytes hashed there. It is the fast strategy.
type SingleHash struct {
	// MaxDistance is the maximum distance (in bytes) to look back for
	// a match. The default is 1 MiB.
	MaxDistance int

	// MinLength is the shortest match to report. The default (and minimum)
	// is 3.
	MinLength int

	// HashLen is the number of bytes hashed, from 3 to 8. The default is
	// MinLength. Hashing more bytes than MinLength makes the single
	// candidate more likely to be a real match.
	HashLen int

	// TableBits is the log2 of the hash table size. The default is 16.
	TableBits int

	// Buffers supplies the history buffer. The default allocates with
	// make.
	Buffers Allocator

	// Parser chooses among the matches. The default is a GreedyParser.
	Parser Parser

	table []uint32
	window
}

func (q *SingleHash) init() {
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
	if q.HashLen < q.MinLength {
		q.HashLen = q.MinLength
	}
	q.HashLen = hashLen(q.HashLen)
	if q.Parser == nil {
		q.Parser = &GreedyParser{MinLength: q.MinLength}
	}
	if len(q.table) != 1<<q.TableBits {
		q.table = make([]uint32, 1<<q.TableBits)
	}
}

func (q *SingleHash) Reset(history []byte) {
	q.init()
	for i := range q.table {
		q.table[i] = 0
	}
	q.window.reset(history, q.Buffers)

	n := q.HashLen
	src := q.history
	for i := 0; i+n <= len(src); i++ {
		q.table[hashBytes(load64(src, i), n, uint(q.TableBits))] = uint32(i + 1)
	}
}

// FindMatches looks for matches in src, appends them to dst, and returns dst.
func (q *SingleHash) FindMatches(dst []Match, src []byte) []Match {
	if q.table == nil {
		q.Reset(nil)
	}

	if delta := q.slide(q.MaxDistance); delta > 0 {
		shiftTable(q.table, delta)
	}

	nextEmit := len(q.history)
	q.add(src)

	return q.Parser.Parse(dst, q, nextEmit, len(q.history))
}

func (q *SingleHash) Search(dst []AbsoluteMatch, pos, min, max int) []AbsoluteMatch {
	n := q.HashLen
	if pos+n > len(q.history) {
		return dst
	}
	src := q.history

	h := hashBytes(load64(src, pos), n, uint(q.TableBits))
	candidate := int(q.table[h]) - 1
	q.table[h] = uint32(pos + 1)

	if candidate < 0 || candidate >= pos || pos-candidate > q.MaxDistance {
		return dst
	}

	end := extendMatch(src[:max], candidate, pos)
	if end-pos < q.MinLength {
		return dst
	}

	start := pos
	match := candidate
	for start > min && match > 0 && src[start-1] == src[match-1] {
		start--
		match--
	}

	return append(dst, AbsoluteMatch{
		Start: start,
		End:   end,
		Match: match,
	})
}
