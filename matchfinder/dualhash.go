package matchfinder

// DualHash is an implementation of the MatchFinder interface that uses two
// hash tables: a short one keyed on the first MinLength bytes, and a long
// one keyed on the first 8 bytes. The long table keeps a candidate for long
// repeats even after the short table has been overwritten by more recent
// positions.
type DualHash struct {
	// MaxDistance is the maximum distance (in bytes) to look back for
	// a match. The default is 1 MiB.
	MaxDistance int

	// MinLength is the shortest match to report, and the number of bytes
	// hashed for the short table. The default (and minimum) is 3.
	MinLength int

	// TableBits is the log2 of the short table size. The default is 16.
	// The long table is one bit bigger.
	TableBits int

	// Buffers supplies the history buffer. The default allocates with
	// make.
	Buffers Allocator

	// Parser chooses among the matches. The default is a GreedyParser.
	Parser Parser

	table4 []uint32
	table8 []uint32
	window
}

const longHashLen = 8

func (q *DualHash) init() {
	if q.MaxDistance <= 0 {
		q.MaxDistance = defaultMaxDistance
	}
	q.MinLength = minLengthOrDefault(q.MinLength)
	if q.TableBits <= 0 {
		q.TableBits = defaultTableBits
	}
	if q.TableBits >= maxTableBits {
		q.TableBits = maxTableBits - 1
	}
	if q.Parser == nil {
		q.Parser = &GreedyParser{MinLength: q.MinLength}
	}
	if len(q.table4) != 1<<q.TableBits {
		q.table4 = make([]uint32, 1<<q.TableBits)
		q.table8 = make([]uint32, 2<<q.TableBits)
	}
}

func (q *DualHash) Reset(history []byte) {
	q.init()
	for i := range q.table4 {
		q.table4[i] = 0
	}
	for i := range q.table8 {
		q.table8[i] = 0
	}
	q.window.reset(history, q.Buffers)

	n := hashLen(q.MinLength)
	src := q.history
	for i := 0; i+n <= len(src); i++ {
		u := load64(src, i)
		q.table4[hashBytes(u, n, uint(q.TableBits))] = uint32(i + 1)
		if i+longHashLen <= len(src) {
			q.table8[hashBytes(u, longHashLen, uint(q.TableBits+1))] = uint32(i + 1)
		}
	}
}

// FindMatches looks for matches in src, appends them to dst, and returns dst.
func (q *DualHash) FindMatches(dst []Match, src []byte) []Match {
	if q.table4 == nil {
		q.Reset(nil)
	}

	if delta := q.slide(q.MaxDistance); delta > 0 {
		shiftTable(q.table4, delta)
		shiftTable(q.table8, delta)
	}

	nextEmit := len(q.history)
	q.add(src)

	return q.Parser.Parse(dst, q, nextEmit, len(q.history))
}

func (q *DualHash) Search(dst []AbsoluteMatch, pos, min, max int) []AbsoluteMatch {
	n := hashLen(q.MinLength)
	if pos+n > len(q.history) {
		return dst
	}
	src := q.history
	u := load64(src, pos)

	h4 := hashBytes(u, n, uint(q.TableBits))
	candidate4 := int(q.table4[h4]) - 1
	q.table4[h4] = uint32(pos + 1)
	dst = q.appendMatch(dst, candidate4, pos, min, max)

	if pos+longHashLen > len(src) {
		return dst
	}
	h8 := hashBytes(u, longHashLen, uint(q.TableBits+1))
	candidate8 := int(q.table8[h8]) - 1
	q.table8[h8] = uint32(pos + 1)
	if candidate8 != candidate4 {
		dst = q.appendMatch(dst, candidate8, pos, min, max)
	}
	return dst
}

// appendMatch checks the candidate position for a match at pos, and appends
// it, extended in both directions, if it is long enough.
func (q *DualHash) appendMatch(dst []AbsoluteMatch, candidate, pos, min, max int) []AbsoluteMatch {
	if candidate < 0 || candidate >= pos || pos-candidate > q.MaxDistance {
		return dst
	}
	src := q.history
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
