package interval

import (
	"math"
	"sort"
)

// A Union is represented as a sorted []int of interval endpoints.
//
// For example, the ranges
//   [5, 15)
//   [7, 17)
//   [20, 25)
// merge into
//   [5, 17) U [20, 25)
// so the sorted sequence of endpoints is
//   {5, 17, 20, 25}.
//
// UnionScanner iterates over the covered positions:
//   us := NewUnionScanner(u.Endpoints())
//   var start, end int
//   for us.Scan(&start, &end, 22) {
//     // [start, end) is covered.
//   }
// visits [5,17) and [20,22). A subsequent Scan with a larger limit picks up
// where the previous one left off.

// PosMax is the position reported by UnionScanner once it is exhausted.
const PosMax = math.MaxInt32

// Union is a set of positions, stored as merged half-open ranges.
type Union struct {
	endpoints []int
}

// NewUnion merges the given ranges. Overlapping and abutting ranges are
// coalesced; empty ranges are ignored. The argument is not modified.
func NewUnion(ranges []Range) Union {
	sorted := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			sorted = append(sorted, r)
		}
	}
	SortRanges(sorted)
	endpoints := make([]int, 0, 2*len(sorted))
	for _, r := range sorted {
		n := len(endpoints)
		if n > 0 && r.Start <= endpoints[n-1] {
			if r.End > endpoints[n-1] {
				endpoints[n-1] = r.End
			}
			continue
		}
		endpoints = append(endpoints, r.Start, r.End)
	}
	return Union{endpoints: endpoints}
}

// Endpoints returns the sorted endpoint sequence. The caller must not modify
// it.
func (u Union) Endpoints() []int { return u.endpoints }

// NumRanges returns the number of disjoint ranges in the union.
func (u Union) NumRanges() int { return len(u.endpoints) / 2 }

// Ranges returns the disjoint ranges in ascending order.
func (u Union) Ranges() []Range {
	out := make([]Range, 0, len(u.endpoints)/2)
	for i := 0; i < len(u.endpoints); i += 2 {
		out = append(out, Range{u.endpoints[i], u.endpoints[i+1]})
	}
	return out
}

// Span returns the number of distinct positions covered.
func (u Union) Span() int {
	total := 0
	for i := 0; i < len(u.endpoints); i += 2 {
		total += u.endpoints[i+1] - u.endpoints[i]
	}
	return total
}

// Contains checks whether pos is covered.
func (u Union) Contains(pos int) bool {
	return NewEndpointIndex(pos, u.endpoints).Contained()
}

// OverlapLen returns the number of covered positions within r.
func (u Union) OverlapLen(r Range) int {
	if r.Empty() || len(u.endpoints) == 0 {
		return 0
	}
	ei := NewEndpointIndex(r.Start, u.endpoints).Begin()
	total := 0
	for ; !ei.Finished(u.endpoints); ei += 2 {
		start, end := u.endpoints[ei], u.endpoints[ei+1]
		if start >= r.End {
			break
		}
		total += Range{start, end}.OverlapLen(r)
	}
	return total
}

// SearchEndpoints returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).
func SearchEndpoints(a []int, x int) EndpointIndex {
	return EndpointIndex(sort.SearchInts(a, x))
}

// ExpsearchEndpoints performs exponential search, checking a[idx], then
// a[idx + 1], then a[idx + 3], then a[idx + 7], etc., and finishing with
// binary search once it's either found an element not smaller than the target
// or has hit the end of the slice.
func ExpsearchEndpoints(a []int, x int, idx EndpointIndex) EndpointIndex {
	nextIncr := EndpointIndex(1)
	startIdx := idx
	endIdx := EndpointIndex(len(a))
	for idx < endIdx {
		if a[idx] >= x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	for startIdx < endIdx {
		midIdx := EndpointIndex((uint(startIdx) + uint(endIdx)) >> 1)
		if a[midIdx] >= x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}

// EndpointIndex is intended to represent the result of
// SearchEndpoints(endpoints, pos+1).
// NOTE THE "+1"!  This is necessary to line up with half-open ranges.
type EndpointIndex uint32

// NewEndpointIndex returns an EndpointIndex initialized to
// SearchEndpoints(endpoints, pos+1).
func NewEndpointIndex(pos int, endpoints []int) EndpointIndex {
	return SearchEndpoints(endpoints, pos+1)
}

// Contained returns whether we're inside a range.
func (ei EndpointIndex) Contained() bool {
	return ei&1 != 0
}

// Finished returns whether we're past all the ranges.
func (ei EndpointIndex) Finished(endpoints []int) bool {
	return ei >= EndpointIndex(len(endpoints))
}

// Begin returns:
// - the index for the beginning of the current range, if we're inside one
// - otherwise, the index for the beginning of the next range
func (ei EndpointIndex) Begin() EndpointIndex {
	return ei & (^EndpointIndex(1))
}

// Update updates the EndpointIndex to refer to newPos, which cannot be smaller
// than the previous position referred to by this EndpointIndex.
func (ei *EndpointIndex) Update(newPos int, endpoints []int) {
	*ei = ExpsearchEndpoints(endpoints, newPos+1, *ei)
}

// UnionScanner supports iteration over a Union.
// Invariants:
//   endpointIdx == SearchEndpoints(endpoints, pos+1)
//   pos is either contained in a range, or is PosMax
type UnionScanner struct {
	endpoints   []int
	pos         int
	endpointIdx EndpointIndex
}

// NewUnionScanner returns a UnionScanner initialized to the first range.
func NewUnionScanner(endpoints []int) UnionScanner {
	startPos := PosMax
	startEndpointIdx := EndpointIndex(0)
	if len(endpoints) >= 1 {
		startPos = endpoints[0]
		startEndpointIdx = 1
	}
	return UnionScanner{
		endpoints:   endpoints,
		pos:         startPos,
		endpointIdx: startEndpointIdx,
	}
}

// Pos returns the next position to be iterated over, or PosMax if there
// aren't any.
func (us *UnionScanner) Pos() int {
	return us.pos
}

// Scan is written so that the following loop can be used to iterate over all
// covered positions up to (and not including) limit:
//   for us.Scan(&start, &end, limit) {
//     for pos := start; pos < end; pos++ {
//       // ...do stuff with pos...
//     }
//   }
func (us *UnionScanner) Scan(start *int, end *int, limit int) bool {
	if us.pos >= limit {
		return false
	}
	*start = us.pos
	rangeEnd := us.endpoints[us.endpointIdx]
	if rangeEnd > limit {
		us.pos = limit
		*end = limit
		return true
	}
	*end = rangeEnd
	us.endpointIdx++
	if us.endpointIdx.Finished(us.endpoints) {
		us.pos = PosMax
	} else {
		us.pos = us.endpoints[us.endpointIdx]
		us.endpointIdx++
	}
	return true
}
