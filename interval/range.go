package interval

import (
	"fmt"
	"sort"
)

// Range is a half-open range [Start, End).
//
// INVARIANT: Start <= End.
type Range struct{ Start, End int }

// NewRange creates a new Range.
//
// REQUIRES: start <= end
func NewRange(start, end int) Range {
	if end < start {
		panic(fmt.Sprintf("inverted range [%d,%d)", start, end))
	}
	return Range{start, end}
}

// Len returns the number of positions covered by r.
func (r Range) Len() int { return r.End - r.Start }

// Empty checks if the range covers no position.
func (r Range) Empty() bool { return r.End <= r.Start }

// Equal checks if the two ranges are identical.
func (r Range) Equal(o Range) bool { return r.Start == o.Start && r.End == o.End }

// Overlaps checks if r and o share at least one position.
func (r Range) Overlaps(o Range) bool { return r.Start < o.End && o.Start < r.End }

// OverlapLen returns the number of positions shared by r and o.
func (r Range) OverlapLen(o Range) int {
	n := minInt(r.End, o.End) - maxInt(r.Start, o.Start)
	if n < 0 {
		return 0
	}
	return n
}

// Contains checks if o lies entirely within r.
func (r Range) Contains(o Range) bool { return r.Start <= o.Start && o.End <= r.End }

// ContainsPos checks if pos lies within r.
func (r Range) ContainsPos(pos int) bool { return r.Start <= pos && pos < r.End }

// Below checks if r ends at or before the start of o, i.e., every position of
// r is strictly smaller than every position of o.  Touching ranges such as
// [0,5) and [5,9) satisfy Below.
func (r Range) Below(o Range) bool { return r.End <= o.Start }

// Gap returns the number of positions strictly between r and o. It returns a
// negative value if they overlap.
func (r Range) Gap(o Range) int {
	if r.Start <= o.Start {
		return o.Start - r.End
	}
	return r.Start - o.End
}

// Hull returns the smallest range that covers both r and o.
func (r Range) Hull(o Range) Range {
	return Range{minInt(r.Start, o.Start), maxInt(r.End, o.End)}
}

// Intersect returns the positions shared by r and o. The result is empty,
// with Start==End, if they don't overlap.
func (r Range) Intersect(o Range) Range {
	start, end := maxInt(r.Start, o.Start), minInt(r.End, o.End)
	if end < start {
		end = start
	}
	return Range{start, end}
}

// Expand grows the range by n positions on both sides. The start is clamped
// at lo.
func (r Range) Expand(n, lo int) Range {
	start := r.Start - n
	if start < lo {
		start = lo
	}
	return Range{start, r.End + n}
}

// Clamp restricts r to [lo, hi).
func (r Range) Clamp(lo, hi int) Range {
	if r.Start < lo {
		r.Start = lo
	}
	if r.End > hi {
		r.End = hi
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	return r
}

// String returns the range in "[start,end)" form.
func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// SortRanges sorts the ranges by ascending Start, then ascending End.
func SortRanges(ranges []Range) {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].End < ranges[j].End
	})
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}
