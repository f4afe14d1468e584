package chain

import (
	"fmt"

	biointerval "github.com/biogo/store/interval"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/interval"
)

// endpoint is one side of a segment, stored in the interval tree of the
// sequence it lies on.
type endpoint struct {
	r interval.Range
	// other is the sequence at the far side of the segment.
	other int
	uid   uintptr
}

func (e endpoint) Overlap(b biointerval.IntRange) bool {
	return e.r.End > b.Start && e.r.Start < b.End
}

func (e endpoint) ID() uintptr { return e.uid }

func (e endpoint) Range() biointerval.IntRange {
	return biointerval.IntRange{Start: e.r.Start, End: e.r.End}
}

// AssignHitRate computes a scale factor for every segment from how
// consistently its two endpoints are covered by alignments to third
// sequences.
//
// For the endpoint of segment (x, y) on sequence x with range r, let ov(c) be
// the largest overlap between r and any segment endpoint on x aligned to
// sequence c, for every c other than x and y. The endpoint rate is
//   (1 + sum_c ov(c)/len(r)) / (numSeqs-1)
// and the segment rate is the mean of its two endpoint rates, clamped to
// [1/numSeqs, 1]. Empty endpoints get the lower bound.
func AssignHitRate(segs []Segment, numSeqs int) ([]float64, error) {
	if numSeqs < 2 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("hitrate: need at least two sequences, got %d", numSeqs))
	}
	if err := validateSegments(segs, numSeqs); err != nil {
		return nil, err
	}
	trees := make([]biointerval.IntTree, numSeqs)
	for i := range segs {
		s := &segs[i]
		for side, e := range [2]endpoint{
			{r: s.Q, other: s.Seq2},
			{r: s.S, other: s.Seq1},
		} {
			if e.r.Empty() {
				continue
			}
			e.uid = uintptr(2*i + side)
			seq := s.Seq1
			if side == 1 {
				seq = s.Seq2
			}
			if err := trees[seq].Insert(e, true); err != nil {
				return nil, errors.E(errors.Invalid, err, fmt.Sprintf("hitrate: segment %v", s))
			}
		}
	}
	for i := range trees {
		trees[i].AdjustRanges()
	}

	lo := 1 / float64(numSeqs)
	maxOverlap := make([]int, numSeqs)
	endpointRate := func(seq, partner int, r interval.Range) float64 {
		if r.Empty() {
			return lo
		}
		for c := range maxOverlap {
			maxOverlap[c] = 0
		}
		for _, iv := range trees[seq].Get(endpoint{r: r}) {
			e := iv.(endpoint)
			if e.other == seq || e.other == partner {
				continue
			}
			if ov := r.OverlapLen(e.r); ov > maxOverlap[e.other] {
				maxOverlap[e.other] = ov
			}
		}
		sum := 1.0
		for _, ov := range maxOverlap {
			sum += float64(ov) / float64(r.Len())
		}
		return sum / float64(numSeqs-1)
	}

	rates := make([]float64, len(segs))
	for i := range segs {
		s := &segs[i]
		rate := (endpointRate(s.Seq1, s.Seq2, s.Q) + endpointRate(s.Seq2, s.Seq1, s.S)) / 2
		if rate < lo {
			rate = lo
		}
		if rate > 1 {
			rate = 1
		}
		rates[i] = rate
	}
	return rates, nil
}
