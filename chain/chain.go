// Package chain selects maximum-weight sets of mutually non-crossing local
// alignments between pairs of sequences, optionally biased toward regions
// that recur across many sequences.
package chain

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/interval"
)

// Segment is a local alignment between sequences Seq1 and Seq2. Q is the
// range on Seq1 and S is the range on Seq2.
type Segment struct {
	Seq1, Seq2 int
	Q, S       interval.Range
	Score      float64
}

// Precedes checks whether a DAG edge a -> b exists: a lies entirely below b
// in both coordinate systems.
func Precedes(a, b *Segment) bool {
	return a.Q.End <= b.Q.Start && a.S.End <= b.S.Start
}

// String prints the segment using half-open ranges.
func (s Segment) String() string {
	return fmt.Sprintf("%d%v/%d%v:%g", s.Seq1, s.Q, s.Seq2, s.S, s.Score)
}

// Result is the best chain of one sequence pair.
type Result struct {
	// Chain lists indices into the input, in chain order.
	Chain []int
	// Keep[i] is true iff segment i is on the chain.
	Keep []bool
	// Score is the total weight of the chain.
	Score float64
}

// node is one arena entry of the DAG. next is an arena index, -1 at the end
// of a path.
type node struct {
	seg  int32
	best float64
	next int32
}

// SelectBestChain finds the maximum-weight chain of segments under the
// Precedes relation. weights, if non-nil, scales each segment's score.
//
// Nodes are sorted by (Q.Start, S.Start, Q.End, S.End, input index). When two
// successors give equal totals the one earlier in that order wins, and the
// chain starts at the earliest node with the maximal total.
func SelectBestChain(segs []Segment, weights []float64) Result {
	n := len(segs)
	res := Result{Keep: make([]bool, n)}
	if n == 0 {
		return res
	}
	if weights != nil && len(weights) != n {
		panic(fmt.Sprintf("selectbestchain: %d weights for %d segments", len(weights), n))
	}
	arena := make([]node, n)
	for i := range arena {
		arena[i] = node{seg: int32(i), next: -1}
	}
	sort.SliceStable(arena, func(i, j int) bool {
		a, b := &segs[arena[i].seg], &segs[arena[j].seg]
		if a.Q.Start != b.Q.Start {
			return a.Q.Start < b.Q.Start
		}
		if a.S.Start != b.S.Start {
			return a.S.Start < b.S.Start
		}
		if a.Q.End != b.Q.End {
			return a.Q.End < b.Q.End
		}
		return a.S.End < b.S.End
	})
	weight := func(k int32) float64 {
		if weights == nil {
			return segs[k].Score
		}
		return segs[k].Score * weights[k]
	}
	for i := n - 1; i >= 0; i-- {
		nd := &arena[i]
		a := &segs[nd.seg]
		w := weight(nd.seg)
		nd.best = w
		// Successors start at or after a.Q.End in query order.
		first := i + 1 + sort.Search(n-i-1, func(k int) bool {
			return segs[arena[i+1+k].seg].Q.Start >= a.Q.End
		})
		for j := first; j < n; j++ {
			if !Precedes(a, &segs[arena[j].seg]) {
				continue
			}
			if s := arena[j].best + w; s > nd.best {
				nd.best = s
				nd.next = int32(j)
			}
		}
	}
	start := 0
	for i := 1; i < n; i++ {
		if arena[i].best > arena[start].best {
			start = i
		}
	}
	res.Score = arena[start].best
	for k := int32(start); k >= 0; k = arena[k].next {
		seg := int(arena[k].seg)
		res.Chain = append(res.Chain, seg)
		res.Keep[seg] = true
	}
	return res
}

// pairKey identifies an unordered sequence pair.
type pairKey struct{ a, b int }

// Opts controls Select.
type Opts struct {
	// HitRate scales segment scores by AssignHitRate before chaining.
	HitRate bool
	// Parallelism bounds the number of sequence pairs chained concurrently.
	// Zero means one per pair.
	Parallelism int
}

// DefaultOpts enables hit-rate weighting.
var DefaultOpts = Opts{HitRate: true}

func validateSegments(segs []Segment, numSeqs int) error {
	for i := range segs {
		s := &segs[i]
		if s.Seq1 < 0 || s.Seq1 >= numSeqs || s.Seq2 < 0 || s.Seq2 >= numSeqs {
			return errors.E(errors.Invalid, fmt.Sprintf("segment %v: sequence index out of [0,%d)", s, numSeqs))
		}
		if s.Seq1 == s.Seq2 {
			return errors.E(errors.Invalid, fmt.Sprintf("segment %v: self alignment", s))
		}
		if s.Q.End < s.Q.Start || s.S.End < s.S.Start {
			return errors.E(errors.Invalid, fmt.Sprintf("segment %v: inverted range", s))
		}
	}
	return nil
}
