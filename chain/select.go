package chain

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// PairChain is the selected chain of one sequence pair.
type PairChain struct {
	Seq1, Seq2 int
	// Segments are the chain members in chain order.
	Segments []Segment
	Score    float64
}

// Select chains the all-pairwise segments of numSeqs sequences. Segments are
// grouped by (Seq1, Seq2) and each group is reduced to its best chain. The
// result is ordered by (Seq1, Seq2).
func Select(segs []Segment, numSeqs int, opts Opts) ([]PairChain, error) {
	if err := validateSegments(segs, numSeqs); err != nil {
		return nil, err
	}
	var rates []float64
	if opts.HitRate && numSeqs >= 2 {
		var err error
		if rates, err = AssignHitRate(segs, numSeqs); err != nil {
			return nil, err
		}
	}
	groups := map[pairKey][]int{}
	var keys []pairKey
	for i := range segs {
		k := pairKey{segs[i].Seq1, segs[i].Seq2}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})

	out := make([]PairChain, len(keys))
	parallelism := opts.Parallelism
	if parallelism <= 0 || parallelism > len(keys) {
		parallelism = len(keys)
	}
	err := traverse.Each(parallelism, func(worker int) error {
		for p := worker; p < len(keys); p += parallelism {
			idx := groups[keys[p]]
			local := make([]Segment, len(idx))
			var weights []float64
			if rates != nil {
				weights = make([]float64, len(idx))
			}
			for k, i := range idx {
				local[k] = segs[i]
				if rates != nil {
					weights[k] = rates[i]
				}
			}
			res := SelectBestChain(local, weights)
			pc := PairChain{Seq1: keys[p].a, Seq2: keys[p].b, Score: res.Score}
			for _, k := range res.Chain {
				pc.Segments = append(pc.Segments, local[k])
			}
			if log.At(log.Debug) {
				log.Debug.Printf("chain %d/%d: kept %d of %d segments, score %g",
					pc.Seq1, pc.Seq2, len(pc.Segments), len(local), pc.Score)
			}
			out[p] = pc
		}
		return nil
	})
	return out, err
}
