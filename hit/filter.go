package hit

import (
	"sort"

	"github.com/grailbio/base/log"
)

// RemoveOverlaps drops redundant hits. A hit is redundant if another kept
// hit on the same (query, subject, strands) contains it in both query and
// subject coordinates and has equal or better identity.
//
// Candidates are visited by descending identity, then descending query and
// subject length, so a hit is always visited after every hit that could
// subsume it. The result is sorted by Less. The input is not modified, and
// RemoveOverlaps(RemoveOverlaps(h)) == RemoveOverlaps(h).
func RemoveOverlaps(hits []Hit) []Hit {
	if len(hits) == 0 {
		return nil
	}
	order := make([]int, len(hits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := &hits[order[i]], &hits[order[j]]
		if a.Identity != b.Identity {
			return a.Identity > b.Identity
		}
		if a.Q.Len() != b.Q.Len() {
			return a.Q.Len() > b.Q.Len()
		}
		if a.S.Len() != b.S.Len() {
			return a.S.Len() > b.S.Len()
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return Less(a, b)
	})

	keep := make([]bool, len(hits))
	kept := make([]int, 0, len(hits))
	for _, i := range order {
		h := &hits[i]
		subsumed := false
		for _, k := range kept {
			o := &hits[k]
			if o.SameTarget(h) && o.Identity >= h.Identity && o.Q.Contains(h.Q) && o.S.Contains(h.S) {
				subsumed = true
				break
			}
		}
		if subsumed {
			if log.At(log.Debug) {
				log.Debug.Printf("removeoverlaps: drop %v", h)
			}
			continue
		}
		keep[i] = true
		kept = append(kept, i)
	}
	out := make([]Hit, 0, len(kept))
	for i := range hits {
		if keep[i] {
			out = append(out, hits[i])
		}
	}
	Sort(out)
	return out
}
