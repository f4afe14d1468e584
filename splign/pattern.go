package splign

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/chain"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
)

// anchorMargin is the most residues trimmed from each side of an anchor so
// that the adjacent spliced windows can move a splice site into it.
const anchorMargin = 8

// frame maps between genomic coordinates and the coordinates of the fetched
// subject window. On the minus strand the window is reverse-complemented, so
// the query always runs forward through it.
type frame struct {
	subjectID string
	strand    hit.Strand
	win       interval.Range
}

// toWindow maps a genomic range into window coordinates, and back: the
// mapping is its own inverse.
func (f *frame) toWindow(r interval.Range) interval.Range {
	if f.strand == hit.StrandMinus {
		return interval.Range{Start: f.win.End - r.End, End: f.win.End - r.Start}
	}
	return interval.Range{Start: r.Start - f.win.Start, End: r.End - f.win.Start}
}

func (f *frame) toGenome(r interval.Range) interval.Range {
	if f.strand == hit.StrandMinus {
		return interval.Range{Start: f.win.End - r.End, End: f.win.End - r.Start}
	}
	return interval.Range{Start: r.Start + f.win.Start, End: r.End + f.win.Start}
}

// anchor is a pattern element: a query range and the window range it must
// align to.
type anchor struct {
	q, w  interval.Range
	score float64
}

// buildPattern converts compartment hits into ordered, non-overlapping
// anchors in window coordinates. Hits shorter than minLen are skipped, and
// hits that overlap in the query are resolved by the best-scoring chain. It
// returns an errors.Invalid error if the hits are not co-linear or fall
// outside the window.
func buildPattern(hits []hit.Hit, f *frame, minLen int) ([]anchor, error) {
	all := make([]anchor, 0, len(hits))
	for i := range hits {
		h := &hits[i]
		if !f.win.Contains(h.S) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("hit %v lies outside window %v", h, f.win))
		}
		all = append(all, anchor{q: h.Q, w: f.toWindow(h.S), score: h.Identity * float64(h.Q.Len())})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].w.Start < all[j].w.Start })
	for i := 1; i < len(all); i++ {
		a, b := &all[i-1], &all[i]
		if b.w.Start < a.w.End || b.q.Start <= a.q.Start || b.q.End <= a.q.End {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("hits are not co-linear: q%v/w%v then q%v/w%v", a.q, a.w, b.q, b.w))
		}
	}

	// Each anchor is offered whole and, if it overlaps its predecessor in the
	// query, with the overlap cut off its front along the diagonal. The best
	// chain keeps a consistent subset of the candidates.
	var (
		cands []anchor
		segs  []chain.Segment
	)
	add := func(a anchor) {
		if a.q.Len() < minLen || a.w.Len() < minLen {
			return
		}
		cands = append(cands, a)
		segs = append(segs, chain.Segment{Q: a.q, S: a.w, Score: a.score})
	}
	for i, a := range all {
		add(a)
		if i == 0 {
			continue
		}
		if d := all[i-1].q.End - a.q.Start; d > 0 && d < a.q.Len() {
			cut := a
			cut.q.Start += d
			cut.w.Start += d
			cut.score = a.score * float64(cut.q.Len()) / float64(a.q.Len())
			add(cut)
		}
	}
	best := chain.SelectBestChain(segs, nil)
	pattern := make([]anchor, 0, len(best.Chain))
	for _, i := range best.Chain {
		pattern = append(pattern, cands[i])
	}
	return pattern, nil
}

// trimAnchors shrinks every anchor by up to anchorMargin residues on each
// side, keeping at least half of it.
func trimAnchors(pattern []anchor) {
	for i := range pattern {
		a := &pattern[i]
		m := anchorMargin
		if l := a.q.Len() / 4; l < m {
			m = l
		}
		if l := a.w.Len() / 4; l < m {
			m = l
		}
		a.q = interval.Range{Start: a.q.Start + m, End: a.q.End - m}
		a.w = interval.Range{Start: a.w.Start + m, End: a.w.End - m}
	}
}
