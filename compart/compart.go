// Package compart partitions the hits of one query into compartments: sets
// of co-linear hits on one genomic strand that plausibly belong to one gene
// locus.
package compart

import (
	"fmt"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
)

// Opts controls compartment finding.
type Opts struct {
	// MaxExtent is the number of genomic bases added on each side of a
	// compartment's hit evidence to form its search window.
	MaxExtent int `toml:"max_extent"`
	// Penalty is the cost of opening one more compartment, as a fraction of
	// the query's pseudo length.
	Penalty float64 `toml:"compartment_penalty"`
	// MinIdentity is the identity an accepted compartment must reach when the
	// query has more than one compartment.
	MinIdentity float64 `toml:"min_compartment_idty"`
	// MinSingletonIdentity is the identity bar for a query's only
	// compartment. The effective bar is
	// min(MinSingletonIdentity, MinSingletonIdentityBps/querylen).
	MinSingletonIdentity    float64 `toml:"min_singleton_idty"`
	MinSingletonIdentityBps int     `toml:"min_singleton_idty_bps"`
	// MaxIntron is the longest genomic gap allowed between two consecutive
	// hits of one compartment.
	MaxIntron int `toml:"max_intron"`
	// ByCoverage treats every hit identity as 0.9999, so that only query
	// coverage drives compartmentation.
	ByCoverage bool `toml:"by_coverage"`
}

// DefaultOpts is the default compartment configuration.
var DefaultOpts = Opts{
	MaxExtent:               20000,
	Penalty:                 0.5,
	MinIdentity:             0.5,
	MinSingletonIdentity:    0.25,
	MinSingletonIdentityBps: 9999999,
	MaxIntron:               500000,
}

// byCoverageIdentity replaces hit identities when Opts.ByCoverage is set.
const byCoverageIdentity = 0.9999

// Validate checks the options for caller misuse.
func (o *Opts) Validate() error {
	switch {
	case o.MaxExtent < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("max_extent must be non-negative, got %d", o.MaxExtent))
	case o.Penalty < 0 || o.Penalty > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("compartment_penalty must be in [0,1], got %g", o.Penalty))
	case o.MinIdentity < 0 || o.MinIdentity > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("min_compartment_idty must be in [0,1], got %g", o.MinIdentity))
	case o.MinSingletonIdentity < 0 || o.MinSingletonIdentity > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("min_singleton_idty must be in [0,1], got %g", o.MinSingletonIdentity))
	case o.MinSingletonIdentityBps < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("min_singleton_idty_bps must be non-negative, got %d", o.MinSingletonIdentityBps))
	case o.MaxIntron <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("max_intron must be positive, got %d", o.MaxIntron))
	}
	return nil
}

// Box is the bounding box of a compartment's hits.
type Box struct {
	Q, S interval.Range
}

// Compartment is a set of co-linear hits on one subject strand.
type Compartment struct {
	QueryID   string
	SubjectID string
	// Strand is the subject strand. The query is always on the plus strand.
	Strand hit.Strand
	// Hits are the members, sorted by subject start. Their subject ranges do
	// not overlap and their query ranges advance in one direction.
	Hits []hit.Hit
	// Box bounds the member hits.
	Box Box
	// Window is Box.S extended by Opts.MaxExtent, clamped at zero and trimmed
	// against neighboring compartments.
	Window interval.Range
	// Identity is the estimated number of matching query bases divided by the
	// query length.
	Identity float64
	// Coverage is the fraction of the query covered by member hits.
	Coverage float64
	Accepted bool
}

// Finder computes compartments. A Finder is stateless after construction and
// may be shared by goroutines.
type Finder struct {
	opts Opts
}

// NewFinder creates a Finder. It returns an errors.Invalid error if opts is
// malformed.
func NewFinder(opts Opts) (*Finder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Finder{opts: opts}, nil
}

// Opts returns the configuration of the finder.
func (f *Finder) Opts() Opts { return f.opts }

// FindCompartments is a shortcut for NewFinder(opts) followed by Find(hits, 0).
func FindCompartments(hits []hit.Hit, opts Opts) ([]Compartment, error) {
	f, err := NewFinder(opts)
	if err != nil {
		return nil, err
	}
	return f.Find(hits, 0)
}

// Find returns the accepted compartments of hits, ordered by subject id,
// strand and subject start. All hits must belong to one query aligned on its
// plus strand. queryLen is the query length; if it is <= 0, the largest
// query end among the hits is used.
//
// An empty result is not an error.
func (f *Finder) Find(hits []hit.Hit, queryLen int) ([]Compartment, error) {
	all, err := f.FindAll(hits, queryLen)
	if err != nil {
		return nil, err
	}
	accepted := all[:0]
	for _, c := range all {
		if c.Accepted {
			accepted = append(accepted, c)
		}
	}
	f.setWindows(accepted)
	return accepted, nil
}

// FindAll is like Find, but it also returns the rejected compartments, with
// Accepted=false. Windows are extended but not trimmed.
func (f *Finder) FindAll(hits []hit.Hit, queryLen int) ([]Compartment, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	queryID := hits[0].QueryID
	maxQEnd := 0
	qranges := make([]interval.Range, 0, len(hits))
	for i := range hits {
		h := &hits[i]
		if h.QueryID != queryID {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("compartments: query id mismatch: %q vs %q", queryID, h.QueryID))
		}
		if h.QueryStrand != hit.StrandPlus {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("compartments: hit %v: only plus-strand queries are supported", h))
		}
		if h.SubjectStrand != hit.StrandPlus && h.SubjectStrand != hit.StrandMinus {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("compartments: hit %v: subject strand not set", h))
		}
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if h.Q.End > maxQEnd {
			maxQEnd = h.Q.End
		}
		qranges = append(qranges, h.Q)
	}
	if queryLen <= 0 {
		queryLen = maxQEnd
	}
	if queryLen <= 0 {
		return nil, nil
	}
	penalty := f.opts.Penalty * float64(interval.NewUnion(qranges).Span())

	var all []Compartment
	for _, g := range hit.GroupBySubject(hits) {
		all = append(all, f.partition(g, penalty)...)
	}
	for i := range all {
		c := &all[i]
		c.Identity /= float64(queryLen)
		c.Coverage /= float64(queryLen)
	}
	f.accept(all, queryLen)
	for i := range all {
		all[i].Window = all[i].Box.S.Expand(f.opts.MaxExtent, 0)
	}
	return all, nil
}

func (f *Finder) accept(all []Compartment, queryLen int) {
	bar := f.opts.MinIdentity
	if len(all) == 1 {
		bar = f.opts.MinSingletonIdentity
		if bps := float64(f.opts.MinSingletonIdentityBps) / float64(queryLen); bps < bar {
			bar = bps
		}
	}
	for i := range all {
		c := &all[i]
		c.Accepted = c.Identity > bar
		if log.At(log.Debug) {
			log.Debug.Printf("compartment %s/%s%s %v: identity %.4f bar %.4f accepted=%v",
				c.QueryID, c.SubjectID, c.Strand, c.Box.S, c.Identity, bar, c.Accepted)
		}
	}
}

type node struct {
	h    *hit.Hit
	idty float64
	// score is the best total of a compartment sequence whose last
	// compartment ends with this hit.
	score float64
	// prev is the previous hit of the same compartment, or -1.
	prev int
	// prevComp is the last hit of the preceding compartment, or -1.
	prevComp int
}

// newBases returns the number of query bases that hit b adds after hit a, or
// -1 if b cannot follow a in one compartment.
func (f *Finder) newBases(a, b *hit.Hit, strand hit.Strand) int {
	if b.S.Start < a.S.End || b.S.Start-a.S.End > f.opts.MaxIntron {
		return -1
	}
	if strand == hit.StrandPlus {
		if a.Q.Start >= b.Q.Start || a.Q.End >= b.Q.End {
			return -1
		}
		return b.Q.End - maxInt(b.Q.Start, a.Q.End)
	}
	if b.Q.End >= a.Q.End || b.Q.Start >= a.Q.Start {
		return -1
	}
	return minInt(b.Q.End, a.Q.Start) - b.Q.Start
}

// partition runs the compartment DP over the hits of one subject strand. Every
// compartment but the first pays the penalty.
func (f *Finder) partition(g hit.SubjectGroup, penalty float64) []Compartment {
	hits := append([]hit.Hit(nil), g.Hits...)
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].S.Start != hits[j].S.Start {
			return hits[i].S.Start < hits[j].S.Start
		}
		return hits[i].Q.Start < hits[j].Q.Start
	})
	nodes := make([]node, len(hits))
	for i := range hits {
		n := &nodes[i]
		n.h = &hits[i]
		n.idty = n.h.Identity
		if f.opts.ByCoverage {
			n.idty = byCoverageIdentity
		}
		gain := n.idty * float64(n.h.Q.Len())
		n.score, n.prev, n.prevComp = gain, -1, -1
		for j := 0; j < i; j++ {
			p := &nodes[j]
			if p.h.S.End <= n.h.S.Start {
				if s := p.score - penalty + gain; s > n.score {
					n.score, n.prev, n.prevComp = s, -1, j
				}
			}
			if nb := f.newBases(p.h, n.h, g.Strand); nb >= 0 {
				if s := p.score + n.idty*float64(nb); s > n.score {
					n.score, n.prev, n.prevComp = s, j, -1
				}
			}
		}
	}
	best := -1
	for i := range nodes {
		if best < 0 || nodes[i].score > nodes[best].score {
			best = i
		}
	}
	if best < 0 {
		return nil
	}

	var comps []Compartment
	for last := best; last >= 0; {
		var members []int
		i := last
		for {
			members = append(members, i)
			if nodes[i].prev < 0 {
				break
			}
			i = nodes[i].prev
		}
		c := Compartment{
			QueryID:   hits[0].QueryID,
			SubjectID: g.SubjectID,
			Strand:    g.Strand,
		}
		var prev *hit.Hit
		qranges := make([]interval.Range, 0, len(members))
		for k := len(members) - 1; k >= 0; k-- {
			n := &nodes[members[k]]
			if prev == nil {
				c.Box = Box{Q: n.h.Q, S: n.h.S}
				c.Identity += n.idty * float64(n.h.Q.Len())
			} else {
				c.Box.Q = c.Box.Q.Hull(n.h.Q)
				c.Box.S = c.Box.S.Hull(n.h.S)
				c.Identity += n.idty * float64(f.newBases(prev, n.h, g.Strand))
			}
			c.Hits = append(c.Hits, *n.h)
			qranges = append(qranges, n.h.Q)
			prev = n.h
		}
		c.Coverage = float64(interval.NewUnion(qranges).Span())
		comps = append(comps, c)
		last = nodes[i].prevComp
	}
	for i, j := 0, len(comps)-1; i < j; i, j = i+1, j-1 {
		comps[i], comps[j] = comps[j], comps[i]
	}
	return comps
}

type windowKey struct {
	subject string
	strand  hit.Strand
	start   int
	c       *Compartment
}

// Compare orders compartments by subject, strand and subject start.
func (k windowKey) Compare(c2 llrb.Comparable) int {
	k2 := c2.(windowKey)
	if k.subject != k2.subject {
		if k.subject < k2.subject {
			return -1
		}
		return 1
	}
	if diff := int(k.strand) - int(k2.strand); diff != 0 {
		return diff
	}
	return k.start - k2.start
}

// setWindows extends each compartment by MaxExtent and trims overlapping
// neighbors so that they meet at the midpoint of the gap between their
// unextended boxes. When the boxes touch, both windows end at the shared
// boundary.
func (f *Finder) setWindows(comps []Compartment) {
	tree := llrb.Tree{}
	for i := range comps {
		c := &comps[i]
		c.Window = c.Box.S.Expand(f.opts.MaxExtent, 0)
		tree.Insert(windowKey{c.SubjectID, c.Strand, c.Box.S.Start, c})
	}
	tree.Do(func(item llrb.Comparable) bool {
		k := item.(windowKey)
		next := tree.Ceil(windowKey{k.subject, k.strand, k.start + 1, nil})
		if next == nil {
			return false
		}
		nk := next.(windowKey)
		if nk.subject != k.subject || nk.strand != k.strand {
			return false
		}
		prev, cur := k.c, nk.c
		if prev.Window.End > cur.Window.Start {
			b, e := prev.Box.S.End, cur.Box.S.Start
			mid := b + (e-b)/2
			prev.Window.End = mid
			cur.Window.Start = mid
		}
		return false
	})
	sort.SliceStable(comps, func(i, j int) bool {
		return windowKey{comps[i].SubjectID, comps[i].Strand, comps[i].Box.S.Start, nil}.Compare(
			windowKey{comps[j].SubjectID, comps[j].Strand, comps[j].Box.S.Start, nil}) < 0
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
