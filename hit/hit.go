// Package hit holds the local-alignment evidence records consumed by the
// compartment finder and the spliced aligner, along with their tabular
// ingestion and the overlap filter.
package hit

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/interval"
)

// Strand is the orientation of one side of a hit.
type Strand int8

const (
	// StrandUnknown marks a hit whose orientation was never set. Such hits
	// are rejected by the compartment finder.
	StrandUnknown Strand = iota
	// StrandPlus is the forward orientation.
	StrandPlus
	// StrandMinus is the reverse-complement orientation.
	StrandMinus
)

// String returns "+", "-" or ".".
func (s Strand) String() string {
	switch s {
	case StrandPlus:
		return "+"
	case StrandMinus:
		return "-"
	}
	return "."
}

// Flip returns the opposite strand. StrandUnknown stays unknown.
func (s Strand) Flip() Strand {
	switch s {
	case StrandPlus:
		return StrandMinus
	case StrandMinus:
		return StrandPlus
	}
	return StrandUnknown
}

// ParseStrand parses "+", "-" or "." (also "plus", "minus", "1", "-1").
func ParseStrand(s string) (Strand, error) {
	switch s {
	case "+", "plus", "1":
		return StrandPlus, nil
	case "-", "minus", "-1":
		return StrandMinus, nil
	case ".", "":
		return StrandUnknown, nil
	}
	return StrandUnknown, errors.E(errors.Invalid, fmt.Sprintf("unknown strand %q", s))
}

// Hit is one local alignment between a query and a subject sequence.
//
// Q and S are zero-based half-open ranges, always reported in ascending
// coordinate order regardless of strand.
type Hit struct {
	QueryID   string
	SubjectID string
	// QueryStrand and SubjectStrand give the orientation of each side.
	QueryStrand   Strand
	SubjectStrand Strand
	Q, S          interval.Range
	// Score is the raw (bit) score of the local alignment.
	Score float64
	// Identity is the fraction of aligned columns that are matches, in [0,1].
	Identity float64
}

// Matches estimates the number of matching query bases.
func (h *Hit) Matches() float64 { return h.Identity * float64(h.Q.Len()) }

// Validate checks the coordinate and identity invariants of h.
func (h *Hit) Validate() error {
	if h.Q.End < h.Q.Start || h.S.End < h.S.Start {
		return errors.E(errors.Invalid, fmt.Sprintf("hit %v: inverted range", h))
	}
	if h.Q.Start < 0 || h.S.Start < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("hit %v: negative coordinate", h))
	}
	if h.Identity < 0 || h.Identity > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("hit %v: identity out of [0,1]", h))
	}
	return nil
}

// SameTarget checks whether the two hits align the same pair of sequences
// in the same orientation.
func (h *Hit) SameTarget(o *Hit) bool {
	return h.QueryID == o.QueryID && h.SubjectID == o.SubjectID &&
		h.QueryStrand == o.QueryStrand && h.SubjectStrand == o.SubjectStrand
}

// String prints the hit using one-based closed coordinates.
func (h *Hit) String() string {
	return fmt.Sprintf("%s(%s):%d-%d/%s(%s):%d-%d score=%g idty=%g",
		h.QueryID, h.QueryStrand, h.Q.Start+1, h.Q.End,
		h.SubjectID, h.SubjectStrand, h.S.Start+1, h.S.End,
		h.Score, h.Identity)
}

// Less defines the canonical hit order: query id, subject id, strands, query
// start, subject start, then query and subject ends.
func Less(a, b *Hit) bool {
	if a.QueryID != b.QueryID {
		return a.QueryID < b.QueryID
	}
	if a.SubjectID != b.SubjectID {
		return a.SubjectID < b.SubjectID
	}
	if a.QueryStrand != b.QueryStrand {
		return a.QueryStrand < b.QueryStrand
	}
	if a.SubjectStrand != b.SubjectStrand {
		return a.SubjectStrand < b.SubjectStrand
	}
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
}

// Sort sorts hits in the canonical order defined by Less.
func Sort(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool { return Less(&hits[i], &hits[j]) })
}

// GroupByQuery splits hits by query id. Groups appear in the order in which
// their query id is first seen; hits keep their relative order.
func GroupByQuery(hits []Hit) [][]Hit {
	index := map[string]int{}
	var groups [][]Hit
	for _, h := range hits {
		i, ok := index[h.QueryID]
		if !ok {
			i = len(groups)
			index[h.QueryID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], h)
	}
	return groups
}

// SubjectGroup is the set of hits against one subject sequence in one
// orientation.
type SubjectGroup struct {
	SubjectID string
	Strand    Strand
	Hits      []Hit
}

// GroupBySubject splits hits by (subject id, subject strand). Groups are
// sorted by subject id, then plus before minus.
func GroupBySubject(hits []Hit) []SubjectGroup {
	type key struct {
		id     string
		strand Strand
	}
	index := map[key]int{}
	var groups []SubjectGroup
	for _, h := range hits {
		k := key{h.SubjectID, h.SubjectStrand}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, SubjectGroup{SubjectID: h.SubjectID, Strand: h.SubjectStrand})
		}
		groups[i].Hits = append(groups[i].Hits, h)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].SubjectID != groups[j].SubjectID {
			return groups[i].SubjectID < groups[j].SubjectID
		}
		return groups[i].Strand < groups[j].Strand
	})
	return groups
}
