// Package scoring computes summary statistics of spliced alignments.
package scoring

import (
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/splign/splign"
)

// Flags select the groups of statistics to compute.
type Flags uint

const (
	// BasicNonCds selects statistics that do not depend on the CDS.
	BasicNonCds Flags = 1 << iota
	// BasicCds selects CDS-relative statistics. They are omitted when no CDS
	// is given.
	BasicCds

	// AllStats selects every statistic.
	AllStats = BasicNonCds | BasicCds
)

// Names of the entries of a ScoreSet, in output order.
const (
	Matches              = "matches"
	Mismatches           = "mismatches"
	Insertions           = "insertions"
	Deletions            = "deletions"
	GapOpenings          = "gap_openings"
	AlignLength          = "align_length"
	Identity             = "identity"
	Coverage             = "coverage"
	ExonIdentity         = "exon_identity"
	MinExonIdentity      = "min_exon_identity"
	Exons                = "exons"
	Splices              = "splices"
	ConsensusSplices     = "consensus_splices"
	SemiConsensusSplices = "semi_consensus_splices"
	CombinedIdentity     = "combined_identity"

	CdsMatches      = "cds_matches"
	CdsMismatches   = "cds_mismatches"
	CdsCoverage     = "cds_coverage"
	InframeMatches  = "inframe_matches"
	InframeIdentity = "inframe_identity"
)

// Opts configures ComputeStats.
type Opts struct {
	// SpliceWeight is the weight of the consensus splice fraction in the
	// combined identity:
	//   combined = (1-SpliceWeight)*exon_identity + SpliceWeight*consensus/splices
	// With no introns the combined identity equals the exon identity.
	SpliceWeight float64 `toml:"splice_weight"`
}

// DefaultOpts is the default statistics configuration.
var DefaultOpts = Opts{SpliceWeight: 0.1}

// Score is one named statistic.
type Score struct {
	Name  string
	Value float64
}

// ScoreSet is an ordered list of statistics.
type ScoreSet []Score

// Get returns the value of the named statistic.
func (s ScoreSet) Get(name string) (float64, bool) {
	for _, e := range s {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

func (s *ScoreSet) add(name string, v float64) { *s = append(*s, Score{name, v}) }

// ExonIdentityName is the name of the identity entry of the i'th exon,
// counting from 1.
func ExonIdentityName(i int) string { return "exon_identity_" + strconv.Itoa(i) }

// forEachOp calls fn for every operation of a run-length transcript such as
// "M20R1M5I2M7".
func forEachOp(details string, fn func(op byte, n int)) error {
	for i := 0; i < len(details); {
		op := details[i]
		j := i + 1
		for j < len(details) && details[j] >= '0' && details[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(details[i+1 : j])
		if err != nil || n <= 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("malformed transcript %q at offset %d", details, i))
		}
		switch op {
		case 'M', 'R', 'I', 'D':
		default:
			return errors.E(errors.Invalid, fmt.Sprintf("transcript %q: unknown operation %q", details, op))
		}
		fn(op, n)
		i = j
	}
	return nil
}

// ComputeStats computes the statistics selected by flags over the segments of
// one aligned compartment. qlen is the query length and cds the query's coding
// region, or nil. Bases of a polyA segment count neither as aligned nor as
// unaligned. It returns an errors.Invalid error if an exon transcript is
// malformed or disagrees with the exon's query range.
func ComputeStats(segs []splign.Segment, qlen int, cds *interval.Range, flags Flags, opts Opts) (ScoreSet, error) {
	effLen := qlen
	for _, s := range segs {
		if s.Type == splign.SegPolyA && s.Q.Start < effLen {
			effLen = s.Q.Start
		}
	}
	var (
		matches, mismatches, ins, del, opens int
		exons, splices, consensus, semi      int
		exonIdty                             []float64
		cdsMatches, cdsMismatches, cdsBases  int
		inframe, shift                       int
	)
	minExonIdty := 1.0
	if cds != nil && cds.End > effLen {
		c := interval.Range{Start: cds.Start, End: effLen}
		cds = &c
	}
	for _, s := range segs {
		switch s.Type {
		case splign.SegIntron:
			splices++
			switch s.Annot {
			case "GT..AG":
				consensus++
			case "GC..AG", "AT..AC":
				semi++
			}
			continue
		case splign.SegExon:
		default:
			continue
		}
		exons++
		var m, cols int
		q := s.Q.Start
		err := forEachOp(s.Details, func(op byte, n int) {
			cols += n
			switch op {
			case 'M', 'R':
				if op == 'M' {
					m += n
				} else {
					mismatches += n
				}
				if cds != nil {
					in := interval.Range{Start: q, End: q + n}.OverlapLen(*cds)
					cdsBases += in
					if op == 'M' {
						cdsMatches += in
						if shift%3 == 0 {
							inframe += in
						}
					} else {
						cdsMismatches += in
					}
				}
				q += n
			case 'I':
				ins += n
				opens++
				if cds != nil && cds.ContainsPos(q) {
					shift += n
				}
				q += n
			case 'D':
				del += n
				opens++
				if cds != nil && cds.ContainsPos(q) {
					shift -= n
				}
			}
		})
		if err != nil {
			return nil, err
		}
		if q != s.Q.End {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("exon %v: transcript %q covers %d query bases", s.Q, s.Details, q-s.Q.Start))
		}
		matches += m
		idty := 0.0
		if cols > 0 {
			idty = float64(m) / float64(cols)
		}
		exonIdty = append(exonIdty, idty)
		if idty < minExonIdty {
			minExonIdty = idty
		}
	}
	if exons == 0 {
		minExonIdty = 0
	}

	var set ScoreSet
	if flags&BasicNonCds != 0 {
		alignLen := matches + mismatches + ins + del
		set.add(Matches, float64(matches))
		set.add(Mismatches, float64(mismatches))
		set.add(Insertions, float64(ins))
		set.add(Deletions, float64(del))
		set.add(GapOpenings, float64(opens))
		set.add(AlignLength, float64(alignLen))
		set.add(Identity, ratio(matches, effLen))
		set.add(Coverage, ratio(matches+mismatches+ins, effLen))
		exonIdentity := ratio(matches, alignLen)
		set.add(ExonIdentity, exonIdentity)
		set.add(MinExonIdentity, minExonIdty)
		set.add(Exons, float64(exons))
		set.add(Splices, float64(splices))
		set.add(ConsensusSplices, float64(consensus))
		set.add(SemiConsensusSplices, float64(semi))
		combined := exonIdentity
		if splices > 0 {
			combined = (1-opts.SpliceWeight)*exonIdentity + opts.SpliceWeight*ratio(consensus, splices)
		}
		set.add(CombinedIdentity, combined)
		for i, v := range exonIdty {
			set.add(ExonIdentityName(i+1), v)
		}
	}
	if flags&BasicCds != 0 && cds != nil {
		n := cds.Len()
		set.add(CdsMatches, float64(cdsMatches))
		set.add(CdsMismatches, float64(cdsMismatches))
		set.add(CdsCoverage, ratio(cdsBases, n))
		set.add(InframeMatches, float64(inframe))
		set.add(InframeIdentity, ratio(inframe, n))
	}
	return set, nil
}

// Compute runs ComputeStats over an aligned compartment with DefaultOpts.
func Compute(ac *splign.AlignedCompartment, flags Flags) (ScoreSet, error) {
	return ComputeStats(ac.Segments, ac.QueryLen, ac.CDS, flags, DefaultOpts)
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
