package splign

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
)

// SegmentType tags one piece of a spliced alignment.
type SegmentType uint8

const (
	// SegExon is an aligned exon.
	SegExon SegmentType = iota
	// SegIntron is the genomic span between two consecutive exons. Its query
	// range is empty.
	SegIntron
	// SegGap is an internal query region without an acceptable alignment.
	SegGap
	// SegUTR is an unaligned query region at either end of the alignment.
	SegUTR
	// SegPolyA is the polyA tail of the query. Its subject range is empty.
	SegPolyA
)

var segmentTypeNames = [...]string{"exon", "intron", "gap", "utr", "polya"}

// String implements fmt.Stringer.
func (t SegmentType) String() string {
	if int(t) < len(segmentTypeNames) {
		return segmentTypeNames[t]
	}
	return fmt.Sprintf("segtype%d", t)
}

// Segment is one piece of an aligned compartment. Query and subject ranges
// are zero-based half-open; the subject range is in genomic coordinates,
// ascending regardless of strand.
type Segment struct {
	Type SegmentType
	Q, S interval.Range
	// Identity is matches / alignment columns for exons, zero otherwise.
	Identity float64
	// Score is Identity × Q.Len() for exons, and minus the unaligned penalty
	// for gaps and UTRs.
	Score float64
	// Details is the run-length edit transcript of an exon, e.g. "M20R1M5I2M7".
	Details string
	// Annot is the splice signal annotation. Exons use "AG<exon>GT", with
	// the acceptor omitted for the first exon and the donor omitted for the
	// last. Introns use "GT..AG".
	Annot string
}

// Status is the outcome of aligning one compartment.
type Status uint8

const (
	// StatusOK means at least one exon was aligned.
	StatusOK Status = iota
	// StatusEmpty means the compartment produced no acceptable exon.
	StatusEmpty
	// StatusError means alignment failed; Msg holds the reason.
	StatusError
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusError:
		return "error"
	}
	return "status" + strconv.Itoa(int(s))
}

// NoPolyA is the PolyA value of a compartment without a detected tail.
const NoPolyA = -1

// AlignedCompartment is the spliced alignment of one compartment.
type AlignedCompartment struct {
	// ID numbers the compartments of one query, starting at 1.
	ID        int
	QueryID   string
	SubjectID string
	Status    Status
	Msg       string
	// QueryStrand and SubjectStrand give the orientation of the alignment.
	QueryStrand   hit.Strand
	SubjectStrand hit.Strand
	QueryLen      int
	// CDS is the coding region of the query, if known.
	CDS *interval.Range
	// PolyA is the query position where the polyA tail starts, or NoPolyA.
	PolyA    int
	Segments []Segment
	Score    float64
}

// Exons returns the exon segments.
func (ac *AlignedCompartment) Exons() []Segment {
	var exons []Segment
	for _, s := range ac.Segments {
		if s.Type == SegExon {
			exons = append(exons, s)
		}
	}
	return exons
}

// String summarizes the compartment on one line.
func (ac *AlignedCompartment) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s/%s%s %s", ac.ID, ac.QueryID, ac.SubjectID, ac.SubjectStrand, ac.Status)
	if ac.Msg != "" {
		fmt.Fprintf(&b, " (%s)", ac.Msg)
	}
	for _, s := range ac.Segments {
		fmt.Fprintf(&b, " %s%v%v", s.Type, s.Q, s.S)
	}
	return b.String()
}

// transcript is a run-length encoder for edit operations.
type transcript struct {
	b    strings.Builder
	op   byte
	runs int
}

func (t *transcript) add(op byte) {
	if op == t.op {
		t.runs++
		return
	}
	t.flush()
	t.op, t.runs = op, 1
}

func (t *transcript) flush() {
	if t.runs > 0 {
		t.b.WriteByte(t.op)
		t.b.WriteString(strconv.Itoa(t.runs))
	}
	t.runs = 0
}

func (t *transcript) String() string {
	t.flush()
	return t.b.String()
}
