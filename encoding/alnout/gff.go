package alnout

import (
	"fmt"
	"io"

	"github.com/biogo/biogo/io/featio/gff"
	"github.com/biogo/biogo/seq"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/splign"
)

// GFFWriter writes the exons and introns of aligned compartments as GFF
// features. Exon scores are identities. Every feature carries the
// compartment name "<query>_<id>" and its query interval.
type GFFWriter struct {
	w *gff.Writer
}

// NewGFFWriter creates a GFFWriter. The GFF version header is written before
// the first feature.
func NewGFFWriter(w io.Writer) *GFFWriter {
	return &GFFWriter{w: gff.NewWriter(w, 60, true)}
}

// Write writes the features of ac. Compartments that are not ok are skipped.
func (g *GFFWriter) Write(ac *splign.AlignedCompartment) error {
	if ac.Status != splign.StatusOK {
		return nil
	}
	strand := seq.Plus
	if ac.SubjectStrand == hit.StrandMinus {
		strand = seq.Minus
	}
	name := fmt.Sprintf("%s_%d", ac.QueryID, ac.ID)
	for i := range ac.Segments {
		s := &ac.Segments[i]
		if s.Type != splign.SegExon && s.Type != splign.SegIntron {
			continue
		}
		f := &gff.Feature{
			SeqName:    ac.SubjectID,
			Source:     "splign",
			Feature:    s.Type.String(),
			FeatStart:  s.S.Start,
			FeatEnd:    s.S.End,
			FeatStrand: strand,
			FeatFrame:  gff.NoFrame,
			FeatAttributes: gff.Attributes{
				{Tag: "Compartment", Value: `"` + name + `"`},
			},
		}
		if s.Type == splign.SegExon {
			idty := s.Identity
			f.FeatScore = &idty
			f.FeatAttributes = append(f.FeatAttributes,
				gff.Attribute{Tag: "Target", Value: fmt.Sprintf(`"%s %d %d"`, ac.QueryID, s.Q.Start+1, s.Q.End)})
		}
		if _, err := g.w.Write(f); err != nil {
			return err
		}
	}
	return nil
}
