package alnout

import (
	"fmt"
	"io"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/splign"
)

// SAMWriter writes each aligned compartment as one SAM record with a spliced
// CIGAR: exons become M/I/D runs, introns N, internal gaps an insertion
// followed by a skip, and unaligned ends (including the polyA tail) soft
// clips. Only compartments with status ok are written. SEQ and QUAL are "*".
type SAMWriter struct {
	w    *sam.Writer
	refs map[string]*sam.Reference
}

// NewSAMWriter creates a SAMWriter whose header lists the given subject
// sequences.
func NewSAMWriter(w io.Writer, names []string, lengths []int) (*SAMWriter, error) {
	if len(names) != len(lengths) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("sam: %d names for %d lengths", len(names), len(lengths)))
	}
	refs := make([]*sam.Reference, len(names))
	byName := make(map[string]*sam.Reference, len(names))
	for i, name := range names {
		ref, err := sam.NewReference(name, "", "", lengths[i], nil, nil)
		if err != nil {
			return nil, errors.E(errors.Invalid, err, "sam reference", name)
		}
		refs[i] = ref
		byName[name] = ref
	}
	header, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "sam header")
	}
	sw, err := sam.NewWriter(w, header, sam.FlagDecimal)
	if err != nil {
		return nil, err
	}
	return &SAMWriter{w: sw, refs: byName}, nil
}

// appendOp appends n residues of op to co, merging with the last run.
func appendOp(co []sam.CigarOp, t sam.CigarOpType, n int) []sam.CigarOp {
	if n <= 0 {
		return co
	}
	if k := len(co); k > 0 && co[k-1].Type() == t {
		co[k-1] = sam.NewCigarOp(t, co[k-1].Len()+n)
		return co
	}
	return append(co, sam.NewCigarOp(t, n))
}

// Cigar returns the CIGAR of ac in subject order, and the number of
// mismatched, inserted and deleted residues within exons.
func Cigar(ac *splign.AlignedCompartment) (co []sam.CigarOp, edits int, err error) {
	exons := ac.Exons()
	if len(exons) == 0 {
		return nil, 0, nil
	}
	minus := ac.SubjectStrand == hit.StrandMinus
	co = appendOp(co, sam.CigarSoftClipped, exons[0].Q.Start)
	for i := range exons {
		e := &exons[i]
		if i > 0 {
			prev := &exons[i-1]
			skip := e.S.Start - prev.S.End
			if minus {
				skip = prev.S.Start - e.S.End
			}
			co = appendOp(co, sam.CigarInsertion, e.Q.Start-prev.Q.End)
			co = appendOp(co, sam.CigarSkipped, skip)
		}
		var perr error
		forEachRun(e.Details, func(op byte, n int) {
			switch op {
			case 'M':
				co = appendOp(co, sam.CigarMatch, n)
			case 'R':
				co = appendOp(co, sam.CigarMatch, n)
				edits += n
			case 'I':
				co = appendOp(co, sam.CigarInsertion, n)
				edits += n
			case 'D':
				co = appendOp(co, sam.CigarDeletion, n)
				edits += n
			default:
				perr = errors.E(errors.Invalid, fmt.Sprintf("exon %v: bad transcript %q", e.Q, e.Details))
			}
		}, &perr)
		if perr != nil {
			return nil, 0, perr
		}
	}
	co = appendOp(co, sam.CigarSoftClipped, ac.QueryLen-exons[len(exons)-1].Q.End)
	if minus {
		for i, j := 0, len(co)-1; i < j; i, j = i+1, j-1 {
			co[i], co[j] = co[j], co[i]
		}
	}
	return co, edits, nil
}

// forEachRun decodes a run-length transcript, setting *err on malformed
// input.
func forEachRun(details string, fn func(op byte, n int), err *error) {
	for i := 0; i < len(details); {
		op := details[i]
		n, j := 0, i+1
		for ; j < len(details) && details[j] >= '0' && details[j] <= '9'; j++ {
			n = n*10 + int(details[j]-'0')
		}
		if n == 0 {
			*err = errors.E(errors.Invalid, fmt.Sprintf("bad transcript %q at offset %d", details, i))
			return
		}
		fn(op, n)
		i = j
	}
}

// Write writes ac. Compartments that are not ok are skipped.
func (s *SAMWriter) Write(ac *splign.AlignedCompartment) error {
	if ac.Status != splign.StatusOK {
		return nil
	}
	ref, ok := s.refs[ac.SubjectID]
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("sam: subject %s not in header", ac.SubjectID))
	}
	co, edits, err := Cigar(ac)
	if err != nil {
		return err
	}
	pos := math.MaxInt32
	for _, e := range ac.Exons() {
		if e.S.Start < pos {
			pos = e.S.Start
		}
	}
	var aux []sam.Aux
	for _, v := range []struct {
		tag string
		val interface{}
	}{
		{"AS", int(math.Round(ac.Score))},
		{"NM", edits},
		{"ZC", ac.ID},
	} {
		a, err := sam.NewAux(sam.NewTag(v.tag), v.val)
		if err != nil {
			return errors.E(errors.Invalid, err, "sam aux", v.tag)
		}
		aux = append(aux, a)
	}
	if len(ac.QueryID) == 0 || len(ac.QueryID) > 254 {
		return errors.E(errors.Invalid, fmt.Sprintf("sam: bad query name %q", ac.QueryID))
	}
	// sam.NewRecord rejects an empty SEQ, so the record is built directly. A
	// zero-length Seq and nil Qual are written as "*".
	r := &sam.Record{
		Name:      ac.QueryID,
		Ref:       ref,
		Pos:       pos,
		MapQ:      255,
		Cigar:     co,
		MatePos:   -1,
		AuxFields: aux,
	}
	if ac.SubjectStrand == hit.StrandMinus {
		r.Flags |= sam.Reverse
	}
	return s.w.Write(r)
}
