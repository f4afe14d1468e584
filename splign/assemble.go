package splign

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
)

// rawExon is a maximal intron-free stretch of the transcript, in window
// coordinates.
type rawExon struct {
	q, w    interval.Range
	ops     []byte
	matches int
}

func (e *rawExon) identity() float64 {
	if len(e.ops) == 0 {
		return 0
	}
	return float64(e.matches) / float64(len(e.ops))
}

// splitExons cuts the transcript at introns. Subject-only operations at the
// edges of an exon are moved into the adjacent intron.
func splitExons(ops []byte, wStart int) []rawExon {
	var exons []rawExon
	q, w := 0, wStart
	i := 0
	for i < len(ops) {
		for i < len(ops) && (ops[i] == opIntron || ops[i] == opDel) {
			w++
			i++
		}
		if i == len(ops) {
			break
		}
		e := rawExon{q: interval.Range{Start: q, End: q}, w: interval.Range{Start: w, End: w}}
		start := i
		for i < len(ops) && ops[i] != opIntron {
			switch ops[i] {
			case opMatch:
				e.matches++
				q++
				w++
			case opMismatch:
				q++
				w++
			case opIns:
				q++
			case opDel:
				w++
			}
			i++
		}
		end := i
		for end > start && ops[end-1] == opDel {
			end--
		}
		e.ops = ops[start:end]
		e.q.End, e.w.End = q, w-(i-end)
		exons = append(exons, e)
	}
	return exons
}

func (j *job) dinucleotide(pos int) string {
	if pos < 0 || pos+2 > len(j.subj) {
		return "NN"
	}
	return string(j.subj[pos : pos+2])
}

// finalize assembles segments from the transcript: exons below the identity
// bar, and short terminal exons, become gaps; gaps at either end become UTRs;
// the polyA tail gets its own segment.
func (j *job) finalize() {
	opts := &j.a.opts
	exons := splitExons(j.ops, j.opsStart)
	keep := make([]bool, len(exons))
	for i := range exons {
		e := &exons[i]
		keep[i] = e.identity() >= opts.MinExonIdentity
		if len(exons) > 1 && (i == 0 || i == len(exons)-1) && e.q.Len() < opts.MinTermExonLen {
			keep[i] = false
		}
	}

	type wseg struct {
		Segment
		w interval.Range
	}
	var segs []wseg
	for i := range exons {
		e := &exons[i]
		n := len(segs)
		if keep[i] {
			if n > 0 && segs[n-1].Type == SegExon {
				intron := interval.Range{Start: segs[n-1].w.End, End: e.w.Start}
				segs = append(segs, wseg{
					Segment: Segment{
						Type:  SegIntron,
						Q:     interval.Range{Start: e.q.Start, End: e.q.Start},
						Annot: j.dinucleotide(intron.Start) + ".." + j.dinucleotide(intron.End-2),
					},
					w: intron,
				})
			}
			var t transcript
			for _, op := range e.ops {
				t.add(op)
			}
			idty := e.identity()
			segs = append(segs, wseg{
				Segment: Segment{
					Type:     SegExon,
					Q:        e.q,
					Identity: idty,
					Score:    idty * float64(e.q.Len()),
					Details:  t.String(),
				},
				w: e.w,
			})
			continue
		}
		if n > 0 && segs[n-1].Type == SegGap {
			segs[n-1].Q.End = e.q.End
			segs[n-1].w = segs[n-1].w.Hull(e.w)
			continue
		}
		segs = append(segs, wseg{Segment: Segment{Type: SegGap, Q: e.q}, w: e.w})
	}

	// Query residues not covered by the transcript.
	qEnd := len(j.query)
	if j.polyA != NoPolyA {
		qEnd = j.polyA
	}
	if n := len(segs); n == 0 || segs[n-1].Q.End < qEnd {
		start := 0
		if n > 0 {
			start = segs[n-1].Q.End
		}
		segs = append(segs, wseg{Segment: Segment{Type: SegGap, Q: interval.Range{Start: start, End: qEnd}}})
	}

	firstExon, lastExon := -1, -1
	for i := range segs {
		if segs[i].Type == SegExon {
			if firstExon < 0 {
				firstExon = i
			}
			lastExon = i
		}
	}
	for i := range segs {
		if segs[i].Type == SegGap && (firstExon < 0 || i < firstExon || i > lastExon) {
			segs[i].Type = SegUTR
		}
	}
	for i := range segs {
		if segs[i].Type != SegExon {
			continue
		}
		annot := "<exon>"
		if i > 0 && segs[i-1].Type == SegIntron {
			annot = j.dinucleotide(segs[i].w.Start-2) + annot
		}
		if i+1 < len(segs) && segs[i+1].Type == SegIntron {
			annot += j.dinucleotide(segs[i].w.End)
		}
		segs[i].Annot = annot
	}

	out := AlignedCompartment{
		QueryID:       j.comp.QueryID,
		SubjectID:     j.comp.SubjectID,
		Status:        StatusOK,
		QueryStrand:   hit.StrandPlus,
		SubjectStrand: j.comp.Strand,
		QueryLen:      len(j.query),
		CDS:           j.cds,
		PolyA:         j.polyA,
	}
	for _, s := range segs {
		if s.Q.Empty() && s.Type != SegIntron {
			continue
		}
		seg := s.Segment
		if s.w.Len() > 0 {
			seg.S = j.frame.toGenome(s.w)
		} else {
			g := j.frame.toGenome(interval.Range{Start: s.w.Start, End: s.w.Start})
			seg.S = interval.Range{Start: g.Start, End: g.Start}
		}
		switch seg.Type {
		case SegGap, SegUTR:
			seg.Score = -opts.UnalignedPenalty * float64(seg.Q.Len())
		}
		out.Score += seg.Score
		out.Segments = append(out.Segments, seg)
	}
	if j.polyA != NoPolyA {
		out.Segments = append(out.Segments, Segment{
			Type: SegPolyA,
			Q:    interval.Range{Start: j.polyA, End: len(j.query)},
		})
	}
	if firstExon < 0 {
		out.Status = StatusEmpty
		out.Msg = "no exon above identity threshold"
	}
	if log.At(log.Debug) {
		log.Debug.Printf("compartment %s: %v", j.comp.QueryID, &out)
	}
	j.out = out
}
