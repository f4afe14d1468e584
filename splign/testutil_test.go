package splign

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
)

// memFetcher serves sequences from memory and counts calls.
type memFetcher struct {
	seqs  map[string][]byte
	fail  map[string]bool
	calls int
}

func newMemFetcher() *memFetcher {
	return &memFetcher{seqs: map[string][]byte{}, fail: map[string]bool{}}
}

func (m *memFetcher) SeqLen(ctx context.Context, id string) (int, error) {
	s, ok := m.seqs[id]
	if !ok {
		return 0, errors.E(errors.NotExist, fmt.Sprintf("no sequence %s", id))
	}
	return len(s), nil
}

func (m *memFetcher) FetchSequence(ctx context.Context, id string, start, end int, strand hit.Strand) ([]byte, error) {
	m.calls++
	if m.fail[id] {
		return nil, fmt.Errorf("fetch %s: connection reset", id)
	}
	s, ok := m.seqs[id]
	if !ok || start < 0 || end > len(s) {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("no range %s:%d-%d", id, start, end))
	}
	out := append([]byte(nil), s[start:end]...)
	if strand == hit.StrandMinus {
		ReverseComplementInPlace(out)
	}
	return out, nil
}

func randomSeq(r *rand.Rand, n int) []byte {
	const bases = "ACGT"
	s := make([]byte, n)
	for i := range s {
		s[i] = bases[r.Intn(4)]
	}
	return s
}

// makeGene returns a random subject carrying the given exons separated by
// GT..AG introns, and the spliced query.
func makeGene(r *rand.Rand, n int, exons []interval.Range) (subject, query []byte) {
	subject = randomSeq(r, n)
	for i := 0; i+1 < len(exons); i++ {
		copy(subject[exons[i].End:], "GT")
		copy(subject[exons[i+1].Start-2:], "AG")
	}
	for _, e := range exons {
		query = append(query, subject[e.Start:e.End]...)
	}
	return subject, query
}

// exonHits returns one perfect hit per exon.
func exonHits(queryID, subjectID string, exons []interval.Range, strand hit.Strand, subjectLen int) []hit.Hit {
	var hits []hit.Hit
	q := 0
	for _, e := range exons {
		s := e
		if strand == hit.StrandMinus {
			s = interval.Range{Start: subjectLen - e.End, End: subjectLen - e.Start}
		}
		hits = append(hits, hit.Hit{
			QueryID:       queryID,
			SubjectID:     subjectID,
			QueryStrand:   hit.StrandPlus,
			SubjectStrand: strand,
			Q:             interval.Range{Start: q, End: q + e.Len()},
			S:             s,
			Score:         float64(e.Len()),
			Identity:      1,
		})
		q += e.Len()
	}
	return hits
}
