package splign

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func newTestAligner(t *testing.T, f SeqFetcher) *Aligner {
	a, err := NewAligner(DefaultOpts, f)
	assert.NoError(t, err)
	return a
}

func TestAlignSingleExon(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	f := newMemFetcher()
	f.seqs["chr1"] = randomSeq(r, 30000)
	f.seqs["tx1"] = append([]byte(nil), f.seqs["chr1"][1000:1300]...)
	hits := []hit.Hit{{
		QueryID: "tx1", SubjectID: "chr1",
		QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
		Q: interval.Range{Start: 0, End: 300}, S: interval.Range{Start: 1000, End: 1300},
		Score: 300, Identity: 1,
	}}
	out, err := newTestAligner(t, f).Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 1)
	ac := out[0]
	expect.EQ(t, ac.ID, 1)
	expect.EQ(t, ac.Status, StatusOK)
	expect.EQ(t, ac.QueryLen, 300)
	expect.EQ(t, ac.PolyA, NoPolyA)
	assert.EQ(t, len(ac.Segments), 1)
	s := ac.Segments[0]
	expect.EQ(t, s.Type, SegExon)
	expect.EQ(t, s.Q, interval.Range{Start: 0, End: 300})
	expect.EQ(t, s.S, interval.Range{Start: 1000, End: 1300})
	expect.EQ(t, s.Identity, 1.0)
	expect.EQ(t, s.Details, "M300")
	expect.EQ(t, s.Annot, "<exon>")
	expect.EQ(t, ac.Score, 300.0)
}

var threeExons = []interval.Range{{Start: 5000, End: 5100}, {Start: 6000, End: 6080}, {Start: 8000, End: 8150}}

func checkThreeExons(t *testing.T, ac AlignedCompartment, toGenome func(interval.Range) interval.Range) {
	t.Helper()
	expect.EQ(t, ac.Status, StatusOK)
	assert.EQ(t, len(ac.Segments), 5)
	types := make([]string, len(ac.Segments))
	for i, s := range ac.Segments {
		types[i] = s.Type.String()
	}
	expect.EQ(t, strings.Join(types, ","), "exon,intron,exon,intron,exon")
	q := 0
	for i, e := range threeExons {
		s := ac.Segments[2*i]
		expect.EQ(t, s.Q, interval.Range{Start: q, End: q + e.Len()})
		expect.EQ(t, s.S, toGenome(e))
		expect.EQ(t, s.Identity, 1.0)
		q += e.Len()
	}
	expect.EQ(t, ac.Segments[1].S, toGenome(interval.Range{Start: 5100, End: 6000}))
	expect.EQ(t, ac.Segments[3].S, toGenome(interval.Range{Start: 6080, End: 8000}))
	expect.EQ(t, ac.Segments[1].Annot, "GT..AG")
	expect.EQ(t, ac.Segments[3].Annot, "GT..AG")
	expect.EQ(t, ac.Segments[0].Annot, "<exon>GT")
	expect.EQ(t, ac.Segments[2].Annot, "AG<exon>GT")
	expect.EQ(t, ac.Segments[4].Annot, "AG<exon>")
}

func TestAlignSplicedPlus(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	subject, query := makeGene(r, 40000, threeExons)
	f := newMemFetcher()
	f.seqs["chr2"], f.seqs["tx2"] = subject, query
	hits := exonHits("tx2", "chr2", threeExons, hit.StrandPlus, len(subject))
	out, err := newTestAligner(t, f).Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 1)
	expect.EQ(t, out[0].SubjectStrand, hit.StrandPlus)
	checkThreeExons(t, out[0], func(r interval.Range) interval.Range { return r })
}

func TestAlignSplicedMinus(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	const n = 40000
	window, query := makeGene(r, n, threeExons)
	genome := append([]byte(nil), window...)
	ReverseComplementInPlace(genome)
	f := newMemFetcher()
	f.seqs["chr3"], f.seqs["tx3"] = genome, query
	hits := exonHits("tx3", "chr3", threeExons, hit.StrandMinus, n)
	out, err := newTestAligner(t, f).Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 1)
	expect.EQ(t, out[0].SubjectStrand, hit.StrandMinus)
	checkThreeExons(t, out[0], func(r interval.Range) interval.Range {
		return interval.Range{Start: n - r.End, End: n - r.Start}
	})
}

func TestAlignPolyA(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	f := newMemFetcher()
	chr := randomSeq(r, 30000)
	// Keep the genome after the exon free of A's.
	for i := 1270; i < 1320; i++ {
		if chr[i] == 'A' {
			chr[i] = 'C'
		}
	}
	f.seqs["chr1"] = chr
	f.seqs["tx"] = append(append([]byte(nil), chr[1000:1270]...), strings.Repeat("A", 30)...)
	hits := []hit.Hit{{
		QueryID: "tx", SubjectID: "chr1",
		QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
		Q: interval.Range{Start: 0, End: 270}, S: interval.Range{Start: 1000, End: 1270},
		Score: 270, Identity: 1,
	}}
	out, err := newTestAligner(t, f).Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 1)
	ac := out[0]
	expect.EQ(t, ac.Status, StatusOK)
	expect.LE(t, ac.PolyA, 270)
	expect.GE(t, ac.PolyA, 260)
	last := ac.Segments[len(ac.Segments)-1]
	expect.EQ(t, last.Type, SegPolyA)
	expect.EQ(t, last.Q, interval.Range{Start: ac.PolyA, End: 300})
	for _, s := range ac.Exons() {
		expect.LE(t, s.Q.End, ac.PolyA)
	}

	// A CDS ending inside the tail pushes the tail start back.
	cds := interval.Range{Start: 10, End: 280}
	out, err = newTestAligner(t, f).Run(context.Background(), hits, &cds)
	assert.NoError(t, err)
	expect.EQ(t, out[0].PolyA, 280)
	expect.EQ(t, *out[0].CDS, cds)
}

func TestAlignLowIdentityExon(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	f := newMemFetcher()
	chr := randomSeq(r, 30000)
	f.seqs["chr1"] = chr
	query := append([]byte(nil), chr[1000:1300]...)
	f.seqs["tx"] = query
	hits := []hit.Hit{{
		QueryID: "tx", SubjectID: "chr1",
		QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
		Q: interval.Range{Start: 0, End: 300}, S: interval.Range{Start: 1000, End: 1300},
		Score: 300, Identity: 1,
	}}
	a := newTestAligner(t, f)
	assert.NoError(t, a.SetMinExonIdentity(1))
	// Mutate one residue per block of ten in the query after hit computation.
	for i := 5; i < len(query); i += 10 {
		query[i] = complement[query[i]]
	}
	out, err := a.Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 1)
	expect.EQ(t, out[0].Status, StatusEmpty)
	for _, s := range out[0].Segments {
		expect.True(t, s.Type == SegUTR || s.Type == SegGap, "segment %v", s.Type)
	}
	expect.EQ(t, out[0].Segments[0].Q.Start, 0)
	expect.EQ(t, out[0].Segments[len(out[0].Segments)-1].Q.End, 300)
	expect.LE(t, out[0].Score, 0.0)
}

func TestAlignFetchFailure(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	f := newMemFetcher()
	f.seqs["chr1"] = randomSeq(r, 5000)
	f.seqs["tx"] = append([]byte(nil), f.seqs["chr1"][100:400]...)
	f.fail["chr1"] = true
	hits := []hit.Hit{{
		QueryID: "tx", SubjectID: "chr1",
		QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
		Q: interval.Range{Start: 0, End: 300}, S: interval.Range{Start: 100, End: 400},
		Score: 300, Identity: 1,
	}}
	out, err := newTestAligner(t, f).Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 1)
	expect.EQ(t, out[0].Status, StatusError)
	expect.True(t, strings.Contains(out[0].Msg, "connection reset"), out[0].Msg)
	expect.EQ(t, len(out[0].Segments), 0)

	// A missing query fails every compartment.
	delete(f.seqs, "tx")
	delete(f.fail, "chr1")
	out, err = newTestAligner(t, f).Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 1)
	expect.EQ(t, out[0].Status, StatusError)
}

func TestAlignCompartmentErrors(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	f := newMemFetcher()
	f.seqs["chr1"] = randomSeq(r, 5000)
	query := append([]byte(nil), f.seqs["chr1"][100:400]...)
	a := newTestAligner(t, f)
	hits := []hit.Hit{{
		QueryID: "tx", SubjectID: "chr1",
		QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
		Q: interval.Range{Start: 0, End: 300}, S: interval.Range{Start: 100, End: 400},
		Score: 300, Identity: 1,
	}}
	comps, err := a.finder.FindAll(hits, len(query))
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 1)

	// Hits past the query end are inconsistent.
	ac := a.AlignCompartment(context.Background(), query[:200], &comps[0], nil)
	expect.EQ(t, ac.Status, StatusError)

	// A tiny cell budget makes the whole-query alignment fail.
	assert.NoError(t, a.update(func(o *Opts) { o.MaxDPCells = 1000; o.MinPatternHitLen = 1000 }))
	ac = a.AlignCompartment(context.Background(), query, &comps[0], nil)
	expect.EQ(t, ac.Status, StatusError)
	expect.True(t, strings.Contains(ac.Msg, "exceeds"), ac.Msg)
}

func TestAlignMultipleCompartments(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	f := newMemFetcher()
	chr := randomSeq(r, 200000)
	f.seqs["chr1"] = chr
	exon := chr[10000:10300]
	copy(chr[150000:], exon)
	f.seqs["tx"] = append([]byte(nil), exon...)
	var hits []hit.Hit
	for _, s := range []int{10000, 150000} {
		hits = append(hits, hit.Hit{
			QueryID: "tx", SubjectID: "chr1",
			QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
			Q: interval.Range{Start: 0, End: 300}, S: interval.Range{Start: s, End: s + 300},
			Score: 300, Identity: 1,
		})
	}
	a := newTestAligner(t, f)
	assert.NoError(t, a.SetMaxIntron(1000))
	assert.NoError(t, a.SetCompartmentPenalty(0.1))
	out, err := a.Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 2)
	for i, ac := range out {
		expect.EQ(t, ac.ID, i+1)
		expect.EQ(t, ac.Status, StatusOK)
		assert.EQ(t, len(ac.Segments), 1)
	}
	expect.EQ(t, out[0].Segments[0].S, interval.Range{Start: 10000, End: 10300})
	expect.EQ(t, out[1].Segments[0].S, interval.Range{Start: 150000, End: 150300})
}

type mapCache map[CacheKey]AlignedCompartment

func (m mapCache) Get(key CacheKey) (AlignedCompartment, bool) {
	ac, ok := m[key]
	return ac, ok
}

func (m mapCache) Put(key CacheKey, ac AlignedCompartment) { m[key] = ac }

func TestAlignResultCache(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	f := newMemFetcher()
	f.seqs["chr1"] = randomSeq(r, 30000)
	f.seqs["tx"] = append([]byte(nil), f.seqs["chr1"][2000:2300]...)
	hits := []hit.Hit{{
		QueryID: "tx", SubjectID: "chr1",
		QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
		Q: interval.Range{Start: 0, End: 300}, S: interval.Range{Start: 2000, End: 2300},
		Score: 300, Identity: 1,
	}}
	cache := mapCache{}
	a := newTestAligner(t, NewSeqCache(f, CacheClearPerQuery))
	a.SetResultCache(cache)
	first, err := a.Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	expect.EQ(t, len(cache), 1)
	calls := f.calls
	second, err := a.Run(context.Background(), hits, nil)
	assert.NoError(t, err)
	expect.EQ(t, second, first)
	// Sequences come from the sequence cache and the alignment from the result cache.
	expect.EQ(t, f.calls, calls)
}

func TestAlignerSetters(t *testing.T) {
	a := newTestAligner(t, newMemFetcher())
	for _, err := range []error{
		a.SetMaxExtent(-1),
		a.SetCompartmentPenalty(2),
		a.SetMinCompartmentIdentity(-0.5),
		a.SetMinSingletonIdentity(1.5),
		a.SetMaxIntron(0),
		a.SetMinExonIdentity(1.1),
		a.SetMinPolyALen(0),
		a.SetPolyAExtIdentity(1),
	} {
		expect.True(t, errors.Is(errors.Invalid, err), "err %v", err)
		expect.EQ(t, ErrorKind(err), KindFormat)
	}
	expect.EQ(t, a.Opts(), DefaultOpts)

	assert.NoError(t, a.SetMaxIntron(1000))
	assert.NoError(t, a.SetByCoverage(true))
	assert.NoError(t, a.SetEndGapDetection(false))
	expect.EQ(t, a.Opts().MaxIntron, 1000)
	expect.True(t, a.Opts().ByCoverage)
	expect.False(t, a.Opts().EndGapDetection)
}

func TestRunRejectsMixedQueries(t *testing.T) {
	f := newMemFetcher()
	f.seqs["a"] = []byte("ACGT")
	hits := []hit.Hit{
		{QueryID: "a", SubjectID: "chr1", QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
			Q: interval.Range{Start: 0, End: 4}, S: interval.Range{Start: 0, End: 4}, Identity: 1},
		{QueryID: "b", SubjectID: "chr1", QueryStrand: hit.StrandPlus, SubjectStrand: hit.StrandPlus,
			Q: interval.Range{Start: 0, End: 4}, S: interval.Range{Start: 10, End: 14}, Identity: 1},
	}
	_, err := newTestAligner(t, f).Run(context.Background(), hits, nil)
	expect.EQ(t, ErrorKind(err), KindFormat)
}
