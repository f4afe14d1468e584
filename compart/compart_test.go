package compart

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func newHit(q0, q1, s0, s1 int, idty float64) hit.Hit {
	return hit.Hit{
		QueryID:       "q",
		SubjectID:     "chr1",
		QueryStrand:   hit.StrandPlus,
		SubjectStrand: hit.StrandPlus,
		Q:             interval.Range{Start: q0, End: q1},
		S:             interval.Range{Start: s0, End: s1},
		Score:         float64(q1 - q0),
		Identity:      idty,
	}
}

func TestSingleCleanHit(t *testing.T) {
	opts := DefaultOpts
	opts.MaxIntron = 1000
	comps, err := FindCompartments([]hit.Hit{newHit(0, 300, 1000, 1300, 1)}, opts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 1)
	c := comps[0]
	expect.True(t, c.Accepted)
	expect.EQ(t, c.Box.S, interval.Range{Start: 1000, End: 1300})
	expect.EQ(t, c.Window, interval.Range{Start: 0, End: 1300 + opts.MaxExtent})
	expect.EQ(t, c.Identity, 1.0)
	expect.EQ(t, c.Coverage, 1.0)
}

func TestMultiExonCompartment(t *testing.T) {
	hits := []hit.Hit{
		newHit(200, 300, 9000, 9100, 0.9),
		newHit(0, 100, 1000, 1100, 1),
		newHit(100, 200, 5000, 5100, 1),
	}
	comps, err := FindCompartments(hits, DefaultOpts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 1)
	c := comps[0]
	expect.EQ(t, len(c.Hits), 3)
	expect.EQ(t, c.Hits[0].S.Start, 1000)
	expect.EQ(t, c.Hits[2].S.Start, 9000)
	expect.EQ(t, c.Box, Box{Q: interval.Range{Start: 0, End: 300}, S: interval.Range{Start: 1000, End: 9100}})
	expect.GE(t, c.Identity, 0.96)
}

func TestMinusStrandColinearity(t *testing.T) {
	// On the minus strand the query runs backwards along the subject.
	hits := []hit.Hit{
		newHit(100, 200, 1000, 1100, 1),
		newHit(0, 100, 5000, 5100, 1),
	}
	for i := range hits {
		hits[i].SubjectStrand = hit.StrandMinus
	}
	comps, err := FindCompartments(hits, DefaultOpts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 1)
	expect.EQ(t, comps[0].Strand, hit.StrandMinus)
	expect.EQ(t, len(comps[0].Hits), 2)
	expect.EQ(t, comps[0].Identity, 1.0)
}

func TestTwoDistantHits(t *testing.T) {
	opts := DefaultOpts
	opts.MaxIntron = 500000
	opts.Penalty = 0.1
	hits := []hit.Hit{
		newHit(0, 300, 1000, 1300, 1),
		newHit(0, 300, 2001300, 2001600, 0.4),
	}
	f, err := NewFinder(opts)
	assert.NoError(t, err)
	all, err := f.FindAll(hits, 300)
	assert.NoError(t, err)
	assert.EQ(t, len(all), 2)
	// The second compartment would clear the singleton bar but is held to
	// the multi-compartment bar.
	expect.True(t, all[0].Accepted)
	expect.False(t, all[1].Accepted)
	expect.EQ(t, all[1].Identity, 0.4)

	comps, err := f.Find(hits, 300)
	assert.NoError(t, err)
	expect.EQ(t, len(comps), 1)

	hits[1].Identity = 1
	comps, err = f.Find(hits, 300)
	assert.NoError(t, err)
	expect.EQ(t, len(comps), 2)
	expect.False(t, comps[0].Box.S.Overlaps(comps[1].Box.S))
	expect.LE(t, comps[0].Window.End, comps[1].Window.Start)
}

func TestLowIdentitySingleton(t *testing.T) {
	comps, err := FindCompartments([]hit.Hit{newHit(0, 300, 1000, 1300, 0.30)}, DefaultOpts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 1)
	expect.True(t, comps[0].Accepted)

	opts := DefaultOpts
	opts.MinSingletonIdentityBps = 100 // bar = min(0.25, 100/300)
	comps, err = FindCompartments([]hit.Hit{newHit(0, 300, 1000, 1300, 0.2)}, opts)
	assert.NoError(t, err)
	expect.EQ(t, len(comps), 0)
}

func TestIdentityAtBar(t *testing.T) {
	// Acceptance is strict: a compartment exactly at the bar is rejected.
	opts := DefaultOpts
	opts.MinSingletonIdentity = 0.5
	f, err := NewFinder(opts)
	assert.NoError(t, err)
	all, err := f.FindAll([]hit.Hit{newHit(0, 300, 1000, 1300, 0.5)}, 300)
	assert.NoError(t, err)
	assert.EQ(t, len(all), 1)
	expect.EQ(t, all[0].Identity, 0.5)
	expect.False(t, all[0].Accepted)

	all, err = f.FindAll([]hit.Hit{newHit(0, 300, 1000, 1300, 0.51)}, 300)
	assert.NoError(t, err)
	expect.True(t, all[0].Accepted)

	// The same holds for the multi-compartment bar.
	opts.Penalty = 0.1
	f, err = NewFinder(opts)
	assert.NoError(t, err)
	all, err = f.FindAll([]hit.Hit{
		newHit(0, 300, 1000, 1300, 1),
		newHit(0, 300, 2001300, 2001600, 0.5),
	}, 300)
	assert.NoError(t, err)
	assert.EQ(t, len(all), 2)
	expect.True(t, all[0].Accepted)
	expect.EQ(t, all[1].Identity, 0.5)
	expect.False(t, all[1].Accepted)
}

func TestByCoverage(t *testing.T) {
	opts := DefaultOpts
	opts.ByCoverage = true
	opts.MinSingletonIdentity = 0.9
	comps, err := FindCompartments([]hit.Hit{newHit(0, 300, 1000, 1300, 0.30)}, opts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 1)
	expect.GE(t, comps[0].Identity, 0.999)
}

func TestWindowTrimming(t *testing.T) {
	opts := DefaultOpts
	opts.Penalty = 0.1
	opts.MaxExtent = 5000
	hits := []hit.Hit{
		newHit(0, 300, 1000, 1300, 1),
		newHit(0, 300, 5000, 5300, 1),
	}
	comps, err := FindCompartments(hits, opts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 2)
	expect.EQ(t, comps[0].Window, interval.Range{Start: 0, End: 3150})
	expect.EQ(t, comps[1].Window, interval.Range{Start: 3150, End: 10300})

	// Touching boxes meet at the shared boundary.
	hits[1] = newHit(0, 300, 1300, 1600, 1)
	comps, err = FindCompartments(hits, opts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 2)
	expect.EQ(t, comps[0].Window, interval.Range{Start: 0, End: 1300})
	expect.EQ(t, comps[1].Window, interval.Range{Start: 1300, End: 6600})

	// Compartments on different strands are never trimmed against each other.
	hits[1].SubjectStrand = hit.StrandMinus
	comps, err = FindCompartments(hits, opts)
	assert.NoError(t, err)
	assert.EQ(t, len(comps), 2)
	expect.EQ(t, comps[0].Window, interval.Range{Start: 0, End: 6300})
	expect.EQ(t, comps[1].Window, interval.Range{Start: 0, End: 6600})
}

func TestNonOverlapAndMonotonicity(t *testing.T) {
	var hits []hit.Hit
	for i := 0; i < 30; i++ {
		q0 := (i * 41) % 250
		s0 := 1000 + i*7919 + (i%4)*300000
		idty := 0.3 + float64((i*13)%70)/100
		hits = append(hits, newHit(q0, q0+50, s0, s0+50, idty))
	}
	prevAccepted := len(hits) + 1
	for _, bar := range []float64{0, 0.2, 0.4, 0.5, 0.6, 0.8, 1} {
		opts := DefaultOpts
		opts.Penalty = 0.05
		opts.MinIdentity = bar
		f, err := NewFinder(opts)
		assert.NoError(t, err)
		all, err := f.FindAll(hits, 300)
		assert.NoError(t, err)
		for i := 0; i < len(all); i++ {
			for j := i + 1; j < len(all); j++ {
				if all[i].SubjectID == all[j].SubjectID && all[i].Strand == all[j].Strand {
					expect.False(t, all[i].Box.S.Overlaps(all[j].Box.S), "%v %v", all[i].Box, all[j].Box)
				}
			}
		}
		comps, err := f.Find(hits, 300)
		assert.NoError(t, err)
		expect.LE(t, len(comps), prevAccepted, "bar=%v", bar)
		prevAccepted = len(comps)
	}
}

func TestErrors(t *testing.T) {
	h := newHit(0, 300, 1000, 1300, 1)
	h.QueryStrand = hit.StrandMinus
	_, err := FindCompartments([]hit.Hit{h}, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))

	h = newHit(0, 300, 1000, 1300, 1)
	h.SubjectStrand = hit.StrandUnknown
	_, err = FindCompartments([]hit.Hit{h}, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))

	a, b := newHit(0, 300, 1000, 1300, 1), newHit(0, 300, 1000, 1300, 1)
	b.QueryID = "other"
	_, err = FindCompartments([]hit.Hit{a, b}, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))

	opts := DefaultOpts
	opts.MaxIntron = 0
	_, err = NewFinder(opts)
	expect.True(t, errors.Is(errors.Invalid, err))
	opts = DefaultOpts
	opts.Penalty = -1
	_, err = NewFinder(opts)
	expect.True(t, errors.Is(errors.Invalid, err))

	comps, err := FindCompartments(nil, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, len(comps), 0)
}
