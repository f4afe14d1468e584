package scoring

import (
	"math"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/splign/splign"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func r(start, end int) interval.Range { return interval.Range{Start: start, End: end} }

var testSegments = []splign.Segment{
	{Type: splign.SegUTR, Q: r(0, 10)},
	{Type: splign.SegExon, Q: r(10, 110), Details: "M50R2M48", Annot: "<exon>GT"},
	{Type: splign.SegIntron, Q: r(110, 110), Annot: "GT..AG"},
	{Type: splign.SegExon, Q: r(110, 210), Details: "M40I2M30D3M28", Annot: "AG<exon>GC"},
	{Type: splign.SegIntron, Q: r(210, 210), Annot: "GC..AG"},
	{Type: splign.SegExon, Q: r(210, 260), Details: "M50", Annot: "AG<exon>"},
	{Type: splign.SegUTR, Q: r(260, 270)},
	{Type: splign.SegPolyA, Q: r(270, 300)},
}

func near(t *testing.T, set ScoreSet, name string, want float64) {
	t.Helper()
	got, ok := set.Get(name)
	expect.True(t, ok, "missing %s", name)
	expect.True(t, math.Abs(got-want) < 1e-12, "%s: got %v, want %v", name, got, want)
}

func TestComputeStatsNonCds(t *testing.T) {
	set, err := ComputeStats(testSegments, 300, nil, AllStats, DefaultOpts)
	assert.NoError(t, err)
	near(t, set, Matches, 246)
	near(t, set, Mismatches, 2)
	near(t, set, Insertions, 2)
	near(t, set, Deletions, 3)
	near(t, set, GapOpenings, 2)
	near(t, set, AlignLength, 253)
	// The polyA tail is excluded from the query length.
	near(t, set, Identity, 246.0/270)
	near(t, set, Coverage, 250.0/270)
	near(t, set, ExonIdentity, 246.0/253)
	near(t, set, MinExonIdentity, 98.0/103)
	near(t, set, Exons, 3)
	near(t, set, Splices, 2)
	near(t, set, ConsensusSplices, 1)
	near(t, set, SemiConsensusSplices, 1)
	near(t, set, CombinedIdentity, 0.9*246.0/253+0.1*0.5)
	near(t, set, ExonIdentityName(1), 0.98)
	near(t, set, ExonIdentityName(2), 98.0/103)
	near(t, set, ExonIdentityName(3), 1)

	_, ok := set.Get(CdsMatches)
	expect.False(t, ok)
	expect.EQ(t, set[0].Name, Matches)
	expect.EQ(t, set[len(set)-1].Name, ExonIdentityName(3))
}

func TestComputeStatsCds(t *testing.T) {
	cds := r(20, 230)
	set, err := ComputeStats(testSegments, 300, &cds, AllStats, DefaultOpts)
	assert.NoError(t, err)
	near(t, set, CdsMatches, 206)
	near(t, set, CdsMismatches, 2)
	near(t, set, CdsCoverage, 208.0/210)
	// The insertion in the second exon shifts the frame; the deletion does
	// not restore it.
	near(t, set, InframeMatches, 128)
	near(t, set, InframeIdentity, 128.0/210)

	set, err = ComputeStats(testSegments, 300, &cds, BasicCds, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, len(set), 5)
	expect.EQ(t, set[0].Name, CdsMatches)

	// A CDS running into the polyA tail is clipped to it.
	cds = r(200, 290)
	set, err = ComputeStats(testSegments, 300, &cds, BasicCds, DefaultOpts)
	assert.NoError(t, err)
	near(t, set, CdsMatches, 60)
	near(t, set, CdsCoverage, 60.0/70)
}

func TestCombinedIdentityWeight(t *testing.T) {
	set, err := ComputeStats(testSegments, 300, nil, BasicNonCds, Opts{SpliceWeight: 0})
	assert.NoError(t, err)
	near(t, set, CombinedIdentity, 246.0/253)

	single := []splign.Segment{{Type: splign.SegExon, Q: r(0, 10), Details: "M8R2"}}
	set, err = ComputeStats(single, 10, nil, BasicNonCds, DefaultOpts)
	assert.NoError(t, err)
	near(t, set, CombinedIdentity, 0.8)
	near(t, set, Splices, 0)
}

func TestComputeStatsEmpty(t *testing.T) {
	set, err := Compute(&splign.AlignedCompartment{QueryLen: 100, PolyA: splign.NoPolyA}, AllStats)
	assert.NoError(t, err)
	near(t, set, Identity, 0)
	near(t, set, MinExonIdentity, 0)
	near(t, set, Exons, 0)
}

func TestComputeStatsMalformed(t *testing.T) {
	for _, seg := range []splign.Segment{
		{Type: splign.SegExon, Q: r(0, 10), Details: "M5X5"},
		{Type: splign.SegExon, Q: r(0, 10), Details: "M5R"},
		{Type: splign.SegExon, Q: r(0, 10), Details: "M5"},
	} {
		_, err := ComputeStats([]splign.Segment{seg}, 10, nil, AllStats, DefaultOpts)
		expect.True(t, errors.Is(errors.Invalid, err), "details %q", seg.Details)
	}
}
