package splign

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func patternHit(q0, q1, s0, s1 int) hit.Hit {
	return hit.Hit{
		QueryID:       "q",
		SubjectID:     "s",
		QueryStrand:   hit.StrandPlus,
		SubjectStrand: hit.StrandPlus,
		Q:             interval.Range{Start: q0, End: q1},
		S:             interval.Range{Start: s0, End: s1},
		Score:         float64(q1 - q0),
		Identity:      1,
	}
}

func anchorRanges(pattern []anchor) (q, w []interval.Range) {
	for _, a := range pattern {
		q = append(q, a.q)
		w = append(w, a.w)
	}
	return
}

func TestBuildPattern(t *testing.T) {
	f := &frame{subjectID: "s", strand: hit.StrandPlus, win: interval.Range{Start: 1000, End: 2000}}

	// Disjoint hits map straight into window coordinates; short ones are
	// dropped.
	pattern, err := buildPattern([]hit.Hit{
		patternHit(0, 100, 1000, 1100),
		patternHit(100, 110, 1150, 1160),
		patternHit(120, 200, 1300, 1380),
	}, f, 13)
	assert.NoError(t, err)
	q, w := anchorRanges(pattern)
	expect.EQ(t, q, []interval.Range{{Start: 0, End: 100}, {Start: 120, End: 200}})
	expect.EQ(t, w, []interval.Range{{Start: 0, End: 100}, {Start: 300, End: 380}})

	// A query overlap is cut off the front of the later hit.
	pattern, err = buildPattern([]hit.Hit{
		patternHit(0, 100, 1000, 1100),
		patternHit(90, 200, 1300, 1410),
	}, f, 13)
	assert.NoError(t, err)
	q, w = anchorRanges(pattern)
	expect.EQ(t, q, []interval.Range{{Start: 0, End: 100}, {Start: 100, End: 200}})
	expect.EQ(t, w, []interval.Range{{Start: 0, End: 100}, {Start: 310, End: 410}})

	// When the cut leaves too little, the stronger of the two hits wins.
	pattern, err = buildPattern([]hit.Hit{
		patternHit(0, 100, 1000, 1100),
		patternHit(20, 130, 1200, 1310),
	}, f, 40)
	assert.NoError(t, err)
	q, w = anchorRanges(pattern)
	expect.EQ(t, q, []interval.Range{{Start: 20, End: 130}})
	expect.EQ(t, w, []interval.Range{{Start: 200, End: 310}})

	// On the minus strand the window is reversed.
	minus := &frame{subjectID: "s", strand: hit.StrandMinus, win: f.win}
	pattern, err = buildPattern([]hit.Hit{patternHit(0, 100, 1800, 1900)}, minus, 13)
	assert.NoError(t, err)
	_, w = anchorRanges(pattern)
	expect.EQ(t, w, []interval.Range{{Start: 100, End: 200}})
}

func TestBuildPatternErrors(t *testing.T) {
	f := &frame{subjectID: "s", strand: hit.StrandPlus, win: interval.Range{Start: 1000, End: 2000}}
	_, err := buildPattern([]hit.Hit{patternHit(0, 100, 900, 1000)}, f, 13)
	expect.True(t, errors.Is(errors.Invalid, err))

	_, err = buildPattern([]hit.Hit{
		patternHit(100, 200, 1000, 1100),
		patternHit(0, 100, 1200, 1300),
	}, f, 13)
	expect.True(t, errors.Is(errors.Invalid, err))
}
