package splign

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// Edit operations of an alignment transcript.
const (
	opMatch    = 'M' // query and subject residue, equal
	opMismatch = 'R' // query and subject residue, different
	opIns      = 'I' // query residue only
	opDel      = 'D' // subject residue only
	opIntron   = 'N' // subject residue skipped inside an intron
)

const negInf = math.MinInt32 / 4

// Traceback byte layout. The low two bits give the source of H.
const (
	srcDiag = 0
	srcE    = 1
	srcF    = 2
	srcN    = 3

	tbSrcMask = 3
	tbEExt    = 1 << 2 // E extended from E rather than opened from H
	tbFExt    = 1 << 3
	tbNExt    = 1 << 4
	tbStart   = 1 << 5 // H is a free starting cell
)

// dpParams selects the alignment variant.
type dpParams struct {
	// freeStart lets the alignment start at any subject position without
	// penalty. freeEnd lets it end at any subject position.
	freeStart, freeEnd bool
	// spliced enables the intron state.
	spliced bool
	// banded restricts cells to bandLo <= j-i <= bandHi.
	banded         bool
	bandLo, bandHi int
}

// dpResult is one alignment of q against s[sStart:sEnd].
type dpResult struct {
	ops          []byte
	sStart, sEnd int
	score        int32
}

// dpEngine runs affine-gap alignments with an optional intron state. An
// engine is not safe for concurrent use; its buffers are reused across
// calls.
type dpEngine struct {
	scoring  Scoring
	maxCells int

	trace             []byte
	rowOff            []int
	hPrev, hCur, fRow []int32
}

func newDPEngine(scoring Scoring, maxCells int) *dpEngine {
	return &dpEngine{scoring: scoring, maxCells: maxCells}
}

func (d *dpEngine) sub(a, b byte) int32 {
	if a == b && a != 'N' {
		return d.scoring.Match
	}
	return d.scoring.Mismatch
}

// donorPenalty scores an intron whose first two bases are s[j], s[j+1].
func (d *dpEngine) donorPenalty(s []byte, j int) int32 {
	if j+1 >= len(s) {
		return d.scoring.NonConsensusSplice
	}
	switch {
	case s[j] == 'G' && s[j+1] == 'T':
		return d.scoring.ConsensusSplice
	case s[j] == 'G' && s[j+1] == 'C', s[j] == 'A' && s[j+1] == 'T':
		return d.scoring.SemiConsensusSplice
	}
	return d.scoring.NonConsensusSplice
}

// acceptorPenalty scores an intron whose last two bases are s[j-2], s[j-1].
func (d *dpEngine) acceptorPenalty(s []byte, j int) int32 {
	if j < 2 {
		return d.scoring.NonConsensusSplice
	}
	switch {
	case s[j-2] == 'A' && s[j-1] == 'G':
		return d.scoring.ConsensusSplice
	case s[j-2] == 'A' && s[j-1] == 'C':
		return d.scoring.SemiConsensusSplice
	}
	return d.scoring.NonConsensusSplice
}

func resizeInt32(buf []int32, n int) []int32 {
	if cap(buf) < n {
		return make([]int32, n)
	}
	return buf[:n]
}

// rowRange returns the columns computed in row i.
func (p *dpParams) rowRange(i, n int) (int, int) {
	if !p.banded {
		return 0, n
	}
	lo, hi := i+p.bandLo, i+p.bandHi
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

// align computes the best alignment of all of q against s (or a substring of
// s, if freeStart or freeEnd is set). It returns an errors.Precondition error
// if the matrix would exceed the cell limit, and an errors.Invalid error if the
// band excludes the required corners.
func (d *dpEngine) align(q, s []byte, p dpParams) (dpResult, error) {
	m, n := len(q), len(s)
	if p.banded {
		if p.bandLo > 0 || p.bandHi < 0 || (!p.freeEnd && (n-m < p.bandLo || n-m > p.bandHi)) {
			return dpResult{}, errors.E(errors.Invalid, fmt.Sprintf("dp: band [%d,%d] excludes a corner of %dx%d", p.bandLo, p.bandHi, m, n))
		}
	}
	d.rowOff = d.rowOff[:0]
	cells := 0
	for i := 0; i <= m; i++ {
		lo, hi := p.rowRange(i, n)
		d.rowOff = append(d.rowOff, cells-lo)
		if hi >= lo {
			cells += hi - lo + 1
		}
		if cells > d.maxCells {
			return dpResult{}, errors.E(errors.Precondition, fmt.Sprintf("dp: %dx%d alignment exceeds %d cells", m+1, n+1, d.maxCells))
		}
	}
	if cap(d.trace) < cells {
		d.trace = make([]byte, cells)
	}
	trace := d.trace[:cells]
	d.hPrev = resizeInt32(d.hPrev, n+1)
	d.hCur = resizeInt32(d.hCur, n+1)
	d.fRow = resizeInt32(d.fRow, n+1)
	for j := range d.hPrev {
		d.hPrev[j], d.fRow[j] = negInf, negInf
	}
	gapOpen := d.scoring.GapOpen + d.scoring.GapExtend
	gapExt := d.scoring.GapExtend

	prevLo, prevHi := 0, -1
	for i := 0; i <= m; i++ {
		lo, hi := p.rowRange(i, n)
		hPrev, hCur := d.hPrev, d.hCur
		e, nst := int32(negInf), int32(negInf)
		for j := lo; j <= hi; j++ {
			var tb byte
			inPrev := j >= prevLo && j <= prevHi
			if j > lo {
				if open, ext := hCur[j-1]+gapOpen, e+gapExt; ext > open {
					e = ext
					tb |= tbEExt
				} else {
					e = open
				}
				if p.spliced {
					if open := hCur[j-1] + d.donorPenalty(s, j-1); nst > open {
						tb |= tbNExt
					} else {
						nst = open
					}
				}
			}
			if i > 0 && inPrev {
				if open, ext := hPrev[j]+gapOpen, d.fRow[j]+gapExt; ext > open {
					d.fRow[j] = ext
					tb |= tbFExt
				} else {
					d.fRow[j] = open
				}
			} else {
				d.fRow[j] = negInf
			}
			best, src := int32(negInf), byte(srcDiag)
			if i > 0 && j > 0 && j-1 >= prevLo && j-1 <= prevHi {
				best = hPrev[j-1] + d.sub(q[i-1], s[j-1])
			}
			if j > lo && e > best {
				best, src = e, srcE
			}
			if d.fRow[j] > best {
				best, src = d.fRow[j], srcF
			}
			if p.spliced && j > lo {
				if v := nst + d.acceptorPenalty(s, j); v > best {
					best, src = v, srcN
				}
			}
			if i == 0 && (j == 0 || p.freeStart) && best <= 0 {
				best = 0
				tb |= tbStart
			}
			hCur[j] = best
			trace[d.rowOff[i]+j] = tb | src
		}
		d.hPrev, d.hCur = hCur, hPrev
		prevLo, prevHi = lo, hi
	}

	// d.hPrev now holds row m.
	endJ := n
	if p.freeEnd {
		endJ = -1
		for j := prevLo; j <= prevHi; j++ {
			if endJ < 0 || d.hPrev[j] > d.hPrev[endJ] {
				endJ = j
			}
		}
	}
	if endJ < prevLo || endJ > prevHi || d.hPrev[endJ] <= negInf/2 {
		return dpResult{}, errors.E(errors.Invalid, fmt.Sprintf("dp: no path through %dx%d matrix", m+1, n+1))
	}
	res := dpResult{sEnd: endJ, score: d.hPrev[endJ]}
	res.ops = d.traceback(trace, q, s, m, endJ)
	res.sStart = res.sEnd - countSubject(res.ops)
	return res, nil
}

func (d *dpEngine) traceback(trace []byte, q, s []byte, i, j int) []byte {
	const (
		stH = iota
		stE
		stF
		stN
	)
	var rev []byte
	st := stH
	for {
		tb := trace[d.rowOff[i]+j]
		switch st {
		case stH:
			if tb&tbStart != 0 {
				for l, r := 0, len(rev)-1; l < r; l, r = l+1, r-1 {
					rev[l], rev[r] = rev[r], rev[l]
				}
				return rev
			}
			switch tb & tbSrcMask {
			case srcDiag:
				if q[i-1] == s[j-1] && q[i-1] != 'N' {
					rev = append(rev, opMatch)
				} else {
					rev = append(rev, opMismatch)
				}
				i, j = i-1, j-1
			case srcE:
				st = stE
			case srcF:
				st = stF
			case srcN:
				st = stN
			}
		case stE:
			rev = append(rev, opDel)
			if tb&tbEExt == 0 {
				st = stH
			}
			j--
		case stF:
			rev = append(rev, opIns)
			if tb&tbFExt == 0 {
				st = stH
			}
			i--
		case stN:
			rev = append(rev, opIntron)
			if tb&tbNExt == 0 {
				st = stH
			}
			j--
		}
	}
}

// countSubject returns the number of subject residues consumed by ops.
func countSubject(ops []byte) int {
	n := 0
	for _, op := range ops {
		if op != opIns {
			n++
		}
	}
	return n
}

// countQuery returns the number of query residues consumed by ops.
func countQuery(ops []byte) int {
	n := 0
	for _, op := range ops {
		if op != opDel && op != opIntron {
			n++
		}
	}
	return n
}
