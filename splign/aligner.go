// Package splign computes spliced alignments of transcript sequences against
// genomic compartments found from local-alignment hits.
package splign

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/splign/compart"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
)

// CacheKey identifies the alignment of one compartment.
type CacheKey struct {
	QueryID   string
	SubjectID string
	Strand    hit.Strand
	Window    interval.Range
	// CDS is the empty range when no CDS is given.
	CDS interval.Range
}

// ResultCache stores finished compartment alignments across runs.
type ResultCache interface {
	Get(key CacheKey) (AlignedCompartment, bool)
	Put(key CacheKey, ac AlignedCompartment)
}

// Aligner runs compartment finding and spliced alignment for one query at a
// time. An Aligner is not safe for concurrent use; parallel callers create
// one Aligner per worker.
type Aligner struct {
	opts    Opts
	finder  *compart.Finder
	fetcher SeqFetcher
	dp      *dpEngine
	cache   ResultCache
}

// NewAligner creates an Aligner. It returns an errors.Invalid error if opts is
// malformed.
func NewAligner(opts Opts, fetcher SeqFetcher) (*Aligner, error) {
	a := &Aligner{fetcher: fetcher}
	if err := a.setOpts(opts); err != nil {
		return nil, err
	}
	return a, nil
}

// Opts returns the current configuration.
func (a *Aligner) Opts() Opts { return a.opts }

func (a *Aligner) setOpts(opts Opts) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	finder, err := compart.NewFinder(opts.Opts)
	if err != nil {
		return err
	}
	a.opts, a.finder = opts, finder
	a.dp = newDPEngine(opts.Scoring, opts.MaxDPCells)
	return nil
}

func (a *Aligner) update(fn func(o *Opts)) error {
	o := a.opts
	fn(&o)
	return a.setOpts(o)
}

// SetMaxExtent sets Opts.MaxExtent.
func (a *Aligner) SetMaxExtent(v int) error {
	return a.update(func(o *Opts) { o.MaxExtent = v })
}

// SetCompartmentPenalty sets Opts.Penalty.
func (a *Aligner) SetCompartmentPenalty(v float64) error {
	return a.update(func(o *Opts) { o.Penalty = v })
}

// SetMinCompartmentIdentity sets Opts.MinIdentity.
func (a *Aligner) SetMinCompartmentIdentity(v float64) error {
	return a.update(func(o *Opts) { o.MinIdentity = v })
}

// SetMinSingletonIdentity sets Opts.MinSingletonIdentity.
func (a *Aligner) SetMinSingletonIdentity(v float64) error {
	return a.update(func(o *Opts) { o.MinSingletonIdentity = v })
}

// SetMaxIntron sets Opts.MaxIntron.
func (a *Aligner) SetMaxIntron(v int) error {
	return a.update(func(o *Opts) { o.MaxIntron = v })
}

// SetByCoverage sets Opts.ByCoverage.
func (a *Aligner) SetByCoverage(v bool) error {
	return a.update(func(o *Opts) { o.ByCoverage = v })
}

// SetMinExonIdentity sets Opts.MinExonIdentity.
func (a *Aligner) SetMinExonIdentity(v float64) error {
	return a.update(func(o *Opts) { o.MinExonIdentity = v })
}

// SetMinPolyALen sets Opts.MinPolyALen.
func (a *Aligner) SetMinPolyALen(v int) error {
	return a.update(func(o *Opts) { o.MinPolyALen = v })
}

// SetPolyAExtIdentity sets Opts.PolyAExtIdentity.
func (a *Aligner) SetPolyAExtIdentity(v float64) error {
	return a.update(func(o *Opts) { o.PolyAExtIdentity = v })
}

// SetEndGapDetection sets Opts.EndGapDetection.
func (a *Aligner) SetEndGapDetection(v bool) error {
	return a.update(func(o *Opts) { o.EndGapDetection = v })
}

// SetResultCache installs a cache consulted before aligning each
// compartment. A nil cache disables caching.
func (a *Aligner) SetResultCache(c ResultCache) { a.cache = c }

// Run aligns the query of hits against every accepted compartment. All hits
// must share one query id. Compartments are returned in subject order, with
// IDs starting at 1. A failure confined to one compartment is reported
// through its Status and Msg; Run itself only fails on malformed hits.
func (a *Aligner) Run(ctx context.Context, hits []hit.Hit, cds *interval.Range) ([]AlignedCompartment, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	queryID := hits[0].QueryID
	if s, ok := a.fetcher.(interface{ StartQuery(string) }); ok {
		s.StartQuery(queryID)
	}
	var query []byte
	qlen, qerr := a.fetcher.SeqLen(ctx, queryID)
	if qerr != nil {
		qerr = errors.E(errors.Unavailable, qerr, "query length", queryID)
		qlen = 0
	} else {
		query, qerr = fetchChecked(ctx, a.fetcher, queryID, 0, qlen, hit.StrandPlus)
	}
	comps, err := a.finder.Find(hit.RemoveOverlaps(hits), qlen)
	if err != nil {
		return nil, err
	}
	out := make([]AlignedCompartment, len(comps))
	for i := range comps {
		if qerr != nil {
			out[i] = failed(&comps[i], qlen, cds, qerr)
		} else {
			out[i] = a.AlignCompartment(ctx, query, &comps[i], cds)
		}
		out[i].ID = i + 1
	}
	return out, nil
}

// AlignCompartment computes the spliced alignment of query against one
// compartment. Errors are reported in the result's Status and Msg.
func (a *Aligner) AlignCompartment(ctx context.Context, query []byte, c *compart.Compartment, cds *interval.Range) AlignedCompartment {
	var key CacheKey
	if a.cache != nil {
		key = CacheKey{QueryID: c.QueryID, SubjectID: c.SubjectID, Strand: c.Strand, Window: c.Window}
		if cds != nil {
			key.CDS = *cds
		}
		if ac, ok := a.cache.Get(key); ok {
			return ac
		}
	}
	j := &job{a: a, comp: c, query: query, cds: cds, polyA: NoPolyA}
	ac := j.run(ctx)
	if a.cache != nil && ac.Status != StatusError {
		a.cache.Put(key, ac)
	}
	return ac
}

func failed(c *compart.Compartment, qlen int, cds *interval.Range, err error) AlignedCompartment {
	log.Error.Printf("compartment %s/%s%s %v: %v", c.QueryID, c.SubjectID, c.Strand, c.Box.S, err)
	return AlignedCompartment{
		QueryID:       c.QueryID,
		SubjectID:     c.SubjectID,
		Status:        StatusError,
		Msg:           err.Error(),
		QueryStrand:   hit.StrandPlus,
		SubjectStrand: c.Strand,
		QueryLen:      qlen,
		CDS:           cds,
		PolyA:         NoPolyA,
	}
}

// state is the progress of one compartment through the aligner.
type state int

const (
	stateInit state = iota
	statePatternBuilt
	stateCoreAligned
	stateTerminiProcessed
	statePolyADetected
	stateFinalized
	stateError
)

var stateNames = [...]string{"init", "pattern", "core", "termini", "polya", "final", "error"}

func (s state) String() string { return stateNames[s] }

// job carries one compartment through the states.
type job struct {
	a     *Aligner
	comp  *compart.Compartment
	query []byte
	cds   *interval.Range

	frame   frame
	subj    []byte
	pattern []anchor

	// ops is the transcript of the whole query against subj[opsStart:].
	ops      []byte
	opsStart int
	polyA    int

	state state
	out   AlignedCompartment
}

func (j *job) run(ctx context.Context) AlignedCompartment {
	for j.state != stateFinalized {
		var err error
		switch j.state {
		case stateInit:
			err = j.buildPattern(ctx)
		case statePatternBuilt:
			err = j.alignCore()
		case stateCoreAligned:
			err = j.alignTermini()
		case stateTerminiProcessed:
			j.detectPolyA()
		case statePolyADetected:
			j.finalize()
		}
		if err != nil {
			err = errors.E(err, fmt.Sprintf("state %v", j.state))
			j.state = stateError
			return failed(j.comp, len(j.query), j.cds, err)
		}
		j.state++
	}
	return j.out
}

func (j *job) buildPattern(ctx context.Context) error {
	c := j.comp
	slen, err := j.a.fetcher.SeqLen(ctx, c.SubjectID)
	if err != nil {
		return errors.E(errors.Unavailable, err, "subject length", c.SubjectID)
	}
	win := c.Window.Clamp(0, slen)
	if win.Empty() {
		return errors.E(errors.Invalid, fmt.Sprintf("window %v outside subject %s of length %d", c.Window, c.SubjectID, slen))
	}
	j.frame = frame{subjectID: c.SubjectID, strand: c.Strand, win: win}
	if j.subj, err = fetchChecked(ctx, j.a.fetcher, c.SubjectID, win.Start, win.End, c.Strand); err != nil {
		return err
	}
	for i := range c.Hits {
		if c.Hits[i].Q.End > len(j.query) {
			return errors.E(errors.Invalid, fmt.Sprintf("hit %v extends past query end %d", &c.Hits[i], len(j.query)))
		}
	}
	if j.pattern, err = buildPattern(c.Hits, &j.frame, j.a.opts.MinPatternHitLen); err != nil {
		return err
	}
	trimAnchors(j.pattern)
	if log.At(log.Debug) {
		log.Debug.Printf("compartment %s/%s%s: %d anchors from %d hits", c.QueryID, c.SubjectID, c.Strand, len(j.pattern), len(c.Hits))
	}
	return nil
}

// alignAnchor aligns one anchor globally. Anchors of equal query and subject
// length are taken as ungapped.
func (j *job) alignAnchor(an anchor) ([]byte, error) {
	q, s := j.query[an.q.Start:an.q.End], j.subj[an.w.Start:an.w.End]
	if len(q) == len(s) {
		ops := make([]byte, len(q))
		for i := range q {
			if q[i] == s[i] && q[i] != 'N' {
				ops[i] = opMatch
			} else {
				ops[i] = opMismatch
			}
		}
		return ops, nil
	}
	diff := len(s) - len(q)
	p := dpParams{banded: true, bandLo: minInt(0, diff) - anchorMargin, bandHi: maxInt(0, diff) + anchorMargin}
	res, err := j.a.dp.align(q, s, p)
	return res.ops, err
}

func (j *job) alignCore() error {
	if len(j.pattern) == 0 {
		return nil
	}
	var ops []byte
	for i, an := range j.pattern {
		if i > 0 {
			prev := j.pattern[i-1]
			res, err := j.a.dp.align(
				j.query[prev.q.End:an.q.Start],
				j.subj[prev.w.End:an.w.Start],
				dpParams{spliced: true})
			if err != nil {
				return err
			}
			ops = append(ops, res.ops...)
		}
		aops, err := j.alignAnchor(an)
		if err != nil {
			return err
		}
		ops = append(ops, aops...)
	}
	j.ops = ops
	j.opsStart = j.pattern[0].w.Start
	return nil
}

// flankSpan bounds the subject span of a terminal alignment of qlen residues.
func (j *job) flankSpan(qlen, avail int) int {
	span := avail
	if !j.a.opts.EndGapDetection {
		span = minInt(span, 2*qlen+2*anchorMargin)
	}
	if limit := j.a.opts.MaxDPCells/(qlen+1) - 1; span > limit {
		span = limit
	}
	if span < 0 {
		span = 0
	}
	return span
}

func (j *job) alignTermini() error {
	spliced := j.a.opts.EndGapDetection
	if len(j.pattern) == 0 {
		res, err := j.a.dp.align(j.query, j.subj, dpParams{freeStart: true, freeEnd: true, spliced: spliced})
		if err != nil {
			return err
		}
		j.ops, j.opsStart = res.ops, res.sStart
		return nil
	}
	first, last := j.pattern[0], j.pattern[len(j.pattern)-1]
	if hq := first.q.Start; hq > 0 {
		span := j.flankSpan(hq, first.w.Start)
		res, err := j.a.dp.align(j.query[:hq], j.subj[first.w.Start-span:first.w.Start],
			dpParams{freeStart: true, spliced: spliced})
		if err != nil {
			return err
		}
		j.ops = append(append([]byte(nil), res.ops...), j.ops...)
		j.opsStart = first.w.Start - span + res.sStart
	}
	if tq := len(j.query) - last.q.End; tq > 0 {
		span := j.flankSpan(tq, len(j.subj)-last.w.End)
		res, err := j.a.dp.align(j.query[last.q.End:], j.subj[last.w.End:last.w.End+span],
			dpParams{freeEnd: true, spliced: spliced})
		if err != nil {
			return err
		}
		j.ops = append(j.ops, res.ops...)
	}
	return nil
}

func (j *job) detectPolyA() {
	floor := 0
	if j.cds != nil {
		floor = j.cds.End
	}
	j.polyA = detectPolyA(j.query, j.a.opts.MinPolyALen, j.a.opts.PolyAExtIdentity, floor)
	if j.polyA != NoPolyA {
		j.ops = trimOps(j.ops, j.polyA)
	}
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}
