package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/splign/resultcache"
	"github.com/grailbio/splign/seqdb"
	"github.com/grailbio/splign/splign"
	"golang.org/x/sync/errgroup"
)

type alignFlags struct {
	hits         string
	hitFormat    string
	seqs         string
	cds          string
	cache        string
	parallelism  int
	preserveSeqs bool
	out          outputFlags
}

// queryResult is the output of one query, tagged with the query's position
// in the input.
type queryResult struct {
	index int
	comps []splign.AlignedCompartment
}

// subjectRefs lists the subjects named by hits, in order of first
// appearance, with their lengths. Subjects missing from db are logged and
// left out; their compartments fail to align and are reported as errors.
func subjectRefs(ctx context.Context, db *seqdb.DB, hits []hit.Hit) (names []string, lengths []int, err error) {
	seen := map[string]bool{}
	for i := range hits {
		id := hits[i].SubjectID
		if seen[id] {
			continue
		}
		seen[id] = true
		n, err := db.SeqLen(ctx, id)
		if errors.Is(errors.NotExist, err) {
			log.Error.Printf("subject %s: %v", id, err)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		names = append(names, id)
		lengths = append(lengths, n)
	}
	return names, lengths, nil
}

// queryFailure is the result reported for a query whose hits were rejected
// before any compartment was formed.
func queryFailure(hits []hit.Hit, err error) splign.AlignedCompartment {
	return splign.AlignedCompartment{
		ID:            1,
		QueryID:       hits[0].QueryID,
		SubjectID:     hits[0].SubjectID,
		Status:        splign.StatusError,
		Msg:           err.Error(),
		QueryStrand:   hit.StrandPlus,
		SubjectStrand: hits[0].SubjectStrand,
		PolyA:         splign.NoPolyA,
	}
}

// align runs compartment finding and spliced alignment for every query in
// the hit file. Output is written in the order in which queries first
// appear. It returns an error if any compartment failed to align; all
// results are written regardless.
func align(ctx context.Context, flags alignFlags, opts splign.Opts) (err error) {
	format, err := hit.ParseFormat(flags.hitFormat)
	if err != nil {
		return err
	}
	hits, err := hit.ReadFile(ctx, flags.hits, format)
	if err != nil {
		return err
	}
	queries := hit.GroupByQuery(hits)
	log.Printf("read %d hits for %d queries from %s", len(hits), len(queries), flags.hits)

	db, err := seqdb.Open(ctx, strings.Split(flags.seqs, ",")...)
	if err != nil {
		return err
	}
	defer func() {
		if e := db.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var cds map[string]interval.Range
	if flags.cds != "" {
		if cds, err = readCDS(ctx, flags.cds); err != nil {
			return err
		}
	}
	var rc *resultcache.Cache
	if flags.cache != "" {
		rc = resultcache.New(opts)
		if _, err := file.Stat(ctx, flags.cache); err == nil {
			if err := rc.Load(ctx, flags.cache); err != nil {
				return err
			}
		} else if !errors.Is(errors.NotExist, err) {
			return errors.E(err, "stat", flags.cache)
		}
	}
	names, lengths, err := subjectRefs(ctx, db, hits)
	if err != nil {
		return err
	}
	out, err := newOutputs(ctx, flags.out, names, lengths)
	if err != nil {
		return err
	}

	policy := splign.CacheClearPerQuery
	if flags.preserveSeqs {
		policy = splign.CachePreserve
	}
	parallelism := flags.parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > len(queries) {
		parallelism = len(queries)
	}
	results := make(chan queryResult, 2*parallelism+1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(results)
		if parallelism == 0 {
			return nil
		}
		return traverse.Each(parallelism, func(worker int) error {
			a, err := splign.NewAligner(opts, splign.NewSeqCache(db, policy))
			if err != nil {
				return err
			}
			if rc != nil {
				a.SetResultCache(rc)
			}
			for qi := worker; qi < len(queries); qi += parallelism {
				queryID := queries[qi][0].QueryID
				var c *interval.Range
				if r, ok := cds[queryID]; ok {
					c = &r
				}
				comps, err := a.Run(gctx, queries[qi], c)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					log.Error.Printf("query %s: %v", queryID, err)
					comps = []splign.AlignedCompartment{queryFailure(queries[qi], err)}
				}
				select {
				case results <- queryResult{index: qi, comps: comps}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	})
	g.Go(func() error {
		pending := map[int][]splign.AlignedCompartment{}
		next := 0
		for r := range results {
			pending[r.index] = r.comps
			for {
				comps, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				for i := range comps {
					if err := out.Write(&comps[i]); err != nil {
						return err
					}
				}
				next++
			}
		}
		return nil
	})
	err = g.Wait()
	if e := out.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return err
	}
	if rc != nil {
		hits, misses := rc.Stats()
		log.Printf("result cache: %d hits, %d misses", hits, misses)
		if err := rc.Save(ctx, flags.cache); err != nil {
			return err
		}
	}
	log.Printf("aligned %d queries: %d compartments ok, %d empty, %d failed",
		len(queries), out.numOK, out.numEmpty, out.numFailed)
	if out.numFailed > 0 {
		return errors.E(fmt.Sprintf("%d compartments failed to align", out.numFailed))
	}
	return nil
}
