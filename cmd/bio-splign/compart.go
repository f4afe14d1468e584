package main

import (
	"context"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/splign/compart"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/seqdb"
)

type compartFlags struct {
	hits      string
	hitFormat string
	seqs      string
	output    string
	hitOutput string
	all       bool
}

const compartHeader = "#query\tcompartment\tsubject\tstrand\taccepted\tqstart\tqend\tsstart\tsend\twstart\twend\tidentity\thits"

// findCompartments writes the compartments of every query in the hit file.
// With -seqs, query lengths come from the sequence files; otherwise they are
// estimated from the hits. With -hit-output, the member hits of accepted
// compartments are written as a filtered hit file.
func findCompartments(ctx context.Context, flags compartFlags, opts compart.Opts) (err error) {
	format, err := hit.ParseFormat(flags.hitFormat)
	if err != nil {
		return err
	}
	hits, err := hit.ReadFile(ctx, flags.hits, format)
	if err != nil {
		return err
	}
	finder, err := compart.NewFinder(opts)
	if err != nil {
		return err
	}
	var db *seqdb.DB
	if flags.seqs != "" {
		if db, err = seqdb.Open(ctx, strings.Split(flags.seqs, ",")...); err != nil {
			return err
		}
		defer func() {
			if e := db.Close(ctx); e != nil && err == nil {
				err = e
			}
		}()
	}
	s, err := createSink(ctx, flags.output)
	if err != nil {
		return err
	}
	defer func() {
		if e := s.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	w := tsv.NewWriter(s.bw)
	w.WriteString(compartHeader)
	if err = w.EndLine(); err != nil {
		return err
	}

	var kept []hit.Hit
	numComps := 0
	for _, qhits := range hit.GroupByQuery(hits) {
		queryID := qhits[0].QueryID
		qlen := 0
		if db != nil {
			if qlen, err = db.SeqLen(ctx, queryID); err != nil {
				return err
			}
		}
		filtered := hit.RemoveOverlaps(qhits)
		var comps []compart.Compartment
		if flags.all {
			comps, err = finder.FindAll(filtered, qlen)
		} else {
			comps, err = finder.Find(filtered, qlen)
		}
		if err != nil {
			return err
		}
		for i := range comps {
			c := &comps[i]
			w.WriteString(queryID)
			w.WriteInt64(int64(i + 1))
			w.WriteString(c.SubjectID)
			w.WriteString(c.Strand.String())
			if c.Accepted {
				w.WriteString("yes")
			} else {
				w.WriteString("no")
			}
			w.WriteInt64(int64(c.Box.Q.Start + 1))
			w.WriteInt64(int64(c.Box.Q.End))
			w.WriteInt64(int64(c.Box.S.Start + 1))
			w.WriteInt64(int64(c.Box.S.End))
			w.WriteInt64(int64(c.Window.Start + 1))
			w.WriteInt64(int64(c.Window.End))
			w.WriteFloat64(c.Identity, 'g', 4)
			w.WriteInt64(int64(len(c.Hits)))
			if err = w.EndLine(); err != nil {
				return err
			}
			if c.Accepted {
				kept = append(kept, c.Hits...)
				numComps++
			}
		}
	}
	if err = w.Flush(); err != nil {
		return err
	}
	log.Printf("found %d compartments holding %d of %d hits", numComps, len(kept), len(hits))
	if flags.hitOutput != "" {
		return hit.WriteFile(ctx, flags.hitOutput, kept)
	}
	return nil
}
