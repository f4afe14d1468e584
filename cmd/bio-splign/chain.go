package main

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/splign/chain"
	"github.com/grailbio/splign/hit"
)

type chainFlags struct {
	hits      string
	hitFormat string
	output    string
}

const chainHeader = "#seq1\tseq2\tchain_score\tstart1\tend1\tstart2\tend2\tscore"

// seqIndex numbers sequence names in order of first appearance.
type seqIndex struct {
	names []string
	ids   map[string]int
}

func (s *seqIndex) id(name string) int {
	if id, ok := s.ids[name]; ok {
		return id
	}
	id := len(s.names)
	s.ids[name] = id
	s.names = append(s.names, name)
	return id
}

// hitSegments converts all-pairwise hits to chain segments. Each unordered
// sequence pair is stored with the smaller index first, swapping the sides
// of the hit where needed. Self hits are dropped.
func hitSegments(hits []hit.Hit) ([]chain.Segment, *seqIndex) {
	idx := &seqIndex{ids: map[string]int{}}
	var segs []chain.Segment
	for i := range hits {
		h := &hits[i]
		a, b := idx.id(h.QueryID), idx.id(h.SubjectID)
		if a == b {
			continue
		}
		seg := chain.Segment{Seq1: a, Seq2: b, Q: h.Q, S: h.S, Score: h.Score}
		if a > b {
			seg = chain.Segment{Seq1: b, Seq2: a, Q: h.S, S: h.Q, Score: h.Score}
		}
		segs = append(segs, seg)
	}
	return segs, idx
}

// chainHits selects the best chain of every sequence pair in an
// all-pairwise hit file, and writes one line per chain member.
func chainHits(ctx context.Context, flags chainFlags, opts chain.Opts) (err error) {
	format, err := hit.ParseFormat(flags.hitFormat)
	if err != nil {
		return err
	}
	hits, err := hit.ReadFile(ctx, flags.hits, format)
	if err != nil {
		return err
	}
	segs, idx := hitSegments(hits)
	chains, err := chain.Select(segs, len(idx.names), opts)
	if err != nil {
		return err
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
	w.WriteString(chainHeader)
	if err = w.EndLine(); err != nil {
		return err
	}
	kept := 0
	for _, pc := range chains {
		for _, seg := range pc.Segments {
			w.WriteString(idx.names[pc.Seq1])
			w.WriteString(idx.names[pc.Seq2])
			w.WriteFloat64(pc.Score, 'g', 6)
			w.WriteInt64(int64(seg.Q.Start + 1))
			w.WriteInt64(int64(seg.Q.End))
			w.WriteInt64(int64(seg.S.Start + 1))
			w.WriteInt64(int64(seg.S.End))
			w.WriteFloat64(seg.Score, 'g', 6)
			if err = w.EndLine(); err != nil {
				return err
			}
			kept++
		}
	}
	log.Printf("chained %d sequences: kept %d of %d segments in %d pairs",
		len(idx.names), kept, len(segs), len(chains))
	return w.Flush()
}
