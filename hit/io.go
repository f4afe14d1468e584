package hit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/splign/interval"
	"github.com/klauspost/compress/gzip"
)

// Format identifies a textual hit format. All text formats use one-based,
// closed coordinates.
type Format int

const (
	// FormatTabular is the 10-column format
	//   query_id subject_id query_strand subject_strand qmin qmax smin smax score identity
	// with identity given as a fraction in [0,1]. Percentages are rejected;
	// use FormatM8 for percent identities.
	FormatTabular Format = iota
	// FormatM8 is the 12-column BLAST tabular format
	//   qseqid sseqid pident length mismatch gapopen qstart qend sstart send evalue bitscore
	// where a reversed coordinate pair marks the minus strand.
	FormatM8
)

// ParseFormat parses "tabular" or "m8".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "tabular", "tsv", "":
		return FormatTabular, nil
	case "m8", "blast":
		return FormatM8, nil
	}
	return FormatTabular, errors.E(errors.Invalid, fmt.Sprintf("unknown hit format %q", s))
}

type tabularRow struct {
	QueryID       string
	SubjectID     string
	QueryStrand   string
	SubjectStrand string
	QMin, QMax    int
	SMin, SMax    int
	Score         float64
	Identity      float64
}

type m8Row struct {
	QueryID   string
	SubjectID string
	PIdent    float64
	Length    int
	Mismatch  int
	GapOpen   int
	QStart    int
	QEnd      int
	SStart    int
	SEnd      int
	EValue    string
	BitScore  float64
}

// closedRange converts a one-based closed pair, possibly reversed, into a
// zero-based half-open range and the strand implied by its direction.
func closedRange(a, b int) (interval.Range, Strand) {
	if a <= b {
		return interval.Range{Start: a - 1, End: b}, StrandPlus
	}
	return interval.Range{Start: b - 1, End: a}, StrandMinus
}

func (r *tabularRow) hit() (Hit, error) {
	qs, err := ParseStrand(r.QueryStrand)
	if err != nil {
		return Hit{}, err
	}
	ss, err := ParseStrand(r.SubjectStrand)
	if err != nil {
		return Hit{}, err
	}
	if r.QMin > r.QMax || r.SMin > r.SMax || r.QMin < 1 || r.SMin < 1 {
		return Hit{}, errors.E(errors.Invalid,
			fmt.Sprintf("hit %s/%s: bad coordinates %d-%d/%d-%d", r.QueryID, r.SubjectID, r.QMin, r.QMax, r.SMin, r.SMax))
	}
	if r.Identity < 0 || r.Identity > 1 {
		return Hit{}, errors.E(errors.Invalid,
			fmt.Sprintf("hit %s/%s: identity %g is not a fraction in [0,1]", r.QueryID, r.SubjectID, r.Identity))
	}
	h := Hit{
		QueryID:       r.QueryID,
		SubjectID:     r.SubjectID,
		QueryStrand:   qs,
		SubjectStrand: ss,
		Q:             interval.Range{Start: r.QMin - 1, End: r.QMax},
		S:             interval.Range{Start: r.SMin - 1, End: r.SMax},
		Score:         r.Score,
		Identity:      r.Identity,
	}
	return h, h.Validate()
}

func (r *m8Row) hit() (Hit, error) {
	if r.QStart < 1 || r.QEnd < 1 || r.SStart < 1 || r.SEnd < 1 {
		return Hit{}, errors.E(errors.Invalid,
			fmt.Sprintf("hit %s/%s: non-positive coordinate", r.QueryID, r.SubjectID))
	}
	q, qs := closedRange(r.QStart, r.QEnd)
	s, ss := closedRange(r.SStart, r.SEnd)
	h := Hit{
		QueryID:       r.QueryID,
		SubjectID:     r.SubjectID,
		QueryStrand:   qs,
		SubjectStrand: ss,
		Q:             q,
		S:             s,
		Score:         r.BitScore,
		Identity:      r.PIdent / 100,
	}
	return h, h.Validate()
}

// Read parses hits in the given format. Lines starting with '#' are skipped.
func Read(r io.Reader, format Format) ([]Hit, error) {
	tr := tsv.NewReader(r)
	tr.Comment = '#'
	var hits []Hit
	for {
		var (
			h   Hit
			err error
		)
		switch format {
		case FormatM8:
			var row m8Row
			if err = tr.Read(&row); err == nil {
				h, err = row.hit()
			}
		default:
			var row tabularRow
			if err = tr.Read(&row); err == nil {
				h, err = row.hit()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("hit line %d", len(hits)+1))
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// ReadFile reads hits from path. Compressed files (e.g. ".gz") are
// decompressed transparently.
func ReadFile(ctx context.Context, path string, format Format) (hits []Hit, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var inr io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	hits, err = Read(bufio.NewReaderSize(inr, 64<<10), format)
	if err != nil {
		err = errors.E(err, path)
	}
	return
}

// Write writes hits in FormatTabular, preceded by a '#' header line.
func Write(w io.Writer, hits []Hit) error {
	out := tsv.NewWriter(w)
	out.WriteString("#query_id\tsubject_id\tquery_strand\tsubject_strand\tqmin\tqmax\tsmin\tsmax\tscore\tidentity")
	if err := out.EndLine(); err != nil {
		return err
	}
	for i := range hits {
		h := &hits[i]
		out.WriteString(h.QueryID)
		out.WriteString(h.SubjectID)
		out.WriteString(h.QueryStrand.String())
		out.WriteString(h.SubjectStrand.String())
		out.WriteInt64(int64(h.Q.Start + 1))
		out.WriteInt64(int64(h.Q.End))
		out.WriteInt64(int64(h.S.Start + 1))
		out.WriteInt64(int64(h.S.End))
		out.WriteFloat64(h.Score, 'g', -1)
		out.WriteFloat64(h.Identity, 'g', -1)
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}

// WriteFile writes hits to path in FormatTabular, gzip-compressing when the
// path ends in ".gz".
func WriteFile(ctx context.Context, path string, hits []Hit) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	if !strings.HasSuffix(path, ".gz") {
		return Write(out.Writer(ctx), hits)
	}
	gz := gzip.NewWriter(out.Writer(ctx))
	if err = Write(gz, hits); err != nil {
		return err
	}
	return gz.Close()
}
