// Package alnout writes aligned compartments in Splign's tabular format, as
// SAM records, as GFF features, and as recordio files of flat buffers.
package alnout

import (
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/splign"
)

// TSVHeader is the comment line written before the first segment.
const TSVHeader = "#id\tquery\tsubject\tidentity\tlength\tqstart\tqend\tsstart\tsend\ttype\tannot\tdetails"

// TSVWriter writes one line per segment:
//
//	id query subject identity length qstart qend sstart send type annot details
//
// The id is the compartment ID prefixed by the subject strand. Coordinates are
// one-based and closed; on the minus strand sstart > send. Empty fields are
// "-". Failed compartments are written as a comment line.
type TSVWriter struct {
	w          *tsv.Writer
	headerDone bool
}

// NewTSVWriter creates a TSVWriter.
func NewTSVWriter(w io.Writer) *TSVWriter {
	return &TSVWriter{w: tsv.NewWriter(w)}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (t *TSVWriter) writeInt(v int, ok bool) {
	if !ok {
		t.w.WriteString("-")
		return
	}
	t.w.WriteInt64(int64(v))
}

// Write writes the segments of ac.
func (t *TSVWriter) Write(ac *splign.AlignedCompartment) error {
	if !t.headerDone {
		t.w.WriteString(TSVHeader)
		if err := t.w.EndLine(); err != nil {
			return err
		}
		t.headerDone = true
	}
	id := ac.SubjectStrand.String() + strconv.Itoa(ac.ID)
	if ac.Status == splign.StatusError {
		t.w.WriteString(fmt.Sprintf("# %s\t%s\t%s\terror\t%s", id, ac.QueryID, ac.SubjectID, ac.Msg))
		return t.w.EndLine()
	}
	for i := range ac.Segments {
		s := &ac.Segments[i]
		t.w.WriteString(id)
		t.w.WriteString(ac.QueryID)
		t.w.WriteString(ac.SubjectID)
		if s.Type == splign.SegExon {
			t.w.WriteFloat64(s.Identity, 'g', 4)
		} else {
			t.w.WriteString("-")
		}
		length := s.Q.Len()
		if s.Type == splign.SegIntron {
			length = s.S.Len()
		}
		t.w.WriteInt64(int64(length))
		t.writeInt(s.Q.Start+1, !s.Q.Empty())
		t.writeInt(s.Q.End, !s.Q.Empty())
		sStart, sEnd := s.S.Start+1, s.S.End
		if ac.SubjectStrand == hit.StrandMinus {
			sStart, sEnd = sEnd, sStart
		}
		t.writeInt(sStart, !s.S.Empty())
		t.writeInt(sEnd, !s.S.Empty())
		t.w.WriteString(s.Type.String())
		t.w.WriteString(dash(s.Annot))
		t.w.WriteString(dash(s.Details))
		if err := t.w.EndLine(); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes buffered output.
func (t *TSVWriter) Flush() error { return t.w.Flush() }
