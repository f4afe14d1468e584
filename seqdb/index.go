package seqdb

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex writes a "samtools faidx" index of the FASTA data read from
// in (http://www.htslib.org/doc/faidx.html). The index can be passed to
// NewIndexed. Each sequence is assumed to use one line width, except for its
// last line.
func GenerateIndex(out io.Writer, in io.Reader) error {
	var (
		r      = bufio.NewReader(in)
		w      = tsv.NewWriter(out)
		cur    *indexRow
		offset int64
	)
	emit := func() error {
		if cur == nil {
			return nil
		}
		w.WriteString(cur.Name)
		w.WriteInt64(cur.Length)
		w.WriteInt64(cur.Offset)
		w.WriteInt64(cur.LineBase)
		w.WriteInt64(cur.LineWidth)
		return w.EndLine()
	}
	for {
		raw, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return errors.E(err, "fasta index")
		}
		offset += int64(len(raw))
		if line := bytes.TrimRight(raw, "\r\n"); len(line) > 0 {
			switch {
			case line[0] == '>':
				if e := emit(); e != nil {
					return e
				}
				cur = &indexRow{Name: seqName(line), Offset: offset}
			case cur == nil:
				return errors.E(errors.Invalid, "fasta index: sequence data before the first header")
			default:
				if cur.LineWidth == 0 {
					cur.LineBase, cur.LineWidth = int64(len(line)), int64(len(raw))
				}
				cur.Length += int64(len(line))
			}
		}
		if err == io.EOF {
			break
		}
	}
	if offset == 0 {
		return errors.E(errors.Invalid, "fasta index: empty input")
	}
	if err := emit(); err != nil {
		return err
	}
	return w.Flush()
}
