package main

// This file defines the output sinks of bio-splign. An outputs object fans
// every aligned compartment out to the text output (TSV, SAM or GFF), the
// optional recordio dump, and the optional statistics table.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/splign/encoding/alnout"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/splign/scoring"
	"github.com/grailbio/splign/splign"
)

// compartWriter is implemented by the alnout writers.
type compartWriter interface {
	Write(ac *splign.AlignedCompartment) error
}

// sink is one output file. Path "" or "-" means stdout.
type sink struct {
	f  file.File
	bw *bufio.Writer
}

func createSink(ctx context.Context, path string) (*sink, error) {
	if path == "" || path == "-" {
		return &sink{bw: bufio.NewWriterSize(os.Stdout, 1<<20)}, nil
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	return &sink{f: f, bw: bufio.NewWriterSize(f.Writer(ctx), 1<<20)}, nil
}

func (s *sink) Close(ctx context.Context) error {
	err := s.bw.Flush()
	if s.f != nil {
		if e := s.f.Close(ctx); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Output formats accepted by -format.
const (
	formatTSV = "tsv"
	formatSAM = "sam"
	formatGFF = "gff"
)

// newTextWriter creates the writer for format. names and lengths describe
// the subject sequences; only SAM uses them.
func newTextWriter(w io.Writer, format string, names []string, lengths []int) (compartWriter, func() error, error) {
	switch format {
	case formatTSV, "":
		tw := alnout.NewTSVWriter(w)
		return tw, tw.Flush, nil
	case formatSAM:
		sw, err := alnout.NewSAMWriter(w, names, lengths)
		if err != nil {
			return nil, nil, err
		}
		return sw, func() error { return nil }, nil
	case formatGFF:
		return alnout.NewGFFWriter(w), func() error { return nil }, nil
	}
	return nil, nil, errors.E(errors.Invalid, fmt.Sprintf("unknown output format %q", format))
}

// statsWriter writes one line per statistic of every successful compartment:
//
//	query compartment subject strand stat value
type statsWriter struct {
	w     *tsv.Writer
	flags scoring.Flags
	opts  scoring.Opts
}

func newStatsWriter(w io.Writer, flags scoring.Flags, opts scoring.Opts) *statsWriter {
	sw := &statsWriter{w: tsv.NewWriter(w), flags: flags, opts: opts}
	sw.w.WriteString("#query\tcompartment\tsubject\tstrand\tstat\tvalue")
	sw.w.EndLine() // nolint: errcheck
	return sw
}

func (s *statsWriter) Write(ac *splign.AlignedCompartment) error {
	if ac.Status != splign.StatusOK {
		return nil
	}
	set, err := scoring.ComputeStats(ac.Segments, ac.QueryLen, ac.CDS, s.flags, s.opts)
	if err != nil {
		return errors.E(err, "stats", ac.QueryID)
	}
	for _, sc := range set {
		s.w.WriteString(ac.QueryID)
		s.w.WriteInt64(int64(ac.ID))
		s.w.WriteString(ac.SubjectID)
		s.w.WriteString(ac.SubjectStrand.String())
		s.w.WriteString(sc.Name)
		s.w.WriteFloat64(sc.Value, 'g', 6)
		if err := s.w.EndLine(); err != nil {
			return err
		}
	}
	return nil
}

func (s *statsWriter) Flush() error { return s.w.Flush() }

type outputFlags struct {
	output string
	format string
	dump   string
	stats  string
	// cdsStats adds the CDS-relative statistics.
	cdsStats bool
	// spliceWeight is scoring.Opts.SpliceWeight.
	spliceWeight float64
}

// outputs writes aligned compartments to every configured sink.
type outputs struct {
	sinks   []*sink
	writers []compartWriter
	flushes []func() error
	dump    *alnout.BufferWriter

	numOK, numEmpty, numFailed int
}

func newOutputs(ctx context.Context, flags outputFlags, names []string, lengths []int) (_ *outputs, err error) {
	o := &outputs{}
	defer func() {
		if err != nil {
			o.Close(ctx) // nolint: errcheck
		}
	}()
	s, err := createSink(ctx, flags.output)
	if err != nil {
		return nil, err
	}
	o.sinks = append(o.sinks, s)
	w, flush, err := newTextWriter(s.bw, flags.format, names, lengths)
	if err != nil {
		return nil, err
	}
	o.writers = append(o.writers, w)
	o.flushes = append(o.flushes, flush)

	if flags.dump != "" {
		if s, err = createSink(ctx, flags.dump); err != nil {
			return nil, err
		}
		o.sinks = append(o.sinks, s)
		o.dump = alnout.NewBufferWriter(s.bw)
		o.writers = append(o.writers, o.dump)
	}
	if flags.stats != "" {
		if s, err = createSink(ctx, flags.stats); err != nil {
			return nil, err
		}
		o.sinks = append(o.sinks, s)
		statFlags := scoring.BasicNonCds
		if flags.cdsStats {
			statFlags = scoring.AllStats
		}
		sw := newStatsWriter(s.bw, statFlags, scoring.Opts{SpliceWeight: flags.spliceWeight})
		o.writers = append(o.writers, sw)
		o.flushes = append(o.flushes, sw.Flush)
	}
	return o, nil
}

func (o *outputs) Write(ac *splign.AlignedCompartment) error {
	switch ac.Status {
	case splign.StatusOK:
		o.numOK++
	case splign.StatusEmpty:
		o.numEmpty++
	default:
		o.numFailed++
	}
	for _, w := range o.writers {
		if err := w.Write(ac); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every sink. It must be called once.
func (o *outputs) Close(ctx context.Context) error {
	e := errors.Once{}
	for _, fl := range o.flushes {
		e.Set(fl())
	}
	if o.dump != nil {
		e.Set(o.dump.Finish())
	}
	for _, s := range o.sinks {
		e.Set(s.Close(ctx))
	}
	return e.Err()
}

type cdsRow struct {
	QueryID string
	Start   int
	Stop    int
}

// readCDS reads a TSV of "query_id start stop" lines with one-based closed
// coordinates. Lines starting with '#' are skipped.
func readCDS(ctx context.Context, path string) (cds map[string]interval.Range, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open cds", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := tsv.NewReader(in.Reader(ctx))
	r.Comment = '#'
	cds = map[string]interval.Range{}
	for line := 1; ; line++ {
		var row cdsRow
		err = r.Read(&row)
		if err == io.EOF {
			return cds, nil
		}
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("%s:%d", path, line))
		}
		if row.Start < 1 || row.Stop < row.Start {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: bad cds %d-%d", path, line, row.Start, row.Stop))
		}
		cds[row.QueryID] = interval.Range{Start: row.Start - 1, End: row.Stop}
	}
}
