package alnout

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/splign/splign"
)

func init() {
	recordiozstd.Init()
}

// BufferWriter writes aligned compartments to a recordio file, one
// splign.ToBuffer record per compartment.
type BufferWriter struct {
	rio recordio.Writer
}

// NewBufferWriter creates a BufferWriter. Finish must be called to complete
// the file.
func NewBufferWriter(w io.Writer) *BufferWriter {
	rio := recordio.NewWriter(w, recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	return &BufferWriter{rio: rio}
}

// Write appends ac.
func (b *BufferWriter) Write(ac *splign.AlignedCompartment) error {
	b.rio.Append(splign.ToBuffer(ac))
	return nil
}

// Finish flushes and completes the file.
func (b *BufferWriter) Finish() error { return b.rio.Finish() }

// ReadBuffers calls fn for every compartment stored in r, in order.
func ReadBuffers(r io.ReadSeeker, fn func(ac splign.AlignedCompartment) error) error {
	sc := recordio.NewScanner(r, recordio.ScannerOpts{})
	n := 0
	for sc.Scan() {
		ac, err := splign.FromBuffer(sc.Get().([]byte))
		if err != nil {
			sc.Finish() // nolint: errcheck
			return errors.E(err, fmt.Sprintf("record %d", n))
		}
		if err := fn(ac); err != nil {
			sc.Finish() // nolint: errcheck
			return err
		}
		n++
	}
	return sc.Finish()
}

// ReadBuffersFile is ReadBuffers over the file at path.
func ReadBuffersFile(ctx context.Context, path string, fn func(ac splign.AlignedCompartment) error) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	return ReadBuffers(in.Reader(ctx), fn)
}
