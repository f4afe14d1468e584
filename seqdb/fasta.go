// Package seqdb serves sequence residues from FASTA files. See
// http://www.htslib.org/doc/faidx.html. Briefly, FASTA files consist of a
// number of named sequences that may be interrupted by newlines. For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Sequence names are the stretch of characters up to the first space after
// '>'. '>chr1 A viral sequence' becomes 'chr1'. Residues are returned upper
// case.
package seqdb

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const bufferInitSize = 1024 * 1024 * 300 // 300 MB

// Fasta is a set of named sequences.
type Fasta interface {
	// Get returns residues [start, end) of the named sequence. The returned
	// slice is owned by the caller. Get is thread-safe.
	Get(seqName string, start, end int) ([]byte, error)

	// Len returns the length of the named sequence.
	Len(seqName string) (int, error)

	// SeqNames returns the names of all sequences, in the order of appearance.
	SeqNames() []string
}

type memFasta struct {
	seqs     map[string][]byte
	seqNames []string
}

func seqName(header []byte) string {
	return strings.Split(string(header[1:]), " ")[0]
}

// New creates a Fasta that holds all the FASTA data from r in memory.
func New(r io.Reader) (Fasta, error) {
	f := &memFasta{seqs: make(map[string][]byte)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var (
		name string
		seq  []byte
		seen bool
	)
	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if seen {
				f.add(name, seq)
			}
			name, seq, seen = seqName(line), nil, true
			if name == "" {
				return nil, errors.Errorf("malformed FASTA header %q", line)
			}
			continue
		}
		if !seen {
			return nil, errors.Errorf("malformed FASTA file: residues before the first header")
		}
		seq = append(seq, bytes.ToUpper(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	if seen {
		f.add(name, seq)
	}
	return f, nil
}

// NewMemory creates a Fasta from in-memory sequences. Names are reported in
// the given order.
func NewMemory(names []string, seqs []string) (Fasta, error) {
	if len(names) != len(seqs) {
		return nil, errors.Errorf("%d names for %d sequences", len(names), len(seqs))
	}
	f := &memFasta{seqs: make(map[string][]byte, len(names))}
	for i, name := range names {
		if _, ok := f.seqs[name]; ok {
			return nil, errors.Errorf("duplicate sequence name %s", name)
		}
		f.add(name, []byte(strings.ToUpper(seqs[i])))
	}
	return f, nil
}

func (f *memFasta) add(name string, seq []byte) {
	if _, ok := f.seqs[name]; !ok {
		f.seqNames = append(f.seqNames, name)
	}
	f.seqs[name] = seq
}

// Get implements Fasta.Get.
func (f *memFasta) Get(seqName string, start, end int) ([]byte, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return nil, errors.Errorf("sequence not found: %s", seqName)
	}
	if end < start || start < 0 || end > len(s) {
		return nil, errors.Errorf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, len(s))
	}
	return append([]byte(nil), s[start:end]...), nil
}

// Len implements Fasta.Len.
func (f *memFasta) Len(seqName string) (int, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return len(s), nil
}

// SeqNames implements Fasta.SeqNames.
func (f *memFasta) SeqNames() []string { return f.seqNames }
