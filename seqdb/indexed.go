package seqdb

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// indexRow is one line of a .fai index: "<sequence name>\t<length>\t<byte
// offset>\t<bases per line>\t<bytes per line>", e.g. "chr3\t12345\t9000\t80\t81".
type indexRow struct {
	Name      string
	Length    int64
	Offset    int64
	LineBase  int64
	LineWidth int64
}

type indexedFasta struct {
	seqs     map[string]indexRow
	seqNames []string

	mu     sync.Mutex
	reader io.ReadSeeker
	bufOff int64
	buf    []byte // caches file contents starting at bufOff.
}

// NewIndexed creates a Fasta that performs random lookups through the given
// .fai index, without reading the data into memory.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	rows, err := readIndex(index)
	if err != nil {
		return nil, err
	}
	f := &indexedFasta{seqs: make(map[string]indexRow, len(rows)), reader: fasta}
	for _, row := range rows {
		if row.LineBase <= 0 || row.LineWidth < row.LineBase {
			return nil, errors.Errorf("invalid index line for %s: %d bases in %d bytes per line",
				row.Name, row.LineBase, row.LineWidth)
		}
		f.seqs[row.Name] = row
		f.seqNames = append(f.seqNames, row.Name)
	}
	sort.SliceStable(f.seqNames, func(i, j int) bool {
		return f.seqs[f.seqNames[i]].Offset < f.seqs[f.seqNames[j]].Offset
	})
	return f, nil
}

func readIndex(index io.Reader) ([]indexRow, error) {
	r := tsv.NewReader(index)
	var rows []indexRow
	for {
		var row indexRow
		err := r.Read(&row)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "invalid index")
		}
		rows = append(rows, row)
	}
}

// IndexLengths reads a .fai index and returns the length of every sequence.
// This doesn't require reading the FASTA file itself.
func IndexLengths(index io.Reader) (map[string]int, error) {
	rows, err := readIndex(index)
	if err != nil {
		return nil, err
	}
	lengths := make(map[string]int, len(rows))
	for _, row := range rows {
		lengths[row.Name] = int(row.Length)
	}
	return lengths, nil
}

// Len implements Fasta.Len.
func (f *indexedFasta) Len(seqName string) (int, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found in index: %s", seqName)
	}
	return int(ent.Length), nil
}

// Read range [off, off+n) from the underlying fasta file.
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off < f.bufOff || limit > f.bufOff+int64(len(f.buf)) {
		if newOffset, err := f.reader.Seek(off, io.SeekStart); err != nil || newOffset != off {
			return nil, errors.Errorf("failed to seek to offset %d: %d, %v", off, newOffset, err)
		}
		bufSize := 8192
		if bufSize < n {
			bufSize = n
		}
		if cap(f.buf) < bufSize {
			f.buf = make([]byte, bufSize)
		}
		f.buf = f.buf[:bufSize]
		bytesRead, err := io.ReadFull(f.reader, f.buf)
		if bytesRead < n {
			f.buf = f.buf[:0]
			return nil, errors.Errorf("unexpected end of file at offset %d (bad index? file doesn't end in newline?)", off+int64(bytesRead))
		}
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		f.bufOff = off
		f.buf = f.buf[:bytesRead]
	}
	return f.buf[off-f.bufOff : limit-f.bufOff], nil
}

// Get implements Fasta.Get.
func (f *indexedFasta) Get(seqName string, start, end int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ent, ok := f.seqs[seqName]
	if !ok {
		return nil, errors.Errorf("sequence not found in index: %s", seqName)
	}
	if end < start || start < 0 || int64(end) > ent.Length {
		return nil, errors.Errorf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, ent.Length)
	}
	if start == end {
		return []byte{}, nil
	}
	s, e := int64(start), int64(end)
	// Start the read at a byte offset allowing for the newline characters of
	// the lines before it.
	charsPerNewline := ent.LineWidth - ent.LineBase
	offset := ent.Offset + s + charsPerNewline*(s/ent.LineBase)
	firstLineBases := ent.LineBase - s%ent.LineBase
	newlinesToRead := int64(0)
	if e-s > firstLineBases {
		newlinesToRead = 1 + (e-s-firstLineBases)/ent.LineBase
	}
	buffer, err := f.read(offset, int(e-s+newlinesToRead*charsPerNewline))
	if err != nil {
		return nil, err
	}
	result := make([]byte, 0, e-s)
	linePos := (offset - ent.Offset) % ent.LineWidth
	for _, c := range buffer {
		if linePos < ent.LineBase {
			result = append(result, c)
		}
		if linePos++; linePos == ent.LineWidth {
			linePos = 0
		}
	}
	if int64(len(result)) != e-s {
		return nil, errors.Errorf("%s:%d-%d: read %d residues (bad index?)", seqName, start, end, len(result))
	}
	return bytes.ToUpper(result), nil
}

// SeqNames implements Fasta.SeqNames.
func (f *indexedFasta) SeqNames() []string { return f.seqNames }
