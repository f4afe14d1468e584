package seqdb

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/splign"
)

// DB serves sequences from one or more FASTA sources. It implements
// splign.SeqFetcher and is safe for concurrent use.
type DB struct {
	sources []Fasta
	byName  map[string]Fasta
	files   []file.File
}

var _ splign.SeqFetcher = (*DB)(nil)

// NewDB creates a DB over the given sources. A name defined by more than one
// source is an errors.Invalid error.
func NewDB(sources ...Fasta) (*DB, error) {
	db := &DB{byName: map[string]Fasta{}}
	for _, src := range sources {
		if err := db.add(src); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) add(src Fasta) error {
	for _, name := range src.SeqNames() {
		if _, ok := db.byName[name]; ok {
			return errors.E(errors.Invalid, fmt.Sprintf("seqdb: sequence %s defined twice", name))
		}
		db.byName[name] = src
	}
	db.sources = append(db.sources, src)
	return nil
}

// Open opens FASTA files. A file with a companion ".fai" index is read on
// demand; any other file, including compressed ones, is loaded into memory.
// The DB must be closed to release the indexed files.
func Open(ctx context.Context, paths ...string) (_ *DB, err error) {
	db := &DB{byName: map[string]Fasta{}}
	defer func() {
		if err != nil {
			if cerr := db.Close(ctx); cerr != nil {
				log.Error.Printf("seqdb: close after failed open: %v", cerr)
			}
		}
	}()
	for _, path := range paths {
		src, err := db.open(ctx, path)
		if err != nil {
			return nil, errors.E(err, path)
		}
		if err := db.add(src); err != nil {
			return nil, err
		}
		log.Printf("seqdb: %s: %d sequences", path, len(src.SeqNames()))
	}
	return db, nil
}

func (db *DB) open(ctx context.Context, path string) (src Fasta, err error) {
	idx, ierr := file.Open(ctx, path+".fai")
	if ierr == nil {
		defer file.CloseAndReport(ctx, idx, &err)
		in, oerr := file.Open(ctx, path)
		if oerr != nil {
			return nil, oerr
		}
		db.files = append(db.files, in)
		return NewIndexed(in.Reader(ctx), idx.Reader(ctx))
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return New(r)
}

// Close releases the files backing indexed sources.
func (db *DB) Close(ctx context.Context) error {
	var e errors.Once
	for _, f := range db.files {
		e.Set(f.Close(ctx))
	}
	db.files = nil
	return e.Err()
}

// SeqNames returns the names of all sequences, source by source.
func (db *DB) SeqNames() []string {
	var names []string
	for _, src := range db.sources {
		names = append(names, src.SeqNames()...)
	}
	return names
}

// SeqLen implements splign.SeqFetcher.
func (db *DB) SeqLen(ctx context.Context, id string) (int, error) {
	src, ok := db.byName[id]
	if !ok {
		return 0, errors.E(errors.NotExist, fmt.Sprintf("seqdb: sequence %s not found", id))
	}
	return src.Len(id)
}

// FetchSequence implements splign.SeqFetcher.
func (db *DB) FetchSequence(ctx context.Context, id string, start, end int, strand hit.Strand) ([]byte, error) {
	src, ok := db.byName[id]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("seqdb: sequence %s not found", id))
	}
	seq, err := src.Get(id, start, end)
	if err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	if strand == hit.StrandMinus {
		splign.ReverseComplementInPlace(seq)
	}
	return seq, nil
}
