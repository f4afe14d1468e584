// Package resultcache keeps finished compartment alignments so that repeated
// runs over the same inputs skip the dynamic programming. Entries are keyed by
// a fingerprint of the compartment and of the aligner options, stored as
// snappy-compressed splign.ToBuffer payloads, and persisted as recordio files.
package resultcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/dgryski/go-farm"
	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/splign/interval"
	"github.com/grailbio/splign/splign"
)

func init() {
	recordiozstd.Init()
}

// Cache is an in-memory splign.ResultCache. It is safe for concurrent use,
// so one Cache may serve the aligners of all workers.
type Cache struct {
	optsFP uint64

	mu      sync.Mutex
	entries map[uint64][]byte
	hits    int
	misses  int
}

var _ splign.ResultCache = (*Cache)(nil)

// New creates an empty cache for alignments computed with opts. Entries
// computed under different options never match.
func New(opts splign.Opts) *Cache {
	return &Cache{optsFP: OptsFingerprint(opts), entries: map[uint64][]byte{}}
}

// OptsFingerprint returns a fingerprint of every aligner option.
func OptsFingerprint(opts splign.Opts) uint64 {
	return farm.Fingerprint64([]byte(fmt.Sprintf("%+v", opts)))
}

func appendRange(b []byte, r interval.Range) []byte {
	b = binary.AppendVarint(b, int64(r.Start))
	return binary.AppendVarint(b, int64(r.End))
}

// Fingerprint returns the cache key of one compartment.
func (c *Cache) Fingerprint(key splign.CacheKey) uint64 {
	b := make([]byte, 0, 64+len(key.QueryID)+len(key.SubjectID))
	b = binary.LittleEndian.AppendUint64(b, c.optsFP)
	b = append(b, key.QueryID...)
	b = append(b, 0)
	b = append(b, key.SubjectID...)
	b = append(b, 0, byte(key.Strand))
	b = appendRange(b, key.Window)
	b = appendRange(b, key.CDS)
	return farm.Fingerprint64(b)
}

// Get implements splign.ResultCache. A corrupt entry is dropped and reported
// as a miss.
func (c *Cache) Get(key splign.CacheKey) (splign.AlignedCompartment, bool) {
	fp := c.Fingerprint(key)
	c.mu.Lock()
	payload, ok := c.entries[fp]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return splign.AlignedCompartment{}, false
	}
	c.mu.Unlock()
	ac, err := decode(payload)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		log.Error.Printf("resultcache: %s/%s%s %v: dropping entry: %v", key.QueryID, key.SubjectID, key.Strand, key.Window, err)
		delete(c.entries, fp)
		c.misses++
		return splign.AlignedCompartment{}, false
	}
	c.hits++
	return ac, true
}

// Put implements splign.ResultCache.
func (c *Cache) Put(key splign.CacheKey, ac splign.AlignedCompartment) {
	payload := snappy.Encode(nil, splign.ToBuffer(&ac))
	fp := c.Fingerprint(key)
	c.mu.Lock()
	c.entries[fp] = payload
	c.mu.Unlock()
}

func decode(payload []byte) (splign.AlignedCompartment, error) {
	data, err := snappy.Decode(nil, payload)
	if err != nil {
		return splign.AlignedCompartment{}, errors.E(errors.Invalid, err, "snappy")
	}
	return splign.FromBuffer(data)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the number of hits and misses so far.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Each record of a cache file is an 8-byte little-endian fingerprint followed
// by the compressed payload.
const fpLen = 8

// Save writes all entries to path, in fingerprint order.
func (c *Cache) Save(ctx context.Context, path string) (err error) {
	c.mu.Lock()
	fps := make([]uint64, 0, len(c.entries))
	for fp := range c.entries {
		fps = append(fps, fp)
	}
	records := make([][]byte, len(fps))
	sort.Slice(fps, func(i, j int) bool { return fps[i] < fps[j] })
	for i, fp := range fps {
		payload := c.entries[fp]
		rec := make([]byte, fpLen, fpLen+len(payload))
		binary.LittleEndian.PutUint64(rec, fp)
		records[i] = append(rec, payload...)
	}
	c.mu.Unlock()

	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "resultcache: create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(recordio.KeyTrailer, true)
	for _, rec := range records {
		w.Append(rec)
	}
	w.SetTrailer([]byte(fmt.Sprintf("entries=%d", len(records))))
	if err = w.Finish(); err != nil {
		return errors.E(err, "resultcache: write", path)
	}
	log.Printf("resultcache: saved %d entries to %s", len(records), path)
	return nil
}

// Load adds the entries stored at path. Entries already present are
// replaced. Entries are checked lazily, on Get.
func (c *Cache) Load(ctx context.Context, path string) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "resultcache: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	sc := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	n := 0
	for sc.Scan() {
		rec := sc.Get().([]byte)
		if len(rec) < fpLen {
			sc.Finish() // nolint: errcheck
			return errors.E(errors.Invalid, fmt.Sprintf("resultcache: %s: record %d has %d bytes", path, n, len(rec)))
		}
		payload := append([]byte(nil), rec[fpLen:]...)
		c.mu.Lock()
		c.entries[binary.LittleEndian.Uint64(rec)] = payload
		c.mu.Unlock()
		n++
	}
	if err = sc.Finish(); err != nil {
		return errors.E(err, "resultcache: read", path)
	}
	log.Printf("resultcache: loaded %d entries from %s", n, path)
	return nil
}
