package splign

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/splign/hit"
)

// SeqFetcher supplies raw residues. Implementations may block; they are
// responsible for their own timeouts and retries.
type SeqFetcher interface {
	// SeqLen returns the length of sequence id.
	SeqLen(ctx context.Context, id string) (int, error)
	// FetchSequence returns the upper-case residues of [start, end) of
	// sequence id. For StrandMinus the reverse complement of that range is
	// returned.
	FetchSequence(ctx context.Context, id string, start, end int, strand hit.Strand) ([]byte, error)
}

// CachePolicy controls when a SeqCache forgets sequences.
type CachePolicy int

const (
	// CacheClearPerQuery drops all cached sequences when the aligner moves on
	// to a query with a different id. This suits batch runs.
	CacheClearPerQuery CachePolicy = iota
	// CachePreserve keeps sequences until Clear is called. This suits
	// interactive use with a small, fixed set of sequences.
	CachePreserve
)

// SeqCache is a SeqFetcher that fetches each distinct sequence in full once
// and serves ranges from memory. It is safe for concurrent use, although each
// worker normally owns its own cache.
type SeqCache struct {
	fetcher SeqFetcher
	policy  CachePolicy

	mu        sync.Mutex
	seqs      map[string][]byte
	lastQuery string
	nFetch    int
}

// NewSeqCache creates a cache in front of fetcher.
func NewSeqCache(fetcher SeqFetcher, policy CachePolicy) *SeqCache {
	return &SeqCache{fetcher: fetcher, policy: policy, seqs: map[string][]byte{}}
}

// StartQuery tells the cache that alignment of query id begins. Under
// CacheClearPerQuery, a change of query id clears the cache.
func (c *SeqCache) StartQuery(id string) {
	c.mu.Lock()
	if c.policy == CacheClearPerQuery && id != c.lastQuery && len(c.seqs) > 0 {
		if log.At(log.Debug) {
			log.Debug.Printf("seqcache: query %s: dropping %d sequences", id, len(c.seqs))
		}
		c.seqs = map[string][]byte{}
	}
	c.lastQuery = id
	c.mu.Unlock()
}

// Clear drops every cached sequence.
func (c *SeqCache) Clear() {
	c.mu.Lock()
	c.seqs = map[string][]byte{}
	c.mu.Unlock()
}

// NumFetches returns the number of calls made to the underlying fetcher.
func (c *SeqCache) NumFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nFetch
}

func (c *SeqCache) get(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq, ok := c.seqs[id]; ok {
		return seq, nil
	}
	n, err := c.fetcher.SeqLen(ctx, id)
	if err != nil {
		return nil, err
	}
	c.nFetch++
	seq, err := c.fetcher.FetchSequence(ctx, id, 0, n, hit.StrandPlus)
	if err != nil {
		return nil, err
	}
	if len(seq) != n {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("seqcache: %s: got %d of %d residues", id, len(seq), n))
	}
	c.seqs[id] = seq
	return seq, nil
}

// SeqLen implements SeqFetcher.
func (c *SeqCache) SeqLen(ctx context.Context, id string) (int, error) {
	seq, err := c.get(ctx, id)
	return len(seq), err
}

// FetchSequence implements SeqFetcher.
func (c *SeqCache) FetchSequence(ctx context.Context, id string, start, end int, strand hit.Strand) ([]byte, error) {
	seq, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if start < 0 || end > len(seq) || end < start {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("seqcache: %s: range [%d,%d) outside [0,%d)", id, start, end, len(seq)))
	}
	out := make([]byte, end-start)
	copy(out, seq[start:end])
	if strand == hit.StrandMinus {
		ReverseComplementInPlace(out)
	}
	return out, nil
}

var complement [256]byte

func init() {
	for i := range complement {
		complement[i] = 'N'
	}
	for _, p := range []string{"AT", "CG", "GC", "TA", "at", "cg", "gc", "ta"} {
		complement[p[0]] = p[1]
	}
	complement['N'], complement['n'] = 'N', 'n'
}

// ReverseComplementInPlace reverse-complements seq. Non-ACGT residues become
// 'N'.
func ReverseComplementInPlace(seq []byte) {
	for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = complement[seq[j]], complement[seq[i]]
	}
	if len(seq)%2 == 1 {
		mid := len(seq) / 2
		seq[mid] = complement[seq[mid]]
	}
}

// fetchChecked calls f and converts failures and short reads into
// errors.Unavailable.
func fetchChecked(ctx context.Context, f SeqFetcher, id string, start, end int, strand hit.Strand) ([]byte, error) {
	seq, err := f.FetchSequence(ctx, id, start, end, strand)
	if err != nil {
		if errors.Is(errors.Unavailable, err) {
			return nil, err
		}
		return nil, errors.E(errors.Unavailable, err, fmt.Sprintf("fetch %s:%d-%d", id, start, end))
	}
	if len(seq) != end-start {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("fetch %s:%d-%d: truncated to %d residues", id, start, end, len(seq)))
	}
	return seq, nil
}
