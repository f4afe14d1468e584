package splign

import (
	"context"
	"testing"

	"github.com/grailbio/splign/hit"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestReverseComplement(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"A", "T"},
		{"ACGTN", "NACGT"},
		{"AACCG", "CGGTT"},
		{"ACXT", "ANGT"},
	} {
		b := []byte(tc.in)
		ReverseComplementInPlace(b)
		expect.EQ(t, string(b), tc.want)
	}
}

func TestSeqCache(t *testing.T) {
	ctx := context.Background()
	f := newMemFetcher()
	f.seqs["chr1"] = []byte("AAACCCGGGTTT")
	f.seqs["tx"] = []byte("ACGT")

	c := NewSeqCache(f, CacheClearPerQuery)
	c.StartQuery("q1")
	n, err := c.SeqLen(ctx, "chr1")
	assert.NoError(t, err)
	expect.EQ(t, n, 12)
	seq, err := c.FetchSequence(ctx, "chr1", 2, 7, hit.StrandPlus)
	assert.NoError(t, err)
	expect.EQ(t, string(seq), "ACCCG")
	seq, err = c.FetchSequence(ctx, "chr1", 2, 7, hit.StrandMinus)
	assert.NoError(t, err)
	expect.EQ(t, string(seq), "CGGGT")
	expect.EQ(t, c.NumFetches(), 1)

	_, err = c.FetchSequence(ctx, "chr1", 10, 13, hit.StrandPlus)
	expect.EQ(t, ErrorKind(err), KindFetch)

	c.StartQuery("q1")
	_, err = c.SeqLen(ctx, "chr1")
	assert.NoError(t, err)
	expect.EQ(t, c.NumFetches(), 1)
	c.StartQuery("q2")
	_, err = c.SeqLen(ctx, "chr1")
	assert.NoError(t, err)
	expect.EQ(t, c.NumFetches(), 2)

	p := NewSeqCache(f, CachePreserve)
	p.StartQuery("q1")
	_, err = p.SeqLen(ctx, "tx")
	assert.NoError(t, err)
	p.StartQuery("q2")
	_, err = p.SeqLen(ctx, "tx")
	assert.NoError(t, err)
	expect.EQ(t, p.NumFetches(), 1)
	p.Clear()
	_, err = p.SeqLen(ctx, "tx")
	assert.NoError(t, err)
	expect.EQ(t, p.NumFetches(), 2)
}

type shortFetcher struct{ *memFetcher }

func (s shortFetcher) FetchSequence(ctx context.Context, id string, start, end int, strand hit.Strand) ([]byte, error) {
	seq, err := s.memFetcher.FetchSequence(ctx, id, start, end, strand)
	if len(seq) > 0 {
		seq = seq[1:]
	}
	return seq, err
}

func TestFetchChecked(t *testing.T) {
	ctx := context.Background()
	f := newMemFetcher()
	f.seqs["chr1"] = []byte("ACGTACGT")
	seq, err := fetchChecked(ctx, f, "chr1", 1, 5, hit.StrandPlus)
	assert.NoError(t, err)
	expect.EQ(t, string(seq), "CGTA")

	_, err = fetchChecked(ctx, shortFetcher{f}, "chr1", 1, 5, hit.StrandPlus)
	expect.EQ(t, ErrorKind(err), KindFetch)
	f.fail["chr1"] = true
	_, err = fetchChecked(ctx, f, "chr1", 1, 5, hit.StrandPlus)
	expect.EQ(t, ErrorKind(err), KindFetch)

	delete(f.fail, "chr1")
	_, err = NewSeqCache(shortFetcher{f}, CachePreserve).SeqLen(ctx, "chr1")
	expect.EQ(t, ErrorKind(err), KindFetch)
}
