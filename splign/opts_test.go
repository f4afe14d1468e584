package splign

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestReadOpts(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	path := filepath.Join(dir, "splign.toml")
	assert.NoError(t, ioutil.WriteFile(path, []byte(`
max_intron = 1000
min_exon_identity = 0.8
end_gap_detection = false

[scoring]
match = 2
`), 0644))
	opts, err := ReadOpts(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, opts.MaxIntron, 1000)
	expect.EQ(t, opts.MinExonIdentity, 0.8)
	expect.False(t, opts.EndGapDetection)
	expect.EQ(t, opts.Scoring.Match, int32(2))
	expect.EQ(t, opts.Scoring.Mismatch, DefaultScoring.Mismatch)
	expect.EQ(t, opts.MaxExtent, DefaultOpts.MaxExtent)

	bad := filepath.Join(dir, "bad.toml")
	assert.NoError(t, ioutil.WriteFile(bad, []byte("max_intorn = 10\n"), 0644))
	_, err = ReadOpts(ctx, bad)
	expect.True(t, errors.Is(errors.Invalid, err))

	assert.NoError(t, ioutil.WriteFile(bad, []byte("min_polya_len = 0\n"), 0644))
	_, err = ReadOpts(ctx, bad)
	expect.EQ(t, ErrorKind(err), KindFormat)

	_, err = ReadOpts(ctx, filepath.Join(dir, "missing.toml"))
	expect.NotNil(t, err)
}

func TestValidateScoring(t *testing.T) {
	o := DefaultOpts
	assert.NoError(t, o.Validate())
	o.Scoring.Mismatch = 1
	expect.EQ(t, ErrorKind(o.Validate()), KindFormat)
	o = DefaultOpts
	o.MaxDPCells = 0
	expect.EQ(t, ErrorKind(o.Validate()), KindFormat)
}
