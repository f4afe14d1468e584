package splign

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/splign/compart"
)

// Scoring holds the integer alignment scores. Penalties are negative.
type Scoring struct {
	Match     int32 `toml:"match"`
	Mismatch  int32 `toml:"mismatch"`
	GapOpen   int32 `toml:"gap_open"`
	GapExtend int32 `toml:"gap_extend"`
	// Splice penalties are charged once at the donor and once at the
	// acceptor of each intron. Consensus is GT (donor) and AG (acceptor);
	// semi-consensus is GC or AT (donor) and AC (acceptor).
	ConsensusSplice     int32 `toml:"consensus_splice"`
	SemiConsensusSplice int32 `toml:"semi_consensus_splice"`
	NonConsensusSplice  int32 `toml:"non_consensus_splice"`
}

// Opts configures an Aligner. The compartment options are embedded so that
// all knobs share one flat namespace in configuration files.
type Opts struct {
	compart.Opts

	// MinExonIdentity is the identity below which an aligned exon is
	// reported as a gap.
	MinExonIdentity float64 `toml:"min_exon_identity"`
	// MinTermExonLen is the query length below which a terminal exon is
	// reported as a gap.
	MinTermExonLen int `toml:"min_term_exon_len"`
	// MinPolyALen is the shortest tail accepted as polyA.
	MinPolyALen int `toml:"min_polya_len"`
	// PolyAExtIdentity is the minimum fraction of A's in a polyA tail.
	PolyAExtIdentity float64 `toml:"polya_ext_identity"`
	// EndGapDetection enables spliced alignment of the query termini into
	// the compartment's flanks, so that missed terminal exons are recovered.
	EndGapDetection bool `toml:"end_gap_detection"`
	// MinPatternHitLen is the shortest hit used as an alignment anchor.
	MinPatternHitLen int `toml:"min_pattern_hit_length"`
	// MaxDPCells bounds the size of one dynamic-programming matrix.
	MaxDPCells int `toml:"max_dp_cells"`
	// UnalignedPenalty is subtracted from the compartment score per query
	// base in gap and UTR segments.
	UnalignedPenalty float64 `toml:"unaligned_penalty"`

	Scoring Scoring `toml:"scoring"`
}

// DefaultScoring is the default alignment scoring.
var DefaultScoring = Scoring{
	Match:               1,
	Mismatch:            -1,
	GapOpen:             -4,
	GapExtend:           -1,
	ConsensusSplice:     -5,
	SemiConsensusSplice: -7,
	NonConsensusSplice:  -10,
}

// DefaultOpts is the default aligner configuration.
var DefaultOpts = Opts{
	Opts:             compart.DefaultOpts,
	MinExonIdentity:  0.75,
	MinTermExonLen:   20,
	MinPolyALen:      20,
	PolyAExtIdentity: 0.9,
	EndGapDetection:  true,
	MinPatternHitLen: 13,
	MaxDPCells:       64 << 20,
	UnalignedPenalty: 0.5,
	Scoring:          DefaultScoring,
}

// Validate checks the options for caller misuse. It returns an errors.Invalid
// error.
func (o *Opts) Validate() error {
	if err := o.Opts.Validate(); err != nil {
		return err
	}
	switch {
	case o.MinExonIdentity < 0 || o.MinExonIdentity > 1:
		return errors.E(errors.Invalid, fmt.Sprintf("min_exon_identity must be in [0,1], got %g", o.MinExonIdentity))
	case o.MinTermExonLen < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("min_term_exon_len must be non-negative, got %d", o.MinTermExonLen))
	case o.MinPolyALen <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("min_polya_len must be positive, got %d", o.MinPolyALen))
	case o.PolyAExtIdentity <= 0 || o.PolyAExtIdentity >= 1:
		return errors.E(errors.Invalid, fmt.Sprintf("polya_ext_identity must be in (0,1), got %g", o.PolyAExtIdentity))
	case o.MinPatternHitLen <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("min_pattern_hit_length must be positive, got %d", o.MinPatternHitLen))
	case o.MaxDPCells <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("max_dp_cells must be positive, got %d", o.MaxDPCells))
	case o.UnalignedPenalty < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("unaligned_penalty must be non-negative, got %g", o.UnalignedPenalty))
	}
	s := &o.Scoring
	if s.Match <= 0 || s.Mismatch >= 0 || s.GapOpen > 0 || s.GapExtend >= 0 ||
		s.ConsensusSplice > 0 || s.SemiConsensusSplice > 0 || s.NonConsensusSplice > 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("bad scoring %+v: match must be positive, penalties negative", *s))
	}
	return nil
}

// ReadOpts reads a TOML configuration file. Keys absent from the file keep
// their DefaultOpts values.
func ReadOpts(ctx context.Context, path string) (Opts, error) {
	opts := DefaultOpts
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return opts, errors.E(err, "read config", path)
	}
	md, err := toml.Decode(string(data), &opts)
	if err != nil {
		return opts, errors.E(errors.Invalid, err, "parse config", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("config %s: unknown keys %v", path, undecoded))
	}
	return opts, opts.Validate()
}
