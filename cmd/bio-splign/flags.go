package main

import (
	"context"
	"flag"

	"github.com/grailbio/splign/splign"
)

// optFlags registers command-line flags for splign.Opts. Flags given on the
// command line override the values read from -config.
type optFlags struct {
	fs     *flag.FlagSet
	config *string
	v      splign.Opts
	apply  map[string]func(dst *splign.Opts)
}

func newOptFlags(fs *flag.FlagSet) *optFlags {
	f := &optFlags{
		fs:     fs,
		config: fs.String("config", "", "TOML file with aligner options. Flags given on the command line override it."),
		v:      splign.DefaultOpts,
		apply:  map[string]func(dst *splign.Opts){},
	}
	f.intVar("max-extent", "Genomic extension of compartment windows, in bases",
		func(o *splign.Opts) *int { return &o.MaxExtent })
	f.floatVar("compartment-penalty", "Penalty for starting a new compartment, as a fraction of the query length",
		func(o *splign.Opts) *float64 { return &o.Penalty })
	f.floatVar("min-compartment-idty", "Minimal compartment identity, as a fraction of the query length",
		func(o *splign.Opts) *float64 { return &o.MinIdentity })
	f.floatVar("min-singleton-idty", "Minimal identity of a compartment that is the only one of its query",
		func(o *splign.Opts) *float64 { return &o.MinSingletonIdentity })
	f.intVar("min-singleton-idty-bps", "Minimal matching bases of a singleton compartment; the smaller of this and -min-singleton-idty applies",
		func(o *splign.Opts) *int { return &o.MinSingletonIdentityBps })
	f.intVar("max-intron", "Maximal intron length",
		func(o *splign.Opts) *int { return &o.MaxIntron })
	f.boolVar("by-coverage", "Ignore hit identities and compartmentize by coverage only",
		func(o *splign.Opts) *bool { return &o.ByCoverage })
	f.floatVar("min-exon-identity", "Minimal identity of an aligned exon",
		func(o *splign.Opts) *float64 { return &o.MinExonIdentity })
	f.intVar("min-term-exon-len", "Minimal query length of a terminal exon",
		func(o *splign.Opts) *int { return &o.MinTermExonLen })
	f.intVar("min-polya-len", "Minimal polyA tail length",
		func(o *splign.Opts) *int { return &o.MinPolyALen })
	f.floatVar("polya-ext-identity", "Minimal fraction of A's in a polyA tail",
		func(o *splign.Opts) *float64 { return &o.PolyAExtIdentity })
	f.boolVar("end-gap-detection", "Align unaligned query ends into the compartment flanks",
		func(o *splign.Opts) *bool { return &o.EndGapDetection })
	f.intVar("max-dp-cells", "Maximal number of cells of one alignment matrix",
		func(o *splign.Opts) *int { return &o.MaxDPCells })
	return f
}

func (f *optFlags) intVar(name, usage string, field func(o *splign.Opts) *int) {
	f.fs.IntVar(field(&f.v), name, *field(&f.v), usage)
	f.apply[name] = func(dst *splign.Opts) { *field(dst) = *field(&f.v) }
}

func (f *optFlags) floatVar(name, usage string, field func(o *splign.Opts) *float64) {
	f.fs.Float64Var(field(&f.v), name, *field(&f.v), usage)
	f.apply[name] = func(dst *splign.Opts) { *field(dst) = *field(&f.v) }
}

func (f *optFlags) boolVar(name, usage string, field func(o *splign.Opts) *bool) {
	f.fs.BoolVar(field(&f.v), name, *field(&f.v), usage)
	f.apply[name] = func(dst *splign.Opts) { *field(dst) = *field(&f.v) }
}

// Opts returns the options from -config, or the defaults, with the flags set
// on the command line applied on top. It must be called after parsing.
func (f *optFlags) Opts(ctx context.Context) (splign.Opts, error) {
	opts := splign.DefaultOpts
	if *f.config != "" {
		var err error
		if opts, err = splign.ReadOpts(ctx, *f.config); err != nil {
			return opts, err
		}
	}
	f.fs.Visit(func(fl *flag.Flag) {
		if apply, ok := f.apply[fl.Name]; ok {
			apply(&opts)
		}
	})
	return opts, opts.Validate()
}
