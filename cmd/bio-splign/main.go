package main

// bio-splign computes spliced alignments of transcripts (cDNA, mRNA or EST
// sequences) against a genome, starting from local-alignment hits.
//
// Example: align transcripts using BLAST m8 hits, writing Splign TSV and
// per-compartment statistics.
//
//	bio-splign align -hits hits.m8 -hit-format m8 -seqs genome.fa,tx.fa \
//	    -output out.tsv -stats stats.tsv
//
// Example: only list the compartments of every transcript.
//
//	bio-splign compart -hits hits.tsv -seqs tx.fa
//
// Example: convert a recordio dump to SAM.
//
//	bio-splign dump -format sam out.rio

import (
	"fmt"
	"runtime"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/splign/chain"
	"github.com/grailbio/splign/scoring"
	"v.io/x/lib/cmdline"
)

const hitFormatHelp = `Format of the hit file, "tabular" or "m8".
tabular: query_id subject_id query_strand subject_strand qmin qmax smin smax score identity,
with identity a fraction in [0,1].
m8: the 12-column BLAST tabular format; reversed subject coordinates mark the minus strand.
Coordinates are one-based and closed. Files ending in .gz are decompressed.`

func newCmdAlign() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "align",
		Short: "Find compartments and compute spliced alignments",
	}
	opts := newOptFlags(&cmd.Flags)
	flags := alignFlags{}
	cmd.Flags.StringVar(&flags.hits, "hits", "", "Hit file. Required.")
	cmd.Flags.StringVar(&flags.hitFormat, "hit-format", "tabular", hitFormatHelp)
	cmd.Flags.StringVar(&flags.seqs, "seqs", "", `Comma-separated list of FASTA files holding the queries and subjects.
A FASTA file with a ".fai" index next to it is read through the index. Required.`)
	cmd.Flags.StringVar(&flags.cds, "cds", "", "Optional TSV of 'query_id start stop' coding regions, one-based and closed.")
	cmd.Flags.StringVar(&flags.cache, "cache", "", `Optional result cache file. Existing entries are reused, and the
cache is rewritten with the new results at the end of the run.`)
	cmd.Flags.IntVar(&flags.parallelism, "parallelism", runtime.NumCPU(), "Number of queries aligned in parallel")
	cmd.Flags.BoolVar(&flags.preserveSeqs, "preserve-seqs", false, "Keep fetched sequences across queries instead of dropping them when the query changes")
	addOutputFlags(cmd, &flags.out)
	cmd.Flags.StringVar(&flags.out.dump, "dump", "", "Optional recordio file of the aligned compartments, readable by 'bio-splign dump'.")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("align takes no arguments, but got %v", argv)
		}
		if flags.hits == "" || flags.seqs == "" {
			return fmt.Errorf("align: -hits and -seqs are required")
		}
		ctx := vcontext.Background()
		o, err := opts.Opts(ctx)
		if err != nil {
			return err
		}
		return align(ctx, flags, o)
	})
	return cmd
}

func addOutputFlags(cmd *cmdline.Command, flags *outputFlags) {
	cmd.Flags.StringVar(&flags.output, "output", "", "Output file. Default is stdout.")
	cmd.Flags.StringVar(&flags.format, "format", formatTSV, `Output format: "tsv", "sam" or "gff".`)
	cmd.Flags.StringVar(&flags.stats, "stats", "", "Optional output file of per-compartment alignment statistics.")
	cmd.Flags.BoolVar(&flags.cdsStats, "cds-stats", false, "Add the CDS-relative statistics to -stats.")
	cmd.Flags.Float64Var(&flags.spliceWeight, "splice-weight", scoring.DefaultOpts.SpliceWeight,
		"Weight of the consensus splice fraction in the combined identity statistic")
}

func newCmdCompart() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "compart",
		Short: "List the compartments of every query",
	}
	opts := newOptFlags(&cmd.Flags)
	flags := compartFlags{}
	cmd.Flags.StringVar(&flags.hits, "hits", "", "Hit file. Required.")
	cmd.Flags.StringVar(&flags.hitFormat, "hit-format", "tabular", hitFormatHelp)
	cmd.Flags.StringVar(&flags.seqs, "seqs", "", "Optional comma-separated list of FASTA files holding the queries. Query lengths are estimated from the hits if empty.")
	cmd.Flags.StringVar(&flags.output, "output", "", "Output file. Default is stdout.")
	cmd.Flags.StringVar(&flags.hitOutput, "hit-output", "", "Optional output file of the hits kept in accepted compartments, in tabular format.")
	cmd.Flags.BoolVar(&flags.all, "all", false, "Also list the rejected compartments")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("compart takes no arguments, but got %v", argv)
		}
		if flags.hits == "" {
			return fmt.Errorf("compart: -hits is required")
		}
		ctx := vcontext.Background()
		o, err := opts.Opts(ctx)
		if err != nil {
			return err
		}
		return findCompartments(ctx, flags, o.Opts)
	})
	return cmd
}

func newCmdChain() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "chain",
		Short: "Select the best co-linear chain of every sequence pair from all-pairwise hits",
	}
	flags := chainFlags{}
	opts := chain.DefaultOpts
	cmd.Flags.StringVar(&flags.hits, "hits", "", "Hit file. Required.")
	cmd.Flags.StringVar(&flags.hitFormat, "hit-format", "tabular", hitFormatHelp)
	cmd.Flags.StringVar(&flags.output, "output", "", "Output file. Default is stdout.")
	cmd.Flags.BoolVar(&opts.HitRate, "hit-rate", opts.HitRate, "Weight segments by how consistently third sequences cover them")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", runtime.NumCPU(), "Number of sequence pairs chained in parallel")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("chain takes no arguments, but got %v", argv)
		}
		if flags.hits == "" {
			return fmt.Errorf("chain: -hits is required")
		}
		return chainHits(vcontext.Background(), flags, opts)
	})
	return cmd
}

func newCmdDump() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "dump",
		Short:    "Convert a recordio file written by 'align -dump' to text",
		ArgsName: "path",
	}
	flags := outputFlags{}
	addOutputFlags(cmd, &flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("dump takes one pathname argument, but got %v", argv)
		}
		return dump(vcontext.Background(), argv[0], flags)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-splign",
		Short:    "Spliced alignment of transcripts against a genome",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdAlign(),
			newCmdCompart(),
			newCmdChain(),
			newCmdDump(),
		},
	}
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
