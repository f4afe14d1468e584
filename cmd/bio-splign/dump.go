package main

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/splign/encoding/alnout"
	"github.com/grailbio/splign/splign"
)

// dump converts a recordio file written by "align -dump" to a text format.
// Subject lengths are not stored in the dump, so SAM output declares each
// reference with the end of its last aligned segment.
func dump(ctx context.Context, path string, flags outputFlags) (err error) {
	var comps []splign.AlignedCompartment
	if err = alnout.ReadBuffersFile(ctx, path, func(ac splign.AlignedCompartment) error {
		comps = append(comps, ac)
		return nil
	}); err != nil {
		return err
	}
	var (
		names   []string
		lengths []int
		ref     = map[string]int{}
	)
	for i := range comps {
		ac := &comps[i]
		j, ok := ref[ac.SubjectID]
		if !ok {
			j = len(names)
			ref[ac.SubjectID] = j
			names = append(names, ac.SubjectID)
			lengths = append(lengths, 1)
		}
		for _, s := range ac.Segments {
			if s.S.End > lengths[j] {
				lengths[j] = s.S.End
			}
		}
	}
	flags.dump = ""
	out, err := newOutputs(ctx, flags, names, lengths)
	if err != nil {
		return err
	}
	for i := range comps {
		if err = out.Write(&comps[i]); err != nil {
			break
		}
	}
	if e := out.Close(ctx); e != nil && err == nil {
		err = e
	}
	log.Printf("dumped %d compartments from %s", len(comps), path)
	return err
}
