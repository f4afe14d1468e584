package splign

// detectPolyA returns the start of the polyA tail of q, or NoPolyA. The scan
// walks left from the end of q scoring +1 per A and -x/(1-x) per other
// residue, where x is minIdentity, and picks the leftmost position of maximum
// score. The tail is accepted if it has at least minLen residues and at least
// minIdentity of them are A. The tail never starts before floor, which is the
// CDS end when one is known.
func detectPolyA(q []byte, minLen int, minIdentity float64, floor int) int {
	if floor < 0 {
		floor = 0
	}
	penalty := minIdentity / (1 - minIdentity)
	var score, best float64
	start := len(q)
	for i := len(q) - 1; i >= floor; i-- {
		if q[i] == 'A' {
			score++
		} else {
			score -= penalty
		}
		if score > best {
			best, start = score, i
		}
	}
	n := len(q) - start
	if n < minLen {
		return NoPolyA
	}
	nA := 0
	for _, c := range q[start:] {
		if c == 'A' {
			nA++
		}
	}
	if float64(nA) < minIdentity*float64(n) {
		return NoPolyA
	}
	return start
}

// trimOps cuts an alignment transcript so that it consumes exactly qlen query
// residues, dropping subject-only operations at the cut.
func trimOps(ops []byte, qlen int) []byte {
	if qlen == 0 {
		return ops[:0]
	}
	q := 0
	for i, op := range ops {
		if op != opDel && op != opIntron {
			q++
			if q == qlen {
				return ops[:i+1]
			}
		}
	}
	return ops
}
