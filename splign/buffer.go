package splign

import (
	"encoding/binary"
	"fmt"
	"math"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/splign/hit"
	"github.com/grailbio/splign/interval"
)

// bufferVersion is the first byte of every serialized compartment.
const bufferVersion = 1

// byteBuffer is a growable varint encoder and a bounds-checked decoder. It is
// used either for reading or for writing, never both. A read past the end
// sets err and returns zero values from then on.
type byteBuffer struct {
	b   []byte
	err error
}

// Ensure that b.b can store at least n more bytes.
func (b *byteBuffer) alloc(n int) []byte {
	blen := len(b.b)
	newLen := blen + n
	if cap(b.b) >= newLen {
		b.b = b.b[:newLen]
		return b.b[blen:]
	}
	newCap := (newLen/16 + 1) * 16
	if newCap < cap(b.b)*2 {
		newCap = cap(b.b) * 2
	}
	newBuf := make([]byte, newLen, newCap)
	copy(newBuf, b.b)
	b.b = newBuf
	return b.b[blen:]
}

func (b *byteBuffer) putUint8(v uint8) { b.alloc(1)[0] = v }

func (b *byteBuffer) putFloat64(v float64) {
	binary.LittleEndian.PutUint64(b.alloc(8), math.Float64bits(v))
}

func (b *byteBuffer) putVarint(v int) {
	x := b.alloc(binary.MaxVarintLen64)
	n := binary.PutVarint(x, int64(v))
	b.b = b.b[:len(b.b)-(binary.MaxVarintLen64-n)]
}

func (b *byteBuffer) putString(s string) {
	b.putVarint(len(s))
	copy(b.alloc(len(s)), s)
}

func (b *byteBuffer) putRange(r interval.Range) {
	b.putVarint(r.Start)
	b.putVarint(r.End)
}

func (b *byteBuffer) underflow(what string) {
	if b.err == nil {
		b.err = errors.E(errors.Invalid, fmt.Sprintf("compartment buffer: truncated reading %s", what))
	}
	b.b = nil
}

func (b *byteBuffer) getUint8() uint8 {
	if len(b.b) < 1 {
		b.underflow("uint8")
		return 0
	}
	v := b.b[0]
	b.b = b.b[1:]
	return v
}

func (b *byteBuffer) getFloat64() float64 {
	if len(b.b) < 8 {
		b.underflow("float64")
		return 0
	}
	v := binary.LittleEndian.Uint64(b.b)
	b.b = b.b[8:]
	return math.Float64frombits(v)
}

func (b *byteBuffer) getVarint() int {
	v, n := binary.Varint(b.b)
	if n <= 0 {
		b.underflow("varint")
		return 0
	}
	b.b = b.b[n:]
	return int(v)
}

func (b *byteBuffer) getString() string {
	n := b.getVarint()
	if n < 0 || n > len(b.b) {
		b.underflow("string")
		return ""
	}
	s := string(b.b[:n])
	b.b = b.b[n:]
	return s
}

func (b *byteBuffer) getRange() interval.Range {
	start := b.getVarint()
	return interval.Range{Start: start, End: b.getVarint()}
}

// ToBuffer serializes ac. The layout is a version byte, the fields in
// declaration order, and an 8-byte seahash checksum of everything before it.
func ToBuffer(ac *AlignedCompartment) []byte {
	var b byteBuffer
	b.putUint8(bufferVersion)
	b.putVarint(ac.ID)
	b.putString(ac.QueryID)
	b.putString(ac.SubjectID)
	b.putUint8(uint8(ac.Status))
	b.putString(ac.Msg)
	b.putUint8(uint8(ac.QueryStrand))
	b.putUint8(uint8(ac.SubjectStrand))
	b.putVarint(ac.QueryLen)
	if ac.CDS != nil {
		b.putUint8(1)
		b.putRange(*ac.CDS)
	} else {
		b.putUint8(0)
	}
	b.putVarint(ac.PolyA)
	b.putVarint(len(ac.Segments))
	for i := range ac.Segments {
		s := &ac.Segments[i]
		b.putUint8(uint8(s.Type))
		b.putRange(s.Q)
		b.putRange(s.S)
		b.putFloat64(s.Identity)
		b.putFloat64(s.Score)
		b.putString(s.Details)
		b.putString(s.Annot)
	}
	b.putFloat64(ac.Score)
	sum := seahash.Sum64(b.b)
	binary.LittleEndian.PutUint64(b.alloc(8), sum)
	return b.b
}

// FromBuffer parses the output of ToBuffer. Corrupt or truncated input yields
// an errors.Invalid error.
func FromBuffer(data []byte) (AlignedCompartment, error) {
	var ac AlignedCompartment
	if len(data) < 9 {
		return ac, errors.E(errors.Invalid, fmt.Sprintf("compartment buffer: %d bytes is too short", len(data)))
	}
	body := data[:len(data)-8]
	if sum := binary.LittleEndian.Uint64(data[len(data)-8:]); sum != seahash.Sum64(body) {
		return ac, errors.E(errors.Invalid, "compartment buffer: checksum mismatch")
	}
	b := byteBuffer{b: body}
	if v := b.getUint8(); v != bufferVersion {
		return ac, errors.E(errors.Invalid, fmt.Sprintf("compartment buffer: unknown version %d", v))
	}
	ac.ID = b.getVarint()
	ac.QueryID = b.getString()
	ac.SubjectID = b.getString()
	ac.Status = Status(b.getUint8())
	ac.Msg = b.getString()
	ac.QueryStrand = hit.Strand(b.getUint8())
	ac.SubjectStrand = hit.Strand(b.getUint8())
	ac.QueryLen = b.getVarint()
	if b.getUint8() != 0 {
		cds := b.getRange()
		ac.CDS = &cds
	}
	ac.PolyA = b.getVarint()
	n := b.getVarint()
	if n < 0 || n > len(b.b) {
		return AlignedCompartment{}, errors.E(errors.Invalid, fmt.Sprintf("compartment buffer: bad segment count %d", n))
	}
	if n > 0 {
		ac.Segments = make([]Segment, n)
	}
	for i := 0; i < n && b.err == nil; i++ {
		s := &ac.Segments[i]
		s.Type = SegmentType(b.getUint8())
		s.Q = b.getRange()
		s.S = b.getRange()
		s.Identity = b.getFloat64()
		s.Score = b.getFloat64()
		s.Details = b.getString()
		s.Annot = b.getString()
	}
	ac.Score = b.getFloat64()
	if b.err != nil {
		return AlignedCompartment{}, b.err
	}
	if len(b.b) != 0 {
		return AlignedCompartment{}, errors.E(errors.Invalid, fmt.Sprintf("compartment buffer: %d trailing bytes", len(b.b)))
	}
	return ac, nil
}
