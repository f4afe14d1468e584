package splign

import "github.com/grailbio/base/errors"

// Kind classifies alignment failures.
type Kind int

const (
	// KindOther is any failure not listed below.
	KindOther Kind = iota
	// KindFormat is malformed or geometrically inconsistent input, and
	// configuration misuse. Errors of this kind carry errors.Invalid.
	KindFormat
	// KindMemory means a dynamic-programming matrix would exceed
	// Opts.MaxDPCells. Errors of this kind carry errors.Precondition.
	KindMemory
	// KindFetch is a failed or truncated sequence fetch. Errors of this kind
	// carry errors.Unavailable.
	KindFetch
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindMemory:
		return "memory"
	case KindFetch:
		return "fetch"
	}
	return "other"
}

// ErrorKind classifies err.
func ErrorKind(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(errors.Invalid, err):
		return KindFormat
	case errors.Is(errors.Precondition, err):
		return KindMemory
	case errors.Is(errors.Unavailable, err):
		return KindFetch
	}
	return KindOther
}
