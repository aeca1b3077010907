package domain

import "errors"

type FailureKind int

const (
	FailureLoad FailureKind = iota
	FailureInvalidRate
	FailureInitialization
	FailureInvalidSequenceLength
	FailureFileCreation
	FailureConversion
	FailureEngineStart
	FailureSequencerStart
	FailureIO
)

func (k FailureKind) String() string {
	switch k {
	case FailureLoad:
		return "load"
	case FailureInvalidRate:
		return "invalid rate"
	case FailureInitialization:
		return "initialization"
	case FailureInvalidSequenceLength:
		return "invalid sequence length"
	case FailureFileCreation:
		return "file creation"
	case FailureConversion:
		return "conversion"
	case FailureEngineStart:
		return "engine start"
	case FailureSequencerStart:
		return "sequencer start"
	case FailureIO:
		return "io"
	default:
		return "unknown"
	}
}

// Failure is a tagged playback or render error. Treat as immutable once
// constructed.
type Failure struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

func WrapFailure(kind FailureKind, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, Cause: cause}
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return f.Message + ": " + f.Cause.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// KindOf extracts the failure kind from err or any error it wraps.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is, or wraps, a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
