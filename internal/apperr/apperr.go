// Package apperr defines the error kinds shared by the pipeline stages and the
// HTTP layer.
package apperr

import "errors"

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	InvalidInput              Kind = "invalid_input"
	Download                  Kind = "download"
	Transcription             Kind = "transcription"
	PayloadTooLarge           Kind = "payload_too_large"
	Timeout                   Kind = "timeout"
	QuotaExceeded             Kind = "quota_exceeded"
	Segmentation              Kind = "segmentation"
	MalformedGenerationOutput Kind = "malformed_generation_output"
	Generation                Kind = "generation"
	Storage                   Kind = "storage"
	NotFound                  Kind = "not_found"
	Conflict                  Kind = "conflict"
)

// parent returns the broader kind a subkind also belongs to.
func (k Kind) parent() Kind {
	switch k {
	case PayloadTooLarge, Timeout, QuotaExceeded:
		return Transcription
	}
	return ""
}

// Error is a classified error. Msg is the human readable part; Err is the
// optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// New is shorthand for an error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the kind of the first classified error in the chain, or ""
// when none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether any classified error in err's chain has the given kind.
// Transcription subkinds also match Transcription.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind || e.Kind.parent() == kind {
			return true
		}
		err = e.Err
	}
	return false
}
