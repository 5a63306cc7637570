package pixelizer

import (
	"errors"
	"fmt"
)

// Kind classifies everything that can go wrong while talking to the
// pixelizer API or handling the resulting artifact.
type Kind string

const (
	// KindFileNotFound - the local file for an upload does not exist.
	KindFileNotFound Kind = "file_not_found"
	// KindLocalIO - the local file exists but could not be read.
	KindLocalIO Kind = "local_io"
	// KindNetwork - transport-level failure before any HTTP response.
	KindNetwork Kind = "network"
	// KindAPI - the service answered with a 4xx/5xx status.
	KindAPI Kind = "api"
	// KindMalformedResponse - 2xx status but no usable payload.
	KindMalformedResponse Kind = "malformed_response"
	// KindOutputWrite - failed creating directories or writing the artifact.
	KindOutputWrite Kind = "output_write"
)

// Error is the classified failure returned by every client operation.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the classification of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
