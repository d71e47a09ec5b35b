package errors

import (
	stderrors "errors"
	"strings"
)

// Error codes for the comms stack. Keep stable; listeners receive them as message prefixes
// and error frames carry them across the wire.
const (
	ErrCodeConfiguration   = "comms.configuration"
	ErrCodeTransport       = "comms.transport"
	ErrCodeNotActive       = "comms.not_active"
	ErrCodeUnknownTarget   = "comms.unknown_target"
	ErrCodeTimeout         = "comms.timeout"
	ErrCodeCancelled       = "comms.cancelled"
	ErrCodeInvalidArgument = "comms.invalid_argument"
	ErrCodeSerialization   = "comms.serialization"
	ErrCodeMalformedFrame  = "comms.malformed_frame"
	ErrCodeRemote          = "comms.remote"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
// Two codes with the same string compare equal, so errors.Is matches a code
// rebuilt from an error frame against the exported variables below.
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrConfiguration   = Code(ErrCodeConfiguration)
	ErrTransport       = Code(ErrCodeTransport)
	ErrNotActive       = Code(ErrCodeNotActive)
	ErrUnknownTarget   = Code(ErrCodeUnknownTarget)
	ErrTimeout         = Code(ErrCodeTimeout)
	ErrCancelled       = Code(ErrCodeCancelled)
	ErrInvalidArgument = Code(ErrCodeInvalidArgument)
	ErrSerialization   = Code(ErrCodeSerialization)
	ErrMalformedFrame  = Code(ErrCodeMalformedFrame)
	ErrRemote          = Code(ErrCodeRemote)
)

// ordered so CodeOf is deterministic when an error joins several codes.
var known = []error{
	ErrCancelled,
	ErrTimeout,
	ErrNotActive,
	ErrUnknownTarget,
	ErrInvalidArgument,
	ErrMalformedFrame,
	ErrSerialization,
	ErrConfiguration,
	ErrTransport,
	ErrRemote,
}

// FromCode maps a wire code back to its sentinel. Unknown or empty codes map to ErrRemote.
func FromCode(code string) error {
	for _, err := range known {
		if err.Error() == code {
			return err
		}
	}

	return ErrRemote
}

// CodeOf returns the first known code found in err's chain, or ErrCodeRemote.
func CodeOf(err error) string {
	for _, sentinel := range known {
		if stderrors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	return ErrCodeRemote
}

// Message renders err for listener OnError callbacks: the code first, then the
// single-line detail.
func Message(err error) string {
	return CodeOf(err) + ": " + strings.ReplaceAll(err.Error(), "\n", "; ")
}
