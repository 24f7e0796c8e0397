package httpclient

import (
	"errors"
	"fmt"
)

// Kind classifies a failed request. Each kind maps to one CLI exit code.
type Kind int

const (
	MalformedURL Kind = iota + 1
	UnsupportedProtocol
	ConnectionFailure
	Timeout
	EmptyReply
	BadResponse
	EncodingFailure
)

func (k Kind) String() string {
	switch k {
	case MalformedURL:
		return "malformed URL"
	case UnsupportedProtocol:
		return "unsupported protocol"
	case ConnectionFailure:
		return "connection failure"
	case Timeout:
		return "timeout"
	case EmptyReply:
		return "empty reply from server"
	case BadResponse:
		return "bad response"
	case EncodingFailure:
		return "encoding failure"
	default:
		return fmt.Sprintf("unknown error kind: %d", int(k))
	}
}

// ExitCode returns the process exit code for k, following curl's numbering.
func (k Kind) ExitCode() int {
	switch k {
	case UnsupportedProtocol:
		return 1
	case MalformedURL, EncodingFailure:
		return 3
	case BadResponse:
		return 6
	case ConnectionFailure:
		return 7
	case Timeout:
		return 28
	case EmptyReply:
		return 52
	default:
		return 1
	}
}

// Response parse failures. They are returned wrapped in a BadResponse *Error.
var (
	ErrNotHTTP             = errors.New("reply does not start with HTTP")
	ErrNoLineEnding        = errors.New("no line ending found")
	ErrMalformedStatusLine = errors.New("malformed status line")
	ErrStatusOutOfRange    = errors.New("status code out of range")
	ErrMalformedHeaders    = errors.New("malformed headers")
	ErrResponseTooLarge    = errors.New("response too large")
)

// ErrMissingHost is returned when a request is encoded without a Host header.
var ErrMissingHost = errors.New("request has no Host header")

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind   Kind
	Msg    string
	Scheme string // set for UnsupportedProtocol
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// KindOf reports the Kind carried by err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
