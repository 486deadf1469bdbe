package source

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the camera did not answer the liveness probe
	ErrUnreachable = errors.New("camera unreachable")
	// ErrStreamUnavailable means the camera answered but its video stream could not be opened
	ErrStreamUnavailable = errors.New("stream unavailable")
	// ErrEndOfStream means the stream ended or the connection dropped
	ErrEndOfStream = errors.New("end of stream")
	// ErrDecodeFailure means bytes arrived but did not decode into an image
	ErrDecodeFailure = errors.New("frame decode failure")
	// ErrClosed is returned by ReadNext after Close
	ErrClosed = errors.New("source closed")
)

// ConnectError is returned by Open. Kind is ErrUnreachable or ErrStreamUnavailable.
type ConnectError struct {
	Target string
	Kind   error
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect %s: %v", e.Target, e.Kind)
	}
	return fmt.Sprintf("connect %s: %v: %v", e.Target, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ReadError is returned by ReadNext. Kind is ErrEndOfStream, ErrDecodeFailure or ErrClosed.
type ReadError struct {
	Target string
	Kind   error
	Err    error
}

func (e *ReadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("read %s: %v", e.Target, e.Kind)
	}
	return fmt.Sprintf("read %s: %v: %v", e.Target, e.Kind, e.Err)
}

func (e *ReadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func connectErr(target string, kind, err error) error {
	return &ConnectError{Target: target, Kind: kind, Err: err}
}

func readErr(target string, kind, err error) error {
	return &ReadError{Target: target, Kind: kind, Err: err}
}
