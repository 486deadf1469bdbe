package detection

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable means the model could not be loaded or reached
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrRuntimeFailure means the model was loaded but inference failed
	ErrRuntimeFailure = errors.New("inference runtime failure")
)

// InferenceError carries the backend name and one of the sentinel kinds above
type InferenceError struct {
	Backend string
	Kind    error
	Err     error
}

func (e *InferenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Backend, e.Kind, e.Err)
}

func (e *InferenceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(backend string, err error) error {
	return &InferenceError{Backend: backend, Kind: ErrModelUnavailable, Err: err}
}

func runtimeFailure(backend string, err error) error {
	return &InferenceError{Backend: backend, Kind: ErrRuntimeFailure, Err: err}
}
