package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrClientNotBound indicates a call site that requires a bound client
	// found none on the current hub.
	ErrClientNotBound = errors.New("hub: client not bound")
	// ErrEventUndefined indicates a backend produced no event for an input
	// that should always yield one.
	ErrEventUndefined = errors.New("hub: event was undefined when it should be an event")
	// ErrNotInstalled indicates an operation that requires an enabled,
	// installed client was invoked on a disabled one.
	ErrNotInstalled = errors.New("hub: client is not installed")
)

// InvariantError reports misuse of the API by the embedding application. It
// is never produced for conditions the hub absorbs silently.
type InvariantError struct {
	Component string
	Op        string
	Err       error
}

func (e *InvariantError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hub: invariant violated in %s.%s: %v", componentLabel(e.Component), e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInvariantError wraps err with component and operation metadata. An
// existing InvariantError keeps its metadata and only has blanks filled in.
func NewInvariantError(component, op string, err error) error {
	if err == nil {
		return nil
	}

	var invErr *InvariantError
	if errors.As(err, &invErr) {
		if invErr.Component == "" {
			invErr.Component = component
		}
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}

	return &InvariantError{
		Component: component,
		Op:        op,
		Err:       err,
	}
}

// PanicError carries a value recovered from a panic so it can travel as an
// error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hub: recovered panic: %v", e.Value)
}

// Unwrap exposes the recovered value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if e == nil {
		return nil
	}
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func componentLabel(component string) string {
	if component == "" {
		return "unknown"
	}
	return component
}

// errorFromRecovered turns a recovered value into an error, leaving errors
// untouched.
func errorFromRecovered(recovered any) error {
	if recovered == nil {
		return nil
	}
	if err, ok := recovered.(error); ok {
		return err
	}
	return &PanicError{Value: recovered}
}
