package worklist

import (
	"errors"
	"fmt"

	"github.com/hupe1980/worklist/snapshot"
)

var (
	// ErrClosed is returned after the session has been closed.
	ErrClosed = errors.New("worklist: session closed")

	// ErrNotFound is returned when no work list is loaded under a name.
	ErrNotFound = errors.New("worklist: work list not found")

	// ErrAlreadyLoaded is returned when a work list with the same name is loaded.
	ErrAlreadyLoaded = errors.New("worklist: work list already loaded")

	// ErrNoStateStore is returned by Commit without a configured state store.
	ErrNoStateStore = errors.New("worklist: no state store configured")

	// ErrInvalidNavigation is returned for an unknown navigation operation.
	ErrInvalidNavigation = errors.New("worklist: invalid navigation")
)

// ErrLoad reports that a work list could not be loaded.
//
// The underlying error can be accessed via errors.Unwrap.
type ErrLoad struct {
	Name  string
	cause error
}

func (e *ErrLoad) Error() string {
	return fmt.Sprintf("load work list %q: %v", e.Name, e.cause)
}

func (e *ErrLoad) Unwrap() error { return e.cause }

func translateError(name string, err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, snapshot.ErrNotFound) {
		return &ErrLoad{Name: name, cause: fmt.Errorf("%w: %w", ErrNotFound, err)}
	}

	return &ErrLoad{Name: name, cause: err}
}
