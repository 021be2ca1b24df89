package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/engine/predicate"
)

// Load error kinds. Each LoadError unwraps to one of these.
var (
	ErrDuplicateID       = errors.New("duplicate dialogue id")
	ErrTargetOutOfRange  = dialogue.ErrTargetOutOfRange
	ErrUnknownPredicate  = predicate.ErrUnknownPredicate
	ErrSignatureMismatch = predicate.ErrSignatureMismatch
	ErrMalformed         = codec.ErrMalformed
	ErrEmptyDialogue     = dialogue.ErrEmptyDialogue
	ErrPageID            = dialogue.ErrPageID
)

// ErrNoRegistry is returned by Load without a predicate registry. Clients
// that cannot check conditions use LoadClient.
var ErrNoRegistry = errors.New("server asset load needs a predicate registry")

// LoadError is one fatal content problem. Page and Response are -1 when not
// applicable; Dialogue is meaningless for ErrMalformed.
type LoadError struct {
	Kind     error
	Dialogue uint16
	Page     int
	Response int
	Detail   string
}

func (e *LoadError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("dialogue %d: %v", e.Dialogue, e.Kind)
}

func (e *LoadError) Unwrap() error { return e.Kind }

// ValidationError collects every load error and warning found while
// building a catalog. A catalog is never returned alongside one.
type ValidationError struct {
	Errors   []*LoadError
	Warnings []string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, le := range e.Errors {
		msgs[i] = le.Error()
	}
	return fmt.Sprintf("catalog validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(msgs, "\n  "))
}

// Unwrap exposes the individual load errors to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, le := range e.Errors {
		errs[i] = le
	}
	return errs
}

func (e *ValidationError) add(le *LoadError) {
	e.Errors = append(e.Errors, le)
}
