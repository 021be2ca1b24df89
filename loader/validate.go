package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/types"
)

// ValidationError collects all compile and validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string

	causes []error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

// Unwrap exposes the underlying error kinds to errors.Is.
func (e *ValidationError) Unwrap() []error { return e.causes }

func (e *ValidationError) addf(where string, cause error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if where != "" {
		msg = where + " " + msg
	}
	e.Errors = append(e.Errors, msg)
	if cause != nil {
		e.causes = append(e.causes, cause)
	}
}

// validate builds a catalog from compiled dialogues, which checks the
// structural invariants, and reports its problems with source positions.
func validate(dialogues []types.Dialogue, where map[uint16]string, reg *predicate.Registry) (*catalog.Catalog, error) {
	cat, err := catalog.New(dialogues, reg)
	if err == nil {
		return cat, nil
	}
	var cve *catalog.ValidationError
	if !errors.As(err, &cve) {
		return nil, err
	}
	ve := &ValidationError{Warnings: cve.Warnings}
	for _, le := range cve.Errors {
		ve.addf(where[le.Dialogue], le, "%s", le.Error())
	}
	return nil, ve
}
