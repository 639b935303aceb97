package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn reports a header that lacks one of the required columns.
	ErrMissingColumn = errors.New("required column missing")
	// ErrEmptyInput reports a source without a header row.
	ErrEmptyInput = errors.New("input has no header row")
	// ErrShortRow reports a data row with fewer cells than the header requires.
	ErrShortRow = errors.New("row is missing cells")
)

// CastError is raised when a raw field cannot be cast to its typed representation.
// It aborts the whole run.
type CastError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *CastError) Error() string {
	return fmt.Sprintf("line %d column %s: cannot cast %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *CastError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err comes from the input data itself. Fatal errors
// fail the same way under every evaluation strategy, so they are never retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var castErr *CastError
	if errors.As(err, &castErr) {
		return true
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return true
	}
	return errors.Is(err, ErrMissingColumn) || errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrShortRow)
}
