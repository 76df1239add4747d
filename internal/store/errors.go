package store

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned for a missing data source or layer.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest is returned for names that fail identifier validation.
	ErrBadRequest = errors.New("bad request")
)

// QueryError is a store-level failure. The handle that produced it should be
// considered poisoned and discarded.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func queryErr(op string, err error) error {
	return &QueryError{Op: op, Err: err}
}

// IsQueryError reports whether err carries a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

var safeIdentPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidIdent reports whether s may be interpolated into query text.
func ValidIdent(s string) bool {
	return safeIdentPattern.MatchString(s)
}

func checkIdent(kind, s string) error {
	if !ValidIdent(s) {
		return fmt.Errorf("%w: invalid %s name %q", ErrBadRequest, kind, s)
	}
	return nil
}
