package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("already exists")
)

const (
	uniqueViolation = "23505"
	// Raised when a malformed id is compared against a uuid column.
	invalidTextRepresentation = "22P02"
)

func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		return ErrConflict
	case invalidTextRepresentation:
		return ErrNotFound
	}
	return err
}
