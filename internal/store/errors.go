package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrNotInitialized is returned by every operation issued before Init succeeds.
var ErrNotInitialized = errors.New("store: not initialized")

// UnknownCollectionError is returned when a caller names a collection the
// store does not declare.
type UnknownCollectionError struct {
	Collection string
}

func (e *UnknownCollectionError) Error() string {
	return fmt.Sprintf("store: unknown collection %q", e.Collection)
}

// NotFoundError is returned when an update or delete targets a missing record.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %s/%s not found", e.Collection, e.ID)
}

// DuplicateRecordError is returned when a create reuses an id that already
// exists in the collection.
type DuplicateRecordError struct {
	Collection string
	ID         string
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("store: %s/%s already exists", e.Collection, e.ID)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnknownCollection reports whether err is, or wraps, an UnknownCollectionError.
func IsUnknownCollection(err error) bool {
	var uc *UnknownCollectionError
	return errors.As(err, &uc)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
