package domain

import (
	"errors"
	"fmt"
)

// DuplicateKeyError reports an insert whose ID already exists. Callers may
// recover by retrying with a fresh ID; the migration engine treats it as the
// signal that a record was already migrated.
type DuplicateKeyError struct {
	Entity EntityType
	ID     string
}

func (e DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.ID)
}

// NotFoundError reports an update or delete against a missing ID.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// StorageError wraps an underlying persistence I/O failure. It is fatal for
// the triggering operation but never for the process.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e StorageError) Unwrap() error { return e.Err }

// MigrationRecordError is a per-record migration failure. It is collected
// into the migration status and never thrown past the record boundary.
type MigrationRecordError struct {
	Section string
	Record  string
	Err     error
}

func (e MigrationRecordError) Error() string {
	return fmt.Sprintf("%s migration error: %v (%s)", e.Section, e.Err, e.Record)
}

// Unwrap exposes the underlying cause.
func (e MigrationRecordError) Unwrap() error { return e.Err }

// IsDuplicateKey reports whether err is a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var d DuplicateKeyError
	return errors.As(err, &d)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n NotFoundError
	return errors.As(err, &n)
}
