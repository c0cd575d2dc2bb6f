package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the post is not present in the expected list.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a post with the same ID is already tracked.
	ErrAlreadyExists = errors.New("already exists")
	// ErrStorageCorrupt indicates the status file could not be decoded.
	ErrStorageCorrupt = errors.New("storage corrupt")
	// ErrLockTimeout indicates the status file lock could not be acquired,
	// usually because another scheduler process holds it.
	ErrLockTimeout = errors.New("lock timeout")
)

// StorageError carries the operation and entity that failed.
type StorageError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
