package actor

import (
	"errors"
)

var (
	// ErrStorageWrite indicates that the atomic batch write made by
	// init did not complete. None of its keys were written.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrStorageRead indicates that dump could not read from storage
	ErrStorageRead = errors.New("storage read failed")
	// ErrKeyNotFound indicates that dump found a key missing
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalidPath is returned for any request path the actor
	// does not recognize
	ErrInvalidPath = errors.New("Invalid path")
	// ErrTimeout is returned when a call's deadline expires before the
	// actor replies, whether the call was still queued or running
	ErrTimeout = errors.New("actor call timed out")
	// ErrEmptyIdentity is returned when resolving the empty identity
	ErrEmptyIdentity = errors.New("identity must not be empty")
	// ErrClosed is returned for calls made to, or still queued on,
	// an actor that has been closed
	ErrClosed = errors.New("actor was closed")
)
