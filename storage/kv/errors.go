package kv

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates that the root store was closed
	ErrClosed = errors.New("root store was closed")
	// ErrReadOnly is returned when a read-only transaction attempts an update operation
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrTxnDone is returned when a transaction is used after it committed or rolled back
	ErrTxnDone = errors.New("transaction has already been committed or rolled back")
	// ErrEmptyKey is returned when a key is nil or empty
	ErrEmptyKey = errors.New("key must not be empty")
	// ErrEmptyValue is returned when a value is nil or empty
	ErrEmptyValue = errors.New("value must not be empty")
	// ErrInjected is returned by a FaultyStore when it fails an
	// operation on purpose
	ErrInjected = errors.New("injected fault")
)

func wrapError(wrap string, err error) error {
	switch err {
	case nil:
		return nil
	case ErrClosed, ErrReadOnly, ErrTxnDone, ErrEmptyKey, ErrEmptyValue:
		return err
	}

	return fmt.Errorf("%s: %w", wrap, err)
}

func checkPut(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	if len(value) == 0 {
		return ErrEmptyValue
	}

	return nil
}
