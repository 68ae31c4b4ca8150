package db

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist in the
	// caller's tenant scope.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate indicates a unique constraint rejected the write.
	ErrDuplicate = errors.New("record already exists")
)
