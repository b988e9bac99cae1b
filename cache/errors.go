package cache

import "errors"

var (
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("cache: closed")
	// ErrNilValue reports a Produce callback that returned neither a value
	// nor an error. It is a contract violation and is never cached.
	ErrNilValue = errors.New("cache: produce returned a nil value")
	// ErrNilSubKey reports a Derive callback that returned a nil sub-key.
	ErrNilSubKey = errors.New("cache: derive returned a nil sub-key")
)
