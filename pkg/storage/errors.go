package storage

import "github.com/rotisserie/eris"

var (
	// ErrNotFound is returned by every backend when a key holds no value.
	ErrNotFound = eris.New("key not found")

	// ErrTransactionFailed is returned when staged writes could not be committed. Nothing from the
	// failed commit is visible afterwards.
	ErrTransactionFailed = eris.New("transaction failed")

	// ErrNoScope is returned when a Buffer is written outside of Buffer.Atomic.
	ErrNoScope = eris.New("write outside of an atomic scope")
)
