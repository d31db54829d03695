package denseset

import (
	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/rotisserie/eris"
)

var (
	// ErrIndexOutOfBounds is returned by At when the index is not below the set's length. Callers
	// re-check the length and retry; the index is never corrected.
	ErrIndexOutOfBounds = eris.New("index out of bounds")

	// ErrValueOutOfRange is returned when a value needs more bits than the set's layout provides.
	ErrValueOutOfRange = packed.ErrValueOutOfRange

	// ErrElementTooNarrow is returned by New when the element type cannot hold every value of the
	// layout.
	ErrElementTooNarrow = eris.New("element type narrower than layout")

	// ErrCorruptState is returned when persisted state breaks the set's invariants, e.g. a word
	// inside [0, length) is missing.
	ErrCorruptState = eris.New("corrupt set state")
)
