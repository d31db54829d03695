package packed

import "github.com/rotisserie/eris"

var (
	// ErrPositionOutOfRange is returned when a sub-word position is not below the layout's
	// items per word. It always indicates a defect in the calling layer.
	ErrPositionOutOfRange = eris.New("position out of range for layout")

	// ErrValueOutOfRange is returned when a value needs more bits than the layout provides.
	ErrValueOutOfRange = eris.New("value does not fit in layout bit width")

	ErrInvalidLayout = eris.New("invalid layout")
	ErrInvalidWord   = eris.New("encoded word must be 32 bytes")
)
