package ecs

import "github.com/rotisserie/eris"

var (
	// ErrEntityNotFound is returned when operating on an entity the caller never created or
	// already destroyed.
	ErrEntityNotFound = eris.New("entity does not exist")

	// ErrEntityLimit is returned when every 48-bit entity id has been handed out.
	ErrEntityLimit = eris.New("max number of entities exceeded")
)
