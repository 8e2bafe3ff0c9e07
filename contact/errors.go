package contact

import "errors"

var (
	// ErrFaceMultiplicity reports a quad face shared by more than two hexes
	ErrFaceMultiplicity = errors.New("face is shared by more than two elements")
	// ErrInvalidFaceNodeCount reports a skin face that is not a quad
	ErrInvalidFaceNodeCount = errors.New("contact face must have exactly 4 nodes")
	// ErrNotHexahedral reports a contact block of non-hex elements
	ErrNotHexahedral = errors.New("contact blocks must hold 8-node hexahedra")
	// ErrInvalidPenalty reports a non-positive penalty parameter
	ErrInvalidPenalty = errors.New("penalty parameter must be positive")
	// ErrInvalidState reports a contact step called out of order
	ErrInvalidState = errors.New("contact operation called in the wrong state")
)
