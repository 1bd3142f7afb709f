package models

import "errors"

// Error taxonomy shared by the prediction components. InsufficientData and
// ModelNotInitialized are the only classes surfaced to callers; everything
// else is recovered where it happens.
var (
	// ErrInsufficientData means a history was shorter than a model minimum.
	// Never padded over, always surfaced.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrModelNotInitialized means an operation ran before lifecycle setup.
	ErrModelNotInitialized = errors.New("model not initialized")
)
