package codec

import "errors"

// Caller-facing errors. Neither corrupts cache state.
var (
	ErrInvalidRect = errors.New("invalid rectangle")
	ErrInvalidMode = errors.New("invalid display mode")
)
