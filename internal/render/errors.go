package render

import "errors"

// Sentinel errors returned by the render engine. None of these poison
// the pool: a context that errors is torn down and replaced before
// release back to the worker.
var (
	ErrNavigationTimeout = errors.New("render: navigation timed out")
	ErrRenderFailure     = errors.New("render: failed to produce a screenshot")
	ErrPoolExhausted     = errors.New("render: pool exhausted, wait timeout exceeded")
)
