package inject

import (
	"context"

	"github.com/rbright/scrivo/internal/focus"
)

// Backend is one way of putting text into the focused application.
type Backend interface {
	Method() Method
	Capabilities() Capabilities
	Attempt(ctx context.Context, unit Unit, target focus.Context) Outcome
}

// Warmer backends can pre-establish expensive connections while speech is
// still being buffered.
type Warmer interface {
	Warm(ctx context.Context) error
}
