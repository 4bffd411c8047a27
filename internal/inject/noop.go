package inject

import (
	"context"

	"github.com/rbright/scrivo/internal/focus"
)

// NoopBackend terminates every delivery plan. It always succeeds at doing
// nothing, so a delivery can never hang without a terminal outcome.
type NoopBackend struct{}

func (NoopBackend) Method() Method {
	return MethodNoop
}

func (NoopBackend) Capabilities() Capabilities {
	return Capabilities{}
}

func (NoopBackend) Attempt(_ context.Context, _ Unit, _ focus.Context) Outcome {
	return Outcome{Method: MethodNoop, Status: StatusDelivered, Reason: "no backend delivered"}
}
