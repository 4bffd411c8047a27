// Package focus resolves the active window and whether it accepts text.
package focus

import "context"

// Editable is a tri-state answer to "does the focused widget accept text".
// Unknown means the accessibility query failed or gave no usable answer;
// delivery policy decides how cautious to be in that case.
type Editable int

const (
	EditableUnknown Editable = iota
	EditableYes
	EditableNo
)

func (e Editable) String() string {
	switch e {
	case EditableYes:
		return "yes"
	case EditableNo:
		return "no"
	default:
		return "unknown"
	}
}

// Context describes the delivery target at one point in time.
type Context struct {
	AppID       string
	WindowTitle string
	Editable    Editable
}

// Tracker resolves the current focus context. Implementations degrade to
// EditableUnknown rather than failing.
type Tracker interface {
	Resolve(ctx context.Context) Context
}

// TrackerFunc adapts a function to the Tracker interface.
type TrackerFunc func(context.Context) Context

func (f TrackerFunc) Resolve(ctx context.Context) Context {
	return f(ctx)
}
