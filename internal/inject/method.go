// Package inject delivers buffered transcript text into the focused
// application, choosing among backends by learned per-app reliability.
package inject

// Method identifies one delivery backend.
type Method string

const (
	MethodAtspiInsert    Method = "atspi_insert"
	MethodAtspiPaste     Method = "atspi_paste"
	MethodClipboardPaste Method = "clipboard_paste"
	MethodYdotoolPaste   Method = "ydotool_paste"
	MethodClipboardOnly  Method = "clipboard_only"
	MethodNoop           Method = "noop"
)

// Capabilities describe what a backend needs from the target and session.
type Capabilities struct {
	// RequiresEditable backends decline targets known not to accept text.
	RequiresEditable bool
	// RequiresClipboard backends mutate the clipboard and run under the guard.
	RequiresClipboard bool
	// PasteBased backends deliver through the paste path and stay usable
	// when editability is unknown.
	PasteBased bool
	// OptIn backends synthesize input at the uinput level and are disabled
	// unless explicitly enabled.
	OptIn bool
}
