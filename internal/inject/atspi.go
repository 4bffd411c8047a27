package inject

import (
	"context"
	"time"

	"github.com/rbright/scrivo/internal/focus"
)

// AtspiText is the direct-insertion surface the AT-SPI backends use.
type AtspiText interface {
	InsertText(ctx context.Context, text string) error
	PasteAtCaret(ctx context.Context) error
	Warm(ctx context.Context) error
}

// AtspiInsertBackend inserts text straight into the focused editable widget
// without touching the clipboard.
type AtspiInsertBackend struct {
	text AtspiText
}

func NewAtspiInsertBackend(text AtspiText) *AtspiInsertBackend {
	return &AtspiInsertBackend{text: text}
}

func (b *AtspiInsertBackend) Method() Method {
	return MethodAtspiInsert
}

func (b *AtspiInsertBackend) Capabilities() Capabilities {
	return Capabilities{RequiresEditable: true}
}

func (b *AtspiInsertBackend) Attempt(ctx context.Context, unit Unit, target focus.Context) Outcome {
	if target.Editable == focus.EditableNo {
		return Outcome{Method: b.Method(), Status: StatusDeclined, Reason: "target not editable"}
	}

	start := time.Now()
	err := b.text.InsertText(ctx, unit.Text)
	return attemptOutcome(b.Method(), start, ctx, err)
}

func (b *AtspiInsertBackend) Warm(ctx context.Context) error {
	return b.text.Warm(ctx)
}

// AtspiPasteBackend sets the clipboard under the guard, then asks the target
// to paste at its own caret.
type AtspiPasteBackend struct {
	text  AtspiText
	clip  ClipboardStore
	guard *Guard
}

func NewAtspiPasteBackend(text AtspiText, clip ClipboardStore, guard *Guard) *AtspiPasteBackend {
	return &AtspiPasteBackend{text: text, clip: clip, guard: guard}
}

func (b *AtspiPasteBackend) Method() Method {
	return MethodAtspiPaste
}

func (b *AtspiPasteBackend) Capabilities() Capabilities {
	return Capabilities{RequiresEditable: true, RequiresClipboard: true, PasteBased: true}
}

func (b *AtspiPasteBackend) Attempt(ctx context.Context, unit Unit, target focus.Context) Outcome {
	if target.Editable == focus.EditableNo {
		return Outcome{Method: b.Method(), Status: StatusDeclined, Reason: "target not editable"}
	}

	return b.guard.WithGuard(ctx, func(ctx context.Context) Outcome {
		start := time.Now()
		if err := b.clip.Set(ctx, unit.Text); err != nil {
			return attemptOutcome(b.Method(), start, ctx, err)
		}
		err := b.text.PasteAtCaret(ctx)
		return attemptOutcome(b.Method(), start, ctx, err)
	})
}

func (b *AtspiPasteBackend) Warm(ctx context.Context) error {
	return b.text.Warm(ctx)
}

// attemptOutcome classifies an attempt error, separating deadline expiry
// from ordinary failure.
func attemptOutcome(method Method, start time.Time, ctx context.Context, err error) Outcome {
	out := Outcome{Method: method, Latency: time.Since(start)}
	switch {
	case err == nil:
		out.Status = StatusDelivered
	case ctx.Err() != nil:
		out.Status = StatusTimedOut
		out.Reason = err.Error()
	default:
		out.Status = StatusFailed
		out.Reason = err.Error()
	}
	return out
}
