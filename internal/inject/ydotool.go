package inject

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rbright/scrivo/internal/focus"
)

// ydotool key codes for a ctrl+v chord: press ctrl, press v, release v,
// release ctrl.
var ydotoolPasteChord = []string{"key", "29:1", "47:1", "47:0", "29:0"}

// KeystrokeRunner executes the uinput-level paste chord.
type KeystrokeRunner func(ctx context.Context) error

func runYdotoolPaste(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "ydotool", ydotoolPasteChord...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ydotool paste: %w (%s)", err, string(out))
	}
	return nil
}

// YdotoolPasteBackend sets the clipboard under the guard and synthesizes a
// paste keystroke through uinput. Opt-in because it requires ydotoold and
// can type into whatever currently holds focus.
type YdotoolPasteBackend struct {
	clip  ClipboardStore
	guard *Guard
	run   KeystrokeRunner
}

func NewYdotoolPasteBackend(clip ClipboardStore, guard *Guard, run KeystrokeRunner) *YdotoolPasteBackend {
	if run == nil {
		run = runYdotoolPaste
	}
	return &YdotoolPasteBackend{clip: clip, guard: guard, run: run}
}

func (b *YdotoolPasteBackend) Method() Method {
	return MethodYdotoolPaste
}

func (b *YdotoolPasteBackend) Capabilities() Capabilities {
	return Capabilities{RequiresClipboard: true, PasteBased: true, OptIn: true}
}

func (b *YdotoolPasteBackend) Attempt(ctx context.Context, unit Unit, _ focus.Context) Outcome {
	return b.guard.WithGuard(ctx, func(ctx context.Context) Outcome {
		start := time.Now()
		if err := b.clip.Set(ctx, unit.Text); err != nil {
			return attemptOutcome(b.Method(), start, ctx, err)
		}
		err := b.run(ctx)
		return attemptOutcome(b.Method(), start, ctx, err)
	})
}
