package inject

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/scrivo/internal/focus"
	"github.com/rbright/scrivo/internal/hypr"
)

// PasteDispatcher delivers the paste keystroke to the focused window.
type PasteDispatcher func(ctx context.Context, shortcut string) error

// HyprPaste targets the active window by address so the paste cannot land in
// a window that stole focus mid-delivery.
func HyprPaste(ctx context.Context, shortcut string) error {
	window, err := activeWindowWithRetry(ctx, 5, 10*time.Millisecond)
	if err != nil {
		return err
	}

	payload, err := buildPasteShortcut(shortcut, window.Address)
	if err != nil {
		return err
	}
	return hypr.SendShortcut(ctx, payload)
}

func buildPasteShortcut(shortcut string, windowAddress string) (string, error) {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" {
		return "", fmt.Errorf("paste shortcut cannot be empty")
	}

	address := strings.TrimSpace(windowAddress)
	if address == "" {
		return "", fmt.Errorf("active window address is required")
	}

	return fmt.Sprintf("%s,address:%s", shortcut, address), nil
}

func activeWindowWithRetry(ctx context.Context, attempts int, delay time.Duration) (hypr.ActiveWindow, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		window, err := hypr.QueryActiveWindow(ctx)
		if err == nil {
			return window, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return hypr.ActiveWindow{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("active window unavailable")
	}
	return hypr.ActiveWindow{}, fmt.Errorf("resolve active window: %w", lastErr)
}

// ClipboardPasteBackend sets the clipboard under the guard and dispatches the
// compositor paste shortcut.
type ClipboardPasteBackend struct {
	clip     ClipboardStore
	guard    *Guard
	shortcut string
	dispatch PasteDispatcher
}

func NewClipboardPasteBackend(clip ClipboardStore, guard *Guard, shortcut string, dispatch PasteDispatcher) *ClipboardPasteBackend {
	if dispatch == nil {
		dispatch = HyprPaste
	}
	return &ClipboardPasteBackend{clip: clip, guard: guard, shortcut: shortcut, dispatch: dispatch}
}

func (b *ClipboardPasteBackend) Method() Method {
	return MethodClipboardPaste
}

func (b *ClipboardPasteBackend) Capabilities() Capabilities {
	return Capabilities{RequiresClipboard: true, PasteBased: true}
}

func (b *ClipboardPasteBackend) Attempt(ctx context.Context, unit Unit, _ focus.Context) Outcome {
	return b.guard.WithGuard(ctx, func(ctx context.Context) Outcome {
		start := time.Now()
		if err := b.clip.Set(ctx, unit.Text); err != nil {
			return attemptOutcome(b.Method(), start, ctx, err)
		}
		err := b.dispatch(ctx, b.shortcut)
		return attemptOutcome(b.Method(), start, ctx, err)
	})
}

// ClipboardOnlyBackend leaves the text on the clipboard for the user to paste
// themselves. It never restores, so no guard is involved.
type ClipboardOnlyBackend struct {
	clip ClipboardStore
}

func NewClipboardOnlyBackend(clip ClipboardStore) *ClipboardOnlyBackend {
	return &ClipboardOnlyBackend{clip: clip}
}

func (b *ClipboardOnlyBackend) Method() Method {
	return MethodClipboardOnly
}

func (b *ClipboardOnlyBackend) Capabilities() Capabilities {
	return Capabilities{PasteBased: true}
}

func (b *ClipboardOnlyBackend) Attempt(ctx context.Context, unit Unit, _ focus.Context) Outcome {
	start := time.Now()
	err := b.clip.Set(ctx, unit.Text)
	return attemptOutcome(b.Method(), start, ctx, err)
}
