package inject

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ClipboardStore is the snapshot/restore surface the guard needs.
type ClipboardStore interface {
	Set(ctx context.Context, text string) error
	Get(ctx context.Context) (string, error)
}

// Guard makes clipboard-mutating deliveries transactional: the prior
// clipboard contents are snapshotted before the action and restored after it,
// on success, failure, and panic alike.
type Guard struct {
	clip   ClipboardStore
	logger *slog.Logger
	settle time.Duration
}

func NewGuard(clip ClipboardStore, settle time.Duration, logger *slog.Logger) *Guard {
	return &Guard{clip: clip, logger: logger, settle: settle}
}

// WithGuard snapshots the clipboard, runs action, and restores the snapshot
// exactly once. A panic inside action is converted into a failed Outcome and
// still restores.
func (g *Guard) WithGuard(ctx context.Context, action func(context.Context) Outcome) (out Outcome) {
	snapshot, snapErr := g.clip.Get(ctx)
	haveSnapshot := snapErr == nil
	if snapErr != nil {
		g.logger.Warn("clipboard snapshot failed; delivery proceeds without restore", "error", snapErr)
	}

	var restoreOnce sync.Once
	restore := func() {
		if !haveSnapshot {
			return
		}
		restoreOnce.Do(func() {
			// Restore uses a fresh context so it still runs after the
			// delivery deadline expires.
			restoreCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := g.clip.Set(restoreCtx, snapshot); err != nil {
				g.logger.Error("clipboard restore failed", "error", err)
			}
		})
	}
	defer restore()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("delivery backend panicked", "panic", fmt.Sprint(r))
			out = Outcome{Status: StatusFailed, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out = action(ctx)

	// Let the paste land before the snapshot overwrites the clipboard.
	if out.Delivered() && g.settle > 0 {
		select {
		case <-time.After(g.settle):
		case <-ctx.Done():
		}
	}

	return out
}
