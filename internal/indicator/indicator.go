// Package indicator handles visual state notifications for dictation sessions.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/scrivo/internal/config"
	"github.com/rbright/scrivo/internal/hypr"
)

// Notifier is the concrete indicator implementation used by runtime sessions.
// It routes notifications via Hyprland or desktop D-Bus based on the
// configured backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	desktopNotificationID uint32
}

// NewNotifier creates an indicator controller from config.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// ShowRecording signals that audio capture has begun.
func (n *Notifier) ShowRecording(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, 1, 300000, "rgb(89b4fa)", n.messages.recording)
	})
}

// ShowDraining signals the post-capture drain of remaining units.
func (n *Notifier) ShowDraining(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, 1, 300000, "rgb(cba6f7)", n.messages.draining)
	})
}

// ShowError displays an error-state indicator message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, 3, timeout, "rgb(f38ba8)", text)
	})
}

// ShowDegraded tells the user that delivery has fallen back to
// clipboard-only so dictated text is not silently lost.
func (n *Notifier) ShowDegraded(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, 2, 4000, "rgb(f9e2af)", n.messages.degraded)
	})
}

// CueStop marks the stop transition. Audio cues are not wired; the hook stays
// so the session flow reads the same with richer indicator implementations.
func (n *Notifier) CueStop(context.Context) {}

// CueComplete marks a fully drained session.
func (n *Notifier) CueComplete(context.Context) {}

// CueCancel marks a cancelled session.
func (n *Notifier) CueCancel(context.Context) {}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

// notify dispatches indicator output through the configured backend.
func (n *Notifier) notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop") {
		return n.notifyDesktop(ctx, timeoutMS, text)
	}
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

// dismiss removes indicator output from the configured backend.
func (n *Notifier) dismiss(ctx context.Context) error {
	if strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop") {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "scrivo-indicator"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
