// Package app is the command entry layer: it parses the CLI surface, loads
// config, and runs either a forwarding client or the owning session process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/scrivo/internal/audio"
	"github.com/rbright/scrivo/internal/cli"
	"github.com/rbright/scrivo/internal/config"
	"github.com/rbright/scrivo/internal/doctor"
	"github.com/rbright/scrivo/internal/focus"
	"github.com/rbright/scrivo/internal/indicator"
	"github.com/rbright/scrivo/internal/inject"
	"github.com/rbright/scrivo/internal/ipc"
	"github.com/rbright/scrivo/internal/logging"
	"github.com/rbright/scrivo/internal/pipeline"
	"github.com/rbright/scrivo/internal/session"
	"github.com/rbright/scrivo/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("scrivo"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("scrivo"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, "stop")
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, "cancel")
	case cli.CommandFlush:
		return r.forwardOrFail(ctx, "flush")
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		if buffer := resp.Detail["buffer"]; buffer != "" {
			fmt.Fprintf(r.Stdout, "buffer: %s\n", buffer)
		}
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active scrivo session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandToggle(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, "toggle")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return 0
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, "toggle")
			if forwardErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", forwardErr)
				return 1
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	return r.runOwnerSession(ctx, cfg, logger, listener)
}

// runOwnerSession wires the delivery stack and runs one dictation lifecycle
// as the socket-owning process.
func (r Runner) runOwnerSession(ctx context.Context, cfg config.Config, logger *slog.Logger, listener net.Listener) int {
	tracker := focus.NewAtspiTracker(logger)
	defer tracker.Close()

	clip := inject.NewClipboard(cfg.Clipboard.Copy.Argv, cfg.Clipboard.Paste.Argv)
	guard := inject.NewGuard(clip, time.Duration(cfg.Inject.SettleMS)*time.Millisecond, logger)
	profile := inject.DetectProfile(os.Getenv)

	manager := inject.NewManager(inject.CooldownConfig{
		Initial: time.Duration(cfg.Inject.CooldownInitialMS) * time.Millisecond,
		Max:     time.Duration(cfg.Inject.CooldownMaxMS) * time.Millisecond,
	}, cfg.History.MaxApps)

	historyPath := ""
	if cfg.History.Persist {
		path, err := inject.HistoryPath()
		if err != nil {
			logger.Warn("strategy history disabled", "error", err.Error())
		} else {
			historyPath = path
			if err := inject.LoadHistory(historyPath, manager); err != nil {
				logger.Warn("load strategy history failed", "error", err.Error())
			}
		}
	}

	indicatorCtl := indicator.NewNotifier(cfg.Indicator, logger)
	policy := focus.NewPolicy(cfg.Inject.Allowlist, cfg.Inject.Denylist, cfg.Inject.OnUnknownFocus)

	backends := []inject.Backend{
		inject.NewAtspiInsertBackend(tracker),
		inject.NewAtspiPasteBackend(tracker, clip, guard),
		inject.NewClipboardPasteBackend(clip, guard, cfg.Inject.PasteShortcut, nil),
		inject.NewClipboardOnlyBackend(clip),
		inject.NewYdotoolPasteBackend(clip, guard, nil),
		inject.NoopBackend{},
	}

	orchestrator := inject.NewOrchestrator(inject.OrchestratorConfig{
		OverallDeadline:   time.Duration(cfg.Inject.OverallDeadlineMS) * time.Millisecond,
		CandidateDeadline: time.Duration(cfg.Inject.CandidateDeadlineMS) * time.Millisecond,
		AllowYdotool:      cfg.Inject.AllowYdotool,
		DegradedThreshold: cfg.Indicator.DegradedThreshold,
	}, backends, manager, tracker, policy, profile, logger, func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		indicatorCtl.ShowDegraded(notifyCtx)
	})

	pipe := pipeline.New(cfg, orchestrator, logger)
	controller := session.NewController(logger, pipe, indicatorCtl)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	if historyPath != "" {
		if err := inject.SaveHistory(historyPath, manager); err != nil {
			logger.Warn("save strategy history failed", "error", err.Error())
		}
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}

	return 0
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
