// Package session coordinates dictation lifecycle state, actions, and the
// streaming delivery pipeline.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/rbright/scrivo/internal/ipc"
)

// Lifecycle states of one dictation session owner.
const (
	StateIdle      = "idle"
	StateRecording = "recording"
	StateDraining  = "draining"
	StateError     = "error"
)

const (
	eventStart   = "start"
	eventStop    = "stop"
	eventCancel  = "cancel"
	eventDrained = "drained"
	eventFail    = "fail"
	eventReset   = "reset"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State         string
	Cancelled     bool
	Err           error
	AudioDevice   string
	BytesCaptured int64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowDraining(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowDraining(context.Context)      {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}

// Controller orchestrates session state transitions and side effects.
type Controller struct {
	logger    *slog.Logger
	pipeline  Pipeline
	indicator Indicator

	mu      sync.Mutex
	machine *fsm.FSM

	actions chan action
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(logger *slog.Logger, pipe Pipeline, indicator Indicator) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if pipe == nil {
		pipe = PlaceholderPipeline{}
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	machine := fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateRecording},
			{Name: eventStop, Src: []string{StateRecording}, Dst: StateDraining},
			{Name: eventCancel, Src: []string{StateRecording}, Dst: StateIdle},
			{Name: eventDrained, Src: []string{StateDraining}, Dst: StateIdle},
			{Name: eventFail, Src: []string{StateRecording, StateDraining}, Dst: StateError},
			{Name: eventReset, Src: []string{StateError}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)

	return &Controller{
		logger:    logger,
		pipeline:  pipe,
		indicator: indicator,
		machine:   machine,
		actions:   make(chan action, 1),
	}
}

// State returns the current lifecycle state snapshot.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// transition applies one lifecycle event to the controller state.
func (c *Controller) transition(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Event(context.Background(), event)
}

// Run executes one owner lifecycle from start to stop/cancel/failure completion.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.transition(eventStart); err != nil {
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	c.indicator.ShowRecording(ctx)

	if err := c.pipeline.Start(ctx); err != nil {
		c.indicator.ShowError(ctx, "Unable to start recording")
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		c.indicator.Hide(cleanupCtx)
	}()

	select {
	case <-ctx.Done():
		_ = c.pipeline.Cancel(context.Background())
		c.indicator.CueCancel(context.Background())
		c.indicator.ShowError(context.Background(), "Cancelled")
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = ctx.Err()
		result.FinishedAt = time.Now()
		return result
	case a := <-c.actions:
		switch a {
		case actionCancel:
			_ = c.pipeline.Cancel(context.Background())
			c.indicator.CueCancel(context.Background())
			_ = c.transition(eventCancel)
			result.State = c.State()
			result.Cancelled = true
			result.FinishedAt = time.Now()
			return result
		case actionStop:
			if err := c.transition(eventStop); err != nil {
				c.toErrorAndReset()
				result.State = c.State()
				result.Err = err
				result.FinishedAt = time.Now()
				return result
			}
			c.indicator.ShowDraining(ctx)

			stopResult, err := c.pipeline.Stop(ctx)
			c.indicator.CueStop(context.Background())
			result.AudioDevice = stopResult.AudioDevice
			result.BytesCaptured = stopResult.BytesCaptured
			if err != nil {
				c.indicator.ShowError(context.Background(), "Delivery pipeline failed")
				c.toErrorAndReset()
				result.State = c.State()
				result.Err = err
				result.FinishedAt = time.Now()
				return result
			}
			c.indicator.CueComplete(context.Background())

			if err := c.transition(eventDrained); err != nil {
				result.State = c.State()
				result.Err = err
				result.FinishedAt = time.Now()
				return result
			}

			result.State = c.State()
			result.FinishedAt = time.Now()
			return result
		default:
			c.toErrorAndReset()
			result.State = c.State()
			result.Err = fmt.Errorf("unknown action %d", a)
			result.FinishedAt = time.Now()
			return result
		}
	}
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{
			OK:      true,
			State:   c.State(),
			Message: "status",
			Detail:  map[string]string{"buffer": c.pipeline.BufferState()},
		}
	case "toggle":
		return c.requestStop("toggle")
	case "stop":
		return c.requestStop("stop")
	case "cancel":
		return c.requestCancel()
	case "flush":
		return c.requestFlush()
	default:
		return ipc.Response{OK: false, State: c.State(), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestStop enqueues a stop action when state permits it.
func (c *Controller) requestStop(source string) ipc.Response {
	state := c.State()
	if state == StateDraining {
		return ipc.Response{OK: false, State: state, Error: "already draining"}
	}
	if state != StateRecording {
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: state, Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: state, Message: "stop already requested"}
	}
}

// requestCancel enqueues a cancel action when state permits it.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state == StateDraining {
		return ipc.Response{OK: false, State: state, Error: "cannot cancel while draining"}
	}
	if state != StateRecording {
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("cannot cancel from state %s", state)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: state, Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: state, Message: "cancel already requested"}
	}
}

// requestFlush forces the session buffer out mid-recording.
func (c *Controller) requestFlush() ipc.Response {
	state := c.State()
	if state != StateRecording {
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("cannot flush from state %s", state)}
	}
	c.pipeline.Flush()
	return ipc.Response{OK: true, State: state, Message: "flush requested"}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(eventFail)
	_ = c.transition(eventReset)
}
