// Package buffer accumulates streaming transcription deltas into injectable
// units, gated by silence, punctuation, and size thresholds.
package buffer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/rbright/scrivo/internal/inject"
	"github.com/rbright/scrivo/internal/transcript"
)

// Session buffer states.
const (
	StateIdle              = "idle"
	StateBuffering         = "buffering"
	StateWaitingForSilence = "waiting_for_silence"
	StateReadyToInject     = "ready_to_inject"
)

const (
	eventDelta   = "delta"
	eventFinal   = "final"
	eventSettle  = "settle"
	eventFlush   = "flush"
	eventHandoff = "handoff"
	eventAbort   = "abort"
)

// Config holds the flush thresholds for one dictation session.
type Config struct {
	// SilenceTimeout flushes the buffer when no delta arrives for this long,
	// treating the quiet gap as an implicit end of utterance.
	SilenceTimeout time.Duration

	// ConfirmWindow is how long the buffer waits after a final delta for
	// correction deltas before flushing.
	ConfirmWindow time.Duration

	// MaxChars forces a flush once the accumulated text grows past this size.
	MaxChars int

	// FlushOnAbort hands off partial content on abort instead of discarding it.
	FlushOnAbort bool
}

// Sink receives each flushed unit. The buffer holds its internal lock for the
// duration of the call, so a sink that blocks until the previous unit was
// consumed gives back-pressure by construction.
type Sink func(inject.Unit)

// Buffer is the session state machine between the transcription stream and
// the delivery orchestrator. One instance is live per dictation session.
type Buffer struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	mu         sync.Mutex
	machine    *fsm.FSM
	text       string
	silenceGen int
	confirmGen int
	silence    *time.Timer
	confirm    *time.Timer
}

func New(cfg Config, sink Sink, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Buffer{cfg: cfg, sink: sink, logger: logger}
	b.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventDelta, Src: []string{StateIdle, StateBuffering, StateWaitingForSilence}, Dst: StateBuffering},
			{Name: eventFinal, Src: []string{StateBuffering}, Dst: StateWaitingForSilence},
			{Name: eventSettle, Src: []string{StateWaitingForSilence}, Dst: StateReadyToInject},
			{Name: eventFlush, Src: []string{StateBuffering, StateWaitingForSilence}, Dst: StateReadyToInject},
			{Name: eventHandoff, Src: []string{StateReadyToInject}, Dst: StateIdle},
			{Name: eventAbort, Src: []string{StateIdle, StateBuffering, StateWaitingForSilence, StateReadyToInject}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)
	return b
}

// State reports the current session buffer state.
func (b *Buffer) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.machine.Current()
}

// Pending reports the accumulated text that has not been flushed yet.
func (b *Buffer) Pending() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Push merges one transcription delta into the buffer. Final deltas start the
// confirmation window; partial deltas reset the silence timer. An empty final
// acts as a pure end-of-utterance marker.
func (b *Buffer) Push(text string, final bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" && !final {
		return
	}

	if trimmed != "" {
		if err := b.machine.Event(context.Background(), eventDelta); err != nil {
			b.logger.Debug("delta ignored", slog.String("state", b.machine.Current()))
			return
		}
		b.text = transcript.AppendFragment(b.text, text)
	}

	if b.cfg.MaxChars > 0 && len(b.text) >= b.cfg.MaxChars {
		b.stopTimers()
		if err := b.machine.Event(context.Background(), eventFlush); err == nil {
			b.logger.Debug("forced flush at size ceiling", slog.Int("chars", len(b.text)))
			b.flushLocked("size")
		}
		return
	}

	if final {
		b.onFinalLocked()
		return
	}
	b.armSilenceTimer()
}

func (b *Buffer) onFinalLocked() {
	if b.text == "" {
		// A final marker with nothing buffered ends the utterance in place.
		b.stopTimers()
		_ = b.machine.Event(context.Background(), eventAbort)
		return
	}
	if err := b.machine.Event(context.Background(), eventFinal); err != nil {
		return
	}
	b.stopTimers()
	if endsWithTerminalPunctuation(b.text) {
		if err := b.machine.Event(context.Background(), eventSettle); err == nil {
			b.flushLocked("punctuation")
		}
		return
	}
	b.armConfirmTimer()
}

// Flush forces the buffered text out immediately, regardless of timers.
// It is a no-op when nothing is buffered.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forceFlushLocked("manual")
}

// Abort ends the current utterance without a final delta. Partial content is
// discarded unless FlushOnAbort is configured.
func (b *Buffer) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimers()
	if b.cfg.FlushOnAbort && b.text != "" {
		b.forceFlushLocked("abort")
		return
	}
	if b.text != "" {
		b.logger.Debug("discarding partial buffer", slog.Int("chars", len(b.text)))
	}
	b.text = ""
	_ = b.machine.Event(context.Background(), eventAbort)
}

func (b *Buffer) forceFlushLocked(reason string) {
	if b.text == "" {
		return
	}
	b.stopTimers()
	if err := b.machine.Event(context.Background(), eventFlush); err != nil {
		return
	}
	b.flushLocked(reason)
}

// flushLocked hands the unit to the sink and returns the machine to idle.
// Caller must already have driven the machine into ready_to_inject.
func (b *Buffer) flushLocked(reason string) {
	unit := inject.NewUnit(strings.TrimSpace(b.text))
	b.text = ""

	b.logger.Debug("flushing unit",
		slog.String("reason", reason),
		slog.Int("chars", len(unit.Text)))

	if b.sink != nil {
		b.sink(unit)
	}
	_ = b.machine.Event(context.Background(), eventHandoff)
}

func (b *Buffer) armSilenceTimer() {
	if b.cfg.SilenceTimeout <= 0 {
		return
	}
	b.silenceGen++
	gen := b.silenceGen
	if b.silence != nil {
		b.silence.Stop()
	}
	b.silence = time.AfterFunc(b.cfg.SilenceTimeout, func() { b.onSilenceElapsed(gen) })
}

func (b *Buffer) armConfirmTimer() {
	if b.cfg.ConfirmWindow <= 0 {
		// No window configured: settle immediately.
		if err := b.machine.Event(context.Background(), eventSettle); err == nil {
			b.flushLocked("final")
		}
		return
	}
	b.confirmGen++
	gen := b.confirmGen
	if b.confirm != nil {
		b.confirm.Stop()
	}
	b.confirm = time.AfterFunc(b.cfg.ConfirmWindow, func() { b.onConfirmElapsed(gen) })
}

func (b *Buffer) onSilenceElapsed(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.silenceGen || b.machine.Current() != StateBuffering {
		return
	}
	if err := b.machine.Event(context.Background(), eventFlush); err != nil {
		return
	}
	b.flushLocked("silence")
}

func (b *Buffer) onConfirmElapsed(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.confirmGen || b.machine.Current() != StateWaitingForSilence {
		return
	}
	if err := b.machine.Event(context.Background(), eventSettle); err != nil {
		return
	}
	b.flushLocked("confirm")
}

// stopTimers invalidates pending timer fires. Caller must hold the lock.
func (b *Buffer) stopTimers() {
	b.silenceGen++
	b.confirmGen++
	if b.silence != nil {
		b.silence.Stop()
	}
	if b.confirm != nil {
		b.confirm.Stop()
	}
}

var terminalPunctuation = []string{".", "!", "?", "…"}

func endsWithTerminalPunctuation(text string) bool {
	trimmed := strings.TrimRight(text, " \t")
	for _, mark := range terminalPunctuation {
		if strings.HasSuffix(trimmed, mark) {
			return true
		}
	}
	return false
}
