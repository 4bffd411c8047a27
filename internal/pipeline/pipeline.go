// Package pipeline owns one end-to-end capture -> STT -> buffer -> delivery
// pipeline instance.
package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/scrivo/internal/audio"
	"github.com/rbright/scrivo/internal/buffer"
	"github.com/rbright/scrivo/internal/config"
	"github.com/rbright/scrivo/internal/inject"
	"github.com/rbright/scrivo/internal/stt"
)

// Deliverer accepts flushed units and pre-warms delivery plumbing. Satisfied
// by *inject.Orchestrator.
type Deliverer interface {
	Deliver(ctx context.Context, unit inject.Unit) inject.Outcome
	Prewarm(ctx context.Context)
}

// audioSource is the capture surface the pipeline consumes.
type audioSource interface {
	Chunks() <-chan []byte
	Stop() error
	BytesCaptured() int64
	RawPCM() []byte
	Device() audio.Device
}

// Pipeline stages audio capture into the session buffer and hands flushed
// units to the deliverer, one at a time.
type Pipeline struct {
	cfg     config.Config
	logger  *slog.Logger
	deliver Deliverer

	// Injection points for tests.
	selectDevice func(ctx context.Context, input string, fallback string) (audio.Selection, error)
	startCapture func(ctx context.Context, device audio.Device, sampleRate int, dumpRaw bool) (audioSource, error)
	dialSTT      func(ctx context.Context, endpoint string, sampleRate int) (stt.Transcriber, error)

	mu        sync.Mutex
	started   bool
	selection audio.Selection
	capture   audioSource
	client    stt.Transcriber
	buf       *buffer.Buffer
	units     chan inject.Unit
	group     *errgroup.Group
	cancel    context.CancelFunc
	aborted   atomic.Bool
	delivered atomic.Int64
}

// StopResult summarizes one completed dictation session.
type StopResult struct {
	AudioDevice    string
	BytesCaptured  int64
	UnitsDelivered int64
}

func New(cfg config.Config, deliver Deliverer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:          cfg,
		logger:       logger,
		deliver:      deliver,
		selectDevice: audio.SelectDevice,
		startCapture: func(ctx context.Context, device audio.Device, sampleRate int, dumpRaw bool) (audioSource, error) {
			return audio.StartCapture(ctx, device, sampleRate, dumpRaw)
		},
		dialSTT: func(ctx context.Context, endpoint string, sampleRate int) (stt.Transcriber, error) {
			return stt.Dial(ctx, endpoint, sampleRate, logger)
		},
	}
}

// Start resolves device selection, dials the recognizer, and starts the
// capture, delta, and delivery stages.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("pipeline already started")
	}

	selection, err := p.selectDevice(ctx, p.cfg.Audio.Input, p.cfg.Audio.Fallback)
	if err != nil {
		return err
	}
	p.selection = selection
	if selection.Warning != "" {
		p.logger.Warn(selection.Warning)
	}

	client, err := p.dialSTT(ctx, p.cfg.STT.Endpoint, p.cfg.STT.SampleRate)
	if err != nil {
		return fmt.Errorf("dial recognizer: %w", err)
	}
	p.client = client

	capture, err := p.startCapture(ctx, selection.Device, p.cfg.STT.SampleRate, p.cfg.Debug.EnableAudioDump)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = client.Close(closeCtx)
		cancel()
		return err
	}
	p.capture = capture

	p.units = make(chan inject.Unit, 1)
	p.buf = buffer.New(buffer.Config{
		SilenceTimeout: time.Duration(p.cfg.Buffer.SilenceMS) * time.Millisecond,
		ConfirmWindow:  time.Duration(p.cfg.Buffer.ConfirmMS) * time.Millisecond,
		MaxChars:       p.cfg.Buffer.MaxChars,
		FlushOnAbort:   p.cfg.Buffer.FlushOnAbort,
	}, p.sinkUnit, p.logger)

	stageCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	group, groupCtx := errgroup.WithContext(stageCtx)
	p.group = group
	p.aborted.Store(false)
	p.delivered.Store(0)

	group.Go(func() error { return p.sendLoop(groupCtx) })
	group.Go(func() error { return p.deltaLoop(groupCtx) })
	group.Go(func() error { return p.injectLoop(groupCtx) })

	p.started = true
	return nil
}

// sinkUnit hands one flushed unit to the delivery stage. Blocks while a
// previous unit is still waiting, which is the buffer's back-pressure.
func (p *Pipeline) sinkUnit(unit inject.Unit) {
	p.units <- unit
}

// Stop ends capture, drains the recognizer, flushes the buffer, and waits for
// the delivery stage to finish the remaining units.
func (p *Pipeline) Stop(ctx context.Context) (StopResult, error) {
	p.mu.Lock()
	started := p.started
	capture := p.capture
	client := p.client
	group := p.group
	selection := p.selection
	p.mu.Unlock()

	if !started || capture == nil || client == nil {
		return StopResult{}, ErrUnavailable
	}

	_ = capture.Stop()

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	closeErr := client.Close(closeCtx)
	cancel()

	waitErr := group.Wait()

	p.writeDebugAudio(capture.RawPCM())
	p.finish()

	result := StopResult{
		AudioDevice:    describeDevice(selection.Device),
		BytesCaptured:  capture.BytesCaptured(),
		UnitsDelivered: p.delivered.Load(),
	}
	if closeErr != nil {
		return result, fmt.Errorf("close recognizer stream: %w", closeErr)
	}
	if waitErr != nil {
		return result, waitErr
	}
	return result, nil
}

// Cancel aborts the session: capture stops, the in-flight delivery attempt is
// cancelled, and buffered text is discarded unless flush-on-abort is set.
func (p *Pipeline) Cancel(_ context.Context) error {
	p.mu.Lock()
	started := p.started
	capture := p.capture
	client := p.client
	group := p.group
	cancel := p.cancel
	p.mu.Unlock()

	if !started {
		return nil
	}

	p.aborted.Store(true)
	if capture != nil {
		_ = capture.Stop()
	}
	if client != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		_ = client.Close(closeCtx)
		closeCancel()
	}
	// Flush-on-abort still delivers the partial unit, so the stage context
	// must outlive that last attempt.
	if cancel != nil && !p.cfg.Buffer.FlushOnAbort {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
	if cancel != nil {
		cancel()
	}
	if capture != nil {
		p.writeDebugAudio(capture.RawPCM())
	}
	p.finish()
	return nil
}

// Flush forces the current buffer contents out without ending the session.
func (p *Pipeline) Flush() {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf != nil {
		buf.Flush()
	}
}

// BufferState reports the session buffer state for status queries.
func (p *Pipeline) BufferState() string {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return buffer.StateIdle
	}
	return buf.State()
}

// DeviceDescription reports the selected capture device for status queries.
func (p *Pipeline) DeviceDescription() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return describeDevice(p.selection.Device)
}

func (p *Pipeline) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.capture = nil
	p.client = nil
	p.group = nil
	p.cancel = nil
	p.buf = nil
}

// sendLoop forwards capture chunks to the recognizer until the capture
// channel closes.
func (p *Pipeline) sendLoop(ctx context.Context) error {
	p.mu.Lock()
	capture := p.capture
	client := p.client
	p.mu.Unlock()

	for chunk := range capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		if err := client.Send(ctx, chunk); err != nil {
			if errors.Is(err, stt.ErrClientClosed) || p.aborted.Load() || ctx.Err() != nil {
				return nil
			}
			_ = capture.Stop()
			return fmt.Errorf("send audio chunk: %w", err)
		}
	}
	return nil
}

// deltaLoop pushes recognizer deltas into the session buffer. When the delta
// stream ends it performs the final flush and closes the unit channel so the
// delivery stage can drain and exit.
func (p *Pipeline) deltaLoop(ctx context.Context) error {
	p.mu.Lock()
	client := p.client
	buf := p.buf
	units := p.units
	p.mu.Unlock()

	defer close(units)

	for delta := range client.Deltas() {
		if p.aborted.Load() {
			continue
		}
		buf.Push(delta.Text, delta.Final)
		p.deliver.Prewarm(ctx)
	}

	if p.aborted.Load() {
		buf.Abort()
		return nil
	}
	buf.Flush()
	return nil
}

// injectLoop runs the delivery loop for flushed units, one at a time.
func (p *Pipeline) injectLoop(ctx context.Context) error {
	p.mu.Lock()
	units := p.units
	p.mu.Unlock()

	for unit := range units {
		outcome := p.deliver.Deliver(ctx, unit)
		// The noop terminal reports delivered but put no text anywhere.
		if outcome.Delivered() && outcome.Method != inject.MethodNoop {
			p.delivered.Add(1)
		}
		p.logger.Debug("unit delivery finished",
			slog.String("unit", unit.ID.String()),
			slog.String("method", string(outcome.Method)),
			slog.String("status", string(outcome.Status)))
	}
	return nil
}

// describeDevice formats device metadata for logs and status output.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// writeDebugAudio writes raw PCM to WAV when debug.audio_dump is enabled.
func (p *Pipeline) writeDebugAudio(rawPCM []byte) {
	if !p.cfg.Debug.EnableAudioDump || len(rawPCM) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		p.logger.Warn(fmt.Sprintf("unable to create debug audio dump: %v", err))
		return
	}
	defer file.Close()

	if err := writePCM16WAV(file, rawPCM, p.cfg.STT.SampleRate, 1); err != nil {
		p.logger.Warn(fmt.Sprintf("unable to write debug audio dump: %v", err))
	}
}

// createDebugFile creates timestamped debug artifacts under state/scrivo/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "scrivo", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns the XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

// writePCM16WAV writes raw little-endian PCM bytes with a minimal WAV header.
func writePCM16WAV(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	chunkSize := uint32(36 + len(pcm))
	subChunk2Size := uint32(len(pcm))

	header := make([]byte, 44)
	copy(header[0:4], []byte("RIFF"))
	binary.LittleEndian.PutUint32(header[4:8], chunkSize)
	copy(header[8:12], []byte("WAVE"))
	copy(header[12:16], []byte("fmt "))
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], []byte("data"))
	binary.LittleEndian.PutUint32(header[40:44], subChunk2Size)

	if _, err := file.Write(header); err != nil {
		return err
	}
	_, err := file.Write(pcm)
	return err
}
