package session

import (
	"context"

	"github.com/rbright/scrivo/internal/buffer"
	"github.com/rbright/scrivo/internal/pipeline"
)

// Pipeline abstracts the capture/recognition/delivery operations needed by
// session orchestration. Satisfied by *pipeline.Pipeline.
type Pipeline interface {
	Start(context.Context) error
	Stop(context.Context) (pipeline.StopResult, error)
	Cancel(context.Context) error
	Flush()
	BufferState() string
}

// PlaceholderPipeline is a no-op placeholder used in tests and fallback wiring.
type PlaceholderPipeline struct{}

func (PlaceholderPipeline) Start(context.Context) error {
	return nil
}

func (PlaceholderPipeline) Stop(context.Context) (pipeline.StopResult, error) {
	return pipeline.StopResult{}, pipeline.ErrUnavailable
}

func (PlaceholderPipeline) Cancel(context.Context) error {
	return nil
}

func (PlaceholderPipeline) Flush() {}

func (PlaceholderPipeline) BufferState() string {
	return buffer.StateIdle
}
