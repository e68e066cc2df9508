package worker

import (
	"context"

	"github.com/ah-its-andy/docconv/internal/converter"
	"github.com/ah-its-andy/docconv/internal/domain"
)

// InProcessRunner converts on the worker goroutine with the worker's own
// FileConverter.
type InProcessRunner struct {
	conv *converter.FileConverter
}

func NewInProcessRunner(opts converter.Options) *InProcessRunner {
	return &InProcessRunner{conv: converter.New(opts)}
}

func (r *InProcessRunner) Run(ctx context.Context, job domain.Job) domain.Result {
	return r.conv.Convert(ctx, job)
}

func (r *InProcessRunner) Close() error { return nil }

// Converter exposes the underlying FileConverter.
func (r *InProcessRunner) Converter() *converter.FileConverter { return r.conv }

// InProcessFactory gives each worker a FileConverter built from base with
// its own worker id.
func InProcessFactory(base converter.Options) RunnerFactory {
	return func(id int) (Runner, error) {
		opts := base
		opts.Worker = id
		opts.Logger = base.Logger.With().Str("component", "converter").Logger()
		return NewInProcessRunner(opts), nil
	}
}
