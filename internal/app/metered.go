package app

import (
	"context"
	"time"

	"kanaime/internal/ime"
	"kanaime/internal/metrics"
)

// meteredEngine records latency and failures of every engine call.
type meteredEngine struct {
	next ime.ConversionEngine
	m    *metrics.IMEMetrics
}

func (e *meteredEngine) observe(start time.Time, err error) {
	e.m.RecordEngineCall(time.Since(start), err)
}

func (e *meteredEngine) Init(ctx context.Context, s ime.EngineSettings) error {
	start := time.Now()
	err := e.next.Init(ctx, s)
	e.observe(start, err)
	return err
}

func (e *meteredEngine) ComposedText(ctx context.Context, input string, rc ime.RequestContext) (string, error) {
	start := time.Now()
	text, err := e.next.ComposedText(ctx, input, rc)
	e.observe(start, err)
	return text, err
}

func (e *meteredEngine) Candidates(ctx context.Context, input string, rc ime.RequestContext) ([]string, error) {
	start := time.Now()
	c, err := e.next.Candidates(ctx, input, rc)
	e.observe(start, err)
	return c, err
}

func (e *meteredEngine) Learn(ctx context.Context, candidate string) error {
	start := time.Now()
	err := e.next.Learn(ctx, candidate)
	e.observe(start, err)
	if err == nil {
		e.m.Learned.Inc()
	}
	return err
}

func (e *meteredEngine) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}
