package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/miradorstack/fleetwatch/internal/extractors"
	"github.com/miradorstack/fleetwatch/internal/models"
	"github.com/miradorstack/fleetwatch/internal/normalize"
)

// ErrBufferExceeded signals that a streaming stage outgrew its memory bound.
var ErrBufferExceeded = errors.New("streaming buffer limit exceeded")

// Strategy selects how detector stages evaluate the shared dataset.
type Strategy string

const (
	// StrategyAuto streams first and falls back to in-memory evaluation per stage.
	StrategyAuto Strategy = "auto"
	// StrategyStreaming streams only; a degraded stage fails the run.
	StrategyStreaming Strategy = "streaming"
	// StrategyInMemory materializes the dataset once and evaluates every stage over it.
	StrategyInMemory Strategy = "in-memory"
)

// ParseStrategy maps a config value onto a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyStreaming:
		return StrategyStreaming, nil
	case StrategyInMemory, "inmemory", "memory":
		return StrategyInMemory, nil
	default:
		return "", fmt.Errorf("unknown evaluation strategy %q", value)
	}
}

// Limits bound the state a streaming stage may hold. Zero disables a limit.
type Limits struct {
	MaxBufferedRows int
	MaxGroups       int
}

// Dataset is the read-only measurement input shared by every stage.
type Dataset struct {
	stream *normalize.Stream

	once sync.Once
	rows []models.Measurement
	err  error
}

// NewDataset wraps a lazy stream. Materialization happens at most once.
func NewDataset(stream *normalize.Stream) *Dataset {
	return &Dataset{stream: stream}
}

// Stream returns the lazy measurement stream.
func (d *Dataset) Stream() *normalize.Stream {
	return d.stream
}

// Materialize collects the full stream on first use and returns the shared slice.
// Callers must not modify it.
func (d *Dataset) Materialize(ctx context.Context) ([]models.Measurement, error) {
	d.once.Do(func() {
		d.rows, d.err = d.stream.Collect(ctx)
	})
	return d.rows, d.err
}

type stageOutput struct {
	events []models.Event
	seen   int
}

// stage evaluates one detector either over the lazy stream or a materialized slice.
type stage interface {
	name() string
	streaming(ctx context.Context, stream *normalize.Stream, limits Limits) (stageOutput, error)
	inMemory(series []models.Measurement) stageOutput
}

type overcurrentStage struct {
	extractor *extractors.OvercurrentExtractor
}

func (s overcurrentStage) name() string { return "detect.overcurrent" }

func (s overcurrentStage) streaming(ctx context.Context, stream *normalize.Stream, _ Limits) (stageOutput, error) {
	out := stageOutput{events: make([]models.Event, 0)}
	err := stream.Chunks(ctx, func(chunk []models.Measurement) error {
		out.seen += len(chunk)
		out.events = append(out.events, s.extractor.Detect(chunk)...)
		return nil
	})
	return out, err
}

func (s overcurrentStage) inMemory(series []models.Measurement) stageOutput {
	return stageOutput{events: s.extractor.Detect(series), seen: len(series)}
}

type overloadStage struct {
	extractor *extractors.OverloadExtractor
}

func (s overloadStage) name() string { return "detect.overload" }

// streaming buffers only the qualifying subset; session building needs it sorted as a whole.
func (s overloadStage) streaming(ctx context.Context, stream *normalize.Stream, limits Limits) (stageOutput, error) {
	out := stageOutput{}
	qualified := make([]models.Measurement, 0)
	err := stream.Chunks(ctx, func(chunk []models.Measurement) error {
		out.seen += len(chunk)
		qualified = append(qualified, s.extractor.Filter(chunk)...)
		if limits.MaxBufferedRows > 0 && len(qualified) > limits.MaxBufferedRows {
			return fmt.Errorf("%w: %d qualifying rows buffered, limit %d", ErrBufferExceeded, len(qualified), limits.MaxBufferedRows)
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	out.events = s.extractor.DetectQualified(qualified)
	return out, nil
}

func (s overloadStage) inMemory(series []models.Measurement) stageOutput {
	return stageOutput{events: s.extractor.Detect(series), seen: len(series)}
}

type anomalyStage struct {
	extractor *extractors.AnomalyExtractor
}

func (s anomalyStage) name() string { return "detect.anomaly" }

// streaming makes two passes: one to accumulate group stats, one to classify.
func (s anomalyStage) streaming(ctx context.Context, stream *normalize.Stream, limits Limits) (stageOutput, error) {
	out := stageOutput{events: make([]models.Event, 0)}
	stats := extractors.NewGroupStats()
	err := stream.Chunks(ctx, func(chunk []models.Measurement) error {
		out.seen += len(chunk)
		stats.Add(chunk)
		if limits.MaxGroups > 0 && stats.Len() > limits.MaxGroups {
			return fmt.Errorf("%w: %d groups tracked, limit %d", ErrBufferExceeded, stats.Len(), limits.MaxGroups)
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	err = stream.Chunks(ctx, func(chunk []models.Measurement) error {
		out.events = append(out.events, s.extractor.Flag(stats, chunk)...)
		return nil
	})
	return out, err
}

func (s anomalyStage) inMemory(series []models.Measurement) stageOutput {
	return stageOutput{events: s.extractor.Detect(series), seen: len(series)}
}

// degraded reports whether a streaming failure may be retried in memory.
// Data errors and cancellation fail identically under either strategy.
func degraded(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !normalize.IsFatal(err)
}
