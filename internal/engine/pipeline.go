package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/fleetwatch/internal/extractors"
	"github.com/miradorstack/fleetwatch/internal/metrics"
	"github.com/miradorstack/fleetwatch/internal/models"
	"github.com/miradorstack/fleetwatch/internal/normalize"
	"github.com/miradorstack/fleetwatch/internal/utils"
)

// EventSink receives the merged, time-ordered event set of a run.
type EventSink interface {
	WriteEvents(ctx context.Context, events []models.Event) error
}

// Counts holds per-detector event totals.
type Counts struct {
	Overcurrent int
	Overload    int
	Anomaly     int
}

// Total sums all detectors.
func (c Counts) Total() int {
	return c.Overcurrent + c.Overload + c.Anomaly
}

// Result is the outcome of one analysis run.
type Result struct {
	RunID        string
	Events       []models.Event
	Counts       Counts
	Measurements int
	Fallbacks    []string
	Delivered    bool
	Duration     time.Duration
}

// Options tune stage evaluation.
type Options struct {
	Strategy Strategy
	Limits   Limits
}

// Pipeline runs the three detectors over one shared measurement dataset.
type Pipeline struct {
	logger      *slog.Logger
	overcurrent *extractors.OvercurrentExtractor
	overload    *extractors.OverloadExtractor
	anomaly     *extractors.AnomalyExtractor
	sink        EventSink
	opts        Options
}

// NewPipeline constructs a detection pipeline. Nil extractors get their defaults and
// a nil sink skips delivery.
func NewPipeline(
	logger *slog.Logger,
	opts Options,
	sink EventSink,
	overcurrent *extractors.OvercurrentExtractor,
	overload *extractors.OverloadExtractor,
	anomaly *extractors.AnomalyExtractor,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if overcurrent == nil {
		overcurrent = extractors.NewOvercurrentExtractor()
	}
	if overload == nil {
		overload = extractors.NewOverloadExtractor()
	}
	if anomaly == nil {
		anomaly = extractors.NewAnomalyExtractor()
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}

	return &Pipeline{
		logger:      logger,
		overcurrent: overcurrent,
		overload:    overload,
		anomaly:     anomaly,
		sink:        sink,
		opts:        opts,
	}
}

// Run normalizes stream once, fans the detectors out concurrently, merges their
// events and orders them by time. Ties keep overcurrent, overload, anomaly order.
// The sink is only called when at least one event was detected.
func (p *Pipeline) Run(ctx context.Context, stream *normalize.Stream) (Result, error) {
	start := time.Now()
	result := Result{RunID: uuid.NewString()}
	logger := p.logger.With(slog.String("run_id", result.RunID), slog.String("source", stream.Name()))
	logger.Info("analysis started", slog.String("strategy", string(p.opts.Strategy)), slog.Int("chunk_size", stream.ChunkSize()))

	dataset := NewDataset(stream)
	stages := []stage{
		overcurrentStage{extractor: p.overcurrent},
		overloadStage{extractor: p.overload},
		anomalyStage{extractor: p.anomaly},
	}
	outputs := make([]stageOutput, len(stages))
	fellBack := make([]bool, len(stages))

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range stages {
		i, st := i, st
		g.Go(func() error {
			out, fallback, err := p.evaluate(gctx, logger, dataset, st)
			if err != nil {
				return err
			}
			outputs[i] = out
			fellBack[i] = fallback
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ObserveRun(time.Since(start), metrics.OutcomeError)
		logger.Error("analysis failed", slog.String("stage", utils.OpOf(err)), slog.Any("error", err))
		return Result{}, err
	}

	for i, st := range stages {
		if fellBack[i] {
			result.Fallbacks = append(result.Fallbacks, st.name())
		}
	}

	result.Counts = Counts{
		Overcurrent: len(outputs[0].events),
		Overload:    len(outputs[1].events),
		Anomaly:     len(outputs[2].events),
	}
	result.Measurements = outputs[0].seen
	result.Events = mergeEvents(outputs[0].events, outputs[1].events, outputs[2].events)

	metrics.AddMeasurements(result.Measurements)
	metrics.AddEvents(models.EventOvercurrent.Slug(), result.Counts.Overcurrent)
	metrics.AddEvents(models.EventOverload.Slug(), result.Counts.Overload)
	metrics.AddEvents(models.EventAnomalousCurrent.Slug(), result.Counts.Anomaly)

	if p.sink != nil && len(result.Events) > 0 {
		if err := p.sink.WriteEvents(ctx, result.Events); err != nil {
			metrics.ObserveRun(time.Since(start), metrics.OutcomeError)
			return Result{}, utils.NewAppError("output", "write events", err)
		}
		result.Delivered = true
	}

	result.Duration = time.Since(start)
	metrics.ObserveRun(result.Duration, metrics.OutcomeSuccess)
	logger.Info("analysis finished",
		slog.Int("measurements", result.Measurements),
		slog.Int("overcurrent", result.Counts.Overcurrent),
		slog.Int("overload", result.Counts.Overload),
		slog.Int("anomaly", result.Counts.Anomaly),
		slog.Int("total", len(result.Events)),
		slog.Duration("took", result.Duration),
	)
	return result, nil
}

// evaluate runs one stage under the configured strategy. In auto mode a degraded
// streaming pass is retried once over the materialized dataset.
func (p *Pipeline) evaluate(ctx context.Context, logger *slog.Logger, ds *Dataset, st stage) (stageOutput, bool, error) {
	logger = logger.With(slog.String("stage", st.name()))

	if p.opts.Strategy == StrategyInMemory {
		out, err := p.inMemory(ctx, ds, st)
		return out, false, err
	}

	logger.Debug("stage streaming")
	out, err := st.streaming(ctx, ds.Stream(), p.opts.Limits)
	if err == nil {
		logger.Debug("stage complete", slog.Int("events", len(out.events)))
		return out, false, nil
	}
	if p.opts.Strategy == StrategyStreaming || !degraded(ctx, err) {
		return stageOutput{}, false, utils.NewAppError(st.name(), "streaming evaluation failed", err)
	}

	logger.Warn("streaming evaluation degraded, retrying in memory", slog.Any("error", err))
	metrics.RecordFallback(st.name())
	out, err = p.inMemory(ctx, ds, st)
	return out, true, err
}

func (p *Pipeline) inMemory(ctx context.Context, ds *Dataset, st stage) (stageOutput, error) {
	series, err := ds.Materialize(ctx)
	if err != nil {
		return stageOutput{}, utils.NewAppError(st.name(), "in-memory evaluation failed", err)
	}
	return st.inMemory(series), nil
}

func mergeEvents(groups ...[]models.Event) []models.Event {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	merged := make([]models.Event, 0, total)
	for _, g := range groups {
		merged = append(merged, g...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].OperDatetime.Before(merged[j].OperDatetime)
	})
	return merged
}
