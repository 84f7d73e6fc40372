package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/metrics"
)

// RunReport summarizes one pipeline run. A stage that did not run leaves its result nil.
type RunReport struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	Discovery  *DiscoveryResult
	Conversion *ConvertResult
	Load       *LoadResult
}

// Pipeline runs discovery, conversion and load in order. Any stage may be nil
// to skip it.
type Pipeline struct {
	discovery DiscoveryService
	converter ConverterService
	loader    LoaderService
	recorder  *metrics.Recorder
	textfile  string
	logger    *zap.Logger
}

func NewPipeline(
	discovery DiscoveryService,
	converter ConverterService,
	loader LoaderService,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *Pipeline {
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	return &Pipeline{
		discovery: discovery,
		converter: converter,
		loader:    loader,
		recorder:  recorder,
		logger:    logger.Named("pipeline"),
	}
}

// Recorder returns the metrics recorder fed by Run.
func (p *Pipeline) Recorder() *metrics.Recorder {
	return p.recorder
}

// WithMetricsTextfile makes successful runs write the recorder to path.
// A failed run leaves any existing file untouched so the previous
// last-success timestamp survives.
func (p *Pipeline) WithMetricsTextfile(path string) *Pipeline {
	p.textfile = path
	return p
}

// Run executes the configured stages. A discovery failure aborts the run;
// load failures of individual lines do not.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
	logger := p.logger.With(zap.String("run_id", report.RunID.String()))
	logger.Info("Run started")

	if p.discovery != nil {
		start := time.Now()
		result, err := p.discovery.Discover(ctx)
		report.Discovery = result
		p.recorder.ObserveStage("discover", time.Since(start))
		if result != nil {
			p.recorder.TicketsSeen.Add(float64(len(result.Seen)))
			p.recorder.TicketsDownloaded.Add(float64(len(result.New)))
			p.recorder.ScrollCycles.Add(float64(result.Cycles))
		}
		if err != nil {
			logger.Error("Discovery failed", zap.Error(err))
			return p.finish(report), fmt.Errorf("discovery: %w", err)
		}
	}

	if p.converter != nil {
		start := time.Now()
		result, err := p.converter.Convert(ctx)
		report.Conversion = result
		p.recorder.ObserveStage("convert", time.Since(start))
		if result != nil {
			p.recorder.TicketsConverted.Add(float64(len(result.Converted)))
			p.recorder.ConversionFailures.Add(float64(len(result.Failed)))
		}
		if err != nil {
			logger.Error("Conversion failed", zap.Error(err))
			return p.finish(report), fmt.Errorf("convert: %w", err)
		}
	}

	if p.loader != nil {
		start := time.Now()
		result, err := p.loader.Load(ctx)
		report.Load = result
		p.recorder.ObserveStage("load", time.Since(start))
		if result != nil {
			p.recorder.TicketsLoaded.Add(float64(len(result.Loaded)))
			p.recorder.LinesLoaded.Add(float64(result.Lines))
			p.recorder.LineErrors.Add(float64(len(result.Errors)))
		}
		if err != nil {
			logger.Error("Load failed", zap.Error(err))
			return p.finish(report), fmt.Errorf("load: %w", err)
		}
	}

	p.finish(report)
	p.recorder.MarkSuccess(report.FinishedAt)
	if p.textfile != "" {
		if err := p.recorder.WriteTextfile(p.textfile); err != nil {
			logger.Warn("Failed to write metrics", zap.String("path", p.textfile), zap.Error(err))
		}
	}
	logger.Info("Run complete", zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (p *Pipeline) finish(report *RunReport) *RunReport {
	report.FinishedAt = time.Now()
	return report
}
