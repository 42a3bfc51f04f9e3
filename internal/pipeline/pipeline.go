// Package pipeline sequences segmentation, synthesis, and assembly into one
// narration run. Per-unit failures degrade the output; only whole-run
// conditions surface as errors.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/narratelabs/narrated/internal/assemble"
	"github.com/narratelabs/narrated/internal/bus"
	"github.com/narratelabs/narrated/internal/config"
	"github.com/narratelabs/narrated/internal/journal"
	"github.com/narratelabs/narrated/internal/protocol"
	"github.com/narratelabs/narrated/internal/segment"
	"github.com/narratelabs/narrated/internal/synth"
	"github.com/narratelabs/narrated/internal/tokenizer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInputMissing marks a run aborted before any work began.
	ErrInputMissing = errors.New("required input file missing")
	// ErrNoUnitsSynthesized marks a run where nothing could be rendered.
	ErrNoUnitsSynthesized = errors.New("no units synthesized")
)

// Summary reports what a run produced.
type Summary struct {
	RunID       string
	Units       int
	Synthesized int
	Failed      int
	Skipped     int
	OutputPath  string
	TrackLength time.Duration
	Elapsed     time.Duration
}

// Pipeline owns the collaborator handles for a run. The synthesis engine and
// tokenizer are injected once at construction; nothing is process-global.
type Pipeline struct {
	cfg       config.Config
	synth     *synth.Synthesizer
	assembler *assemble.Assembler
	tokens    tokenizer.Counter
	journal   *journal.Store
	events    *bus.Client
	logger    *slog.Logger
	tracer    trace.Tracer

	unitsSynthesized metric.Int64Counter
	unitsFailed      metric.Int64Counter
}

// New wires a pipeline. store and events may be nil; tokens is only needed
// when the segmenter measures in tokens.
func New(cfg config.Config, engine synth.Engine, tokens tokenizer.Counter, store *journal.Store, events *bus.Client, log *slog.Logger) *Pipeline {
	logger := log.With(slog.String("component", "pipeline"))
	meter := otel.Meter("github.com/narratelabs/narrated/internal/pipeline")

	synthesized, err := meter.Int64Counter("narrated.units.synthesized")
	if err != nil {
		logger.Warn("failed to create counter", slog.String("error", err.Error()))
	}
	failed, err := meter.Int64Counter("narrated.units.failed")
	if err != nil {
		logger.Warn("failed to create counter", slog.String("error", err.Error()))
	}

	return &Pipeline{
		cfg:              cfg,
		synth:            synth.New(engine, cfg.Synth, log),
		assembler:        assemble.New(cfg.Assemble, log),
		tokens:           tokens,
		journal:          store,
		events:           events,
		logger:           logger,
		tracer:           otel.Tracer("github.com/narratelabs/narrated/internal/pipeline"),
		unitsSynthesized: synthesized,
		unitsFailed:      failed,
	}
}

// Run executes one narration batch: text -> units -> artifacts -> track.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	if err := checkInput(p.cfg.Job.TextPath, "text"); err != nil {
		return Summary{}, err
	}
	if err := checkInput(p.cfg.Job.VoicePath, "voice reference"); err != nil {
		return Summary{}, err
	}

	text, err := os.ReadFile(p.cfg.Job.TextPath)
	if err != nil {
		return Summary{}, fmt.Errorf("read text: %w", err)
	}

	runID := uuid.NewString()
	summary := Summary{RunID: runID, OutputPath: p.cfg.Job.OutputPath}
	if p.journal != nil {
		if err := p.journal.BeginRun(ctx, runID, p.cfg.JobName); err != nil {
			p.logger.Warn("failed to journal run start", slog.String("error", err.Error()))
		}
	}

	units, err := p.segmentStage(ctx, string(text))
	if err != nil {
		p.finishRun(ctx, runID, "failed", summary)
		return summary, err
	}
	summary.Units = len(units)
	if len(units) == 0 {
		p.finishRun(ctx, runID, "failed", summary)
		return summary, fmt.Errorf("input produced no units: %w", ErrNoUnitsSynthesized)
	}

	p.publish(protocol.SubjectRunStarted, protocol.RunStarted{
		RunID:     runID,
		JobName:   p.cfg.JobName,
		Units:     len(units),
		Timestamp: time.Now().UTC(),
	})

	results, err := p.synthesizeStage(ctx, runID, units)
	if err != nil {
		p.finishRun(ctx, runID, "failed", summary)
		return summary, err
	}
	for _, res := range results {
		if res.Err != nil {
			summary.Failed++
		} else {
			summary.Synthesized++
		}
	}

	artifacts := synth.Artifacts(results)
	if len(artifacts) == 0 {
		p.finishRun(ctx, runID, "failed", summary)
		return summary, fmt.Errorf("all %d units failed: %w", len(units), ErrNoUnitsSynthesized)
	}

	track, err := p.assembleStage(ctx, artifacts)
	if err != nil {
		p.finishRun(ctx, runID, "failed", summary)
		return summary, fmt.Errorf("assemble track: %w", err)
	}
	summary.Skipped = track.Skipped
	summary.TrackLength = track.Duration()
	summary.Elapsed = time.Since(start)

	p.finishRun(ctx, runID, "completed", summary)
	p.logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Int("units", summary.Units),
		slog.Int("synthesized", summary.Synthesized),
		slog.Int("failed", summary.Failed),
		slog.Duration("track_length", summary.TrackLength),
		slog.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (p *Pipeline) segmentStage(ctx context.Context, text string) ([]segment.Unit, error) {
	ctx, span := p.tracer.Start(ctx, "segment")
	defer span.End()

	measure := p.measurer(ctx)
	units, err := segment.Split(text, p.cfg.Segmenter.MaxUnitSize, measure)
	if err != nil {
		return nil, fmt.Errorf("segment text: %w", err)
	}
	span.SetAttributes(attribute.Int("units", len(units)))
	p.logger.Info("text segmented",
		slog.Int("units", len(units)),
		slog.String("size_unit", p.cfg.Segmenter.SizeUnit),
		slog.Int("max_unit_size", p.cfg.Segmenter.MaxUnitSize))
	return units, nil
}

func (p *Pipeline) measurer(ctx context.Context) segment.Measurer {
	if p.cfg.Segmenter.SizeUnit == "tokens" && p.tokens != nil {
		return segment.MeasurerFunc(func(text string) (int, error) {
			return p.tokens.Count(ctx, text)
		})
	}
	return segment.Characters{}
}

func (p *Pipeline) synthesizeStage(ctx context.Context, runID string, units []segment.Unit) ([]synth.Result, error) {
	ctx, span := p.tracer.Start(ctx, "synthesize")
	defer span.End()

	job := synth.Job{
		VoicePath: p.cfg.Job.VoicePath,
		Language:  p.cfg.Job.Language,
		OutputDir: p.cfg.Job.WorkDir,
	}
	results, err := p.synth.SynthesizeAll(ctx, units, job, func(res synth.Result) {
		p.observeUnit(ctx, runID, res)
	})
	if err != nil {
		return results, fmt.Errorf("synthesize units: %w", err)
	}
	return results, nil
}

func (p *Pipeline) observeUnit(ctx context.Context, runID string, res synth.Result) {
	outcome := journal.UnitOutcome{
		RunID:     runID,
		UnitIndex: res.Unit.Index,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	event := protocol.UnitEvent{
		RunID:     runID,
		UnitIndex: res.Unit.Index,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	subject := protocol.SubjectUnitSynthesized
	if res.Err != nil {
		outcome.Status = "failed"
		outcome.Error = res.Err.Error()
		event.Error = res.Err.Error()
		subject = protocol.SubjectUnitFailed
		if p.unitsFailed != nil {
			p.unitsFailed.Add(ctx, 1)
		}
	} else {
		outcome.Status = "synthesized"
		outcome.Artifact = res.Artifact
		event.Artifact = res.Artifact
		if p.unitsSynthesized != nil {
			p.unitsSynthesized.Add(ctx, 1)
		}
	}

	if p.journal != nil {
		if err := p.journal.RecordUnit(ctx, outcome); err != nil {
			p.logger.Warn("failed to journal unit outcome", slog.String("error", err.Error()))
		}
	}
	p.publish(subject, event)
}

func (p *Pipeline) assembleStage(ctx context.Context, artifacts []string) (assemble.Track, error) {
	ctx, span := p.tracer.Start(ctx, "assemble")
	defer span.End()

	track, err := p.assembler.Assemble(ctx, artifacts, p.cfg.Job.OutputPath)
	if err != nil {
		return assemble.Track{}, err
	}
	span.SetAttributes(
		attribute.Int("appended", track.Appended),
		attribute.Int("skipped", track.Skipped),
	)
	return track, nil
}

func (p *Pipeline) finishRun(ctx context.Context, runID, status string, summary Summary) {
	if p.journal != nil {
		output := ""
		if status == "completed" {
			output = summary.OutputPath
		}
		if err := p.journal.FinishRun(ctx, runID, status, output); err != nil {
			p.logger.Warn("failed to journal run finish", slog.String("error", err.Error()))
		}
	}
	completed := protocol.RunCompleted{
		RunID:       runID,
		Status:      status,
		Synthesized: summary.Synthesized,
		Failed:      summary.Failed,
		DurationMS:  summary.TrackLength.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
	if status == "completed" {
		completed.OutputPath = summary.OutputPath
	}
	p.publish(protocol.SubjectRunCompleted, completed)
}

func (p *Pipeline) publish(subject string, payload any) {
	if p.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal event", slog.String("error", err.Error()))
		return
	}
	if err := p.events.Conn().Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func checkInput(path, kind string) error {
	if path == "" {
		return fmt.Errorf("%s path not set: %w", kind, ErrInputMissing)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s file %q: %w", kind, path, ErrInputMissing)
	}
	return nil
}
