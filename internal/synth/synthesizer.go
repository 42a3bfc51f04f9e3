package synth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/narratelabs/narrated/internal/config"
	"github.com/narratelabs/narrated/internal/segment"
)

// Job carries the per-run parameters shared by every unit.
type Job struct {
	VoicePath string
	Language  string
	OutputDir string
}

// Result records the outcome of one unit's single synthesis attempt. A unit
// either yields an artifact path or an error, never both.
type Result struct {
	Unit     segment.Unit
	Artifact string
	Err      error
	Elapsed  time.Duration
}

// Synthesizer drives an engine over an ordered sequence of units. A failed
// unit is logged and skipped; it never aborts the batch.
type Synthesizer struct {
	engine  Engine
	cfg     config.SynthConfig
	logger  *slog.Logger
	reclaim func()
}

func New(engine Engine, cfg config.SynthConfig, log *slog.Logger) *Synthesizer {
	return &Synthesizer{
		engine:  engine,
		cfg:     cfg,
		logger:  log.With(slog.String("component", "synthesizer")),
		reclaim: debug.FreeOSMemory,
	}
}

// ArtifactName derives the deterministic file name for a unit. Zero-padded
// indices keep artifacts lexicographically sorted in unit order.
func ArtifactName(index int) string {
	return fmt.Sprintf("unit_%04d.wav", index)
}

// SynthesizeAll renders every unit in order, one attempt each. The returned
// results cover all units, failed ones included; observe, when non-nil, is
// called after each unit completes. The batch stops early only when ctx is
// cancelled.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, units []segment.Unit, job Job, observe func(Result)) ([]Result, error) {
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	results := make([]Result, 0, len(units))
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		path := filepath.Join(job.OutputDir, ArtifactName(unit.Index))
		start := time.Now()
		err := s.engine.Render(ctx, Request{
			Text:       unit.Text,
			VoicePath:  job.VoicePath,
			Language:   job.Language,
			OutputPath: path,
		})
		res := Result{Unit: unit, Elapsed: time.Since(start)}
		if err != nil {
			res.Err = err
			s.logger.Warn("unit synthesis failed",
				slog.Int("unit", unit.Index),
				slog.String("error", err.Error()))
		} else {
			res.Artifact = path
			s.logger.Info("unit synthesized",
				slog.Int("unit", unit.Index),
				slog.Int("of", len(units)),
				slog.Duration("elapsed", res.Elapsed))
		}
		results = append(results, res)
		if observe != nil {
			observe(res)
		}

		if s.cfg.ReclaimEvery > 0 && (i+1)%s.cfg.ReclaimEvery == 0 {
			s.reclaim()
		}
	}
	return results, nil
}

// Artifacts returns the paths of successful results in original unit order.
func Artifacts(results []Result) []string {
	var paths []string
	for _, r := range results {
		if r.Err == nil && r.Artifact != "" {
			paths = append(paths, r.Artifact)
		}
	}
	return paths
}
