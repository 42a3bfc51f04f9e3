package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/narratelabs/narrated/internal/config"
	"github.com/narratelabs/narrated/internal/segment"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.SynthConfig {
	return config.SynthConfig{Mode: "mock", SampleRate: 16000, Channels: 1, ReclaimEvery: 5}
}

func makeUnits(texts ...string) []segment.Unit {
	units := make([]segment.Unit, len(texts))
	for i, text := range texts {
		units[i] = segment.Unit{Index: i, Text: text, Size: len(text)}
	}
	return units
}

// stubEngine fails for configured unit texts and touches the artifact
// otherwise.
type stubEngine struct {
	failOn map[string]bool
}

func (e *stubEngine) Render(_ context.Context, req Request) error {
	if e.failOn[req.Text] {
		return errors.New("model rejected input")
	}
	return os.WriteFile(req.OutputPath, []byte("wav"), 0o644)
}

func TestSynthesizeAllWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	s := New(NewMockEngine(16000, 1), testConfig(), newLogger())

	units := makeUnits("First unit.", "Second unit.", "Third unit.")
	results, err := s.SynthesizeAll(context.Background(), units, Job{VoicePath: "voice.wav", Language: "en", OutputDir: dir}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("unit %d failed: %v", i, res.Err)
		}
		want := filepath.Join(dir, ArtifactName(i))
		if res.Artifact != want {
			t.Fatalf("unexpected artifact path: %q", res.Artifact)
		}
		if _, err := os.Stat(want); err != nil {
			t.Fatalf("artifact missing: %v", err)
		}
	}
}

func TestSynthesizeAllSkipsFailedUnits(t *testing.T) {
	dir := t.TempDir()
	engine := &stubEngine{failOn: map[string]bool{"unit two": true}}
	s := New(engine, testConfig(), newLogger())

	units := makeUnits("unit zero", "unit one", "unit two", "unit three", "unit four")
	results, err := s.SynthesizeAll(context.Background(), units, Job{OutputDir: dir}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if results[2].Err == nil {
		t.Fatal("expected unit 2 to fail")
	}

	artifacts := Artifacts(results)
	if len(artifacts) != 4 {
		t.Fatalf("expected 4 artifacts, got %d", len(artifacts))
	}
	wantNames := []string{"unit_0000.wav", "unit_0001.wav", "unit_0003.wav", "unit_0004.wav"}
	for i, path := range artifacts {
		if filepath.Base(path) != wantNames[i] {
			t.Fatalf("artifact %d: got %q, want %q", i, filepath.Base(path), wantNames[i])
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ArtifactName(2))); !os.IsNotExist(err) {
		t.Fatal("expected no file for failed unit")
	}
}

func TestSynthesizeAllTotalFailure(t *testing.T) {
	engine := &stubEngine{failOn: map[string]bool{"a": true, "b": true}}
	s := New(engine, testConfig(), newLogger())

	results, err := s.SynthesizeAll(context.Background(), makeUnits("a", "b"), Job{OutputDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifacts := Artifacts(results); len(artifacts) != 0 {
		t.Fatalf("expected no artifacts, got %v", artifacts)
	}
}

func TestSynthesizeAllHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(NewMockEngine(16000, 1), testConfig(), newLogger())
	results, err := s.SynthesizeAll(ctx, makeUnits("a", "b"), Job{OutputDir: t.TempDir()}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after cancel, got %d", len(results))
	}
}

func TestSynthesizeAllObserver(t *testing.T) {
	s := New(&stubEngine{failOn: map[string]bool{"b": true}}, testConfig(), newLogger())

	var seen []int
	var failed int
	_, err := s.SynthesizeAll(context.Background(), makeUnits("a", "b", "c"), Job{OutputDir: t.TempDir()}, func(res Result) {
		seen = append(seen, res.Unit.Index)
		if res.Err != nil {
			failed++
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Fatalf("observer saw wrong units: %v", seen)
	}
	if failed != 1 {
		t.Fatalf("expected 1 observed failure, got %d", failed)
	}
}

func TestReclaimInterval(t *testing.T) {
	cfg := testConfig()
	cfg.ReclaimEvery = 2
	s := New(&stubEngine{}, cfg, newLogger())

	var calls int
	s.reclaim = func() { calls++ }

	if _, err := s.SynthesizeAll(context.Background(), makeUnits("a", "b", "c", "d", "e"), Job{OutputDir: t.TempDir()}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 reclamation passes, got %d", calls)
	}
}

func TestArtifactNamePadding(t *testing.T) {
	if got := ArtifactName(7); got != "unit_0007.wav" {
		t.Fatalf("unexpected artifact name: %q", got)
	}
	if got := ArtifactName(12345); got != "unit_12345.wav" {
		t.Fatalf("unexpected artifact name: %q", got)
	}
}
