package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Segmenter.MaxUnitSize != 2000 {
		t.Fatalf("expected default max unit size, got %d", cfg.Segmenter.MaxUnitSize)
	}
	if cfg.Segmenter.SizeUnit != "characters" {
		t.Fatalf("expected default size unit, got %q", cfg.Segmenter.SizeUnit)
	}
	if cfg.Assemble.GapDurationMS != 500 {
		t.Fatalf("expected default gap duration, got %d", cfg.Assemble.GapDurationMS)
	}
	if cfg.Events.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Events.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRATED_SEGMENTER_MAX_UNIT_SIZE", "400")
	t.Setenv("NARRATED_SEGMENTER_SIZE_UNIT", "tokens")
	t.Setenv("NARRATED_TOKENIZER_MODE", "exec")
	t.Setenv("NARRATED_TOKENIZER_COMMAND", "tokenize --model mbart")
	t.Setenv("NARRATED_SYNTH_MODE", "exec")
	t.Setenv("NARRATED_SYNTH_COMMAND", "xtts-render")
	t.Setenv("NARRATED_SYNTH_RECLAIM_EVERY", "10")
	t.Setenv("NARRATED_ASSEMBLE_GAP_DURATION_MS", "400")
	t.Setenv("NARRATED_JOURNAL_PATH", "./tmp.db")
	t.Setenv("NARRATED_JOURNAL_RETENTION_MODE", "persistent")
	t.Setenv("NARRATED_JOURNAL_MAX_RUNS", "123")
	t.Setenv("NARRATED_EVENTS_ENABLED", "true")
	t.Setenv("NARRATED_EVENTS_EMBEDDED", "false")
	t.Setenv("NARRATED_EVENTS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Segmenter.MaxUnitSize != 400 {
		t.Fatalf("expected max unit size override, got %d", cfg.Segmenter.MaxUnitSize)
	}
	if cfg.Segmenter.SizeUnit != "tokens" {
		t.Fatalf("expected size unit override, got %q", cfg.Segmenter.SizeUnit)
	}
	if cfg.Tokenizer.Command != "tokenize --model mbart" {
		t.Fatalf("expected tokenizer command override")
	}
	if cfg.Synth.Mode != "exec" || cfg.Synth.Command != "xtts-render" {
		t.Fatalf("expected synth overrides, got %+v", cfg.Synth)
	}
	if cfg.Synth.ReclaimEvery != 10 {
		t.Fatalf("expected reclaim interval override, got %d", cfg.Synth.ReclaimEvery)
	}
	if cfg.Assemble.GapDurationMS != 400 {
		t.Fatalf("expected gap duration override, got %d", cfg.Assemble.GapDurationMS)
	}
	if cfg.Journal.Path != "./tmp.db" {
		t.Fatalf("expected journal path override")
	}
	if cfg.Journal.RetentionMode != "persistent" {
		t.Fatalf("expected journal retention mode override")
	}
	if cfg.Journal.MaxRuns != 123 {
		t.Fatalf("expected journal max runs override")
	}
	if len(cfg.Events.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Events.Servers)
	}
}

func TestValidateRejectsBadSizeUnit(t *testing.T) {
	t.Setenv("NARRATED_SEGMENTER_SIZE_UNIT", "words")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for size unit")
	}
}

func TestValidateRequiresExecCommands(t *testing.T) {
	t.Setenv("NARRATED_SYNTH_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for missing synth command")
	}
}
