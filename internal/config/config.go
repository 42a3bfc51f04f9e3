package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	JobName     string          `yaml:"job_name"`
	Environment string          `yaml:"environment"`
	Status      StatusConfig    `yaml:"status"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Job         JobConfig       `yaml:"job"`
	Segmenter   SegmenterConfig `yaml:"segmenter"`
	Tokenizer   TokenizerConfig `yaml:"tokenizer"`
	Synth       SynthConfig     `yaml:"synth"`
	Assemble    AssembleConfig  `yaml:"assemble"`
	Journal     JournalConfig   `yaml:"journal"`
	Events      EventsConfig    `yaml:"events"`
}

// JobConfig names the run inputs and outputs. Text and voice paths are
// usually given on the command line; config values act as defaults.
type JobConfig struct {
	TextPath   string `yaml:"text_path"`
	VoicePath  string `yaml:"voice_path"`
	Language   string `yaml:"language"`
	WorkDir    string `yaml:"work_dir"`
	OutputPath string `yaml:"output_path"`
}

type SegmenterConfig struct {
	MaxUnitSize int    `yaml:"max_unit_size"`
	SizeUnit    string `yaml:"size_unit"` // characters, tokens
}

type TokenizerConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type SynthConfig struct {
	Mode         string `yaml:"mode"` // mock, exec
	Command      string `yaml:"command"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	ReclaimEvery int    `yaml:"reclaim_every"`
}

type AssembleConfig struct {
	GapDurationMS int `yaml:"gap_duration_ms"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type EventsConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

func Default() Config {
	return Config{
		JobName:     "narrated-job",
		Environment: "development",
		Status: StatusConfig{
			Enabled: false,
			Bind:    "0.0.0.0",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Job: JobConfig{
			Language:   "en",
			WorkDir:    "./units",
			OutputPath: "./narration.wav",
		},
		Segmenter: SegmenterConfig{
			MaxUnitSize: 2000,
			SizeUnit:    "characters",
		},
		Tokenizer: TokenizerConfig{
			Mode: "mock",
		},
		Synth: SynthConfig{
			Mode:         "mock",
			SampleRate:   24000,
			Channels:     1,
			ReclaimEvery: 5,
		},
		Assemble: AssembleConfig{
			GapDurationMS: 500,
		},
		Journal: JournalConfig{
			Path:          "./data/narrated-journal.db",
			RetentionMode: "run",
			RetentionDays: 30,
			MaxRuns:       1000,
		},
		Events: EventsConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.JobName, "NARRATED_JOB_NAME")
	overrideString(&cfg.Environment, "NARRATED_ENVIRONMENT")
	overrideBool(&cfg.Status.Enabled, "NARRATED_STATUS_ENABLED")
	overrideString(&cfg.Status.Bind, "NARRATED_STATUS_BIND")
	overrideInt(&cfg.Status.Port, "NARRATED_STATUS_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "NARRATED_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NARRATED_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NARRATED_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "NARRATED_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Job.TextPath, "NARRATED_JOB_TEXT_PATH")
	overrideString(&cfg.Job.VoicePath, "NARRATED_JOB_VOICE_PATH")
	overrideString(&cfg.Job.Language, "NARRATED_JOB_LANGUAGE")
	overrideString(&cfg.Job.WorkDir, "NARRATED_JOB_WORK_DIR")
	overrideString(&cfg.Job.OutputPath, "NARRATED_JOB_OUTPUT_PATH")
	overrideInt(&cfg.Segmenter.MaxUnitSize, "NARRATED_SEGMENTER_MAX_UNIT_SIZE")
	overrideString(&cfg.Segmenter.SizeUnit, "NARRATED_SEGMENTER_SIZE_UNIT")
	overrideString(&cfg.Tokenizer.Mode, "NARRATED_TOKENIZER_MODE")
	overrideString(&cfg.Tokenizer.Command, "NARRATED_TOKENIZER_COMMAND")
	overrideString(&cfg.Synth.Mode, "NARRATED_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "NARRATED_SYNTH_COMMAND")
	overrideInt(&cfg.Synth.SampleRate, "NARRATED_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.Channels, "NARRATED_SYNTH_CHANNELS")
	overrideInt(&cfg.Synth.ReclaimEvery, "NARRATED_SYNTH_RECLAIM_EVERY")
	overrideInt(&cfg.Assemble.GapDurationMS, "NARRATED_ASSEMBLE_GAP_DURATION_MS")
	overrideString(&cfg.Journal.Path, "NARRATED_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "NARRATED_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "NARRATED_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxRuns, "NARRATED_JOURNAL_MAX_RUNS")
	overrideBool(&cfg.Journal.VacuumOnStart, "NARRATED_JOURNAL_VACUUM_ON_START")
	overrideBool(&cfg.Events.Enabled, "NARRATED_EVENTS_ENABLED")
	overrideBool(&cfg.Events.Embedded, "NARRATED_EVENTS_EMBEDDED")
	overrideInt(&cfg.Events.Port, "NARRATED_EVENTS_PORT")
	overrideStringSlice(&cfg.Events.Servers, "NARRATED_EVENTS_SERVERS")
	overrideString(&cfg.Events.Username, "NARRATED_EVENTS_USERNAME")
	overrideString(&cfg.Events.Password, "NARRATED_EVENTS_PASSWORD")
	overrideString(&cfg.Events.Token, "NARRATED_EVENTS_TOKEN")
	overrideBool(&cfg.Events.TLSInsecure, "NARRATED_EVENTS_TLS_INSECURE")
	overrideInt(&cfg.Events.ConnectTimeout, "NARRATED_EVENTS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.JobName == "" {
		return errors.New("job_name must not be empty")
	}
	if cfg.Status.Enabled {
		if cfg.Status.Port <= 0 || cfg.Status.Port > 65535 {
			return errors.New("status.port must be between 1 and 65535")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Job.WorkDir == "" {
		return errors.New("job.work_dir must not be empty")
	}
	if cfg.Job.OutputPath == "" {
		return errors.New("job.output_path must not be empty")
	}
	if cfg.Segmenter.MaxUnitSize <= 0 {
		return errors.New("segmenter.max_unit_size must be positive")
	}
	switch cfg.Segmenter.SizeUnit {
	case "characters", "tokens":
	default:
		return errors.New("segmenter.size_unit must be one of characters|tokens")
	}
	if cfg.Segmenter.SizeUnit == "tokens" {
		switch cfg.Tokenizer.Mode {
		case "mock", "exec":
		default:
			return errors.New("tokenizer.mode must be one of mock|exec")
		}
		if cfg.Tokenizer.Mode == "exec" && cfg.Tokenizer.Command == "" {
			return errors.New("tokenizer.command must be set when mode=exec")
		}
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.Channels <= 0 {
		return errors.New("synth.channels must be positive")
	}
	if cfg.Synth.ReclaimEvery < 0 {
		return errors.New("synth.reclaim_every must be >= 0")
	}
	if cfg.Assemble.GapDurationMS < 0 {
		return errors.New("assemble.gap_duration_ms must be >= 0")
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "run", "persistent":
		// ok
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|run|persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	if cfg.Events.Enabled {
		if cfg.Events.Embedded {
			if cfg.Events.Port <= 0 || cfg.Events.Port > 65535 {
				return errors.New("events.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else {
			if len(cfg.Events.Servers) == 0 {
				return errors.New("events.servers must not be empty when embedded mode is disabled")
			}
		}
	}
	return nil
}
