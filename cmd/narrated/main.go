package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/narratelabs/narrated/internal/config"
	"github.com/narratelabs/narrated/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		textPath    string
		voicePath   string
		outputPath  string
		workDir     string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&textPath, "text", "", "Path to the narration script")
	flag.StringVar(&voicePath, "voice", "", "Path to the voice reference recording")
	flag.StringVar(&outputPath, "out", "", "Path for the assembled track")
	flag.StringVar(&workDir, "workdir", "", "Directory for per-unit artifacts")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if textPath != "" {
		cfg.Job.TextPath = textPath
	}
	if voicePath != "" {
		cfg.Job.VoicePath = voicePath
	}
	if outputPath != "" {
		cfg.Job.OutputPath = outputPath
	}
	if workDir != "" {
		cfg.Job.WorkDir = workDir
	}

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := rt.Execute(ctx)
	if err != nil {
		logger.Error("narration run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("narration written",
		slog.String("output", summary.OutputPath),
		slog.Int("units", summary.Units),
		slog.Int("failed", summary.Failed),
		slog.Duration("track_length", summary.TrackLength))
}
