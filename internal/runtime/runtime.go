// Package runtime assembles the collaborators of a narration run: telemetry,
// the optional status server and event bus, the journal, and the synthesis
// engine, then executes the pipeline once.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/narratelabs/narrated/internal/bus"
	"github.com/narratelabs/narrated/internal/config"
	"github.com/narratelabs/narrated/internal/journal"
	"github.com/narratelabs/narrated/internal/natsserver"
	"github.com/narratelabs/narrated/internal/pipeline"
	"github.com/narratelabs/narrated/internal/synth"
	"github.com/narratelabs/narrated/internal/tokenizer"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Execute runs one narration batch to completion. The status server and
// event publishing, when enabled, live exactly as long as the run.
func (r *Runtime) Execute(ctx context.Context) (pipeline.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	if r.cfg.Status.Enabled {
		r.startStatusServer(metricsHandler)
		defer r.stopStatusServer()
	}

	embedded, events := r.connectEvents()
	defer func() {
		events.Close()
		embedded.Shutdown()
	}()

	store, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		r.logger.Warn("journal unavailable, continuing without it", slog.String("error", err.Error()))
		store = nil
	}
	defer func() {
		if store != nil {
			_ = store.Close()
		}
	}()

	engine, err := buildEngine(r.cfg.Synth)
	if err != nil {
		return pipeline.Summary{}, err
	}
	counter, err := buildTokenizer(r.cfg)
	if err != nil {
		return pipeline.Summary{}, err
	}

	r.ready.Store(true)
	p := pipeline.New(r.cfg, engine, counter, store, events, r.logger)
	return p.Run(ctx)
}

// connectEvents starts the embedded server and connects the bus when events
// are enabled. Event delivery is best-effort; a broker problem degrades to a
// run without events rather than a failed run.
func (r *Runtime) connectEvents() (*natsserver.EmbeddedServer, *bus.Client) {
	if !r.cfg.Events.Enabled {
		return nil, nil
	}

	embedded, err := natsserver.Start(r.cfg.Events, r.logger)
	if err != nil {
		r.logger.Warn("embedded event server failed, continuing without events", slog.String("error", err.Error()))
		return nil, nil
	}

	eventsCfg := r.cfg.Events
	if embedded != nil {
		eventsCfg.Servers = []string{fmt.Sprintf("nats://localhost:%d", eventsCfg.Port)}
	}
	client, err := bus.Connect(context.Background(), eventsCfg, r.logger)
	if err != nil {
		r.logger.Warn("event bus unavailable, continuing without events", slog.String("error", err.Error()))
		embedded.Shutdown()
		return nil, nil
	}
	return embedded, client
}

func buildEngine(cfg config.SynthConfig) (synth.Engine, error) {
	switch cfg.Mode {
	case "exec":
		return synth.NewExecEngine(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return synth.NewMockEngine(cfg.SampleRate, cfg.Channels), nil
	}
}

func buildTokenizer(cfg config.Config) (tokenizer.Counter, error) {
	if cfg.Segmenter.SizeUnit != "tokens" {
		return nil, nil
	}
	switch cfg.Tokenizer.Mode {
	case "exec":
		return tokenizer.NewExecCounter(cfg.Tokenizer.Command)
	default:
		return tokenizer.NewMockCounter(), nil
	}
}

func (r *Runtime) startStatusServer(metricsHandler http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.Status.Bind, r.cfg.Status.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("status server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("status server started", slog.String("addr", addr))
}

func (r *Runtime) stopStatusServer() {
	if r.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("status server shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
