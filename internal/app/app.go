// Package app wires all szinkron subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject fake stage implementations via functional options
// (WithTranscriber, WithMuxer, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/feherm/szinkron/internal/api"
	"github.com/feherm/szinkron/internal/config"
	"github.com/feherm/szinkron/internal/health"
	"github.com/feherm/szinkron/internal/job"
	"github.com/feherm/szinkron/internal/mux"
	"github.com/feherm/szinkron/internal/observe"
	"github.com/feherm/szinkron/internal/resilience"
	"github.com/feherm/szinkron/internal/transcribe"
	"github.com/feherm/szinkron/internal/translate"
	"github.com/feherm/szinkron/pkg/provider/stt"
	"github.com/feherm/szinkron/pkg/provider/textgen"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config
// registry.
type Providers struct {
	// STT recognizes speech. Required.
	STT stt.Provider

	// Postprocessor cleans up raw transcripts when a job opts in.
	Postprocessor textgen.Provider

	// TranslateFallback is tried after the Gemini region cascade is
	// exhausted.
	TranslateFallback textgen.Provider

	// TTS are the synthesis backends in registration order.
	TTS []tts.Provider
}

// App owns all subsystem lifetimes and serves the dubbing pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	registry  *job.Registry
	orch      *job.Orchestrator
	voices    *tts.Registry
	metrics   *observe.Metrics
	telemetry *observe.Telemetry
	stages    *stageClock
	server    *http.Server

	// Injectable stage implementations; filled from config when nil.
	transcriber job.TranscribeStage
	translator  job.TranslateStage
	muxer       job.VideoMuxer
	downloader  job.AudioSource
	transcoder  job.AudioTranscoder

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTranscriber injects the transcription stage.
func WithTranscriber(t job.TranscribeStage) Option {
	return func(a *App) { a.transcriber = t }
}

// WithTranslator injects the translation stage.
func WithTranslator(t job.TranslateStage) Option {
	return func(a *App) { a.translator = t }
}

// WithMuxer injects the video muxer.
func WithMuxer(m job.VideoMuxer) Option {
	return func(a *App) { a.muxer = m }
}

// WithDownloader injects the source audio downloader.
func WithDownloader(d job.AudioSource) Option {
	return func(a *App) { a.downloader = d }
}

// WithTranscoder injects the audio transcoder.
func WithTranscoder(t job.AudioTranscoder) Option {
	return func(a *App) { a.transcoder = t }
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). Use
// Option functions to inject test doubles for any stage.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	if err := a.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}
	a.initTools()
	if err := a.initStages(ctx); err != nil {
		return nil, fmt.Errorf("app: init stages: %w", err)
	}
	a.initJobs()
	a.initServer()

	return a, nil
}

// initStorage makes sure the data and temp directories exist.
func (a *App) initStorage() error {
	if err := os.MkdirAll(a.cfg.Storage.DataDir, 0o755); err != nil {
		return err
	}
	if a.cfg.Storage.TempDir == "" {
		a.cfg.Storage.TempDir = os.TempDir()
	}
	return os.MkdirAll(a.cfg.Storage.TempDir, 0o755)
}

// initObservability sets up the OTel SDK with the Prometheus bridge.
func (a *App) initObservability(ctx context.Context) error {
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	a.telemetry = telemetry
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return telemetry.Shutdown(sctx)
	})

	a.metrics, err = observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.stages = newStageClock(a.metrics)
	return nil
}

// initTools creates the external-tool wrappers, honoring configured
// binary overrides.
func (a *App) initTools() {
	tools := a.cfg.Tools

	if a.downloader == nil || a.muxer == nil || a.transcoder == nil {
		var dopts []mux.DownloaderOption
		if tools.YtDlp != "" {
			dopts = append(dopts, mux.WithDownloaderBinary(tools.YtDlp))
		}
		dl := mux.NewDownloader(dopts...)

		var popts []mux.ProberOption
		if tools.FFprobe != "" {
			popts = append(popts, mux.WithProberBinary(tools.FFprobe))
		}
		prober := mux.NewProber(popts...)

		if a.downloader == nil {
			a.downloader = dl
		}
		if a.transcoder == nil {
			var topts []mux.TranscoderOption
			if tools.FFmpeg != "" {
				topts = append(topts, mux.WithTranscoderBinary(tools.FFmpeg))
			}
			a.transcoder = mux.NewTranscoder(topts...)
		}
		if a.muxer == nil {
			mopts := []mux.MuxerOption{mux.WithTempDir(a.cfg.Storage.TempDir)}
			if tools.FFmpeg != "" {
				mopts = append(mopts, mux.WithMuxerBinary(tools.FFmpeg))
			}
			a.muxer = mux.NewMuxer(dl, prober, mopts...)
		}
	}
}

// initStages builds the transcription and translation stages from the
// configured providers.
func (a *App) initStages(ctx context.Context) error {
	if a.transcriber == nil {
		if a.providers.STT == nil {
			return errors.New("an stt provider is required")
		}
		var topts []transcribe.Option
		if a.providers.Postprocessor != nil {
			topts = append(topts, transcribe.WithPostprocessor(a.providers.Postprocessor))
		}
		a.transcriber = transcribe.New(a.providers.STT, topts...)
	}

	if a.translator == nil {
		cascade := resilience.NewCascade[textgen.Provider](resilience.BreakerConfig{})
		if entry := a.cfg.Providers.TextGen; entry.Name == "gemini" && entry.APIKey != "" {
			var err error
			cascade, err = translate.NewGeminiCascade(ctx, entry.APIKey,
				a.cfg.Translation.Regions, a.cfg.Translation.Models,
				resilience.BreakerConfig{})
			if err != nil {
				return err
			}
		}
		var topts []translate.Option
		if a.providers.TranslateFallback != nil {
			topts = append(topts, translate.WithFallback(a.providers.TranslateFallback))
		}
		a.translator = translate.New(cascade, topts...)
	}

	a.voices = tts.NewRegistry(a.providers.TTS...)
	return nil
}

// initJobs builds the registry and orchestrator with metric hooks.
func (a *App) initJobs() {
	a.registry = job.NewRegistry()
	a.orch = job.NewOrchestrator(a.registry, a.cfg.Storage.DataDir, job.Deps{
		Transcriber: a.transcriber,
		Translator:  a.translator,
		Synthesis:   a.voices,
		Muxer:       a.muxer,
		Downloader:  a.downloader,
		Transcoder:  a.transcoder,
	},
		job.WithMaxConcurrent(int64(a.cfg.Jobs.MaxConcurrent)),
		job.WithTempDir(a.cfg.Storage.TempDir),
		job.WithListener(a.stages.observe),
	)
}

// initServer assembles the HTTP handler stack.
func (a *App) initServer() {
	checks := health.New(
		health.Checker{Name: "data_dir", Check: func(context.Context) error {
			_, err := os.Stat(a.cfg.Storage.DataDir)
			return err
		}},
	)

	srv := api.New(a.instrumentedSubmitter(), a.registry, a.voices, checks, a.telemetry.MetricsHandler, a.cfg.Storage.DataDir)
	handler := observe.Middleware(a.metrics)(srv.Router())

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Run serves HTTP and blocks until ctx is cancelled or the listener
// fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	slog.Info("szinkron listening",
		"addr", a.cfg.Server.ListenAddr,
		"data_dir", a.cfg.Storage.DataDir,
		"tts_providers", len(a.providers.TTS))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// ApplyConfigChange reacts to a hot-reloaded configuration. Only the
// log level takes effect live; other reloadable sections are logged and
// picked up by new jobs where possible.
func (a *App) ApplyConfigChange(level *slog.LevelVar, diff config.ConfigDiff) {
	if diff.LogLevelChanged {
		level.Set(diff.NewLogLevel.Level())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.JobsChanged {
		slog.Warn("jobs limits changed; the new bounds apply after restart")
	}
	if diff.TranslationChanged {
		slog.Warn("translation grid changed; the new grid applies after restart")
	}
}

// Shutdown drains the HTTP server and tears down all subsystems in
// order. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Registry exposes the job registry, mainly for tests and subcommands.
func (a *App) Registry() *job.Registry { return a.registry }

// Orchestrator exposes the job orchestrator.
func (a *App) Orchestrator() *job.Orchestrator { return a.orch }

// Voices exposes the synthesis provider registry.
func (a *App) Voices() *tts.Registry { return a.voices }

// Handler exposes the assembled HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// instrumentedSubmitter wraps the orchestrator with submission counters.
func (a *App) instrumentedSubmitter() api.Submitter {
	return &countingSubmitter{orch: a.orch, metrics: a.metrics}
}

type countingSubmitter struct {
	orch    *job.Orchestrator
	metrics *observe.Metrics
}

func (s *countingSubmitter) Submit(ctx context.Context, req job.Request) (*job.Job, error) {
	j, err := s.orch.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.JobsSubmitted.Add(ctx, 1)
	s.metrics.ActiveJobs.Add(ctx, 1)
	return j, nil
}

func (s *countingSubmitter) Cancel(id string) error { return s.orch.Cancel(id) }
