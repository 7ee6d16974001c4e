// Command szinkron is the multilingual video dubbing server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/cobra"

	"github.com/feherm/szinkron/internal/app"
	"github.com/feherm/szinkron/internal/config"
	"github.com/feherm/szinkron/internal/cost"
	"github.com/feherm/szinkron/pkg/provider/stt"
	"github.com/feherm/szinkron/pkg/provider/stt/whisper"
	"github.com/feherm/szinkron/pkg/provider/textgen"
	"github.com/feherm/szinkron/pkg/provider/textgen/anyllm"
	"github.com/feherm/szinkron/pkg/provider/textgen/gemini"
	"github.com/feherm/szinkron/pkg/provider/tts"
	"github.com/feherm/szinkron/pkg/provider/tts/elevenlabs"
	"github.com/feherm/szinkron/pkg/provider/tts/googletts"
)

// shutdownTimeout bounds graceful teardown after the signal arrives.
const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "szinkron: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "szinkron",
		Short:         "Multilingual video dubbing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// Credentials may live in a .env next to the binary.
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading .env: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml",
		"path to the YAML configuration file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newVoicesCommand(&configPath))
	root.AddCommand(newEstimateCommand())
	return root
}

// ── serve ────────────────────────────────────────────────────────────────

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dubbing HTTP server",
		RunE: func(*cobra.Command, []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found", configPath)
		}
		return err
	}

	level := &slog.LevelVar{}
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	slog.Info("szinkron starting",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewProviderRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return fmt.Errorf("building providers: %w", err)
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return fmt.Errorf("initialising application: %w", err)
	}

	// Hot reload: the log level applies live, other reloadable sections
	// are reported.
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		application.ApplyConfigChange(level, config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// ── voices ───────────────────────────────────────────────────────────────

func newVoicesCommand(configPath *string) *cobra.Command {
	var providerFilter string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the synthesis voices of the configured TTS providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			reg := config.NewProviderRegistry()
			registerBuiltinProviders(ctx, reg)

			backends, err := reg.CreateTTS(cfg.Providers.TTS)
			if err != nil {
				return err
			}
			voices, err := tts.NewRegistry(backends...).ListVoices(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tID\tNAME\tLANGUAGE")
			for _, v := range voices {
				if providerFilter != "" && v.Provider != providerFilter {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Provider, v.ID, v.Name, v.Language)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&providerFilter, "provider", "", "only list voices of this provider")
	return cmd
}

// ── estimate ─────────────────────────────────────────────────────────────

func newEstimateCommand() *cobra.Command {
	var (
		minutes    float64
		testMode   bool
		translate  bool
		synthesize bool
		muxing     bool
		rate       float64
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost of a dubbing job",
		RunE: func(*cobra.Command, []string) error {
			if minutes <= 0 {
				return errors.New("--minutes must be positive")
			}
			b := cost.Estimate(cost.Params{
				EstimatedDuration:         time.Duration(minutes * float64(time.Minute)),
				TestMode:                  testMode,
				EnableTranscription:       true,
				EnableTranslation:         translate,
				EnableSynthesis:           synthesize,
				EnableMuxing:              muxing,
				SynthesisRatePerKiloChars: rate,
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Transcription\t$%.4f\n", b.Transcription)
			fmt.Fprintf(w, "Translation\t$%.4f\n", b.Translation)
			fmt.Fprintf(w, "Synthesis\t$%.4f\n", b.Synthesis)
			fmt.Fprintf(w, "Video processing\t$%.4f\n", b.VideoProcessing)
			fmt.Fprintf(w, "Storage\t$%.4f\n", b.Storage)
			fmt.Fprintf(w, "Total\t$%.4f\n", b.Total)
			return w.Flush()
		},
	}
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "source duration in minutes")
	cmd.Flags().BoolVar(&testMode, "test-mode", false, "first-minute test mode")
	cmd.Flags().BoolVar(&translate, "translate", false, "include translation")
	cmd.Flags().BoolVar(&synthesize, "synthesize", false, "include speech synthesis")
	cmd.Flags().BoolVar(&muxing, "mux", false, "include video muxing")
	cmd.Flags().Float64Var(&rate, "rate", 0.30, "synthesis rate in USD per 1k characters")
	return cmd
}

// ── Provider wiring ──────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// szinkron into reg. Each factory receives a config.ProviderEntry and
// constructs the provider from the real implementation packages.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── STT ──────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, whisper.WithBaseURL(entry.BaseURL))
		}
		return whisper.New(entry.APIKey, opts...)
	})

	// ── Text generation ──────────────────────────────────────────────

	reg.RegisterTextGen("gemini", func(entry config.ProviderEntry) (textgen.Provider, error) {
		var opts []gemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithEndpoint(entry.BaseURL))
		}
		return gemini.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	// anyllm multiplexes OpenAI-compatible backends; the concrete
	// backend comes from the options map.
	reg.RegisterTextGen("anyllm", func(entry config.ProviderEntry) (textgen.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// ── TTS ──────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("googletts", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []googletts.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, googletts.WithLanguage(lang))
		}
		return googletts.New(ctx, entry.APIKey, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the
// registry and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TextGen.Name; name != "" {
		p, err := reg.CreateTextGen(cfg.Providers.TextGen)
		if err != nil {
			return nil, fmt.Errorf("create textgen provider %q: %w", name, err)
		}
		ps.Postprocessor = p
		slog.Info("provider created", "kind", "textgen", "name", name)
	}

	if name := cfg.Translation.Fallback.Name; name != "" {
		p, err := reg.CreateTextGen(cfg.Translation.Fallback)
		if err != nil {
			return nil, fmt.Errorf("create translation fallback %q: %w", name, err)
		}
		ps.TranslateFallback = p
		slog.Info("provider created", "kind", "translation_fallback", "name", name)
	}

	if len(cfg.Providers.TTS) > 0 {
		backends, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts providers: %w", err)
		}
		ps.TTS = backends
		for _, p := range backends {
			slog.Info("provider created", "kind", "tts", "name", p.Name())
		}
	}

	return ps, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
