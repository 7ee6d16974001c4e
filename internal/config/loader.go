package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":     {"whisper"},
	"textgen": {"gemini", "anyllm"},
	"tts":     {"elevenlabs", "googletts"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Jobs
	if cfg.Jobs.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("jobs.max_concurrent %d must be at least 1", cfg.Jobs.MaxConcurrent))
	}
	if cfg.Jobs.DefaultMaxCostUSD < 0 {
		errs = append(errs, fmt.Errorf("jobs.default_max_cost_usd %.4f must not be negative", cfg.Jobs.DefaultMaxCostUSD))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("textgen", cfg.Providers.TextGen.Name)
	ttsSeen := make(map[string]int, len(cfg.Providers.TTS))
	for i, entry := range cfg.Providers.TTS {
		prefix := fmt.Sprintf("providers.tts[%d]", i)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := ttsSeen[entry.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.tts[%d]", prefix, entry.Name, prev))
		}
		ttsSeen[entry.Name] = i
		validateProviderName("tts", entry.Name)
	}

	// Stage availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; submissions will fail at the transcription stage")
	}
	if cfg.Providers.TextGen.Name == "" {
		slog.Warn("no textgen provider configured; translation and transcript postprocessing are unavailable")
	}
	if len(cfg.Providers.TTS) == 0 {
		slog.Warn("no TTS providers configured; synthesis-enabled jobs will be rejected")
	}

	// Translation cascade
	if len(cfg.Translation.Regions) > 0 && len(cfg.Translation.Models) == 0 {
		errs = append(errs, errors.New("translation.regions is set but translation.models is empty"))
	}
	if len(cfg.Translation.Models) > 0 && len(cfg.Translation.Regions) == 0 {
		errs = append(errs, errors.New("translation.models is set but translation.regions is empty"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
