// Package config provides the configuration schema, loader, provider
// registry, and hot-reload watcher for the dubbing server.
package config

import "log/slog"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. It is typically loaded from
// a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Translation TranslationConfig `yaml:"translation"`
	Tools       ToolsConfig       `yaml:"tools"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// StorageConfig locates job artifacts and intermediates on disk.
type StorageConfig struct {
	// DataDir holds finished job artifacts (transcripts, audio, video).
	DataDir string `yaml:"data_dir"`

	// TempDir holds per-job intermediates. Empty means the OS temp dir.
	TempDir string `yaml:"temp_dir"`
}

// JobsConfig bounds pipeline execution.
type JobsConfig struct {
	// MaxConcurrent caps how many jobs run stages at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	// DefaultMaxCostUSD is the budget applied to submissions that carry
	// none. Zero means uncapped.
	DefaultMaxCostUSD float64 `yaml:"default_max_cost_usd"`

	// AbortOnOverrun turns post-stage budget overruns into hard failures
	// for jobs that do not set their own policy.
	AbortOnOverrun bool `yaml:"abort_on_overrun"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each Name selects a factory registered in the [Registry].
type ProvidersConfig struct {
	// STT is the speech recognition backend.
	STT ProviderEntry `yaml:"stt"`

	// TextGen is the text-generation backend used for translation and
	// transcript postprocessing.
	TextGen ProviderEntry `yaml:"textgen"`

	// TTS lists the synthesis backends. All configured backends are
	// registered; per-job selection picks between them.
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper", "gemini", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "whisper-1", "gemini-2.0-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// TranslationConfig shapes the translation candidate cascade.
type TranslationConfig struct {
	// Regions lists the API regions tried in order. Empty means the
	// built-in default grid.
	Regions []string `yaml:"regions"`

	// Models lists the model names tried per region. Empty means the
	// built-in default grid.
	Models []string `yaml:"models"`

	// Fallback configures a last-resort provider tried after the whole
	// region-by-model cascade is exhausted.
	Fallback ProviderEntry `yaml:"fallback"`
}

// ToolsConfig overrides the external tool binaries the muxer shells out
// to. Empty values resolve through PATH.
type ToolsConfig struct {
	YtDlp   string `yaml:"yt_dlp"`
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Jobs.MaxConcurrent == 0 {
		c.Jobs.MaxConcurrent = 5
	}
}
