package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
storage:
  data_dir: /var/lib/szinkron
jobs:
  max_concurrent: 3
  default_max_cost_usd: 2.5
providers:
  stt:
    name: whisper
    api_key: sk-test
    model: whisper-1
  textgen:
    name: gemini
    api_key: g-test
    model: gemini-2.0-flash
  tts:
    - name: elevenlabs
      api_key: el-test
    - name: googletts
      api_key: gt-test
translation:
  regions: [us-central1, europe-west4]
  models: [gemini-2.0-flash, gemini-1.5-pro]
tools:
  ffmpeg: /usr/local/bin/ffmpeg
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Storage.DataDir != "/var/lib/szinkron" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Jobs.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d", cfg.Jobs.MaxConcurrent)
	}
	if len(cfg.Providers.TTS) != 2 || cfg.Providers.TTS[1].Name != "googletts" {
		t.Errorf("TTS providers = %+v", cfg.Providers.TTS)
	}
	if len(cfg.Translation.Regions) != 2 {
		t.Errorf("Regions = %v", cfg.Translation.Regions)
	}
	if cfg.Tools.FFmpeg != "/usr/local/bin/ffmpeg" {
		t.Errorf("FFmpeg = %q", cfg.Tools.FFmpeg)
	}
}

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: whisper\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("default DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Jobs.MaxConcurrent != 5 {
		t.Errorf("default MaxConcurrent = %d", cfg.Jobs.MaxConcurrent)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_address: \":8080\"\n"))
	if err == nil {
		t.Fatal("unknown field should be rejected")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Server.LogLevel = "verbose"
	cfg.Jobs.MaxConcurrent = -1
	cfg.Jobs.DefaultMaxCostUSD = -0.5
	cfg.Providers.TTS = []ProviderEntry{
		{Name: "elevenlabs"},
		{Name: "elevenlabs"},
		{},
	}
	cfg.Translation.Regions = []string{"us-central1"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("invalid config should fail validation")
	}
	for _, want := range []string{
		"server.log_level",
		"jobs.max_concurrent",
		"jobs.default_max_cost_usd",
		"duplicate",
		"providers.tts[2].name is required",
		"translation.models is empty",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q:\n%v", want, err)
		}
	}
}

func TestValidateTLSRequiresBothFiles(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Server.TLS = &TLSConfig{CertFile: "cert.pem"}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "cert_file and key_file") {
		t.Errorf("error = %v", err)
	}
}
