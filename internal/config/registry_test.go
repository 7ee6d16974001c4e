package config

import (
	"errors"
	"testing"

	"github.com/feherm/szinkron/pkg/provider/stt"
	sttmock "github.com/feherm/szinkron/pkg/provider/stt/mock"
	"github.com/feherm/szinkron/pkg/provider/tts"
	ttsmock "github.com/feherm/szinkron/pkg/provider/tts/mock"
)

func TestRegistryCreateSTT(t *testing.T) {
	r := NewProviderRegistry()
	var gotKey string
	r.RegisterSTT("whisper", func(e ProviderEntry) (stt.Provider, error) {
		gotKey = e.APIKey
		return &sttmock.Provider{}, nil
	})

	p, err := r.CreateSTT(ProviderEntry{Name: "whisper", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("nil provider")
	}
	if gotKey != "sk-test" {
		t.Errorf("factory got key %q", gotKey)
	}
}

func TestRegistryCreateUnregistered(t *testing.T) {
	r := NewProviderRegistry()
	_, err := r.CreateSTT(ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryCreateTTSOrdered(t *testing.T) {
	r := NewProviderRegistry()
	r.RegisterTTS("elevenlabs", func(e ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{ProviderName: "elevenlabs"}, nil
	})
	r.RegisterTTS("googletts", func(e ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{ProviderName: "googletts"}, nil
	})

	providers, err := r.CreateTTS([]ProviderEntry{
		{Name: "googletts"},
		{Name: "elevenlabs"},
	})
	if err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
	if len(providers) != 2 || providers[0].Name() != "googletts" || providers[1].Name() != "elevenlabs" {
		t.Errorf("providers out of order: %v", providers)
	}
}

func TestRegistryCreateTTSUnknownEntry(t *testing.T) {
	r := NewProviderRegistry()
	_, err := r.CreateTTS([]ProviderEntry{{Name: "coqui"}})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("error = %v, want ErrProviderNotRegistered", err)
	}
}
