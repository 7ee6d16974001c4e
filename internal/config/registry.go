package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/feherm/szinkron/pkg/provider/stt"
	"github.com/feherm/szinkron/pkg/provider/textgen"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	stt     map[string]func(ProviderEntry) (stt.Provider, error)
	textgen map[string]func(ProviderEntry) (textgen.Provider, error)
	tts     map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewProviderRegistry returns an empty, ready-to-use [Registry].
func NewProviderRegistry() *Registry {
	return &Registry{
		stt:     make(map[string]func(ProviderEntry) (stt.Provider, error)),
		textgen: make(map[string]func(ProviderEntry) (textgen.Provider, error)),
		tts:     make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTextGen registers a text-generation provider factory under name.
func (r *Registry) RegisterTextGen(name string, factory func(ProviderEntry) (textgen.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textgen[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateSTT constructs the STT provider selected by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTextGen constructs the text-generation provider selected by entry.
func (r *Registry) CreateTextGen(entry ProviderEntry) (textgen.Provider, error) {
	r.mu.RLock()
	factory, ok := r.textgen[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: textgen %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS constructs one TTS provider per entry, in order.
func (r *Registry) CreateTTS(entries []ProviderEntry) ([]tts.Provider, error) {
	out := make([]tts.Provider, 0, len(entries))
	for _, entry := range entries {
		r.mu.RLock()
		factory, ok := r.tts[entry.Name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: tts %q", ErrProviderNotRegistered, entry.Name)
		}
		p, err := factory(entry)
		if err != nil {
			return nil, fmt.Errorf("config: creating tts %q: %w", entry.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
