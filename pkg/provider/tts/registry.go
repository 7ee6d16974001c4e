package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// availabilityTTL is how long a provider's probe outcome is trusted before
// Available is called again.
const availabilityTTL = 60 * time.Second

// SelectAuto asks the Registry to pick the cheapest available provider.
const SelectAuto = "auto"

// Registry holds the configured TTS providers and picks one per job.
// Selection policy "auto" prefers the cheapest available provider;
// naming a provider selects it explicitly, failing if it is unavailable.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	providers []Provider
	probes    map[string]probeResult
	now       func() time.Time // test override
}

type probeResult struct {
	err error
	at  time.Time
}

// NewRegistry creates a Registry over the given providers.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{
		providers: providers,
		probes:    make(map[string]probeResult),
		now:       time.Now,
	}
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Select resolves a provider name to a usable provider. name may be
// SelectAuto or a registered provider's Name.
func (r *Registry) Select(ctx context.Context, name string) (Provider, error) {
	if name == "" || name == SelectAuto {
		return r.selectCheapest(ctx)
	}

	for _, p := range r.Providers() {
		if p.Name() != name {
			continue
		}
		if err := r.available(ctx, p); err != nil {
			return nil, fmt.Errorf("tts: provider %q unavailable: %w", name, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("tts: unknown provider %q", name)
}

// selectCheapest returns the available provider with the lowest cost per
// kilocharacter. Ties keep registration order.
func (r *Registry) selectCheapest(ctx context.Context) (Provider, error) {
	providers := r.Providers()
	if len(providers) == 0 {
		return nil, fmt.Errorf("tts: no providers registered")
	}

	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].CostPerKiloChars() < providers[j].CostPerKiloChars()
	})

	var lastErr error
	for _, p := range providers {
		if err := r.available(ctx, p); err != nil {
			slog.Debug("tts: provider unavailable, trying next",
				"provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		return p, nil
	}
	return nil, fmt.Errorf("tts: no provider available: %w", lastErr)
}

// available returns the cached probe outcome for p, refreshing it when the
// cache entry is older than availabilityTTL.
func (r *Registry) available(ctx context.Context, p Provider) error {
	r.mu.Lock()
	cached, ok := r.probes[p.Name()]
	fresh := ok && r.now().Sub(cached.at) < availabilityTTL
	r.mu.Unlock()

	if fresh {
		return cached.err
	}

	err := p.Available(ctx)

	r.mu.Lock()
	r.probes[p.Name()] = probeResult{err: err, at: r.now()}
	r.mu.Unlock()
	return err
}

// ProviderStatus describes a registered provider for reporting.
type ProviderStatus struct {
	Name             string
	CostPerKiloChars float64
	Available        bool
	VoiceCount       int
	LastError        string
}

// Enumerate reports every registered provider with its cached availability
// and the size of its voice catalogue. Probe outcomes come from the same
// cache Select uses, so enumeration does not hammer provider APIs.
func (r *Registry) Enumerate(ctx context.Context) []ProviderStatus {
	providers := r.Providers()
	out := make([]ProviderStatus, len(providers))
	for i, p := range providers {
		st := ProviderStatus{
			Name:             p.Name(),
			CostPerKiloChars: p.CostPerKiloChars(),
		}
		if err := r.available(ctx, p); err != nil {
			st.LastError = err.Error()
		} else {
			st.Available = true
			voices, err := p.ListVoices(ctx)
			if err != nil {
				st.LastError = err.Error()
			} else {
				st.VoiceCount = len(voices)
			}
		}
		out[i] = st
	}
	return out
}

// ListVoices aggregates the voice catalogues of every available provider.
// Unavailable providers are skipped rather than failing the whole call.
func (r *Registry) ListVoices(ctx context.Context) ([]VoiceProfile, error) {
	var (
		out     []VoiceProfile
		lastErr error
	)
	for _, p := range r.Providers() {
		if err := r.available(ctx, p); err != nil {
			lastErr = err
			continue
		}
		voices, err := p.ListVoices(ctx)
		if err != nil {
			slog.Warn("tts: listing voices failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		out = append(out, voices...)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("tts: no voices available: %w", lastErr)
	}
	return out, nil
}
