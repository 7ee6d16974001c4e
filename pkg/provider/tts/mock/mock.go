// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/feherm/szinkron/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
// Zero values make every method succeed with empty results.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Rate is returned by CostPerKiloChars.
	Rate float64

	// Result is returned by Synthesize unless SynthesizeErr is set.
	Result *tts.Result

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// Voices is returned by ListVoices unless VoicesErr is set.
	Voices []tts.VoiceProfile

	// VoicesErr, if non-nil, is returned by ListVoices.
	VoicesErr error

	// AvailableErr is returned by Available.
	AvailableErr error

	// ValidateErr, if non-nil, is returned by ValidateVoiceID.
	ValidateErr error

	// ValidatedIDs records every ValidateVoiceID invocation in order.
	ValidatedIDs []string

	// Requests records every Synthesize invocation in order.
	Requests []tts.Request

	// AvailableCalls counts Available invocations, letting tests verify
	// probe caching.
	AvailableCalls int
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Name implements tts.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// CostPerKiloChars implements tts.Provider.
func (p *Provider) CostPerKiloChars() float64 { return p.Rate }

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (*tts.Result, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	result, err := p.Result, p.SynthesizeErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if result == nil {
		return &tts.Result{Provider: p.Name()}, nil
	}
	return result, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.VoicesErr != nil {
		return nil, p.VoicesErr
	}
	return p.Voices, nil
}

// Available implements tts.Provider.
func (p *Provider) Available(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AvailableCalls++
	return p.AvailableErr
}

// ValidateVoiceID implements tts.Provider.
func (p *Provider) ValidateVoiceID(_ context.Context, voiceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ValidatedIDs = append(p.ValidatedIDs, voiceID)
	return p.ValidateErr
}
