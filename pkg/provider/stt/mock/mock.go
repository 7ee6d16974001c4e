// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/feherm/szinkron/pkg/provider/stt"
)

// Call records a single invocation of Transcribe. The audio reader is not
// retained; record the filename and hints instead.
type Call struct {
	Filename string
	Language string
	Prompt   string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Result is returned by Transcribe unless Err is set.
	Result *stt.Result

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Filename: req.Filename, Language: req.Language, Prompt: req.Prompt})
	result, err := p.Result, p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if result == nil {
		return &stt.Result{}, nil
	}
	return result, nil
}
