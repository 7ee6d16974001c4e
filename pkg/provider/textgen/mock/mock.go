// Package mock provides a test double for the textgen.Provider interface.
//
// Use Provider in unit tests to verify prompts and to feed controlled
// generations without a live model backend. Set the response fields before
// use; mutating them during a concurrent call is the caller's
// responsibility.
//
// Example:
//
//	p := &mock.Provider{Response: &textgen.Response{Text: "[00:00:00] Szia."}}
//	resp, err := p.Generate(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/feherm/szinkron/pkg/provider/textgen"
)

// Call records a single invocation of Generate.
type Call struct {
	Ctx context.Context
	Req textgen.Request
}

// Provider is a mock implementation of textgen.Provider.
type Provider struct {
	mu sync.Mutex

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Response is returned by Generate when GenerateFn is nil.
	Response *textgen.Response

	// Err, if non-nil, is returned by Generate instead of Response.
	Err error

	// GenerateFn, if set, handles Generate entirely, overriding Response
	// and Err. Useful for per-call scripting.
	GenerateFn func(ctx context.Context, req textgen.Request) (*textgen.Response, error)

	// Calls records every invocation of Generate in order.
	Calls []Call
}

// Compile-time interface assertion.
var _ textgen.Provider = (*Provider)(nil)

// Model implements textgen.Provider.
func (p *Provider) Model() string {
	if p.ModelName == "" {
		return "mock-model"
	}
	return p.ModelName
}

// Generate implements textgen.Provider.
func (p *Provider) Generate(ctx context.Context, req textgen.Request) (*textgen.Response, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	fn := p.GenerateFn
	resp, err := p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &textgen.Response{}, nil
	}
	return resp, nil
}

// CallCount returns how many times Generate was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
