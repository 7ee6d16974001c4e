// Package textgen defines the Provider interface for text generation
// backends used by the translation pipeline.
//
// A textgen provider wraps a remote model API (e.g., Google Gemini via
// generative-ai-go, or anything reachable through any-llm-go) and exposes
// a single-shot Generate call: system prompt in, generated text out. The
// translation layer composes providers into a region-by-model cascade, so
// implementations should stay thin and let the caller own retry policy.
//
// Implementations must be safe for concurrent use.
package textgen

import "context"

// Usage holds token accounting for one Generate call. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens int
	OutputTokens int
	TotalTokens  int
}

// Request carries everything a backend needs for one generation.
type Request struct {
	// SystemPrompt is the high-priority instruction (translation context,
	// terminology, tone). Providers without native system-prompt support
	// prepend it to the prompt.
	SystemPrompt string

	// Prompt is the user-facing content, typically the timed script to
	// translate.
	Prompt string

	// Temperature controls randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// TopP is nucleus sampling probability mass. Zero requests the
	// provider default.
	TopP float64

	// MaxOutputTokens caps the generated length. Zero means provider
	// default.
	MaxOutputTokens int
}

// Response is the result of a Generate call.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is the abstraction over any text generation backend.
type Provider interface {
	// Generate sends req to the model and waits for the full response.
	// Implementations must propagate context cancellation promptly and
	// classify upstream failures with the apperrors kinds so the cascade
	// can decide what to retry.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Model returns the model identifier this provider targets, used for
	// cascade entry naming and cost attribution.
	Model() string
}
