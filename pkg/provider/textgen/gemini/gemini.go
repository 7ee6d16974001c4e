// Package gemini provides a Google Gemini-backed textgen provider using
// github.com/google/generative-ai-go. It implements the textgen.Provider
// interface.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/pkg/provider/textgen"
)

// Option is a functional option for configuring the Gemini Provider.
type Option func(*settings)

type settings struct {
	endpoint string
}

// WithEndpoint overrides the API endpoint host, e.g. a regional endpoint.
// The translation cascade uses this to pin each entry to one region.
func WithEndpoint(host string) Option {
	return func(s *settings) {
		s.endpoint = host
	}
}

// Provider implements textgen.Provider backed by the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// Compile-time interface assertion.
var _ textgen.Provider = (*Provider)(nil)

// New creates a Gemini Provider for the given model. apiKey must be
// non-empty. The supplied ctx governs client construction only.
//
// Note: option.WithHTTPClient is deliberately avoided because it interferes
// with the genai library's API-key header injection. Timeouts are enforced
// per call via context instead.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if s.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(s.endpoint))
	}

	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Model implements textgen.Provider.
func (p *Provider) Model() string { return p.model }

// Close releases the underlying API client.
func (p *Provider) Close() error { return p.client.Close() }

// Generate implements textgen.Provider.
func (p *Provider) Generate(ctx context.Context, req textgen.Request) (*textgen.Response, error) {
	m := p.client.GenerativeModel(p.model)
	if req.Temperature > 0 {
		m.SetTemperature(float32(req.Temperature))
	}
	if req.TopP > 0 {
		m.SetTopP(float32(req.TopP))
	}
	if req.MaxOutputTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}
	if req.SystemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, classifyError(err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, apperrors.Validation(err)
	}

	out := &textgen.Response{Text: text}
	if resp.UsageMetadata != nil {
		out.Usage = textgen.Usage{
			PromptTokens: int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// extractText concatenates the text parts of the first candidate that has
// any. Blob and function-call parts are skipped.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("no response received from Gemini")
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates returned from Gemini")
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			continue
		}
		var combined string
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				combined += string(text)
			}
		}
		if combined != "" {
			return combined, nil
		}
	}
	return "", errors.New("no text parts found in Gemini response")
}

// classifyError maps a Gemini API failure to an apperrors kind so the
// cascade and retry layers can act on it.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	wrapped := fmt.Errorf("gemini generate content failed: %w", err)

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 404:
			return apperrors.New(apperrors.KindBadRequest, "Gemini model not found or no access (404).", wrapped)
		case gerr.Code == 400:
			return apperrors.New(apperrors.KindBadRequest, "Gemini request rejected (400).", wrapped)
		case gerr.Code == 401 || gerr.Code == 403:
			return apperrors.New(apperrors.KindAuth, fmt.Sprintf("Gemini authentication failed (%d).", gerr.Code), wrapped)
		case gerr.Code == 429:
			return apperrors.New(apperrors.KindRateLimit, "Gemini rate limit exceeded (429).", wrapped)
		case gerr.Code >= 500:
			return apperrors.New(apperrors.KindTransient, fmt.Sprintf("Gemini service temporary error (%d).", gerr.Code), wrapped)
		default:
			return apperrors.New(apperrors.KindBadRequest, fmt.Sprintf("Gemini API error (%d).", gerr.Code), wrapped)
		}
	}

	// Non-HTTP transport failures (DNS, socket, timeout) are usually
	// transient and worth a retry on another region.
	return apperrors.New(apperrors.KindTransient, "Gemini request failed due to a temporary network error.", wrapped)
}
