// Package whisper provides an OpenAI Whisper-backed STT provider using the
// hosted transcription API. It implements the stt.Provider interface.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   oai.AudioModel
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to point at a
// self-hosted Whisper server with an OpenAI-compatible surface.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel overrides the transcription model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = oai.AudioModel(model)
	}
}

// WithTimeout sets a per-request HTTP timeout. Transcription of long audio
// can take minutes; the default client has no timeout and relies on ctx.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements stt.Provider using the OpenAI audio transcription API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// New constructs a Whisper Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("whisper: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "whisper" }

// verboseTranscription mirrors the verbose_json response shape of the
// transcription endpoint, which carries the per-segment timing the pipeline
// needs.
type verboseTranscription struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if req.Audio == nil {
		return nil, fmt.Errorf("whisper: req.Audio must not be nil")
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(req.Audio, filename, mimeForFilename(filename)),
		Model:          p.model,
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	var verbose verboseTranscription
	_, err := p.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&verbose))
	if err != nil {
		return nil, classifyError(err)
	}

	result := &stt.Result{
		Language: strings.ToLower(verbose.Language),
		Duration: time.Duration(verbose.Duration * float64(time.Second)),
		Text:     strings.TrimSpace(verbose.Text),
		Segments: make([]stt.Segment, 0, len(verbose.Segments)),
	}
	for _, s := range verbose.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, stt.Segment{
			Start:      time.Duration(s.Start * float64(time.Second)),
			End:        time.Duration(s.End * float64(time.Second)),
			Text:       text,
			Confidence: confidenceFromLogprob(s.AvgLogprob),
		})
	}
	return result, nil
}

// confidenceFromLogprob maps Whisper's average log probability to a rough
// [0, 1] confidence. Whisper reports no direct confidence; avg_logprob near
// 0 means high certainty, below about -1 means the segment is suspect.
func confidenceFromLogprob(logprob float64) float64 {
	if logprob >= 0 {
		return 1
	}
	if logprob <= -1 {
		return 0
	}
	return 1 + logprob
}

// mimeForFilename guesses a content type from the filename extension.
func mimeForFilename(name string) string {
	switch {
	case strings.HasSuffix(name, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(name, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(name, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(name, ".ogg"), strings.HasSuffix(name, ".oga"):
		return "audio/ogg"
	case strings.HasSuffix(name, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(name, ".webm"):
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

// classifyError maps an OpenAI API failure to an apperrors kind.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	wrapped := fmt.Errorf("whisper transcription failed: %w", err)

	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return apperrors.New(apperrors.KindAuth, fmt.Sprintf("Whisper authentication failed (%d).", apiErr.StatusCode), wrapped)
		case apiErr.StatusCode == 429:
			return apperrors.New(apperrors.KindRateLimit, "Whisper rate limit exceeded (429).", wrapped)
		case apiErr.StatusCode >= 500:
			return apperrors.New(apperrors.KindTransient, fmt.Sprintf("Whisper service temporary error (%d).", apiErr.StatusCode), wrapped)
		default:
			return apperrors.New(apperrors.KindBadRequest, fmt.Sprintf("Whisper request rejected (%d).", apiErr.StatusCode), wrapped)
		}
	}
	return apperrors.New(apperrors.KindTransient, "Whisper request failed due to a temporary network error.", wrapped)
}
