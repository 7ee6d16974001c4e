// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs REST API. It implements the tts.Provider interface.
//
// Short scripts are synthesized in a single request and returned as MP3.
// Longer scripts are split into segment groups, synthesized as raw PCM,
// and overlaid onto a silent base track at each group's start offset so
// the result stays aligned with the source video.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/pkg/audio"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

const (
	baseURL        = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	costPerKChars  = 0.30

	// singleCallMaxSegments and singleCallMaxChars bound the one-request
	// fast path. Anything larger goes through grouped synthesis.
	singleCallMaxSegments = 50
	singleCallMaxChars    = 10000

	// groupMaxChars and groupMaxSegments bound one grouped-synthesis
	// request.
	groupMaxChars    = 1000
	groupMaxSegments = 20

	// groupParallelism bounds concurrent grouped-synthesis requests.
	groupParallelism = 4

	// maxAttempts bounds retries of one synthesis request on 429/5xx.
	maxAttempts = 3
)

// chunkFormat is the PCM format requested in grouped mode.
var chunkFormat = audio.Format{SampleRate: 44100, Channels: 1}

// retryBase is the first backoff delay; doubled per attempt. Variable so
// tests can shorten it.
var retryBase = 500 * time.Millisecond

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates an ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "elevenlabs" }

// CostPerKiloChars implements tts.Provider.
func (p *Provider) CostPerKiloChars() float64 { return costPerKChars }

// outputFormat maps a quality level to the MP3 format requested in
// single-call mode.
func outputFormat(q tts.Quality) string {
	switch q {
	case tts.QualityLow:
		return "mp3_22050_32"
	case tts.QualityHigh:
		return "mp3_44100_128"
	default:
		return "mp3_44100_64"
	}
}

// resolveVoice maps foreign voice IDs through the equivalence table and
// passes unknown IDs straight through (custom ElevenLabs voices).
func resolveVoice(voiceID string) string {
	if mapped, ok := tts.MapVoice(voiceID, "elevenlabs"); ok {
		return mapped
	}
	return voiceID
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if len(req.Segments) == 0 {
		return nil, errors.New("elevenlabs: request has no segments")
	}
	voice := resolveVoice(req.VoiceID)
	if voice == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}

	chars := 0
	for _, s := range req.Segments {
		chars += len(s.Text)
	}

	if len(req.Segments) <= singleCallMaxSegments && chars <= singleCallMaxChars {
		return p.synthesizeSingle(ctx, req, voice, chars)
	}
	return p.synthesizeGrouped(ctx, req, voice, chars)
}

// synthesizeSingle sends the whole script as one request and returns the
// MP3 response as-is.
func (p *Provider) synthesizeSingle(ctx context.Context, req tts.Request, voice string, chars int) (*tts.Result, error) {
	texts := make([]string, len(req.Segments))
	for i, s := range req.Segments {
		texts[i] = s.Text
	}

	mp3, err := p.convert(ctx, voice, strings.Join(texts, "\n\n"), outputFormat(req.Quality))
	if err != nil {
		return nil, err
	}
	return &tts.Result{
		Audio:      mp3,
		MIME:       "audio/mpeg",
		Characters: chars,
		Provider:   p.Name(),
	}, nil
}

// synthesizeGrouped batches segments into groups, synthesizes each group
// as PCM, and overlays the groups onto a silent base track at their start
// offsets. The result is a WAV file covering the whole recording.
func (p *Provider) synthesizeGrouped(ctx context.Context, req tts.Request, voice string, chars int) (*tts.Result, error) {
	groups := groupSegments(req.Segments)
	pcms := make([][]byte, len(groups))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(groupParallelism)
	for i, g := range groups {
		eg.Go(func() error {
			pcm, err := p.convert(egCtx, voice, g.text, "pcm_44100")
			if err != nil {
				return err
			}
			pcms[i] = pcm
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	track := audio.NewSilentTrack(req.TotalDuration, audio.TrackFormat)
	for i, g := range groups {
		if err := track.Overlay(pcms[i], chunkFormat, g.start); err != nil {
			return nil, fmt.Errorf("elevenlabs: overlay at %v: %w", g.start, err)
		}
	}

	var buf bytes.Buffer
	if err := audio.WriteWAV(&buf, track.Bytes(), track.Format()); err != nil {
		return nil, err
	}
	return &tts.Result{
		Audio:      buf.Bytes(),
		MIME:       "audio/wav",
		Characters: chars,
		Provider:   p.Name(),
	}, nil
}

// group is a run of consecutive segments synthesized in one request and
// overlaid at the run's first start offset.
type group struct {
	start time.Duration
	text  string
}

// groupSegments batches consecutive segments into groups bounded by
// groupMaxChars and groupMaxSegments. Batching keeps the request count low
// while the per-group start offsets preserve coarse timing.
func groupSegments(segs []tts.Segment) []group {
	var (
		out      []group
		cur      []tts.Segment
		curChars int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		for i, s := range cur {
			texts[i] = s.Text
		}
		out = append(out, group{start: cur[0].Start, text: strings.Join(texts, "\n\n")})
		cur = nil
		curChars = 0
	}
	for _, s := range segs {
		if len(cur) > 0 && (curChars+len(s.Text) > groupMaxChars || len(cur) >= groupMaxSegments) {
			flush()
		}
		cur = append(cur, s)
		curChars += len(s.Text)
	}
	flush()
	return out
}

// convertRequest is the JSON body for POST /v1/text-to-speech/{voice}.
type convertRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// convert performs one synthesis request with bounded retries on 429 and
// 5xx responses, and returns the raw audio bytes in the requested output
// format.
func (p *Provider) convert(ctx context.Context, voice, text, format string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * retryBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		audioBytes, err := p.convertOnce(ctx, voice, text, format)
		if err == nil {
			return audioBytes, nil
		}
		lastErr = err
		if kind, ok := apperrors.KindOf(err); !ok ||
			(kind != apperrors.KindTransient && kind != apperrors.KindRateLimit) {
			return nil, err
		}
	}
	return nil, lastErr
}

// convertOnce performs a single synthesis HTTP request.
func (p *Provider) convertOnce(ctx context.Context, voice, text, format string) ([]byte, error) {
	body, err := json.Marshal(convertRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.baseURL, voice, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("elevenlabs: synthesis HTTP: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, "synthesis")
	}

	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("elevenlabs: read audio: %w", err))
	}
	return audioBytes, nil
}

// ---- voices and availability ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("elevenlabs: list voices HTTP: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, "list voices")
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return parseVoices(vr), nil
}

// Available implements tts.Provider. It probes GET /v1/voices, which is
// cheap and exercises authentication.
func (p *Provider) Available(ctx context.Context) error {
	_, err := p.ListVoices(ctx)
	return err
}

// ValidateVoiceID implements tts.Provider. It probes
// GET /v1/voices/{voice} after voice mapping; the API answers 404 for
// voices the account cannot use.
func (p *Provider) ValidateVoiceID(ctx context.Context, voiceID string) error {
	voice := resolveVoice(voiceID)
	if voice == "" {
		return apperrors.BadRequest(errors.New("elevenlabs: voice ID must not be empty"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices/"+voice, nil)
	if err != nil {
		return fmt.Errorf("elevenlabs: validate voice: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient(fmt.Errorf("elevenlabs: validate voice HTTP: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("Voice %q is not available from ElevenLabs.", voiceID),
			fmt.Errorf("elevenlabs: voice %q not found", voice))
	default:
		return classifyStatus(resp.StatusCode, "validate voice")
	}
}

// parseVoices converts the API response into VoiceProfiles.
func parseVoices(vr voicesResponse) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}

// classifyStatus maps an HTTP status to an apperrors kind.
func classifyStatus(status int, op string) error {
	base := fmt.Errorf("elevenlabs: %s: unexpected status %d", op, status)
	switch {
	case status == 401 || status == 403:
		return apperrors.Auth(base)
	case status == 429:
		return apperrors.RateLimit(base)
	case status >= 500:
		return apperrors.Transient(base)
	default:
		return apperrors.BadRequest(base)
	}
}
