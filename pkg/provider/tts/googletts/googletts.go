// Package googletts provides a Google Cloud Text-to-Speech backed TTS
// provider using google.golang.org/api/texttospeech/v1. It implements the
// tts.Provider interface.
//
// Short scripts are synthesized in a single request using the encoding the
// requested quality maps to. Longer scripts are batched into SSML documents
// whose <break> elements restore the inter-segment gaps, synthesized as
// LINEAR16, and overlaid onto a silent base track at each batch's start
// offset.
package googletts

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/pkg/audio"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

const (
	costPerKChars = 0.016

	defaultLanguage = "en-US"

	// singleCallMaxChars and singleCallMaxSegments bound the one-request
	// fast path. The char bound stays under Google's 5000-byte input
	// limit with room for the SSML markup.
	singleCallMaxChars    = 4000
	singleCallMaxSegments = 50

	// groupMaxChars and groupMaxSegments bound one SSML synthesis request.
	groupMaxChars    = 1000
	groupMaxSegments = 20

	// maxBreak caps the silence restored between segments inside one SSML
	// document; longer gaps are carried by the track offsets instead.
	maxBreak = 3 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*settings)

type settings struct {
	language   string
	clientOpts []option.ClientOption
}

// WithLanguage sets the default BCP-47 language code used when a request
// does not carry one.
func WithLanguage(code string) Option {
	return func(s *settings) {
		s.language = code
	}
}

// WithClientOptions appends extra Google API client options, e.g.
// option.WithEndpoint for tests.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// Provider implements tts.Provider backed by Google Cloud Text-to-Speech.
type Provider struct {
	svc      *texttospeech.Service
	language string
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a Google TTS Provider. apiKey must be non-empty; ctx governs
// client construction only.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("googletts: apiKey must not be empty")
	}

	s := settings{language: defaultLanguage}
	for _, o := range opts {
		o(&s)
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, s.clientOpts...)
	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("googletts: create service: %w", err)
	}
	return &Provider{svc: svc, language: s.language}, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "googletts" }

// CostPerKiloChars implements tts.Provider.
func (p *Provider) CostPerKiloChars() float64 { return costPerKChars }

// resolveVoice maps foreign voice IDs through the equivalence table and
// passes unknown IDs straight through.
func resolveVoice(voiceID string) string {
	if mapped, ok := tts.MapVoice(voiceID, "googletts"); ok {
		return mapped
	}
	return voiceID
}

// languageOfVoice derives the language code from a Google voice name such
// as "en-US-Neural2-F". Falls back to fallback when the name does not
// follow the convention.
func languageOfVoice(name, fallback string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) >= 2 && len(parts[0]) == 2 && len(parts[1]) == 2 {
		return parts[0] + "-" + parts[1]
	}
	return fallback
}

// audioConfig maps a quality level to the encoding and sample rate used
// in single-call mode. Grouped mode always synthesizes LINEAR16 at the
// track rate because the chunks are overlaid sample by sample.
func audioConfig(q tts.Quality) (encoding string, sampleRate int64) {
	switch q {
	case tts.QualityLow:
		return "MP3", 22050
	case tts.QualityHigh:
		return "LINEAR16", 44100
	default:
		return "MP3", 44100
	}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if len(req.Segments) == 0 {
		return nil, errors.New("googletts: request has no segments")
	}
	voice := resolveVoice(req.VoiceID)
	if voice == "" {
		return nil, errors.New("googletts: voice ID must not be empty")
	}
	language := req.Language
	if language == "" {
		language = languageOfVoice(voice, p.language)
	}

	chars := 0
	for _, s := range req.Segments {
		chars += len(s.Text)
	}

	if len(req.Segments) <= singleCallMaxSegments && chars <= singleCallMaxChars {
		return p.synthesizeSingle(ctx, req, voice, language, chars)
	}
	return p.synthesizeGrouped(ctx, req, voice, language, chars)
}

// synthesizeSingle sends the whole script as one SSML document and
// returns the response in the encoding the requested quality maps to.
func (p *Provider) synthesizeSingle(ctx context.Context, req tts.Request, voice, language string, chars int) (*tts.Result, error) {
	encoding, sampleRate := audioConfig(req.Quality)
	raw, err := p.synthesizeOnce(ctx, buildSSML(req.Segments), voice, language, encoding, sampleRate)
	if err != nil {
		return nil, err
	}

	mime := "audio/mpeg"
	if encoding == "LINEAR16" {
		// LINEAR16 responses arrive WAV-wrapped.
		mime = "audio/wav"
	}
	return &tts.Result{
		Audio:      raw,
		MIME:       mime,
		Characters: chars,
		Provider:   p.Name(),
	}, nil
}

// synthesizeGrouped batches segments into SSML documents and overlays the
// responses onto a silent base track at each batch's start offset. The
// result is a WAV file covering the whole recording.
func (p *Provider) synthesizeGrouped(ctx context.Context, req tts.Request, voice, language string, chars int) (*tts.Result, error) {
	track := audio.NewSilentTrack(req.TotalDuration, audio.TrackFormat)

	for _, g := range groupSegments(req.Segments) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := p.synthesizeOnce(ctx, g.ssml, voice, language, "LINEAR16", int64(audio.TrackFormat.SampleRate))
		if err != nil {
			return nil, err
		}

		// LINEAR16 responses arrive as WAV; strip the container before
		// overlaying.
		pcm, format, err := audio.ReadWAV(bytes.NewReader(raw))
		if err != nil {
			pcm, format = raw, audio.TrackFormat
		}

		if err := track.Overlay(pcm, format, g.start); err != nil {
			return nil, fmt.Errorf("googletts: overlay at %v: %w", g.start, err)
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

// synthesizeOnce performs one synthesis request and returns the decoded
// audio bytes.
func (p *Provider) synthesizeOnce(ctx context.Context, ssml, voice, language, encoding string, sampleRate int64) ([]byte, error) {
	resp, err := p.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Ssml: ssml},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: language,
			Name:         voice,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   encoding,
			SampleRateHertz: sampleRate,
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("googletts: decode audio content: %w", err)
	}
	return raw, nil
}

// group is a run of consecutive segments synthesized from one SSML
// document and overlaid at the run's first start offset.
type group struct {
	start time.Duration
	ssml  string
}

// groupSegments batches consecutive segments and renders each batch as an
// SSML document. Gaps between segment starts inside a batch become
// <break> elements, capped at maxBreak.
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
		out = append(out, group{start: cur[0].Start, ssml: buildSSML(cur)})
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

// buildSSML renders segments as one <speak> document with breaks
// restoring the gaps implied by consecutive start times.
func buildSSML(segs []tts.Segment) string {
	var b strings.Builder
	b.WriteString("<speak>")
	for i, s := range segs {
		if i > 0 {
			gap := s.Start - segs[i-1].Start - tts.EstimateSpeechDuration(segs[i-1].Text)
			if gap > maxBreak {
				gap = maxBreak
			}
			if gap >= 100*time.Millisecond {
				fmt.Fprintf(&b, `<break time="%dms"/>`, gap.Milliseconds())
			}
		}
		b.WriteString(html.EscapeString(s.Text))
	}
	b.WriteString("</speak>")
	return b.String()
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	resp, err := p.svc.Voices.List().Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}

	profiles := make([]tts.VoiceProfile, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		language := ""
		if len(v.LanguageCodes) > 0 {
			language = v.LanguageCodes[0]
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.Name,
			Name:     v.Name,
			Provider: "googletts",
			Language: language,
			Metadata: map[string]string{
				"gender":      strings.ToLower(v.SsmlGender),
				"sample_rate": fmt.Sprint(v.NaturalSampleRateHertz),
			},
		})
	}
	return profiles, nil
}

// Available implements tts.Provider. Listing voices is cheap and exercises
// authentication.
func (p *Provider) Available(ctx context.Context) error {
	_, err := p.svc.Voices.List().Context(ctx).Do()
	if err != nil {
		return classifyError(err)
	}
	return nil
}

// ValidateVoiceID implements tts.Provider. Google has no per-voice
// endpoint, so the mapped name is looked up in the catalogue filtered by
// its language code.
func (p *Provider) ValidateVoiceID(ctx context.Context, voiceID string) error {
	voice := resolveVoice(voiceID)
	if voice == "" {
		return apperrors.BadRequest(errors.New("googletts: voice ID must not be empty"))
	}

	call := p.svc.Voices.List()
	if lang := languageOfVoice(voice, ""); lang != "" {
		call = call.LanguageCode(lang)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return classifyError(err)
	}
	for _, v := range resp.Voices {
		if v.Name == voice {
			return nil
		}
	}
	return apperrors.New(apperrors.KindNotFound,
		fmt.Sprintf("Voice %q is not available from Google TTS.", voiceID),
		fmt.Errorf("googletts: voice %q not found", voice))
}

// classifyError maps a Google API failure to an apperrors kind.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	wrapped := fmt.Errorf("googletts request failed: %w", err)

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return apperrors.New(apperrors.KindAuth, fmt.Sprintf("Google TTS authentication failed (%d).", gerr.Code), wrapped)
		case gerr.Code == 429:
			return apperrors.New(apperrors.KindRateLimit, "Google TTS rate limit exceeded (429).", wrapped)
		case gerr.Code >= 500:
			return apperrors.New(apperrors.KindTransient, fmt.Sprintf("Google TTS service temporary error (%d).", gerr.Code), wrapped)
		default:
			return apperrors.New(apperrors.KindBadRequest, fmt.Sprintf("Google TTS request rejected (%d).", gerr.Code), wrapped)
		}
	}
	return apperrors.New(apperrors.KindTransient, "Google TTS request failed due to a temporary network error.", wrapped)
}
