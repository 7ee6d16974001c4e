// Package translate renders a timed script into another language while
// keeping its timestamps intact. Generation is dispatched through a
// region and model cascade so a single bad region or deprecated model
// never fails a job, and every candidate translation is validated before
// it is accepted.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/feherm/szinkron/internal/chunker"
	"github.com/feherm/szinkron/internal/resilience"
	"github.com/feherm/szinkron/internal/script"
	"github.com/feherm/szinkron/pkg/provider/textgen"
	"github.com/feherm/szinkron/pkg/provider/textgen/gemini"
)

// Quality trades speed for fidelity. It maps to generation parameters,
// not to a different prompt.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityHigh     Quality = "high"
)

// Valid reports whether q is a known quality level.
func (q Quality) Valid() bool {
	switch q {
	case QualityFast, QualityBalanced, QualityHigh:
		return true
	}
	return false
}

// maxOutputTokens caps every generation request; a timed script chunk
// never legitimately needs more.
const maxOutputTokens = 8192

// CostPerMillionChars is the accounted translation rate in USD.
const CostPerMillionChars = 20.0

// Word-ratio bounds outside which a candidate translation is rejected.
const (
	minWordRatio = 0.3
	maxWordRatio = 3.0
)

// ErrTranslationFailed is returned when every region and model candidate
// has been tried without producing a valid translation.
var ErrTranslationFailed = errors.New("translate: all translation candidates failed")

// ErrInvalidTranslation marks a candidate rejected by validation. The
// cascade treats it like any other failure and moves on to the next
// candidate.
var ErrInvalidTranslation = errors.New("translate: candidate failed validation")

// Default dispatch grid, tried region-major.
var (
	DefaultRegions = []string{"us-central1", "us-east1", "us-west1", "europe-west4"}
	DefaultModels  = []string{
		"gemini-2.0-flash", "gemini-2.5-flash", "gemini-1.5-pro",
		"gemini-1.5-flash", "gemini-pro",
	}
)

// Request describes one translation.
type Request struct {
	// Script is the timed script text to translate.
	Script string

	// SourceLanguage and TargetLanguage are human-readable language names
	// or BCP-47 codes; they are passed to the model verbatim.
	SourceLanguage string
	TargetLanguage string

	// Context selects the content profile. Unknown values fall back to
	// the casual profile.
	Context Context

	// Audience and Tone further steer the prompt. Optional.
	Audience string
	Tone     string

	// Quality selects the generation parameters. Defaults to balanced.
	Quality Quality

	// PreserveTiming requires the translation to carry the exact same
	// timestamp multiset as the input.
	PreserveTiming bool
}

// Result is a completed translation.
type Result struct {
	Text            string
	SourceLanguage  string
	TargetLanguage  string
	Context         Context
	WordCount       int
	EstimatedCost   float64
	Candidate       string // "model@region" that produced the accepted text
	ChunksProcessed int
}

// Translator dispatches translation requests through a provider cascade
// with an optional last-resort fallback provider.
type Translator struct {
	cascade  *resilience.Cascade[textgen.Provider]
	fallback textgen.Provider
}

// Option is a functional option for configuring a Translator.
type Option func(*Translator)

// WithFallback sets a provider tried after the whole cascade is
// exhausted, e.g. a non-Gemini backend.
func WithFallback(p textgen.Provider) Option {
	return func(t *Translator) {
		t.fallback = p
	}
}

// New creates a Translator over the given cascade.
func New(cascade *resilience.Cascade[textgen.Provider], opts ...Option) *Translator {
	t := &Translator{cascade: cascade}
	for _, o := range opts {
		o(t)
	}
	return t
}

// NewGeminiCascade builds the region-major model cascade used in
// production. Empty regions or models fall back to the defaults.
func NewGeminiCascade(ctx context.Context, apiKey string, regions, models []string, cfg resilience.BreakerConfig) (*resilience.Cascade[textgen.Provider], error) {
	if len(regions) == 0 {
		regions = DefaultRegions
	}
	if len(models) == 0 {
		models = DefaultModels
	}

	cascade := resilience.NewCascade[textgen.Provider](cfg)
	for _, region := range regions {
		endpoint := region + "-generativelanguage.googleapis.com"
		for _, model := range models {
			p, err := gemini.New(ctx, apiKey, model, gemini.WithEndpoint(endpoint))
			if err != nil {
				return nil, fmt.Errorf("translate: create provider %s@%s: %w", model, region, err)
			}
			cascade.Add(model+"@"+region, p)
		}
	}
	return cascade, nil
}

// EstimateCost returns the accounted cost of translating chars
// characters.
func EstimateCost(chars int) float64 {
	return float64(chars) / 1_000_000 * CostPerMillionChars
}

// Translate runs one translation request, chunking the script when it
// exceeds the single-pass limit.
func (t *Translator) Translate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Script) == "" {
		return nil, errors.New("translate: script must not be empty")
	}
	if req.TargetLanguage == "" {
		return nil, errors.New("translate: target language must not be empty")
	}
	if req.Quality == "" {
		req.Quality = QualityBalanced
	}
	if !req.Quality.Valid() {
		return nil, fmt.Errorf("translate: unknown quality %q", req.Quality)
	}

	if !chunker.NeedsChunking(req.Script) {
		text, candidate, err := t.translateChunk(ctx, req.Script, req)
		if err != nil {
			return nil, err
		}
		return t.result(req, text, candidate, 1), nil
	}

	chunks := chunker.Split(req.Script)
	slog.Info("translating in chunks",
		"chunks", len(chunks), "context", req.Context, "target", req.TargetLanguage)

	translated := make([]string, len(chunks))
	candidate := ""
	for i, c := range chunks {
		text, cand, err := t.translateChunk(ctx, c.Text, req)
		if err != nil {
			return nil, fmt.Errorf("translate: chunk %d/%d: %w", i+1, len(chunks), err)
		}
		translated[i] = text
		candidate = cand
	}
	return t.result(req, chunker.Reassemble(translated), candidate, len(chunks)), nil
}

func (t *Translator) result(req Request, text, candidate string, chunks int) *Result {
	return &Result{
		Text:            text,
		SourceLanguage:  req.SourceLanguage,
		TargetLanguage:  req.TargetLanguage,
		Context:         req.Context,
		WordCount:       script.WordCount(text),
		EstimatedCost:   EstimateCost(len(req.Script)),
		Candidate:       candidate,
		ChunksProcessed: chunks,
	}
}

// translateChunk pushes one chunk through the cascade, validating each
// candidate before accepting it. A failed validation counts as a
// candidate failure so the next region or model gets a try.
func (t *Translator) translateChunk(ctx context.Context, text string, req Request) (string, string, error) {
	prompt := buildPrompt(text, req)
	genReq := generationRequest(prompt, req.Quality)

	type accepted struct {
		text      string
		candidate string
	}

	out, err := resilience.RunResult(ctx, t.cascade, func(ctx context.Context, p textgen.Provider) (accepted, error) {
		resp, err := p.Generate(ctx, genReq)
		if err != nil {
			return accepted{}, err
		}
		candidate := strings.TrimSpace(resp.Text)
		if verr := validate(text, candidate, req.PreserveTiming); verr != nil {
			slog.Warn("translation candidate rejected", "model", p.Model(), "reason", verr)
			return accepted{}, verr
		}
		return accepted{text: candidate, candidate: p.Model()}, nil
	})
	if err == nil {
		return out.text, out.candidate, nil
	}

	if t.fallback != nil {
		resp, ferr := t.fallback.Generate(ctx, genReq)
		if ferr == nil {
			candidate := strings.TrimSpace(resp.Text)
			if verr := validate(text, candidate, req.PreserveTiming); verr == nil {
				return candidate, t.fallback.Model(), nil
			}
		}
	}
	return "", "", fmt.Errorf("%w: %w", ErrTranslationFailed, err)
}

// generationRequest maps quality to the generation parameters.
func generationRequest(prompt string, q Quality) textgen.Request {
	req := textgen.Request{Prompt: prompt, MaxOutputTokens: maxOutputTokens}
	switch q {
	case QualityFast:
		req.Temperature, req.TopP = 0.1, 0.8
	case QualityHigh:
		req.Temperature, req.TopP = 0.3, 0.9
	default:
		req.Temperature, req.TopP = 0.2, 0.85
	}
	return req
}

// buildPrompt renders the context-aware translation prompt. Timing rules
// are stated unconditionally; models follow them more reliably than a
// conditional clause, and validation enforces them when requested.
func buildPrompt(text string, req Request) string {
	p := profileOf(req.Context)
	audience := req.Audience
	if audience == "" {
		audience = "general"
	}
	tone := req.Tone
	if tone == "" {
		tone = "neutral"
	}
	source := req.SourceLanguage
	if source == "" {
		source = "the source language"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Translate this timed script from %s into %s.\n\n", source, req.TargetLanguage)
	b.WriteString("CRITICAL: This is a TIMED SCRIPT for audio synthesis. Timing must be preserved exactly.\n\n")

	b.WriteString("TRANSLATION CONTEXT:\n")
	fmt.Fprintf(&b, "- Content type: %s\n", req.Context)
	fmt.Fprintf(&b, "- Target audience: %s\n", audience)
	fmt.Fprintf(&b, "- Desired tone: %s\n", tone)
	fmt.Fprintf(&b, "- Special instruction: %s\n", p.Instruction)
	fmt.Fprintf(&b, "- Terminology: %s\n", p.Terminology)
	fmt.Fprintf(&b, "- Register: %s\n\n", p.Tone)

	b.WriteString("TIMING PRESERVATION RULES:\n")
	b.WriteString("1. Keep EVERY [HH:MM:SS] timestamp EXACTLY as it appears.\n")
	b.WriteString("2. The translated text must fit the same time slots.\n")
	b.WriteString("3. If the translation runs longer, split lines but KEEP the timestamps.\n")
	b.WriteString("4. If the translation runs shorter, adjacent lines may be merged.\n")
	b.WriteString("5. Map pause markers: [levegővétel] → [breath], [rövid szünet] → [short pause], [hosszú szünet] → [long pause], [TÉMAVÁLTÁS] → [TOPIC CHANGE].\n\n")

	fmt.Fprintf(&b, "TRANSLATION QUALITY: %s\n\n", strings.ToUpper(string(req.Quality)))

	b.WriteString("ORIGINAL SCRIPT:\n")
	b.WriteString(text)
	fmt.Fprintf(&b, "\n\nTRANSLATED %s SCRIPT:", strings.ToUpper(req.TargetLanguage))
	return b.String()
}

// validate checks a candidate translation against the chunk it was
// produced from.
func validate(original, translated string, preserveTiming bool) error {
	if strings.TrimSpace(translated) == "" {
		return fmt.Errorf("%w: empty response", ErrInvalidTranslation)
	}
	if translated == strings.TrimSpace(original) {
		return fmt.Errorf("%w: text unchanged", ErrInvalidTranslation)
	}

	if preserveTiming && !script.SameTimestamps(original, translated) {
		return fmt.Errorf("%w: timestamps altered", ErrInvalidTranslation)
	}

	ow, tw := script.WordCount(original), script.WordCount(translated)
	if ow > 0 {
		ratio := float64(tw) / float64(ow)
		if ratio < minWordRatio || ratio > maxWordRatio {
			return fmt.Errorf("%w: word ratio %.2f outside [%.1f, %.1f]",
				ErrInvalidTranslation, ratio, minWordRatio, maxWordRatio)
		}
	}
	return nil
}
