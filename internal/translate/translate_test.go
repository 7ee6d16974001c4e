package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/feherm/szinkron/internal/chunker"
	"github.com/feherm/szinkron/internal/resilience"
	"github.com/feherm/szinkron/internal/script"
	"github.com/feherm/szinkron/pkg/provider/textgen"
	"github.com/feherm/szinkron/pkg/provider/textgen/mock"
)

const sampleScript = "[00:00:00] Jó reggelt mindenkinek, kezdjük el.\n" +
	"[00:00:05] Ez a második mondat a scriptben.\n" +
	"[00:00:10] És itt a harmadik, searching for meaning.\n"

const sampleTranslation = "[00:00:00] Good morning everyone, let us begin.\n" +
	"[00:00:05] This is the second sentence of the script.\n" +
	"[00:00:10] And here is the third, searching for meaning.\n"

func cascadeOf(providers ...textgen.Provider) *resilience.Cascade[textgen.Provider] {
	c := resilience.NewCascade[textgen.Provider](resilience.BreakerConfig{})
	for i, p := range providers {
		c.Add(fmt.Sprintf("%s@region-%d", p.Model(), i), p)
	}
	return c
}

// chunkOfPrompt extracts the script text embedded in a prompt, letting
// mocks act as echo translators.
func chunkOfPrompt(prompt string) string {
	_, rest, ok := strings.Cut(prompt, "ORIGINAL SCRIPT:\n")
	if !ok {
		return ""
	}
	body, _, _ := strings.Cut(rest, "\n\nTRANSLATED")
	return body
}

func TestTranslateSinglePass(t *testing.T) {
	p := &mock.Provider{
		ModelName: "gemini-2.0-flash",
		Response:  &textgen.Response{Text: sampleTranslation},
	}
	tr := New(cascadeOf(p))

	res, err := tr.Translate(context.Background(), Request{
		Script:         sampleScript,
		SourceLanguage: "Hungarian",
		TargetLanguage: "English",
		Context:        ContextEducational,
		PreserveTiming: true,
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if res.Text != strings.TrimSpace(sampleTranslation) {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Candidate != "gemini-2.0-flash" {
		t.Errorf("Candidate = %q", res.Candidate)
	}
	if res.ChunksProcessed != 1 {
		t.Errorf("ChunksProcessed = %d, want 1", res.ChunksProcessed)
	}
	if res.WordCount == 0 {
		t.Error("WordCount should be non-zero")
	}
	if res.EstimatedCost != EstimateCost(len(sampleScript)) {
		t.Errorf("EstimatedCost = %v", res.EstimatedCost)
	}
}

func TestTranslateFallsThroughOnInvalidCandidate(t *testing.T) {
	// First candidate echoes the input unchanged, which validation
	// rejects; the second produces a real translation.
	echo := &mock.Provider{
		ModelName: "gemini-2.0-flash",
		Response:  &textgen.Response{Text: sampleScript},
	}
	good := &mock.Provider{
		ModelName: "gemini-1.5-pro",
		Response:  &textgen.Response{Text: sampleTranslation},
	}
	tr := New(cascadeOf(echo, good))

	res, err := tr.Translate(context.Background(), Request{
		Script:         sampleScript,
		TargetLanguage: "English",
		PreserveTiming: true,
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Candidate != "gemini-1.5-pro" {
		t.Errorf("Candidate = %q, want the second model", res.Candidate)
	}
	if echo.CallCount() != 1 {
		t.Errorf("first provider called %d times, want 1", echo.CallCount())
	}
}

func TestTranslateRejectsAlteredTimestamps(t *testing.T) {
	shifted := strings.ReplaceAll(sampleTranslation, "[00:00:05]", "[00:00:06]")
	p := &mock.Provider{
		ModelName: "gemini-2.0-flash",
		Response:  &textgen.Response{Text: shifted},
	}
	tr := New(cascadeOf(p))

	_, err := tr.Translate(context.Background(), Request{
		Script:         sampleScript,
		TargetLanguage: "English",
		PreserveTiming: true,
	})
	if !errors.Is(err, ErrTranslationFailed) {
		t.Fatalf("err = %v, want ErrTranslationFailed", err)
	}
	if !errors.Is(err, ErrInvalidTranslation) {
		t.Errorf("err = %v, should carry the validation cause", err)
	}
}

func TestTranslateRejectsDegenerateLength(t *testing.T) {
	p := &mock.Provider{
		ModelName: "gemini-2.0-flash",
		Response:  &textgen.Response{Text: "[00:00:00] ok"},
	}
	tr := New(cascadeOf(p))

	_, err := tr.Translate(context.Background(), Request{
		Script:         sampleScript,
		TargetLanguage: "English",
	})
	if !errors.Is(err, ErrInvalidTranslation) {
		t.Fatalf("err = %v, want word-ratio rejection", err)
	}
}

func TestTranslateUsesFallbackAfterExhaustion(t *testing.T) {
	broken := &mock.Provider{
		ModelName: "gemini-2.0-flash",
		Err:       errors.New("region down"),
	}
	fallback := &mock.Provider{
		ModelName: "gpt-4o-mini",
		Response:  &textgen.Response{Text: sampleTranslation},
	}
	tr := New(cascadeOf(broken), WithFallback(fallback))

	res, err := tr.Translate(context.Background(), Request{
		Script:         sampleScript,
		TargetLanguage: "English",
		PreserveTiming: true,
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Candidate != "gpt-4o-mini" {
		t.Errorf("Candidate = %q, want the fallback model", res.Candidate)
	}
}

func TestTranslateChunked(t *testing.T) {
	// Build a script long enough to force chunking. The mock acts as an
	// echo translator that rewrites one recurring word, so timestamps
	// and word counts survive.
	var b strings.Builder
	for i := 0; i < 130; i++ {
		fmt.Fprintf(&b, "%s mondat errol szol, errol beszelunk most.\n",
			script.FormatTimestamp(i*5))
	}
	source := b.String()
	if !chunker.NeedsChunking(source) {
		t.Fatal("test script should exceed the single-pass limit")
	}

	p := &mock.Provider{
		ModelName: "gemini-2.0-flash",
		GenerateFn: func(_ context.Context, req textgen.Request) (*textgen.Response, error) {
			chunk := chunkOfPrompt(req.Prompt)
			return &textgen.Response{Text: strings.ReplaceAll(chunk, "errol", "about")}, nil
		},
	}
	tr := New(cascadeOf(p))

	res, err := tr.Translate(context.Background(), Request{
		Script:         source,
		TargetLanguage: "English",
		PreserveTiming: true,
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.ChunksProcessed < 2 {
		t.Errorf("ChunksProcessed = %d, want chunked processing", res.ChunksProcessed)
	}
	if !script.SameTimestamps(source, res.Text) {
		t.Error("reassembled translation lost timestamps")
	}
	if strings.Contains(res.Text, "errol") {
		t.Error("translation did not reach every chunk")
	}
}

func TestTranslateChunkFailureFailsWhole(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 130; i++ {
		fmt.Fprintf(&b, "%s mondat errol szol, errol beszelunk most.\n",
			script.FormatTimestamp(i*5))
	}

	calls := 0
	p := &mock.Provider{
		ModelName: "gemini-2.0-flash",
		GenerateFn: func(_ context.Context, req textgen.Request) (*textgen.Response, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("quota exceeded")
			}
			chunk := chunkOfPrompt(req.Prompt)
			return &textgen.Response{Text: strings.ReplaceAll(chunk, "errol", "about")}, nil
		},
	}
	tr := New(cascadeOf(p))

	_, err := tr.Translate(context.Background(), Request{
		Script:         b.String(),
		TargetLanguage: "English",
	})
	if !errors.Is(err, ErrTranslationFailed) {
		t.Fatalf("err = %v, want ErrTranslationFailed", err)
	}
	if !strings.Contains(err.Error(), "chunk 2/") {
		t.Errorf("error should name the failing chunk: %v", err)
	}
}

func TestTranslateInputValidation(t *testing.T) {
	tr := New(cascadeOf(&mock.Provider{}))

	if _, err := tr.Translate(context.Background(), Request{TargetLanguage: "English"}); err == nil {
		t.Error("empty script should be rejected")
	}
	if _, err := tr.Translate(context.Background(), Request{Script: "x"}); err == nil {
		t.Error("missing target language should be rejected")
	}
	if _, err := tr.Translate(context.Background(), Request{
		Script: "x", TargetLanguage: "English", Quality: "ultra",
	}); err == nil {
		t.Error("unknown quality should be rejected")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(sampleScript, Request{
		SourceLanguage: "Hungarian",
		TargetLanguage: "English",
		Context:        ContextLegal,
		Quality:        QualityHigh,
	})

	for _, want := range []string{
		"Hungarian", "English",
		profiles[ContextLegal].Instruction,
		"[levegővétel] → [breath]",
		"[TÉMAVÁLTÁS] → [TOPIC CHANGE]",
		"TRANSLATION QUALITY: HIGH",
		sampleScript,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptUnknownContextFallsBackToCasual(t *testing.T) {
	prompt := buildPrompt("x", Request{TargetLanguage: "English", Context: "podcast"})
	if !strings.Contains(prompt, profiles[ContextCasual].Instruction) {
		t.Error("unknown context should use the casual profile")
	}
}

func TestGenerationRequestParams(t *testing.T) {
	tests := []struct {
		quality Quality
		temp    float64
		topP    float64
	}{
		{QualityFast, 0.1, 0.8},
		{QualityBalanced, 0.2, 0.85},
		{QualityHigh, 0.3, 0.9},
	}
	for _, tt := range tests {
		req := generationRequest("p", tt.quality)
		if req.Temperature != tt.temp || req.TopP != tt.topP {
			t.Errorf("%s: got (%v, %v), want (%v, %v)",
				tt.quality, req.Temperature, req.TopP, tt.temp, tt.topP)
		}
		if req.MaxOutputTokens != maxOutputTokens {
			t.Errorf("%s: MaxOutputTokens = %d", tt.quality, req.MaxOutputTokens)
		}
	}
}

func TestEstimateCost(t *testing.T) {
	if got := EstimateCost(1_000_000); got != 20.0 {
		t.Errorf("EstimateCost(1M) = %v, want 20", got)
	}
	if got := EstimateCost(50_000); got != 1.0 {
		t.Errorf("EstimateCost(50k) = %v, want 1", got)
	}
}

func TestContexts(t *testing.T) {
	for _, c := range Contexts() {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if Context("podcast").Valid() {
		t.Error("unknown context should be invalid")
	}
}
