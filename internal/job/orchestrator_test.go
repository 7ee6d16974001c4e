package job

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/internal/mux"
	"github.com/feherm/szinkron/internal/transcribe"
	"github.com/feherm/szinkron/internal/translate"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

const sampleScript = `[00:00:00] Hello there everyone and welcome.
[00:00:05] This is the second line.
`

const translatedScript = `[00:00:00] Üdvözlök mindenkit a mai adásban.
[00:00:05] Ez itt a második sor.
`

type fakeSource struct {
	duration time.Duration
	blockCtx bool
	err      error

	mu            sync.Mutex
	durationCalls int
}

func (f *fakeSource) DownloadAudio(ctx context.Context, url, outputPath string, limitSeconds int) error {
	if f.err != nil {
		return f.err
	}
	if f.blockCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return os.WriteFile(outputPath, []byte("m4a"), 0o644)
}

func (f *fakeSource) Duration(ctx context.Context, url string) (time.Duration, error) {
	f.mu.Lock()
	f.durationCalls++
	f.mu.Unlock()
	return f.duration, nil
}

func (f *fakeSource) Title(ctx context.Context, url string) (string, error) {
	return "Sample Video", nil
}

type fakeTranscoder struct{}

func (fakeTranscoder) ToFLAC(ctx context.Context, inPath, outPath string) error {
	return os.WriteFile(outPath, []byte("flac"), 0o644)
}

type fakeTranscriber struct {
	transcript *transcribe.Transcript
	err        error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string, opts transcribe.Options) (*transcribe.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

type fakeTranslator struct {
	result *translate.Result
	err    error
}

func (f *fakeTranslator) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTTS struct {
	rate        float64
	err         error
	validateErr error

	mu        sync.Mutex
	synthQ    []tts.Quality
	validated []string
}

func (f *fakeTTS) Name() string { return "fake" }

func (f *fakeTTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	f.mu.Lock()
	f.synthQ = append(f.synthQ, req.Quality)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	chars := 0
	for _, s := range req.Segments {
		chars += len(s.Text)
	}
	return &tts.Result{
		Audio:      []byte("mp3data"),
		MIME:       "audio/mpeg",
		Characters: chars,
		Provider:   "fake",
	}, nil
}

func (f *fakeTTS) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) { return nil, nil }
func (f *fakeTTS) Available(ctx context.Context) error                        { return nil }
func (f *fakeTTS) CostPerKiloChars() float64                                  { return f.rate }

func (f *fakeTTS) ValidateVoiceID(_ context.Context, voiceID string) error {
	f.mu.Lock()
	f.validated = append(f.validated, voiceID)
	f.mu.Unlock()
	return f.validateErr
}

type fakeSelector struct {
	provider tts.Provider
	err      error
}

func (f *fakeSelector) Select(ctx context.Context, name string) (tts.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

type fakeVideoMuxer struct {
	err error
}

func (f *fakeVideoMuxer) result(outputPath, format string, preview bool) (*mux.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(outputPath, []byte("video"), 0o644); err != nil {
		return nil, err
	}
	return &mux.Result{
		OutputPath: outputPath,
		Format:     format,
		SizeBytes:  5,
		Duration:   10 * time.Second,
		Resolution: "1920x1080",
		IsPreview:  preview,
	}, nil
}

func (f *fakeVideoMuxer) ReplaceAudio(ctx context.Context, videoSource, audioPath, outputPath string, preserveQuality bool, targetFormat string) (*mux.Result, error) {
	return f.result(outputPath, targetFormat, false)
}

func (f *fakeVideoMuxer) CreatePreview(ctx context.Context, videoSource, audioPath, outputPath string, durationSec int) (*mux.Result, error) {
	return f.result(outputPath, "mp4", true)
}

func sampleTranscript() *transcribe.Transcript {
	return &transcribe.Transcript{
		Text:     sampleScript,
		Language: "en",
		Duration: 10 * time.Second,
		Stats:    transcribe.Stats{Words: 11},
	}
}

// newTestOrchestrator wires an Orchestrator over fakes. Override
// individual deps before submitting.
func newTestOrchestrator(t *testing.T, deps *Deps, opts ...OrchestratorOption) (*Orchestrator, *Registry) {
	t.Helper()
	base := Deps{
		Transcriber: &fakeTranscriber{transcript: sampleTranscript()},
		Translator: &fakeTranslator{result: &translate.Result{
			Text:           translatedScript,
			TargetLanguage: "Hungarian",
			Context:        translate.ContextCasual,
			WordCount:      10,
			EstimatedCost:  0.002,
			Candidate:      "gemini-2.0-flash@us-central1",
		}},
		Synthesis:  &fakeSelector{provider: &fakeTTS{rate: 0.30}},
		Muxer:      &fakeVideoMuxer{},
		Downloader: &fakeSource{duration: 10 * time.Second},
		Transcoder: fakeTranscoder{},
	}
	if deps != nil {
		if deps.Transcriber != nil {
			base.Transcriber = deps.Transcriber
		}
		if deps.Translator != nil {
			base.Translator = deps.Translator
		}
		if deps.Synthesis != nil {
			base.Synthesis = deps.Synthesis
		}
		if deps.Muxer != nil {
			base.Muxer = deps.Muxer
		}
		if deps.Downloader != nil {
			base.Downloader = deps.Downloader
		}
		if deps.Transcoder != nil {
			base.Transcoder = deps.Transcoder
		}
	}
	reg := NewRegistry()
	opts = append(opts, WithTempDir(t.TempDir()))
	return NewOrchestrator(reg, t.TempDir(), base, opts...), reg
}

func waitTerminal(t *testing.T, j *Job) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := j.Snapshot()
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job did not finish, status %s", j.Snapshot().Status)
	return Job{}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	_, err := o.Submit(context.Background(), Request{})
	if err == nil {
		t.Fatal("empty request should be rejected")
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindBadRequest {
		t.Errorf("kind = %q, want bad_request", kind)
	}
}

func TestSubmitBudgetGate(t *testing.T) {
	o, _ := newTestOrchestrator(t, &Deps{
		Downloader: &fakeSource{duration: time.Hour},
	})
	_, err := o.Submit(context.Background(), Request{
		URL:        "https://example.com/video",
		MaxCostUSD: 0.01,
	})
	if err == nil {
		t.Fatal("over-budget job should be refused")
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindBudget {
		t.Errorf("kind = %q, want budget", kind)
	}
}

func TestSubmitBudgetRefusalSkipsProbes(t *testing.T) {
	src := &fakeSource{duration: time.Hour}
	o, _ := newTestOrchestrator(t, &Deps{Downloader: src})
	_, err := o.Submit(context.Background(), Request{
		URL:        "https://example.com/video",
		MaxCostUSD: 0.01,
	})
	if err == nil {
		t.Fatal("over-budget job should be refused")
	}
	src.mu.Lock()
	calls := src.durationCalls
	src.mu.Unlock()
	if calls != 0 {
		t.Errorf("refused submission probed the source %d times, want 0", calls)
	}
}

func TestSynthesisValidatesVoiceFirst(t *testing.T) {
	provider := &fakeTTS{
		rate:        0.30,
		validateErr: apperrors.NotFound(errors.New("no such voice")),
	}
	o, _ := newTestOrchestrator(t, &Deps{
		Synthesis: &fakeSelector{provider: provider},
	})
	j, err := o.Submit(context.Background(), Request{
		URL:             "https://example.com/video",
		EnableSynthesis: true,
		VoiceID:         "bogusVoice",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, j)
	if snap.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED on unknown voice", snap.Status)
	}
	if snap.Error == nil || snap.Error.Kind != apperrors.KindNotFound {
		t.Fatalf("error = %+v, want not_found", snap.Error)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.validated) != 1 || provider.validated[0] != "bogusVoice" {
		t.Errorf("validated = %v", provider.validated)
	}
	if len(provider.synthQ) != 0 {
		t.Error("no audio request should be issued for an unknown voice")
	}
}

func TestSynthesisUsesRequestedQuality(t *testing.T) {
	provider := &fakeTTS{rate: 0.30}
	o, _ := newTestOrchestrator(t, &Deps{
		Synthesis: &fakeSelector{provider: provider},
	})
	j, err := o.Submit(context.Background(), Request{
		URL:             "https://example.com/video",
		EnableSynthesis: true,
		AudioQuality:    "medium",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap := waitTerminal(t, j); snap.Status != StatusCompleted {
		t.Fatalf("status = %s, error = %+v", snap.Status, snap.Error)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.synthQ) != 1 || provider.synthQ[0] != tts.QualityMedium {
		t.Errorf("synthesis qualities = %v, want [medium]", provider.synthQ)
	}
}

func TestRunTranscriptionOnly(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	j, err := o.Submit(context.Background(), Request{URL: "https://example.com/video"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, j)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, error = %+v", snap.Status, snap.Error)
	}
	if snap.Progress != 100 {
		t.Errorf("progress = %d, want 100", snap.Progress)
	}
	if snap.Transcript == nil {
		t.Fatal("transcript result missing")
	}
	data, err := os.ReadFile(snap.Transcript.File)
	if err != nil {
		t.Fatalf("transcript file: %v", err)
	}
	if string(data) != sampleScript {
		t.Errorf("transcript content mismatch:\n%s", data)
	}
	if snap.Translation != nil || snap.Synthesis != nil || snap.Muxing != nil {
		t.Error("disabled stages should produce no results")
	}
	if snap.ActualCost.Transcription <= 0 {
		t.Errorf("transcription cost = %v", snap.ActualCost.Transcription)
	}
}

func TestRunFullPipeline(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	j, err := o.Submit(context.Background(), Request{
		URL:               "https://example.com/video",
		EnableTranslation: true,
		TargetLanguage:    "Hungarian",
		EnableSynthesis:   true,
		EnableMuxing:      true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, j)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, error = %+v", snap.Status, snap.Error)
	}

	if snap.Translation == nil || snap.Translation.TargetLanguage != "Hungarian" {
		t.Fatalf("translation result = %+v", snap.Translation)
	}
	if snap.Synthesis == nil || snap.Synthesis.Provider != "fake" {
		t.Fatalf("synthesis result = %+v", snap.Synthesis)
	}
	if !strings.HasSuffix(snap.Synthesis.File, ".mp3") {
		t.Errorf("audio file = %s, want .mp3 for audio/mpeg", snap.Synthesis.File)
	}
	if _, err := os.Stat(snap.Synthesis.Subtitles); err != nil {
		t.Errorf("subtitle file missing: %v", err)
	}
	if snap.Muxing == nil || snap.Muxing.Format != "mp4" {
		t.Fatalf("muxing result = %+v", snap.Muxing)
	}
	if _, err := os.Stat(snap.Muxing.File); err != nil {
		t.Errorf("dubbed video missing: %v", err)
	}
	if snap.ActualCost.Synthesis <= 0 || snap.ActualCost.VideoProcessing <= 0 {
		t.Errorf("actual cost = %+v", snap.ActualCost)
	}
}

func TestRunStageFailureRemovesFiles(t *testing.T) {
	o, _ := newTestOrchestrator(t, &Deps{
		Translator: &fakeTranslator{err: apperrors.RateLimit(errors.New("quota exhausted"))},
	})
	j, err := o.Submit(context.Background(), Request{
		URL:               "https://example.com/video",
		EnableTranslation: true,
		TargetLanguage:    "Hungarian",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, j)
	if snap.Status != StatusFailed {
		t.Fatalf("status = %s", snap.Status)
	}
	if snap.Error == nil || snap.Error.Stage != StatusTranslating {
		t.Fatalf("error = %+v, want translating stage", snap.Error)
	}
	if snap.Error.Kind != apperrors.KindRateLimit {
		t.Errorf("error kind = %q, want rate_limit", snap.Error.Kind)
	}
	// Transcription finished before the failure, so its spend stays
	// visible on the failed job.
	if snap.ActualCost.Transcription <= 0 || snap.ActualCost.Total <= 0 {
		t.Errorf("actual cost = %+v, want completed-stage spend recorded", snap.ActualCost)
	}
	// Failure removes all artifacts, including the finished transcript.
	if snap.Transcript != nil {
		if _, err := os.Stat(snap.Transcript.File); !os.IsNotExist(err) {
			t.Errorf("transcript should be removed on failure: %v", err)
		}
	}
}

func TestCancelDuringDownload(t *testing.T) {
	o, _ := newTestOrchestrator(t, &Deps{
		Downloader: &fakeSource{blockCtx: true},
	})
	j, err := o.Submit(context.Background(), Request{URL: "https://example.com/video"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Wait until the stage is actually blocking on the download.
	deadline := time.Now().Add(2 * time.Second)
	for j.Snapshot().Status != StatusTranscribing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := o.Cancel(j.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	snap := waitTerminal(t, j)
	if snap.Status != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", snap.Status)
	}
}

func TestCancelFinishedJobConflicts(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	j, err := o.Submit(context.Background(), Request{URL: "https://example.com/video"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, j)

	err = o.Cancel(j.ID)
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindConflict {
		t.Errorf("kind = %q, want conflict", kind)
	}
}

func TestRunBudgetAbortAfterStage(t *testing.T) {
	o, _ := newTestOrchestrator(t, &Deps{
		// The a-priori estimate fits the budget, but recognition reports
		// an hour of speech and blows it.
		Downloader: &fakeSource{duration: 10 * time.Second},
		Transcriber: &fakeTranscriber{transcript: &transcribe.Transcript{
			Text:     sampleScript,
			Language: "en",
			Duration: time.Hour,
			Stats:    transcribe.Stats{Words: 11},
		}},
	})
	j, err := o.Submit(context.Background(), Request{
		URL:            "https://example.com/video",
		MaxCostUSD:     0.50,
		AbortOnOverrun: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := waitTerminal(t, j)
	if snap.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED on hard budget overrun", snap.Status)
	}
}

func TestProgressMonotonic(t *testing.T) {
	var (
		mu   sync.Mutex
		pcts []int
	)
	listener := func(j *Job, status Status, pct int) {
		mu.Lock()
		pcts = append(pcts, pct)
		mu.Unlock()
	}

	o, _ := newTestOrchestrator(t, nil, WithListener(listener))
	j, err := o.Submit(context.Background(), Request{
		URL:             "https://example.com/video",
		EnableSynthesis: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, j)

	mu.Lock()
	defer mu.Unlock()
	if len(pcts) == 0 {
		t.Fatal("no progress reports")
	}
	for i := 1; i < len(pcts); i++ {
		if pcts[i] < pcts[i-1] {
			t.Fatalf("progress decreased: %v", pcts)
		}
	}
	// Translation is disabled, so progress must jump over its range
	// straight into synthesis.
	seen := false
	for _, p := range pcts {
		if p > 25 && p < 50 {
			seen = true
		}
	}
	if seen {
		t.Errorf("disabled stage range should be skipped: %v", pcts)
	}
}
