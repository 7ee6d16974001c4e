package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/internal/cost"
	"github.com/feherm/szinkron/internal/mux"
	"github.com/feherm/szinkron/internal/script"
	"github.com/feherm/szinkron/internal/subtitle"
	"github.com/feherm/szinkron/internal/transcribe"
	"github.com/feherm/szinkron/internal/translate"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

// Per-stage deadlines. A stage exceeding its deadline fails the job.
const (
	transcribeDeadline = 30 * time.Minute
	translateDeadline  = 10 * time.Minute
	synthesizeDeadline = 30 * time.Minute
	muxDeadline        = 30 * time.Minute
)

// testModeLimitSeconds caps downloads in test mode to the first minute.
const testModeLimitSeconds = 60

// previewSeconds is the clip length produced in preview mode.
const previewSeconds = 30

// defaultMaxConcurrent bounds how many jobs run stages at once.
const defaultMaxConcurrent = 5

// probeTimeout bounds the best-effort source metadata lookups done at
// submission time.
const probeTimeout = 15 * time.Second

// defaultSynthRate is the cost assumption for auto provider selection
// before a provider has been picked.
const defaultSynthRate = 0.30

// Stage dependencies, declared here where they are consumed. The
// concrete implementations live in the stage packages; tests substitute
// fakes.
type (
	// TranscribeStage is satisfied by *transcribe.Transcriber.
	TranscribeStage interface {
		Transcribe(ctx context.Context, audio io.Reader, filename string, opts transcribe.Options) (*transcribe.Transcript, error)
	}

	// TranslateStage is satisfied by *translate.Translator.
	TranslateStage interface {
		Translate(ctx context.Context, req translate.Request) (*translate.Result, error)
	}

	// SynthesisSelector is satisfied by *tts.Registry.
	SynthesisSelector interface {
		Select(ctx context.Context, name string) (tts.Provider, error)
	}

	// VideoMuxer is satisfied by *mux.Muxer.
	VideoMuxer interface {
		ReplaceAudio(ctx context.Context, videoSource, audioPath, outputPath string, preserveQuality bool, targetFormat string) (*mux.Result, error)
		CreatePreview(ctx context.Context, videoSource, audioPath, outputPath string, durationSec int) (*mux.Result, error)
	}

	// AudioSource is satisfied by *mux.Downloader.
	AudioSource interface {
		DownloadAudio(ctx context.Context, url, outputPath string, limitSeconds int) error
		Duration(ctx context.Context, url string) (time.Duration, error)
		Title(ctx context.Context, url string) (string, error)
	}

	// AudioTranscoder is satisfied by *mux.Transcoder.
	AudioTranscoder interface {
		ToFLAC(ctx context.Context, inPath, outPath string) error
	}
)

// Deps bundles the stage implementations the Orchestrator drives.
type Deps struct {
	Transcriber TranscribeStage
	Translator  TranslateStage
	Synthesis   SynthesisSelector
	Muxer       VideoMuxer
	Downloader  AudioSource
	Transcoder  AudioTranscoder
}

// Orchestrator runs submitted jobs through the pipeline stages. Each job
// runs in its own goroutine; a weighted semaphore bounds concurrency.
type Orchestrator struct {
	reg        *Registry
	transcribe TranscribeStage
	translate  TranslateStage
	synth      SynthesisSelector
	muxer      VideoMuxer
	download   AudioSource
	transcode  AudioTranscoder

	sem      *semaphore.Weighted
	listener Listener
	dataDir  string
	tempDir  string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithListener registers a progress listener. Calls are serialized per
// job.
func WithListener(l Listener) OrchestratorOption {
	return func(o *Orchestrator) { o.listener = l }
}

// WithMaxConcurrent overrides the job concurrency bound.
func WithMaxConcurrent(n int64) OrchestratorOption {
	return func(o *Orchestrator) { o.sem = semaphore.NewWeighted(n) }
}

// WithTempDir overrides where intermediate files are written.
func WithTempDir(dir string) OrchestratorOption {
	return func(o *Orchestrator) { o.tempDir = dir }
}

// NewOrchestrator creates an Orchestrator writing results to dataDir.
func NewOrchestrator(reg *Registry, dataDir string, deps Deps, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		reg:        reg,
		transcribe: deps.Transcriber,
		translate:  deps.Translator,
		synth:      deps.Synthesis,
		muxer:      deps.Muxer,
		download:   deps.Downloader,
		transcode:  deps.Transcoder,
		sem:        semaphore.NewWeighted(defaultMaxConcurrent),
		dataDir:    dataDir,
		tempDir:    os.TempDir(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the request, enforces the budget gate, and starts the
// job. It returns as soon as the job is registered; progress is observed
// through the registry.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Job, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The budget gate runs on the parameter-only ceiling first, so a
	// refused job never touches a provider or the source URL. Probes only
	// refine the stored estimate downward once the gate has passed.
	est := estimateCeiling(req)
	if req.MaxCostUSD > 0 && est.Total > req.MaxCostUSD {
		return nil, apperrors.Budget(fmt.Errorf(
			"estimated cost $%.4f exceeds budget $%.4f", est.Total, req.MaxCostUSD))
	}
	est = o.estimate(ctx, req)

	j := o.reg.Create(req)
	j.mu.Lock()
	j.EstimatedCost = est
	j.mu.Unlock()

	go o.run(j)
	return j, nil
}

// Cancel requests cooperative cancellation of a job. The job transitions
// to CANCELLED at its next stage boundary, or immediately when the
// running stage honors context cancellation.
func (o *Orchestrator) Cancel(id string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	if j.Status.Terminal() {
		j.mu.Unlock()
		return apperrors.Conflict(fmt.Errorf("job %q already finished", id))
	}
	j.cancelled = true
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// estimateCeiling computes a cost breakdown from the request alone,
// assuming the capped source duration and the most expensive synthesis
// rate. No network calls are made.
func estimateCeiling(req Request) cost.Breakdown {
	return cost.Estimate(cost.Params{
		TestMode:                  req.TestMode,
		EnableTranscription:       true,
		EnableTranslation:         req.EnableTranslation,
		EnableSynthesis:           req.EnableSynthesis,
		EnableMuxing:              req.EnableMuxing,
		SynthesisRatePerKiloChars: defaultSynthRate,
	})
}

// estimate computes the pre-flight cost breakdown, probing the source
// duration and the synthesis rate on a best-effort basis.
func (o *Orchestrator) estimate(ctx context.Context, req Request) cost.Breakdown {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var duration time.Duration
	if o.download != nil {
		if d, err := o.download.Duration(pctx, req.URL); err == nil {
			duration = d
		}
	}

	rate := defaultSynthRate
	if req.EnableSynthesis && o.synth != nil {
		if p, err := o.synth.Select(pctx, req.TTSProvider); err == nil {
			rate = p.CostPerKiloChars()
		}
	}

	return cost.Estimate(cost.Params{
		EstimatedDuration:         duration,
		TestMode:                  req.TestMode,
		EnableTranscription:       true,
		EnableTranslation:         req.EnableTranslation,
		EnableSynthesis:           req.EnableSynthesis,
		EnableMuxing:              req.EnableMuxing,
		SynthesisRatePerKiloChars: rate,
	})
}

// run drives one job through its stages.
func (o *Orchestrator) run(j *Job) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()

	rep := newReporter(j, o.listener)
	tracker := &cost.Tracker{}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.finishCancelled(j, rep, tracker)
		return
	}
	defer o.sem.Release(1)
	if j.Cancelled() {
		o.finishCancelled(j, rep, tracker)
		return
	}

	j.mu.Lock()
	j.StartedAt = time.Now()
	j.mu.Unlock()

	log := slog.With("job", j.ID)

	transcript, err := o.transcribeStage(ctx, j, rep, tracker, log)
	if o.finished(j, rep, tracker, StatusTranscribing, err) {
		return
	}
	if err := o.checkBudget(j, tracker, log); o.finished(j, rep, tracker, StatusTranscribing, err) {
		return
	}

	scriptText := transcript.Text
	if j.Request.EnableTranslation {
		translated, err := o.translateStage(ctx, j, rep, tracker, transcript, log)
		if o.finished(j, rep, tracker, StatusTranslating, err) {
			return
		}
		if err := o.checkBudget(j, tracker, log); o.finished(j, rep, tracker, StatusTranslating, err) {
			return
		}
		scriptText = translated
	}

	var audioPath string
	if j.Request.EnableSynthesis {
		audioPath, err = o.synthesizeStage(ctx, j, rep, tracker, scriptText, transcript, log)
		if o.finished(j, rep, tracker, StatusSynthesizing, err) {
			return
		}
		if err := o.checkBudget(j, tracker, log); o.finished(j, rep, tracker, StatusSynthesizing, err) {
			return
		}
	}

	if j.Request.EnableMuxing {
		err = o.muxStage(ctx, j, rep, tracker, audioPath, log)
		if o.finished(j, rep, tracker, StatusMuxing, err) {
			return
		}
	}

	o.finishCompleted(j, rep, tracker, log)
}

// finished handles the outcome of a stage boundary: it transitions the
// job to CANCELLED or FAILED when needed and reports whether the run
// loop should stop.
func (o *Orchestrator) finished(j *Job, rep *reporter, tracker *cost.Tracker, stage Status, err error) bool {
	if j.Cancelled() {
		o.finishCancelled(j, rep, tracker)
		return true
	}
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		o.finishCancelled(j, rep, tracker)
		return true
	}
	o.finishFailed(j, rep, tracker, stage, err)
	return true
}

func (o *Orchestrator) finishCompleted(j *Job, rep *reporter, tracker *cost.Tracker, log *slog.Logger) {
	rep.report(StatusCompleted, 50)
	o.cleanupFiles(j, true)
	j.mu.Lock()
	j.Status = StatusCompleted
	j.Progress = 100
	j.ActualCost = tracker.Actual()
	j.CompletedAt = time.Now()
	j.mu.Unlock()
	rep.report(StatusCompleted, 100)
	log.Info("job completed", "cost_usd", tracker.Actual().Total)
}

func (o *Orchestrator) finishFailed(j *Job, rep *reporter, tracker *cost.Tracker, stage Status, err error) {
	o.cleanupFiles(j, false)
	kind, _ := apperrors.KindOf(err)
	j.mu.Lock()
	j.Status = StatusFailed
	j.Error = &Failure{Stage: stage, Kind: kind, Message: apperrors.PublicMessage(err)}
	// Stages that did complete already spent money; the breakdown stays
	// visible on the failed job.
	j.ActualCost = tracker.Actual()
	j.CompletedAt = time.Now()
	j.mu.Unlock()
	rep.notify(StatusFailed)
	slog.Error("job failed", "job", j.ID, "stage", stage, "error", err)
}

func (o *Orchestrator) finishCancelled(j *Job, rep *reporter, tracker *cost.Tracker) {
	o.cleanupFiles(j, false)
	j.mu.Lock()
	j.Status = StatusCancelled
	j.ActualCost = tracker.Actual()
	j.CompletedAt = time.Now()
	j.mu.Unlock()
	rep.notify(StatusCancelled)
	slog.Info("job cancelled", "job", j.ID)
}

// checkBudget runs the post-stage budget check. Overruns only fail the
// job when the request opted into hard enforcement.
func (o *Orchestrator) checkBudget(j *Job, tracker *cost.Tracker, log *slog.Logger) error {
	maxCost := j.Request.MaxCostUSD
	if maxCost <= 0 {
		return nil
	}
	actual := tracker.Actual().Total
	if actual <= maxCost {
		return nil
	}
	if j.Request.AbortOnOverrun {
		return apperrors.Budget(fmt.Errorf(
			"actual cost $%.4f exceeded budget $%.4f", actual, maxCost))
	}
	log.Warn("budget exceeded, continuing", "actual_usd", actual, "budget_usd", maxCost)
	return nil
}

// cleanupFiles removes the job's files. keepResults preserves recorded
// stage artifacts, leaving only intermediates to delete.
func (o *Orchestrator) cleanupFiles(j *Job, keepResults bool) {
	snap := j.Snapshot()
	keep := make(map[string]bool)
	if keepResults {
		for _, f := range resultFiles(&snap) {
			keep[f] = true
		}
	}
	j.mu.Lock()
	files := append([]string(nil), j.cleanup...)
	j.cleanup = nil
	j.mu.Unlock()
	for _, f := range files {
		if keep[f] {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			slog.Warn("cleanup failed", "job", j.ID, "file", f, "error", err)
		}
	}
}

func (o *Orchestrator) setStatus(j *Job, s Status) {
	j.mu.Lock()
	j.Status = s
	j.mu.Unlock()
}

func (o *Orchestrator) resultPath(j *Job, suffix string) string {
	return filepath.Join(o.dataDir, j.ID+suffix)
}

func (o *Orchestrator) tempPath(j *Job, suffix string) string {
	return filepath.Join(o.tempDir, j.ID+suffix)
}

// transcribeStage downloads the source audio, converts it to FLAC, and
// runs speech recognition.
func (o *Orchestrator) transcribeStage(ctx context.Context, j *Job, rep *reporter, tracker *cost.Tracker, log *slog.Logger) (*transcribe.Transcript, error) {
	o.setStatus(j, StatusTranscribing)
	rep.report(StatusTranscribing, 0)
	ctx, cancel := context.WithTimeout(ctx, transcribeDeadline)
	defer cancel()

	limit := 0
	if j.Request.TestMode {
		limit = testModeLimitSeconds
	}
	sourcePath := o.tempPath(j, "_source.m4a")
	j.registerCleanup(sourcePath)
	if err := o.download.DownloadAudio(ctx, j.Request.URL, sourcePath, limit); err != nil {
		return nil, err
	}
	rep.report(StatusTranscribing, 40)

	flacPath := o.tempPath(j, "_source.flac")
	j.registerCleanup(flacPath)
	if err := o.transcode.ToFLAC(ctx, sourcePath, flacPath); err != nil {
		return nil, err
	}
	rep.report(StatusTranscribing, 55)

	title := j.Request.URL
	if t, err := o.download.Title(ctx, j.Request.URL); err == nil && t != "" {
		title = t
	}

	f, err := os.Open(flacPath)
	if err != nil {
		return nil, fmt.Errorf("job: opening recognition input: %w", err)
	}
	defer f.Close()

	transcript, err := o.transcribe.Transcribe(ctx, f, filepath.Base(flacPath), transcribe.Options{
		Title:         title,
		BreathMarking: j.Request.BreathDetection,
		Postprocess:   j.Request.UsePostprocess,
	})
	if err != nil {
		return nil, err
	}
	tracker.AddTranscription(transcript.Duration.Minutes() * cost.TranscriptionPerMinute)
	rep.report(StatusTranscribing, 90)

	outPath := o.resultPath(j, "_transcript.txt")
	j.registerCleanup(outPath)
	if err := os.WriteFile(outPath, []byte(transcript.Text), 0o644); err != nil {
		return nil, fmt.Errorf("job: writing transcript: %w", err)
	}

	j.mu.Lock()
	j.Transcript = &TranscriptResult{
		File:          outPath,
		Language:      transcript.Language,
		Duration:      transcript.Duration,
		Words:         transcript.Stats.Words,
		Postprocessed: transcript.Postprocessed,
	}
	j.mu.Unlock()
	rep.report(StatusTranscribing, 100)
	log.Info("transcription done", "language", transcript.Language, "words", transcript.Stats.Words)
	return transcript, nil
}

// translateStage translates the transcript's timed script.
func (o *Orchestrator) translateStage(ctx context.Context, j *Job, rep *reporter, tracker *cost.Tracker, transcript *transcribe.Transcript, log *slog.Logger) (string, error) {
	o.setStatus(j, StatusTranslating)
	rep.report(StatusTranslating, 0)
	ctx, cancel := context.WithTimeout(ctx, translateDeadline)
	defer cancel()

	quality := translate.QualityBalanced
	if j.Request.TestMode {
		quality = translate.QualityFast
	}
	res, err := o.translate.Translate(ctx, translate.Request{
		Script:         transcript.Text,
		SourceLanguage: transcript.Language,
		TargetLanguage: j.Request.TargetLanguage,
		Context:        translate.Context(j.Request.TranslationContext),
		Audience:       j.Request.TargetAudience,
		Tone:           j.Request.DesiredTone,
		Quality:        quality,
		PreserveTiming: true,
	})
	if err != nil {
		return "", err
	}
	tracker.AddTranslation(res.EstimatedCost)
	rep.report(StatusTranslating, 90)

	outPath := o.resultPath(j, "_translation.txt")
	j.registerCleanup(outPath)
	if err := os.WriteFile(outPath, []byte(res.Text), 0o644); err != nil {
		return "", fmt.Errorf("job: writing translation: %w", err)
	}

	j.mu.Lock()
	j.Translation = &TranslationResult{
		File:           outPath,
		TargetLanguage: res.TargetLanguage,
		Context:        string(res.Context),
		Words:          res.WordCount,
		Candidate:      res.Candidate,
		Chunks:         res.ChunksProcessed,
	}
	j.mu.Unlock()
	rep.report(StatusTranslating, 100)
	log.Info("translation done", "target", res.TargetLanguage, "candidate", res.Candidate)
	return res.Text, nil
}

// synthesizeStage renders the dubbed audio track and the subtitle file
// from the final script. Returns the audio file path for the muxer.
func (o *Orchestrator) synthesizeStage(ctx context.Context, j *Job, rep *reporter, tracker *cost.Tracker, scriptText string, transcript *transcribe.Transcript, log *slog.Logger) (string, error) {
	o.setStatus(j, StatusSynthesizing)
	rep.report(StatusSynthesizing, 0)
	ctx, cancel := context.WithTimeout(ctx, synthesizeDeadline)
	defer cancel()

	parsed, err := script.Parse(scriptText)
	if err != nil {
		return "", err
	}
	spoken := parsed.Spoken()
	if len(spoken) == 0 {
		return "", fmt.Errorf("job: %w: script has no spoken lines", ErrMissingPrerequisite)
	}
	segments := make([]tts.Segment, len(spoken))
	for i, seg := range spoken {
		segments[i] = tts.Segment{
			Start: time.Duration(seg.Start) * time.Second,
			Text:  seg.Text,
		}
	}

	provider, err := o.synth.Select(ctx, j.Request.TTSProvider)
	if err != nil {
		return "", err
	}
	if j.Request.VoiceID != "" {
		if err := provider.ValidateVoiceID(ctx, j.Request.VoiceID); err != nil {
			return "", err
		}
	}
	rep.report(StatusSynthesizing, 10)

	language := transcript.Language
	if j.Request.EnableTranslation {
		language = j.Request.TargetLanguage
	}
	res, err := provider.Synthesize(ctx, tts.Request{
		Segments:      segments,
		VoiceID:       j.Request.VoiceID,
		Language:      language,
		Quality:       tts.Quality(j.Request.AudioQuality),
		TotalDuration: transcript.Duration,
	})
	if err != nil {
		return "", err
	}
	tracker.AddSynthesis(float64(res.Characters) / 1000 * provider.CostPerKiloChars())
	rep.report(StatusSynthesizing, 80)

	audioPath := o.resultPath(j, "_audio"+audioExtension(res.MIME))
	j.registerCleanup(audioPath)
	if err := os.WriteFile(audioPath, res.Audio, 0o644); err != nil {
		return "", fmt.Errorf("job: writing audio track: %w", err)
	}

	subFormat := subtitle.Format(j.Request.SubtitleFormat)
	subPath := o.resultPath(j, "_subtitles."+subFormat.Extension())
	j.registerCleanup(subPath)
	sf, err := os.Create(subPath)
	if err != nil {
		return "", fmt.Errorf("job: creating subtitle file: %w", err)
	}
	if err := subtitle.Export(sf, scriptText, subFormat); err != nil {
		sf.Close()
		return "", err
	}
	if err := sf.Close(); err != nil {
		return "", fmt.Errorf("job: writing subtitles: %w", err)
	}

	j.mu.Lock()
	j.Synthesis = &SynthesisResult{
		File:       audioPath,
		Subtitles:  subPath,
		Provider:   res.Provider,
		Characters: res.Characters,
		MIME:       res.MIME,
	}
	j.mu.Unlock()
	rep.report(StatusSynthesizing, 100)
	log.Info("synthesis done", "provider", res.Provider, "characters", res.Characters)
	return audioPath, nil
}

// muxStage combines the source video with the dubbed track.
func (o *Orchestrator) muxStage(ctx context.Context, j *Job, rep *reporter, tracker *cost.Tracker, audioPath string, log *slog.Logger) error {
	if audioPath == "" {
		return fmt.Errorf("job: %w: muxing needs a synthesized track", ErrMissingPrerequisite)
	}
	o.setStatus(j, StatusMuxing)
	rep.report(StatusMuxing, 0)
	ctx, cancel := context.WithTimeout(ctx, muxDeadline)
	defer cancel()

	outPath := o.resultPath(j, "_dubbed."+j.Request.VideoFormat)
	j.registerCleanup(outPath)

	var (
		res *mux.Result
		err error
	)
	if j.Request.PreviewMode {
		res, err = o.muxer.CreatePreview(ctx, j.Request.URL, audioPath, outPath, previewSeconds)
	} else {
		res, err = o.muxer.ReplaceAudio(ctx, j.Request.URL, audioPath, outPath,
			j.Request.PreserveVideoQuality, j.Request.VideoFormat)
	}
	if err != nil {
		return err
	}
	tracker.AddVideoProcessing(cost.MuxingFixed + cost.StorageFixed)

	j.mu.Lock()
	j.Muxing = &MuxingResult{
		File:       res.OutputPath,
		Format:     res.Format,
		SizeBytes:  res.SizeBytes,
		Duration:   res.Duration,
		Resolution: res.Resolution,
		IsPreview:  res.IsPreview,
	}
	j.mu.Unlock()
	rep.report(StatusMuxing, 100)
	log.Info("muxing done", "output", res.OutputPath, "preview", res.IsPreview)
	return nil
}

// audioExtension maps a track MIME type to its file extension.
func audioExtension(mime string) string {
	switch mime {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	default:
		return ".bin"
	}
}
