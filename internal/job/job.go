// Package job holds the dubbing pipeline's job model, the in-memory
// registry, and the orchestrator that drives a job through its stages.
package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/internal/cost"
)

// Status is the job lifecycle state. Transitions are strictly forward
// except into StatusFailed and StatusCancelled, which are reachable from
// any non-terminal state.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusTranscribing Status = "TRANSCRIBING"
	StatusTranslating  Status = "TRANSLATING"
	StatusSynthesizing Status = "SYNTHESIZING"
	StatusMuxing       Status = "MUXING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrMissingPrerequisite is returned when a stage's required input was
// produced by a disabled or failed earlier stage.
var ErrMissingPrerequisite = errors.New("job: required earlier stage result is missing")

// TranscriptResult is the stage 1 output.
type TranscriptResult struct {
	File          string        `json:"file"`
	Language      string        `json:"language"`
	Duration      time.Duration `json:"duration"`
	Words         int           `json:"words"`
	Postprocessed bool          `json:"postprocessed"`
}

// TranslationResult is the stage 2 output.
type TranslationResult struct {
	File           string `json:"file"`
	TargetLanguage string `json:"target_language"`
	Context        string `json:"context"`
	Words          int    `json:"words"`
	Candidate      string `json:"candidate"`
	Chunks         int    `json:"chunks"`
}

// SynthesisResult is the stage 3 output.
type SynthesisResult struct {
	File       string `json:"file"`
	Subtitles  string `json:"subtitles,omitempty"`
	Provider   string `json:"provider"`
	Characters int    `json:"characters"`
	MIME       string `json:"mime"`
}

// MuxingResult is the stage 4 output.
type MuxingResult struct {
	File       string        `json:"file"`
	Format     string        `json:"format"`
	SizeBytes  int64         `json:"size_bytes"`
	Duration   time.Duration `json:"duration"`
	Resolution string        `json:"resolution"`
	IsPreview  bool          `json:"is_preview"`
}

// Failure records why a job failed. Kind carries the error
// classification so clients can tell a budget refusal from a provider
// outage; it is empty for unclassified errors.
type Failure struct {
	Stage   Status         `json:"stage"`
	Kind    apperrors.Kind `json:"kind,omitempty"`
	Message string         `json:"message"`
}

// Job is one dubbing run. Mutations go through the job's own mutex;
// callers read a consistent copy via Snapshot.
type Job struct {
	mu sync.Mutex

	ID          string
	Request     Request
	Status      Status
	Progress    int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Transcript  *TranscriptResult
	Translation *TranslationResult
	Synthesis   *SynthesisResult
	Muxing      *MuxingResult

	EstimatedCost cost.Breakdown
	ActualCost    cost.Breakdown

	Error *Failure

	// cancel aborts the running pipeline; cancelled marks a cooperative
	// cancellation request observed at the next checkpoint.
	cancel    context.CancelFunc
	cancelled bool

	// cleanup lists every file created for this job. On completion only
	// files recorded as stage results survive; on failure or cancellation
	// everything is removed.
	cleanup []string
}

// Snapshot returns a copy of the job's observable state.
func (j *Job) Snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Job{
		ID:            j.ID,
		Request:       j.Request,
		Status:        j.Status,
		Progress:      j.Progress,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		Transcript:    j.Transcript,
		Translation:   j.Translation,
		Synthesis:     j.Synthesis,
		Muxing:        j.Muxing,
		EstimatedCost: j.EstimatedCost,
		ActualCost:    j.ActualCost,
		Error:         j.Error,
	}
}

// registerCleanup records a temp file for removal on terminal
// transitions.
func (j *Job) registerCleanup(path string) {
	j.mu.Lock()
	j.cleanup = append(j.cleanup, path)
	j.mu.Unlock()
}

// Cancelled reports whether cancellation has been requested.
func (j *Job) Cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}
