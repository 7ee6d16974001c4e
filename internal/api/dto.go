package api

import (
	"time"

	"github.com/feherm/szinkron/internal/cost"
	"github.com/feherm/szinkron/internal/job"
)

// jobResponse is the wire shape of a job. Timestamps are RFC 3339;
// unset ones are omitted.
type jobResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CreatedAt   string `json:"created_at"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`

	Request job.Request `json:"request"`

	Transcript  *job.TranscriptResult  `json:"transcript,omitempty"`
	Translation *job.TranslationResult `json:"translation,omitempty"`
	Synthesis   *job.SynthesisResult   `json:"synthesis,omitempty"`
	Muxing      *job.MuxingResult      `json:"muxing,omitempty"`

	EstimatedCost cost.Breakdown `json:"estimated_cost"`
	ActualCost    cost.Breakdown `json:"actual_cost"`

	Error *job.Failure `json:"error,omitempty"`
}

type jobListResponse struct {
	Jobs       []jobResponse `json:"jobs"`
	TotalCount int           `json:"total_count"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
}

type voiceResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Provider string            `json:"provider"`
	Language string            `json:"language,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type providerResponse struct {
	Name             string  `json:"name"`
	CostPerKiloChars float64 `json:"cost_per_1k_chars_usd"`
	Available        bool    `json:"available"`
	VoiceCount       int     `json:"voice_count"`
	LastError        string  `json:"last_error,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// jobJSON converts a job snapshot into its wire shape.
func jobJSON(j job.Job) jobResponse {
	return jobResponse{
		ID:            j.ID,
		Status:        string(j.Status),
		Progress:      j.Progress,
		CreatedAt:     timeString(j.CreatedAt),
		StartedAt:     timeString(j.StartedAt),
		CompletedAt:   timeString(j.CompletedAt),
		Request:       j.Request,
		Transcript:    j.Transcript,
		Translation:   j.Translation,
		Synthesis:     j.Synthesis,
		Muxing:        j.Muxing,
		EstimatedCost: j.EstimatedCost,
		ActualCost:    j.ActualCost,
		Error:         j.Error,
	}
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
