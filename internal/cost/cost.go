// Package cost computes a-priori job cost estimates and accumulates the
// actual per-stage spend while a job runs.
package cost

import "time"

// Stage rates in USD.
const (
	// TranscriptionPerMinute is the speech recognition rate.
	TranscriptionPerMinute = 0.016

	// TranslationPerMillionChars is the text translation rate.
	TranslationPerMillionChars = 20.0

	// MuxingFixed and StorageFixed are flat per-job charges.
	MuxingFixed  = 0.05
	StorageFixed = 0.10

	// MinAccountable floors every non-zero stage estimate so tiny jobs
	// still register a cost.
	MinAccountable = 0.0001
)

// Duration heuristics used when no transcript exists yet.
const (
	wordsPerMinute = 150
	charsPerWord   = 5

	// Caps applied to the estimated duration.
	testModeCapSeconds = 300
	normalCapSeconds   = 1800
)

// Params describes the job being estimated.
type Params struct {
	// TranscriptChars is the transcript length when one exists; zero
	// means estimate from duration instead.
	TranscriptChars int

	// EstimatedDuration is the source duration hint used when no
	// transcript exists.
	EstimatedDuration time.Duration

	// TestMode caps the processed duration at the test-mode limit.
	TestMode bool

	EnableTranscription bool
	EnableTranslation   bool
	EnableSynthesis     bool
	EnableMuxing        bool

	// SynthesisRatePerKiloChars is the selected TTS provider's rate.
	SynthesisRatePerKiloChars float64
}

// Breakdown is a per-stage cost record.
type Breakdown struct {
	Transcription   float64 `json:"transcription"`
	Translation     float64 `json:"translation"`
	Synthesis       float64 `json:"synthesis"`
	VideoProcessing float64 `json:"video_processing"`
	Storage         float64 `json:"storage"`
	Total           float64 `json:"total"`
}

// Estimate computes the a-priori breakdown for p.
func Estimate(p Params) Breakdown {
	chars := p.TranscriptChars
	duration := p.EstimatedDuration
	switch {
	case chars > 0 && duration == 0:
		duration = durationFromChars(chars)
	case chars == 0 && duration > 0:
		chars = charsFromDuration(duration)
	}
	duration = capDuration(duration, p.TestMode)
	if p.TranscriptChars == 0 {
		chars = charsFromDuration(duration)
	}

	var b Breakdown
	if p.EnableTranscription {
		b.Transcription = floor(duration.Minutes() * TranscriptionPerMinute)
	}
	if p.EnableTranslation {
		b.Translation = floor(float64(chars) / 1_000_000 * TranslationPerMillionChars)
	}
	if p.EnableSynthesis {
		b.Synthesis = floor(float64(chars) / 1000 * p.SynthesisRatePerKiloChars)
	}
	if p.EnableMuxing {
		b.VideoProcessing = MuxingFixed
		b.Storage = StorageFixed
	}
	b.Total = b.Transcription + b.Translation + b.Synthesis + b.VideoProcessing + b.Storage
	return b
}

// durationFromChars estimates speech duration from transcript length at
// the standard speaking rate.
func durationFromChars(chars int) time.Duration {
	words := float64(chars) / charsPerWord
	return time.Duration(words / wordsPerMinute * float64(time.Minute))
}

func charsFromDuration(d time.Duration) int {
	return int(d.Minutes() * wordsPerMinute * charsPerWord)
}

func capDuration(d time.Duration, testMode bool) time.Duration {
	limit := time.Duration(normalCapSeconds) * time.Second
	if testMode {
		limit = time.Duration(testModeCapSeconds) * time.Second
	}
	if d == 0 || d > limit {
		return limit
	}
	return d
}

// floor applies the minimum accountable cost to non-zero amounts.
func floor(v float64) float64 {
	if v > 0 && v < MinAccountable {
		return MinAccountable
	}
	return v
}

// Tracker accumulates actual spend per stage as a job runs. It is not
// safe for concurrent use; each job owns one Tracker.
type Tracker struct {
	actual Breakdown
}

// AddTranscription records actual transcription spend.
func (t *Tracker) AddTranscription(v float64) { t.actual.Transcription += v; t.actual.Total += v }

// AddTranslation records actual translation spend.
func (t *Tracker) AddTranslation(v float64) { t.actual.Translation += v; t.actual.Total += v }

// AddSynthesis records actual synthesis spend.
func (t *Tracker) AddSynthesis(v float64) { t.actual.Synthesis += v; t.actual.Total += v }

// AddVideoProcessing records actual muxing and storage spend.
func (t *Tracker) AddVideoProcessing(v float64) {
	t.actual.VideoProcessing += v
	t.actual.Total += v
}

// Actual returns the accumulated breakdown.
func (t *Tracker) Actual() Breakdown { return t.actual }
