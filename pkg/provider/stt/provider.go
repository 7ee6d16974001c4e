// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., OpenAI Whisper) and
// exposes a uniform file-transcription interface: audio in, timestamped
// segments out. The transcription stage converts the segments into the
// timed-script format the rest of the pipeline operates on.
//
// Implementations must be safe for concurrent use; multiple jobs may
// transcribe in parallel.
package stt

import (
	"context"
	"io"
	"time"
)

// Segment is one contiguous span of recognised speech.
type Segment struct {
	// Start and End bound the span relative to the beginning of the audio.
	Start time.Duration
	End   time.Duration

	// Text is the recognised speech content, whitespace-trimmed.
	Text string

	// Confidence is the provider's confidence in [0.0, 1.0]. Zero when the
	// provider does not report one.
	Confidence float64
}

// Result is a complete transcription of one audio file.
type Result struct {
	// Language is the detected (or requested) language as a lowercase
	// ISO 639-1 code, e.g. "hu".
	Language string

	// Duration is the total audio duration as reported by the provider.
	Duration time.Duration

	// Segments holds the timestamped spans in audio order.
	Segments []Segment

	// Text is the full transcript without timing, as returned by the
	// provider.
	Text string
}

// Request describes one transcription call.
type Request struct {
	// Audio is the encoded audio stream (wav, mp3, m4a, ...).
	Audio io.Reader

	// Filename hints the container format to the provider, e.g.
	// "episode.mp3".
	Filename string

	// Language is an optional ISO 639-1 recognition hint. Empty lets the
	// provider auto-detect.
	Language string

	// Prompt is an optional vocabulary hint (proper nouns, domain terms)
	// that biases recognition.
	Prompt string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe uploads the audio and blocks until the provider returns
	// the full transcription. Errors are classified with apperrors kinds
	// where the provider can tell them apart.
	Transcribe(ctx context.Context, req Request) (*Result, error)

	// Name identifies the backend for logging and cost attribution.
	Name() string
}
