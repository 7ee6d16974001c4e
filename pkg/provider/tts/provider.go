// Package tts defines the Provider interface for Text-to-Speech backends
// and the Registry that picks between them.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or
// Google Cloud Text-to-Speech) and presents a uniform track-synthesis
// interface: timed segments in, one assembled audio track out. Each
// provider owns its own batching strategy; the caller only sees the
// finished track.
//
// Implementations must be safe for concurrent use. Multiple jobs may
// synthesize in parallel.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Name identifies the backend ("elevenlabs", "googletts") for
	// selection, logging, and cost attribution.
	Name() string

	// Synthesize produces an assembled audio track for the request. Audio
	// for each segment is placed at the segment's start offset, with
	// silence in between, so the track lines up with the source video.
	Synthesize(ctx context.Context, req Request) (*Result, error)

	// ListVoices returns the voices available from this provider. The list
	// reflects the provider's current catalogue.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)

	// ValidateVoiceID checks that voiceID names a voice this provider can
	// synthesize with, after mapping equivalents from other providers. An
	// unknown voice returns a not-found error. Called before synthesis
	// starts so a bad voice fails the job without issuing audio requests.
	ValidateVoiceID(ctx context.Context, voiceID string) error

	// Available probes whether the backend is reachable and credentialed.
	// The Registry caches the outcome briefly, so implementations should
	// use a cheap call.
	Available(ctx context.Context) error

	// CostPerKiloChars returns the provider's synthesis price in USD per
	// 1000 characters. Used by automatic provider selection (cheapest
	// first) and cost estimation.
	CostPerKiloChars() float64
}
