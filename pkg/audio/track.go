package audio

import (
	"fmt"
	"time"
)

// Track is a fixed-length PCM buffer that dubbed segments are overlaid
// onto at their script offsets. It starts as silence covering the whole
// recording; Overlay mixes synthesized audio in additively with clamping,
// so adjacent segments that run long degrade to crossfade-style mixing
// rather than truncation.
//
// Track is not safe for concurrent use.
type Track struct {
	format Format
	data   []byte
}

// NewSilentTrack creates a track of silence covering d in the given format.
func NewSilentTrack(d time.Duration, f Format) *Track {
	return &Track{
		format: f,
		data:   make([]byte, f.Bytes(d)),
	}
}

// Format returns the track's PCM format.
func (t *Track) Format() Format { return t.format }

// Duration returns the track's total play time.
func (t *Track) Duration() time.Duration { return t.format.Duration(len(t.data)) }

// Bytes returns the raw PCM buffer. The caller must not mutate it while
// continuing to overlay.
func (t *Track) Bytes() []byte { return t.data }

// Overlay mixes pcm (in format from) into the track starting at offset at.
// Input in a different format is converted first. Audio extending past the
// end of the track grows the track rather than being cut off.
func (t *Track) Overlay(pcm []byte, from Format, at time.Duration) error {
	if at < 0 {
		return fmt.Errorf("audio: negative overlay offset %v", at)
	}
	pcm = Convert(pcm, from, t.format)

	start := t.format.Bytes(at)
	if need := start + len(pcm); need > len(t.data) {
		grown := make([]byte, need)
		copy(grown, t.data)
		t.data = grown
	}

	for i := 0; i+1 < len(pcm); i += 2 {
		j := start + i
		base := int32(int16(t.data[j]) | int16(t.data[j+1])<<8)
		add := int32(int16(pcm[i]) | int16(pcm[i+1])<<8)
		sum := base + add

		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}

		t.data[j] = byte(sum)
		t.data[j+1] = byte(sum >> 8)
	}
	return nil
}
