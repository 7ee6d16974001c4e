// Package audio provides the PCM plumbing for dubbed-track assembly:
// sample-format conversion, a Track type that overlays synthesized
// segments onto a silent base at their script offsets, and WAV encoding
// for handoff to the muxer.
//
// All PCM in this package is little-endian signed 16-bit.
package audio

import "time"

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// TrackFormat is the canonical assembly format for dubbed audio tracks:
// 44.1 kHz mono. Providers that return a different format are converted
// on overlay.
var TrackFormat = Format{SampleRate: 44100, Channels: 1}

// BytesPerSecond returns the byte rate of int16 PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns the play time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Bytes returns the PCM byte count covering d in this format, aligned
// down to a whole sample frame.
func (f Format) Bytes(d time.Duration) int {
	n := int(int64(d) * int64(f.BytesPerSecond()) / int64(time.Second))
	frame := f.Channels * 2
	if frame == 0 {
		return 0
	}
	return n - n%frame
}
