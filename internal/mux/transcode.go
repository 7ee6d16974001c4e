package mux

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const transcodeTimeout = 10 * time.Minute

// Transcoder wraps ffmpeg for the audio-only conversions the pipeline
// needs around transcription and synthesis.
type Transcoder struct {
	bin string
	run runFn
}

// TranscoderOption is a functional option for configuring a Transcoder.
type TranscoderOption func(*Transcoder)

// WithTranscoderBinary overrides the ffmpeg binary path.
func WithTranscoderBinary(path string) TranscoderOption {
	return func(t *Transcoder) {
		t.bin = path
	}
}

// NewTranscoder creates a Transcoder using the ffmpeg binary on PATH.
func NewTranscoder(opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{bin: "ffmpeg", run: runCommand}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ToFLAC converts inPath to 16 kHz mono FLAC, the format the speech
// recognizer consumes.
func (t *Transcoder) ToFLAC(ctx context.Context, inPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	args := []string{
		"-y", "-i", inPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "flac",
		outPath,
	}
	if _, stderr, err := t.run(ctx, t.bin, args); err != nil {
		return toolError("ffmpeg", err, stderr)
	}
	return nil
}

// ToMP3 converts inPath to MP3 at the given bitrate (e.g. "128k").
func (t *Transcoder) ToMP3(ctx context.Context, inPath, outPath, bitrate string) error {
	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	args := []string{
		"-y", "-i", inPath,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		outPath,
	}
	if _, stderr, err := t.run(ctx, t.bin, args); err != nil {
		return toolError("ffmpeg", err, stderr)
	}
	return nil
}

// Trim cuts inPath to [startSec, startSec+durationSec) without
// re-encoding.
func (t *Transcoder) Trim(ctx context.Context, inPath, outPath string, startSec, durationSec int) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	args := []string{
		"-y", "-i", inPath,
		"-ss", strconv.Itoa(startSec),
		"-t", strconv.Itoa(durationSec),
		"-c:a", "copy",
		outPath,
	}
	if _, stderr, err := t.run(ctx, t.bin, args); err != nil {
		return toolError("ffmpeg", err, stderr)
	}
	return nil
}

// Check verifies the ffmpeg binary responds; used by health reporting.
func (t *Transcoder) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, stderr, err := t.run(ctx, t.bin, []string{"-version"}); err != nil {
		return fmt.Errorf("%w: ffmpeg -version: %v: %s", ErrMuxingFailed, err, stderrTail(stderr))
	}
	return nil
}
