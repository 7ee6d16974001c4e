package mux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	muxTimeout = 30 * time.Minute

	// x264CRF is the quality used when the video stream is re-encoded.
	x264CRF = "23"

	// Audio encoding applied to the dubbed track in every container.
	audioCodec      = "aac"
	audioBitrate    = "128k"
	audioChannels   = "2"
	audioSampleRate = "44100"
)

// Result describes a finished mux.
type Result struct {
	OutputPath    string
	Duration      time.Duration
	SizeBytes     int64
	Format        string
	Resolution    string
	VideoCodec    string
	VideoDuration time.Duration
	AudioDuration time.Duration
	IsPreview     bool
}

// Muxer produces the final dubbed video by replacing a video's audio
// track with a synthesized one.
type Muxer struct {
	bin        string
	run        runFn
	downloader *Downloader
	prober     *Prober
	tempDir    string
}

// MuxerOption is a functional option for configuring a Muxer.
type MuxerOption func(*Muxer)

// WithMuxerBinary overrides the ffmpeg binary path.
func WithMuxerBinary(path string) MuxerOption {
	return func(m *Muxer) {
		m.bin = path
	}
}

// WithTempDir sets the directory for intermediate downloads.
func WithTempDir(dir string) MuxerOption {
	return func(m *Muxer) {
		m.tempDir = dir
	}
}

// NewMuxer creates a Muxer over the given downloader and prober.
func NewMuxer(downloader *Downloader, prober *Prober, opts ...MuxerOption) *Muxer {
	m := &Muxer{
		bin:        "ffmpeg",
		run:        runCommand,
		downloader: downloader,
		prober:     prober,
		tempDir:    os.TempDir(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ReplaceAudio downloads the video track of videoSource when it is a
// URL, validates duration compatibility, and muxes audioPath over it
// into outputPath. The downloaded intermediate is removed on every exit
// path; a partial output file is removed on failure.
func (m *Muxer) ReplaceAudio(ctx context.Context, videoSource, audioPath, outputPath string, preserveQuality bool, targetFormat string) (*Result, error) {
	videoPath, cleanup, err := m.resolveVideo(ctx, videoSource)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	videoInfo, err := m.prober.ProbeVideo(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	audioInfo, err := m.prober.ProbeAudio(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	checkDurations(videoInfo.Duration, audioInfo.Duration)

	res, err := m.mux(ctx, videoPath, audioPath, outputPath, preserveQuality, targetFormat)
	if err != nil {
		return nil, err
	}
	res.VideoDuration = videoInfo.Duration
	res.AudioDuration = audioInfo.Duration
	return res, nil
}

// CreatePreview muxes only the first durationSec seconds, keeping the
// video stream copied. All intermediates are removed before returning.
func (m *Muxer) CreatePreview(ctx context.Context, videoSource, audioPath, outputPath string, durationSec int) (*Result, error) {
	videoPath := videoSource
	if isURL(videoSource) {
		tmp := filepath.Join(m.tempDir, fmt.Sprintf("preview_video_%d.mp4", time.Now().UnixNano()))
		defer os.Remove(tmp)
		if err := m.downloader.DownloadVideoSegment(ctx, videoSource, tmp, 0, durationSec); err != nil {
			return nil, err
		}
		videoPath = tmp
	}

	trimmed := filepath.Join(m.tempDir, fmt.Sprintf("preview_audio_%d.m4a", time.Now().UnixNano()))
	defer os.Remove(trimmed)
	if err := m.trimAudio(ctx, audioPath, trimmed, durationSec); err != nil {
		return nil, err
	}

	res, err := m.mux(ctx, videoPath, trimmed, outputPath, true, "mp4")
	if err != nil {
		return nil, err
	}
	res.IsPreview = true
	return res, nil
}

// resolveVideo turns videoSource into a local path, downloading the
// video-only track first when it is a URL.
func (m *Muxer) resolveVideo(ctx context.Context, videoSource string) (string, func(), error) {
	if !isURL(videoSource) {
		if _, err := os.Stat(videoSource); err != nil {
			return "", nil, fmt.Errorf("%w: video source: %v", ErrMuxingFailed, err)
		}
		return videoSource, func() {}, nil
	}

	tmp := filepath.Join(m.tempDir, fmt.Sprintf("mux_video_%d.mp4", time.Now().UnixNano()))
	if err := m.downloader.DownloadVideo(ctx, videoSource, tmp); err != nil {
		os.Remove(tmp)
		return "", nil, err
	}
	return tmp, func() { os.Remove(tmp) }, nil
}

// checkDurations warns when the synthesized track and the video disagree
// by more than 10%. Short audio simply stops early; long audio is cut by
// -shortest at mux time, so neither is fatal.
func checkDurations(video, audio time.Duration) {
	diff := video - audio
	if diff < 0 {
		diff = -diff
	}
	if diff <= video/10 {
		return
	}
	slog.Warn("video and audio durations diverge", "video", video, "audio", audio)
	if audio < video*8/10 {
		slog.Warn("audio is significantly shorter than video; the tail will keep the original silence")
	}
	if audio > video*12/10 {
		slog.Warn("audio is significantly longer than video; it will be trimmed to the video length")
	}
}

func (m *Muxer) mux(ctx context.Context, videoPath, audioPath, outputPath string, preserveQuality bool, targetFormat string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %v", ErrMuxingFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, muxTimeout)
	defer cancel()

	args := muxArgs(videoPath, audioPath, outputPath, preserveQuality, targetFormat)
	slog.Info("muxing", "output", outputPath, "preserve_quality", preserveQuality, "format", targetFormat)

	if _, stderr, err := m.run(ctx, m.bin, args); err != nil {
		os.Remove(outputPath)
		return nil, toolError("ffmpeg", err, stderr)
	}

	st, err := os.Stat(outputPath)
	if err != nil || st.Size() == 0 {
		os.Remove(outputPath)
		return nil, fmt.Errorf("%w: output file missing or empty", ErrMuxingFailed)
	}

	outInfo, err := m.prober.ProbeVideo(ctx, outputPath)
	if err != nil {
		os.Remove(outputPath)
		return nil, err
	}
	return &Result{
		OutputPath: outputPath,
		Duration:   outInfo.Duration,
		SizeBytes:  st.Size(),
		Format:     targetFormat,
		Resolution: outInfo.Resolution(),
		VideoCodec: outInfo.Codec,
	}, nil
}

// muxArgs builds the ffmpeg invocation that replaces the audio track.
func muxArgs(videoPath, audioPath, outputPath string, preserveQuality bool, targetFormat string) []string {
	args := []string{"-y", "-i", videoPath, "-i", audioPath}

	if preserveQuality {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-c:v", "libx264", "-crf", x264CRF)
	}

	args = append(args,
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-ac", audioChannels,
		"-ar", audioSampleRate,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		"-avoid_negative_ts", "make_zero",
	)
	if targetFormat == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, outputPath)
}

// trimAudio cuts audioPath to the first durationSec seconds. The track is
// re-encoded to AAC because chunk-assembled input arrives as WAV, whose
// PCM codec cannot be stream-copied into the m4a intermediate.
func (m *Muxer) trimAudio(ctx context.Context, inPath, outPath string, durationSec int) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	args := []string{
		"-y", "-i", inPath,
		"-t", strconv.Itoa(durationSec),
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		outPath,
	}
	if _, stderr, err := m.run(ctx, m.bin, args); err != nil {
		return toolError("ffmpeg", err, stderr)
	}
	return nil
}
