package mux

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	// videoFormatSelector requests the best video-without-audio track,
	// preferring mp4 so stream copy stays possible.
	videoFormatSelector = "bv[ext=mp4]/best[ext=mp4]/bv/best"

	// audioFormatSelector requests the best audio-only track.
	audioFormatSelector = "bestaudio[ext=m4a]/bestaudio"

	downloadTimeout = 10 * time.Minute
	segmentTimeout  = 5 * time.Minute
)

// Downloader wraps yt-dlp.
type Downloader struct {
	bin string
	run runFn
}

// DownloaderOption is a functional option for configuring a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloaderBinary overrides the yt-dlp binary path.
func WithDownloaderBinary(path string) DownloaderOption {
	return func(d *Downloader) {
		d.bin = path
	}
}

// NewDownloader creates a Downloader using the yt-dlp binary on PATH.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{bin: "yt-dlp", run: runCommand}
	for _, o := range opts {
		o(d)
	}
	return d
}

// DownloadVideo fetches the video-only track of url into outputPath.
func (d *Downloader) DownloadVideo(ctx context.Context, url, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	slog.Info("downloading video track", "url", url)
	args := []string{
		"--format", videoFormatSelector,
		"--output", outputPath,
		"--no-playlist",
		"--no-warnings",
		url,
	}
	if _, stderr, err := d.run(ctx, d.bin, args); err != nil {
		return toolError("yt-dlp", err, stderr)
	}
	return nil
}

// DownloadAudio fetches the audio-only track of url into outputPath.
// limitSeconds > 0 truncates the download to the first limitSeconds.
func (d *Downloader) DownloadAudio(ctx context.Context, url, outputPath string, limitSeconds int) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	args := []string{
		"--format", audioFormatSelector,
		"--output", outputPath,
		"--no-playlist",
		"--no-warnings",
	}
	if limitSeconds > 0 {
		args = append(args,
			"--external-downloader", "ffmpeg",
			"--external-downloader-args", fmt.Sprintf("-t %d", limitSeconds))
	}
	args = append(args, url)

	if _, stderr, err := d.run(ctx, d.bin, args); err != nil {
		return toolError("yt-dlp", err, stderr)
	}
	return nil
}

// DownloadVideoSegment fetches only [startSec, startSec+durationSec) of
// the video track, used for previews.
func (d *Downloader) DownloadVideoSegment(ctx context.Context, url, outputPath string, startSec, durationSec int) error {
	ctx, cancel := context.WithTimeout(ctx, segmentTimeout)
	defer cancel()

	args := []string{
		"--format", "bv[ext=mp4]/best[ext=mp4]",
		"--external-downloader", "ffmpeg",
		"--external-downloader-args", fmt.Sprintf("-ss %d -t %d", startSec, durationSec),
		"--output", outputPath,
		"--no-warnings",
		url,
	}
	if _, stderr, err := d.run(ctx, d.bin, args); err != nil {
		return toolError("yt-dlp", err, stderr)
	}
	return nil
}

// Validate checks that url is reachable without downloading anything.
func (d *Downloader) Validate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, stderr, err := d.run(ctx, d.bin, []string{"--no-download", "--quiet", url}); err != nil {
		return toolError("yt-dlp", err, stderr)
	}
	return nil
}

// Title returns the media title of url.
func (d *Downloader) Title(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, stderr, err := d.run(ctx, d.bin, []string{"--print", "title", "--no-warnings", url})
	if err != nil {
		return "", toolError("yt-dlp", err, stderr)
	}
	title := firstLine(out)
	if title == "" {
		return "", fmt.Errorf("%w: yt-dlp returned no title", ErrMuxingFailed)
	}
	return title, nil
}

// Duration returns the media duration of url.
func (d *Downloader) Duration(ctx context.Context, url string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, stderr, err := d.run(ctx, d.bin, []string{"--print", "duration", "--no-warnings", url})
	if err != nil {
		return 0, toolError("yt-dlp", err, stderr)
	}
	secs, err := strconv.ParseFloat(firstLine(out), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: yt-dlp duration %q: %v", ErrMuxingFailed, firstLine(out), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
