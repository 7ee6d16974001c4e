package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const probeTimeout = 30 * time.Second

// VideoInfo is the subset of ffprobe output the muxer cares about for a
// video file.
type VideoInfo struct {
	Duration  time.Duration
	Width     int
	Height    int
	Codec     string
	FrameRate float64
	Bitrate   int64
}

// Resolution returns "WxH".
func (v VideoInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// AudioInfo is the subset of ffprobe output the muxer cares about for an
// audio file.
type AudioInfo struct {
	Duration   time.Duration
	Codec      string
	SampleRate int
	Channels   int
}

// Prober wraps ffprobe.
type Prober struct {
	bin string
	run runFn
}

// ProberOption is a functional option for configuring a Prober.
type ProberOption func(*Prober)

// WithProberBinary overrides the ffprobe binary path.
func WithProberBinary(path string) ProberOption {
	return func(p *Prober) {
		p.bin = path
	}
}

// NewProber creates a Prober using the ffprobe binary on PATH.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{bin: "ffprobe", run: runCommand}
	for _, o := range opts {
		o(p)
	}
	return p
}

// probeOutput mirrors the ffprobe -print_format json schema.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func (p *Prober) probe(ctx context.Context, path string) (*probeOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	out, stderr, err := p.run(ctx, p.bin, args)
	if err != nil {
		return nil, toolError("ffprobe", err, stderr)
	}

	var po probeOutput
	if err := json.Unmarshal([]byte(out), &po); err != nil {
		return nil, fmt.Errorf("%w: ffprobe output: %v", ErrMuxingFailed, err)
	}
	return &po, nil
}

// ProbeVideo inspects a video file.
func (p *Prober) ProbeVideo(ctx context.Context, path string) (*VideoInfo, error) {
	po, err := p.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	info := &VideoInfo{
		Duration: parseSeconds(po.Format.Duration),
		Bitrate:  parseInt64(po.Format.BitRate),
	}
	for _, s := range po.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.Codec = s.CodecName
		info.FrameRate = parseFrameRate(s.RFrameRate)
		break
	}
	if info.Codec == "" {
		return nil, fmt.Errorf("%w: %s has no video stream", ErrMuxingFailed, path)
	}
	return info, nil
}

// ProbeAudio inspects an audio file.
func (p *Prober) ProbeAudio(ctx context.Context, path string) (*AudioInfo, error) {
	po, err := p.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	info := &AudioInfo{Duration: parseSeconds(po.Format.Duration)}
	for _, s := range po.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.Codec = s.CodecName
		info.SampleRate = int(parseInt64(s.SampleRate))
		info.Channels = s.Channels
		break
	}
	if info.Codec == "" {
		return nil, fmt.Errorf("%w: %s has no audio stream", ErrMuxingFailed, path)
	}
	return info, nil
}

// parseSeconds converts ffprobe's decimal-seconds string to a Duration.
func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseFrameRate converts ffprobe's rational framerate ("30000/1001") to
// frames per second.
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
