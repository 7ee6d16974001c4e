// Package mux supervises the external tools that turn a synthesized
// audio track and a source video into the final dubbed file: yt-dlp for
// downloads, ffprobe for media inspection, and ffmpeg for muxing and
// transcoding. Every invocation is bounded by a timeout and failures
// carry the tool's stderr tail.
package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrMuxingFailed is the sentinel for any failed external tool step:
// download, probe, mux, transcode, timeout, or missing output.
var ErrMuxingFailed = errors.New("mux: external tool failed")

// runFn runs an external command and returns its stdout and stderr.
// Injectable so tests never spawn real processes.
type runFn func(ctx context.Context, name string, args []string) (stdout, stderr string, err error)

// runCommand is the production runFn.
func runCommand(ctx context.Context, name string, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// stderrTailLen bounds how much tool output is carried in errors.
const stderrTailLen = 600

// stderrTail returns the last stderrTailLen bytes of s, trimmed.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailLen {
		s = "…" + s[len(s)-stderrTailLen:]
	}
	return s
}

// toolError wraps a failed invocation with ErrMuxingFailed and the
// stderr tail.
func toolError(tool string, err error, stderr string) error {
	if tail := stderrTail(stderr); tail != "" {
		return fmt.Errorf("%w: %s: %v: %s", ErrMuxingFailed, tool, err, tail)
	}
	return fmt.Errorf("%w: %s: %v", ErrMuxingFailed, tool, err)
}

// isURL reports whether source is a remote URL rather than a local path.
func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
