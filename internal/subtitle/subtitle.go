// Package subtitle exports a timed script as SRT or WebVTT using
// github.com/asticode/go-astisub. Pause-marker lines are dropped; spoken
// lines get end times derived from the speech-duration estimate, capped
// just before the next line starts.
package subtitle

import (
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/feherm/szinkron/internal/script"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

// Format selects the subtitle container.
type Format string

const (
	FormatSRT    Format = "srt"
	FormatWebVTT Format = "vtt"
)

// Valid reports whether f is a supported subtitle format.
func (f Format) Valid() bool {
	return f == FormatSRT || f == FormatWebVTT
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string { return string(f) }

// minCueDuration keeps cues readable even when the next line starts
// immediately.
const minCueDuration = 500 * time.Millisecond

// Export parses scriptText and writes it to w in the requested format.
func Export(w io.Writer, scriptText string, f Format) error {
	if !f.Valid() {
		return fmt.Errorf("subtitle: unsupported format %q", f)
	}

	s, err := script.Parse(scriptText)
	if err != nil {
		return fmt.Errorf("subtitle: %w", err)
	}

	subs := astisub.NewSubtitles()
	for i, seg := range s.Segments {
		if seg.Pause != script.PauseNone || seg.Text == "" {
			continue
		}

		start := time.Duration(seg.Start) * time.Second
		nextStart := time.Duration(-1)
		if i+1 < len(s.Segments) {
			nextStart = time.Duration(s.Segments[i+1].Start) * time.Second
		}
		end := tts.SegmentEnd(tts.Segment{Start: start, Text: seg.Text}, nextStart)
		if end < start+minCueDuration {
			end = start + minCueDuration
		}

		subs.Items = append(subs.Items, &astisub.Item{
			StartAt: start,
			EndAt:   end,
			Lines: []astisub.Line{
				{Items: []astisub.LineItem{{Text: seg.Text}}},
			},
		})
	}
	if len(subs.Items) == 0 {
		return fmt.Errorf("subtitle: script has no spoken lines")
	}

	switch f {
	case FormatWebVTT:
		err = subs.WriteToWebVTT(w)
	default:
		err = subs.WriteToSRT(w)
	}
	if err != nil {
		return fmt.Errorf("subtitle: write %s: %w", f, err)
	}
	return nil
}
