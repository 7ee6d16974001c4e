// Package transcribe turns recognized speech into the timed transcript
// file the rest of the pipeline consumes. Segments are grouped by the
// pauses between them, pause glyphs and paragraph breaks are emitted
// inline, and the result carries a preamble and a statistics block.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/feherm/szinkron/internal/script"
	"github.com/feherm/szinkron/pkg/provider/stt"
	"github.com/feherm/szinkron/pkg/provider/textgen"
)

// Pause categorization thresholds.
const (
	pauseMin       = 300 * time.Millisecond
	pauseShort     = 600 * time.Millisecond
	pauseLong      = 1500 * time.Millisecond
	pauseParagraph = 3 * time.Second

	// sentenceEndPause is the minimum gap after terminal punctuation
	// that forces a line break.
	sentenceEndPause = time.Second

	// timestampInterval is how often a timestamp is re-emitted inside a
	// paragraph.
	timestampInterval = 30 * time.Second
)

// rule separates the preamble and statistics block from the script body.
var rule = strings.Repeat("=", 70)

// pauseKind classifies the silence after a span.
type pauseKind int

const (
	pauseNone pauseKind = iota
	pauseKindSentenceEnd
	pauseKindShort
	pauseKindLong
	pauseKindParagraph
)

// span is a run of speech followed by a categorized pause.
type span struct {
	Text  string
	Start time.Duration
	End   time.Duration
	Gap   time.Duration
	Kind  pauseKind
}

// Stats summarizes the pause structure of a transcript.
type Stats struct {
	Words           int
	ShortPauses     int
	LongPauses      int
	Paragraphs      int
	TotalPauses     int
	SpeakingTime    time.Duration
	PauseTime       time.Duration
	WordsPerMinute  float64
	PausePercentage float64
	AvgConfidence   float64
}

// Transcript is the finished stage output.
type Transcript struct {
	// Text is the full transcript file: preamble, timed script body, and
	// statistics block.
	Text string

	Language      string
	Duration      time.Duration
	Stats         Stats
	Postprocessed bool
}

// Options steers formatting for one transcription.
type Options struct {
	// Title identifies the source video in the preamble.
	Title string

	// Language hints the recognizer; empty means auto-detect.
	Language string

	// BreathMarking enables pause glyphs and the pause statistics block.
	BreathMarking bool

	// Postprocess reformats the transcript into script style through the
	// configured text-generation provider.
	Postprocess bool
}

// Transcriber drives speech recognition and formatting.
type Transcriber struct {
	stt  stt.Provider
	post textgen.Provider
	now  func() time.Time
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithPostprocessor sets the text-generation provider used when
// Options.Postprocess is requested.
func WithPostprocessor(p textgen.Provider) Option {
	return func(t *Transcriber) {
		t.post = p
	}
}

// New creates a Transcriber over the given speech recognizer.
func New(provider stt.Provider, opts ...Option) *Transcriber {
	t := &Transcriber{stt: provider, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe recognizes audio and renders the transcript file.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string, opts Options) (*Transcript, error) {
	result, err := t.stt.Transcribe(ctx, stt.Request{
		Audio:    audio,
		Filename: filename,
		Language: opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: recognition: %w", err)
	}
	if len(result.Segments) == 0 {
		return nil, fmt.Errorf("transcribe: recognizer returned no speech")
	}

	spans := segmentPauses(result.Segments)
	stats := computeStats(spans, result.Segments)

	body := formatBody(spans, opts.BreathMarking)
	text := t.assemble(body, opts, stats, "")

	out := &Transcript{
		Text:     text,
		Language: result.Language,
		Duration: result.Duration,
		Stats:    stats,
	}

	if opts.Postprocess && t.post != nil {
		formatted, err := t.postprocess(ctx, body)
		if err == nil {
			out.Text = t.assemble(formatted, opts, stats, t.post.Model())
			out.Postprocessed = true
		}
		// Postprocessing is best effort; the raw formatting stands on
		// failure.
	}
	return out, nil
}

// segmentPauses converts recognizer segments into spans with categorized
// trailing pauses.
func segmentPauses(segs []stt.Segment) []span {
	spans := make([]span, 0, len(segs))
	for i, s := range segs {
		sp := span{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start,
			End:   s.End,
		}
		if i+1 < len(segs) {
			gap := segs[i+1].Start - s.End
			if gap > pauseMin {
				sp.Gap = gap
				sp.Kind = categorize(gap, sp.Text)
			}
		}
		spans = append(spans, sp)
	}
	return spans
}

// categorize maps a gap duration to a pause kind, giving terminal
// punctuation an earlier line break.
func categorize(gap time.Duration, text string) pauseKind {
	if text != "" {
		switch text[len(text)-1] {
		case '.', '!', '?':
			if gap >= sentenceEndPause && gap < pauseParagraph {
				return pauseKindSentenceEnd
			}
		}
	}
	switch {
	case gap >= pauseParagraph:
		return pauseKindParagraph
	case gap >= pauseLong:
		return pauseKindLong
	case gap >= pauseShort:
		return pauseKindShort
	}
	return pauseNone
}

// formatBody renders spans as the timed script body. Paragraph pauses
// open a new block; shorter pauses become inline glyphs.
func formatBody(spans []span, breathMarking bool) string {
	var (
		blocks    []string
		paragraph []string
		lastStamp time.Duration = -1
	)
	flush := func() {
		if len(paragraph) > 0 {
			blocks = append(blocks, strings.Join(paragraph, " "))
			paragraph = nil
		}
	}

	for _, sp := range spans {
		line := sp.Text
		if lastStamp < 0 || sp.Start-lastStamp > timestampInterval {
			line = script.FormatTimestamp(int(sp.Start/time.Second)) + " " + line
			lastStamp = sp.Start
		}

		if !breathMarking || sp.Kind == pauseNone {
			paragraph = append(paragraph, line)
			continue
		}

		switch sp.Kind {
		case pauseKindParagraph:
			paragraph = append(paragraph, line)
			flush()
			lastStamp = -1 // force a timestamp on the next block
		case pauseKindSentenceEnd:
			paragraph = append(paragraph, line)
			blocks = append(blocks, strings.Join(paragraph, " "))
			paragraph = nil
		case pauseKindLong:
			paragraph = append(paragraph, line+" ••")
		case pauseKindShort:
			paragraph = append(paragraph, line+" •")
		}
	}
	flush()
	return strings.Join(blocks, "\n")
}

// computeStats aggregates pause and confidence statistics.
func computeStats(spans []span, segs []stt.Segment) Stats {
	var st Stats
	for _, sp := range spans {
		st.Words += script.WordCount(sp.Text)
		st.SpeakingTime += sp.End - sp.Start
		st.PauseTime += sp.Gap
		switch sp.Kind {
		case pauseKindShort:
			st.ShortPauses++
		case pauseKindLong:
			st.LongPauses++
		case pauseKindParagraph:
			st.Paragraphs++
		}
		if sp.Kind != pauseNone {
			st.TotalPauses++
		}
	}
	if st.SpeakingTime > 0 {
		st.WordsPerMinute = float64(st.Words) / st.SpeakingTime.Minutes()
	}
	if total := st.SpeakingTime + st.PauseTime; total > 0 {
		st.PausePercentage = 100 * float64(st.PauseTime) / float64(total)
	}

	var confSum float64
	for _, s := range segs {
		confSum += s.Confidence
	}
	if len(segs) > 0 {
		st.AvgConfidence = confSum / float64(len(segs))
	}
	return st
}

// assemble wraps the script body with the preamble and statistics block.
// The emoji prefixes mark metadata lines so downstream chunked
// translation can filter them out.
func (t *Transcriber) assemble(body string, opts Options, stats Stats, postModel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📹 Video: %s\n", opts.Title)
	fmt.Fprintf(&b, "📅 Processed: %s\n", t.now().Format("2006-01-02 15:04"))
	if postModel != "" {
		fmt.Fprintf(&b, "🤖 Postprocess: %s\n", postModel)
	}
	b.WriteString(rule)
	b.WriteString("\n\n")
	b.WriteString(body)

	if stats.Words > 0 {
		fmt.Fprintf(&b, "\n\n%s\n", rule)
		b.WriteString("📊 Speech statistics:\n")
		fmt.Fprintf(&b, "   • Total words: %d\n", stats.Words)
		fmt.Fprintf(&b, "   • Average confidence: %.1f%%\n", stats.AvgConfidence*100)
		if opts.BreathMarking && stats.TotalPauses > 0 {
			fmt.Fprintf(&b, "   • Short pauses (•): %d\n", stats.ShortPauses)
			fmt.Fprintf(&b, "   • Long pauses (••): %d\n", stats.LongPauses)
			fmt.Fprintf(&b, "   • Paragraph breaks: %d\n", stats.Paragraphs)
			fmt.Fprintf(&b, "   • Detected pauses: %d\n", stats.TotalPauses)
			if stats.WordsPerMinute > 0 {
				fmt.Fprintf(&b, "   • Speaking rate: %.0f words/min\n", stats.WordsPerMinute)
				fmt.Fprintf(&b, "   • Pause share: %.1f%%\n", stats.PausePercentage)
			}
		}
	}
	return b.String()
}
