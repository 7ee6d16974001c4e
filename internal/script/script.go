// Package script models the timed-script format that flows through the
// dubbing pipeline: UTF-8 text where each non-blank line begins with a
// [HH:MM:SS] marker followed by either prose or a bracketed pause marker.
//
// Translation and chunk reassembly must preserve the timestamp sequence
// bit-exactly. ParseLine and FormatTimestamp form an exact round-trip for
// well-formed lines so that callers can verify preservation with Timestamps.
package script

import (
	"errors"
	"fmt"
	"strings"
)

// PauseKind classifies a bracketed pause marker that carries no prose of
// its own. The synthesizer converts these into silence; the translator must
// carry them through 1:1.
type PauseKind int

const (
	// PauseNone means the segment carries prose, not a pause marker.
	PauseNone PauseKind = iota

	// PauseBreath is a breathing pause ([breath] / [levegővétel]).
	PauseBreath

	// PauseShort is a short pause ([short pause] / [rövid szünet]).
	PauseShort

	// PauseLong is a long pause ([long pause] / [hosszú szünet]).
	PauseLong

	// PauseTopicChange marks a topic change ([TOPIC CHANGE] / [TÉMAVÁLTÁS]).
	PauseTopicChange
)

// String returns the canonical English marker for the pause kind, without
// brackets. PauseNone yields the empty string.
func (p PauseKind) String() string {
	switch p {
	case PauseBreath:
		return "breath"
	case PauseShort:
		return "short pause"
	case PauseLong:
		return "long pause"
	case PauseTopicChange:
		return "TOPIC CHANGE"
	}
	return ""
}

// pauseMarkers maps every recognised bracketed marker (canonical English
// plus the Hungarian originals) to its kind.
var pauseMarkers = map[string]PauseKind{
	"[breath]":        PauseBreath,
	"[short pause]":   PauseShort,
	"[long pause]":    PauseLong,
	"[TOPIC CHANGE]":  PauseTopicChange,
	"[levegővétel]":   PauseBreath,
	"[rövid szünet]":  PauseShort,
	"[hosszú szünet]": PauseLong,
	"[TÉMAVÁLTÁS]":    PauseTopicChange,
}

// Segment is one timestamped line of a timed script.
type Segment struct {
	// Start is the segment start time in whole seconds from the beginning
	// of the recording.
	Start int

	// Text is the prose after the timestamp. Empty when Pause is set.
	Text string

	// Pause is the recognised pause marker kind, or PauseNone for prose.
	Pause PauseKind
}

// Script is an ordered sequence of timestamped segments parsed from a
// timed-script document.
type Script struct {
	Segments []Segment
}

// ErrBadTimestamp is returned when a line starts with '[' followed by a
// digit but does not form a valid [HH:MM:SS] marker.
var ErrBadTimestamp = errors.New("script: malformed timestamp")

// ErrNotMonotonic is returned by Parse when timestamps decrease.
var ErrNotMonotonic = errors.New("script: timestamps are not monotonically non-decreasing")

// ParseLine extracts the leading [HH:MM:SS] timestamp from a line.
// It returns the start time in seconds, the remainder of the line with
// leading whitespace trimmed, and whether a timestamp was present.
//
// Lines that do not begin with '[' followed by an ASCII digit are reported
// as having no timestamp. A line that looks like a timestamp but violates
// the format (mm ≥ 60, ss ≥ 60, non-ASCII digits, missing ']') returns
// ErrBadTimestamp.
func ParseLine(line string) (seconds int, remainder string, ok bool, err error) {
	if len(line) < 2 || line[0] != '[' || !isDigit(line[1]) {
		return 0, line, false, nil
	}

	end := strings.IndexByte(line, ']')
	if end < 0 {
		return 0, "", false, fmt.Errorf("%w: missing ']' in %q", ErrBadTimestamp, truncate(line, 32))
	}

	body := line[1:end]
	parts := strings.Split(body, ":")
	if len(parts) != 3 {
		return 0, "", false, fmt.Errorf("%w: %q", ErrBadTimestamp, body)
	}

	var hms [3]int
	for i, p := range parts {
		if p == "" || len(p) > 2 && i > 0 {
			return 0, "", false, fmt.Errorf("%w: %q", ErrBadTimestamp, body)
		}
		n := 0
		for _, c := range []byte(p) {
			if !isDigit(c) {
				return 0, "", false, fmt.Errorf("%w: non-digit in %q", ErrBadTimestamp, body)
			}
			n = n*10 + int(c-'0')
		}
		hms[i] = n
	}
	if hms[1] >= 60 || hms[2] >= 60 {
		return 0, "", false, fmt.Errorf("%w: out-of-range field in %q", ErrBadTimestamp, body)
	}

	seconds = hms[0]*3600 + hms[1]*60 + hms[2]
	remainder = strings.TrimLeft(line[end+1:], " \t")
	return seconds, remainder, true, nil
}

// FormatTimestamp renders seconds as a [HH:MM:SS] marker. It is the exact
// inverse of ParseLine for canonical two-digit fields.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("[%02d:%02d:%02d]", seconds/3600, seconds/60%60, seconds%60)
}

// Parse parses a whole timed-script document into a Script. Blank lines are
// paragraph separators and produce no segment. Lines without a timestamp
// (e.g. preamble headers) are skipped. Timestamps must be monotonically
// non-decreasing; Parse returns ErrNotMonotonic otherwise.
func Parse(text string) (*Script, error) {
	s := &Script{}
	last := -1
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		start, rest, ok, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if start < last {
			return nil, fmt.Errorf("%w: %s after %s",
				ErrNotMonotonic, FormatTimestamp(start), FormatTimestamp(last))
		}
		last = start

		seg := Segment{Start: start}
		if kind, isPause := pauseMarkers[rest]; isPause {
			seg.Pause = kind
		} else {
			seg.Text = rest
		}
		s.Segments = append(s.Segments, seg)
	}
	return s, nil
}

// Spoken returns the segments that carry prose (pause markers and empty
// lines removed), in order.
func (s *Script) Spoken() []Segment {
	out := make([]Segment, 0, len(s.Segments))
	for _, seg := range s.Segments {
		if seg.Pause == PauseNone && strings.TrimSpace(seg.Text) != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Timestamps returns every [HH:MM:SS] token that occurs in text, in
// document order. It operates on raw text rather than a parsed Script so
// that callers can compare timestamp multisets across transforms that may
// otherwise perturb the document (translation, chunk reassembly).
func Timestamps(text string) []string {
	var out []string
	for i := 0; i+6 < len(text); i++ {
		if text[i] != '[' || !isDigit(text[i+1]) {
			continue
		}
		if _, _, ok, err := ParseLine(text[i:]); ok && err == nil {
			end := strings.IndexByte(text[i:], ']')
			out = append(out, text[i:i+end+1])
			i += end
		}
	}
	return out
}

// SameTimestamps reports whether a and b contain exactly the same
// timestamp sequence (order-sensitive multiset equality).
func SameTimestamps(a, b string) bool {
	ta, tb := Timestamps(a), Timestamps(b)
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

// WordCount counts whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
