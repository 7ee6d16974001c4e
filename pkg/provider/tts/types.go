package tts

import (
	"time"
)

// Quality selects the synthesis fidelity / cost tradeoff for a job.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Valid reports whether q is a recognised quality level.
func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which backend this voice belongs to.
	Provider string

	// Language is the BCP-47 tag of the voice, e.g. "en-US".
	Language string

	// Metadata holds provider-specific voice attributes (gender, accent,
	// category, ...).
	Metadata map[string]string
}

// Segment is one timed line of speech to synthesize.
type Segment struct {
	// Start is when the line begins, relative to the start of the
	// recording.
	Start time.Duration

	// Text is the line to speak.
	Text string
}

// Request carries one dubbed-track synthesis job.
type Request struct {
	// Segments are the timed lines in order. Must be non-empty.
	Segments []Segment

	// VoiceID is the provider-specific voice. Providers translate
	// equivalent voices from other providers via MapVoice before failing.
	VoiceID string

	// Language is the BCP-47 tag of the target language.
	Language string

	// Quality selects the fidelity level. Defaults to QualityMedium.
	Quality Quality

	// TotalDuration is the length of the source recording. The assembled
	// track covers at least this span so the muxer gets audio matching the
	// video.
	TotalDuration time.Duration
}

// Result is an assembled dubbed audio track.
type Result struct {
	// Audio is the encoded track.
	Audio []byte

	// MIME is the container type of Audio: "audio/mpeg" for single-call
	// MP3 output, "audio/wav" for chunk-assembled tracks.
	MIME string

	// Characters is the number of billable characters synthesized.
	Characters int

	// Provider is the backend that produced the track.
	Provider string
}

// wordsPerMinute is the assumed speaking rate for estimating how long a
// line takes to speak when the next segment's start is unknown.
const wordsPerMinute = 150

// EstimateSpeechDuration returns the expected speaking time of text at a
// typical narration pace.
func EstimateSpeechDuration(text string) time.Duration {
	words := 0
	inWord := false
	for _, r := range text {
		space := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !space && !inWord {
			words++
		}
		inWord = !space
	}
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / wordsPerMinute * float64(time.Minute))
}

// segmentGap is the margin kept before the next segment's start when
// bounding a segment's end.
const segmentGap = 100 * time.Millisecond

// SegmentEnd computes when a segment should stop: the estimated speech
// duration, capped so it ends segmentGap before the next segment starts.
// nextStart < 0 means there is no following segment.
func SegmentEnd(seg Segment, nextStart time.Duration) time.Duration {
	end := seg.Start + EstimateSpeechDuration(seg.Text)
	if nextStart >= 0 && nextStart-segmentGap > seg.Start && end > nextStart-segmentGap {
		end = nextStart - segmentGap
	}
	return end
}
