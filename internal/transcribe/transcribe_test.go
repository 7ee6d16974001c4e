package transcribe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/feherm/szinkron/pkg/provider/stt"
	sttmock "github.com/feherm/szinkron/pkg/provider/stt/mock"
	"github.com/feherm/szinkron/pkg/provider/textgen"
	genmock "github.com/feherm/szinkron/pkg/provider/textgen/mock"
)

func seg(start, end time.Duration, text string) stt.Segment {
	return stt.Segment{Start: start, End: end, Text: text, Confidence: 0.9}
}

// sampleResult has one short pause, one long pause, and one paragraph
// break between four spoken segments.
func sampleResult() *stt.Result {
	return &stt.Result{
		Language: "hu",
		Duration: 30 * time.Second,
		Segments: []stt.Segment{
			seg(0, 2*time.Second, "Jó reggelt mindenkinek"),                    // +0.7s gap: short
			seg(2700*time.Millisecond, 5*time.Second, "kezdjük el a mai napot"), // +2s gap: long
			seg(7*time.Second, 10*time.Second, "Ez az első téma vége"),          // +5s gap: paragraph
			seg(15*time.Second, 18*time.Second, "És itt jön a második téma"),
		},
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		text string
		want pauseKind
	}{
		{"below short threshold", 400 * time.Millisecond, "hello", pauseNone},
		{"short pause", 700 * time.Millisecond, "hello", pauseKindShort},
		{"long pause", 2 * time.Second, "hello", pauseKindLong},
		{"paragraph", 4 * time.Second, "hello", pauseKindParagraph},
		{"sentence end", 1200 * time.Millisecond, "done.", pauseKindSentenceEnd},
		{"sentence end beyond paragraph stays paragraph", 4 * time.Second, "done.", pauseKindParagraph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categorize(tt.gap, tt.text); got != tt.want {
				t.Errorf("categorize(%v, %q) = %v, want %v", tt.gap, tt.text, got, tt.want)
			}
		})
	}
}

func TestSegmentPauses(t *testing.T) {
	spans := segmentPauses(sampleResult().Segments)
	if len(spans) != 4 {
		t.Fatalf("got %d spans", len(spans))
	}
	wantKinds := []pauseKind{pauseKindShort, pauseKindLong, pauseKindParagraph, pauseNone}
	for i, want := range wantKinds {
		if spans[i].Kind != want {
			t.Errorf("span %d kind = %v, want %v", i, spans[i].Kind, want)
		}
	}
	if spans[3].Gap != 0 {
		t.Errorf("final span should have no trailing gap, got %v", spans[3].Gap)
	}
}

func TestTranscribeFormatsBody(t *testing.T) {
	tr := New(&sttmock.Provider{Result: sampleResult()})
	out, err := tr.Transcribe(context.Background(), strings.NewReader("pcm"), "in.flac", Options{
		Title:         "Reggeli üzenet",
		BreathMarking: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if !strings.Contains(out.Text, "📹 Video: Reggeli üzenet") {
		t.Error("preamble missing title line")
	}
	if !strings.Contains(out.Text, "[00:00:00] Jó reggelt mindenkinek •") {
		t.Errorf("short pause glyph missing:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "kezdjük el a mai napot ••") {
		t.Errorf("long pause glyph missing:\n%s", out.Text)
	}
	// The paragraph break restarts timestamping.
	if !strings.Contains(out.Text, "[00:00:15] És itt jön a második téma") {
		t.Errorf("new paragraph should re-emit a timestamp:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "📊 Speech statistics:") {
		t.Error("statistics block missing")
	}
	if !strings.Contains(out.Text, "Short pauses (•): 1") {
		t.Errorf("pause statistics wrong:\n%s", out.Text)
	}
	if out.Language != "hu" {
		t.Errorf("Language = %q", out.Language)
	}
}

func TestTranscribeWithoutBreathMarking(t *testing.T) {
	tr := New(&sttmock.Provider{Result: sampleResult()})
	out, err := tr.Transcribe(context.Background(), strings.NewReader("pcm"), "in.flac", Options{Title: "t"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if strings.Contains(out.Text, "mindenkinek •") || strings.Contains(out.Text, "••") {
		t.Error("glyphs should be absent without breath marking")
	}
	if strings.Contains(out.Text, "Short pauses") {
		t.Error("pause statistics should be absent without breath marking")
	}
}

func TestTranscribeStats(t *testing.T) {
	tr := New(&sttmock.Provider{Result: sampleResult()})
	out, err := tr.Transcribe(context.Background(), strings.NewReader("pcm"), "in.flac", Options{
		Title: "t", BreathMarking: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	st := out.Stats
	if st.ShortPauses != 1 || st.LongPauses != 1 || st.Paragraphs != 1 || st.TotalPauses != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.Words == 0 || st.WordsPerMinute <= 0 {
		t.Errorf("speech dynamics missing: %+v", st)
	}
	if st.AvgConfidence < 0.89 || st.AvgConfidence > 0.91 {
		t.Errorf("AvgConfidence = %v", st.AvgConfidence)
	}
}

func TestTranscribePostprocess(t *testing.T) {
	post := &genmock.Provider{
		ModelName: "gemini-2.0-flash",
		Response:  &textgen.Response{Text: "[00:00:00] Formatted line.\n[00:00:02] [breath]"},
	}
	tr := New(&sttmock.Provider{Result: sampleResult()}, WithPostprocessor(post))

	out, err := tr.Transcribe(context.Background(), strings.NewReader("pcm"), "in.flac", Options{
		Title: "t", Postprocess: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !out.Postprocessed {
		t.Error("Postprocessed should be set")
	}
	if !strings.Contains(out.Text, "🤖 Postprocess: gemini-2.0-flash") {
		t.Error("preamble missing postprocess marker")
	}
	if !strings.Contains(out.Text, "[00:00:00] Formatted line.") {
		t.Error("body should carry the reformatted script")
	}
	if post.CallCount() != 1 {
		t.Errorf("postprocessor called %d times", post.CallCount())
	}
	if req := post.Calls[0].Req; !strings.Contains(req.Prompt, "[TOPIC CHANGE]") {
		t.Error("formatting prompt missing pause vocabulary")
	}
}

func TestTranscribePostprocessFailureKeepsRaw(t *testing.T) {
	post := &genmock.Provider{ModelName: "m", Err: errors.New("region down")}
	tr := New(&sttmock.Provider{Result: sampleResult()}, WithPostprocessor(post))

	out, err := tr.Transcribe(context.Background(), strings.NewReader("pcm"), "in.flac", Options{
		Title: "t", Postprocess: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Postprocessed {
		t.Error("failed postprocess should leave the raw formatting")
	}
	if !strings.Contains(out.Text, "Jó reggelt mindenkinek") {
		t.Error("raw body missing")
	}
}

func TestTranscribeEmptyRecognition(t *testing.T) {
	tr := New(&sttmock.Provider{Result: &stt.Result{}})
	if _, err := tr.Transcribe(context.Background(), strings.NewReader("pcm"), "in.flac", Options{}); err == nil {
		t.Fatal("expected error for empty recognition result")
	}
}

func TestTranscribeProviderError(t *testing.T) {
	tr := New(&sttmock.Provider{Err: errors.New("401")})
	if _, err := tr.Transcribe(context.Background(), strings.NewReader("pcm"), "in.flac", Options{}); err == nil {
		t.Fatal("expected recognition error to propagate")
	}
}
