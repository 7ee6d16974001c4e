package elevenlabs

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/pkg/audio"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		quality tts.Quality
		want    string
	}{
		{tts.QualityLow, "mp3_22050_32"},
		{tts.QualityMedium, "mp3_44100_64"},
		{tts.QualityHigh, "mp3_44100_128"},
		{tts.Quality(""), "mp3_44100_64"},
	}
	for _, tt := range tests {
		if got := outputFormat(tt.quality); got != tt.want {
			t.Errorf("outputFormat(%q) = %q, want %q", tt.quality, got, tt.want)
		}
	}
}

func TestResolveVoice(t *testing.T) {
	if got := resolveVoice("en-US-Neural2-F"); got != "21m00Tcm4TlvDq8ikWAM" {
		t.Errorf("Google voice should map to its ElevenLabs pair, got %q", got)
	}
	if got := resolveVoice("21m00Tcm4TlvDq8ikWAM"); got != "21m00Tcm4TlvDq8ikWAM" {
		t.Errorf("native voice should map to itself, got %q", got)
	}
	if got := resolveVoice("customCloneXYZ"); got != "customCloneXYZ" {
		t.Errorf("unknown voice should pass through, got %q", got)
	}
}

func TestGroupSegments(t *testing.T) {
	t.Run("segment count bound", func(t *testing.T) {
		segs := make([]tts.Segment, 45)
		for i := range segs {
			segs[i] = tts.Segment{Start: time.Duration(i) * time.Second, Text: "hi"}
		}
		groups := groupSegments(segs)
		if len(groups) != 3 {
			t.Fatalf("got %d groups, want 3 (20+20+5)", len(groups))
		}
		if groups[1].start != 20*time.Second {
			t.Errorf("second group start = %v, want 20s", groups[1].start)
		}
	})

	t.Run("char bound", func(t *testing.T) {
		long := strings.Repeat("a", 600)
		segs := []tts.Segment{
			{Start: 0, Text: long},
			{Start: 5 * time.Second, Text: long},
		}
		groups := groupSegments(segs)
		if len(groups) != 2 {
			t.Fatalf("got %d groups, want 2 when chars exceed the bound", len(groups))
		}
	})

	t.Run("joins text within a group", func(t *testing.T) {
		segs := []tts.Segment{
			{Start: 0, Text: "First."},
			{Start: 3 * time.Second, Text: "Second."},
		}
		groups := groupSegments(segs)
		if len(groups) != 1 {
			t.Fatalf("got %d groups, want 1", len(groups))
		}
		if !strings.Contains(groups[0].text, "First.") || !strings.Contains(groups[0].text, "Second.") {
			t.Errorf("group text = %q", groups[0].text)
		}
	})
}

func TestSynthesizeSingleCall(t *testing.T) {
	var gotFormat, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Synthesize(t.Context(), tts.Request{
		Segments: []tts.Segment{
			{Start: 0, Text: "Hello."},
			{Start: 2 * time.Second, Text: "World."},
		},
		VoiceID: "21m00Tcm4TlvDq8ikWAM",
		Quality: tts.QualityHigh,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.MIME != "audio/mpeg" {
		t.Errorf("MIME = %q, want audio/mpeg", res.MIME)
	}
	if !bytes.Equal(res.Audio, []byte("mp3-bytes")) {
		t.Error("audio bytes not passed through")
	}
	if res.Characters != len("Hello.")+len("World.") {
		t.Errorf("Characters = %d", res.Characters)
	}
	if gotFormat != "mp3_44100_128" {
		t.Errorf("output_format = %q", gotFormat)
	}
	if gotKey != "test-key" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
}

func TestSynthesizeGroupedProducesAlignedWAV(t *testing.T) {
	// 60 one-character segments force the grouped path.
	segs := make([]tts.Segment, 60)
	for i := range segs {
		segs[i] = tts.Segment{Start: time.Duration(i) * time.Second, Text: "x"}
	}

	pcmChunk := make([]byte, 44100*2/10) // 100ms of signal
	for i := 0; i+1 < len(pcmChunk); i += 2 {
		pcmChunk[i] = 0x10
	}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("output_format"); got != "pcm_44100" {
			t.Errorf("grouped mode output_format = %q, want pcm_44100", got)
		}
		calls++
		w.Write(pcmChunk)
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Synthesize(t.Context(), tts.Request{
		Segments:      segs,
		VoiceID:       "pNInz6obpgDQGcFmaJgB",
		TotalDuration: 60 * time.Second,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.MIME != "audio/wav" {
		t.Errorf("MIME = %q, want audio/wav", res.MIME)
	}
	if calls != 3 {
		t.Errorf("API calls = %d, want 3 groups of 20", calls)
	}

	pcm, f, err := audio.ReadWAV(bytes.NewReader(res.Audio))
	if err != nil {
		t.Fatalf("result is not a valid WAV: %v", err)
	}
	if f != audio.TrackFormat {
		t.Errorf("track format = %+v", f)
	}
	if f.Duration(len(pcm)) < 60*time.Second {
		t.Errorf("track duration %v shorter than the recording", f.Duration(len(pcm)))
	}
}

func TestSynthesizeErrorClassification(t *testing.T) {
	old := retryBase
	retryBase = time.Millisecond
	defer func() { retryBase = old }()

	tests := []struct {
		status int
		want   apperrors.Kind
	}{
		{401, apperrors.KindAuth},
		{429, apperrors.KindRateLimit},
		{500, apperrors.KindTransient},
		{422, apperrors.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p, _ := New("k", WithBaseURL(srv.URL))
			_, err := p.Synthesize(t.Context(), tts.Request{
				Segments: []tts.Segment{{Text: "hi"}},
				VoiceID:  "21m00Tcm4TlvDq8ikWAM",
			})
			kind, ok := apperrors.KindOf(err)
			if !ok || kind != tt.want {
				t.Fatalf("kind = (%v, %v), want %v", kind, ok, tt.want)
			}
		})
	}
}

func TestValidateVoiceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/voices/21m00Tcm4TlvDq8ikWAM" {
			fmt.Fprint(w, `{"voice_id":"21m00Tcm4TlvDq8ikWAM","name":"Rachel"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))

	// Foreign IDs are mapped before the lookup.
	if err := p.ValidateVoiceID(t.Context(), "en-US-Neural2-F"); err != nil {
		t.Errorf("mapped voice should validate: %v", err)
	}

	err := p.ValidateVoiceID(t.Context(), "bogusVoice")
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindNotFound {
		t.Errorf("kind = (%v, %v), want not_found", kind, ok)
	}
}

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"voices":[
			{"voice_id":"21m00Tcm4TlvDq8ikWAM","name":"Rachel","category":"premade","labels":{"gender":"female"}},
			{"voice_id":"pNInz6obpgDQGcFmaJgB","name":"Adam","category":"premade","labels":{"gender":"male"}}
		]}`)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(t.Context())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].Name != "Rachel" || voices[0].Provider != "elevenlabs" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
	if voices[1].Metadata["gender"] != "male" || voices[1].Metadata["category"] != "premade" {
		t.Errorf("voices[1] metadata = %v", voices[1].Metadata)
	}
}

func TestSynthesizeRetriesTransient(t *testing.T) {
	old := retryBase
	retryBase = time.Millisecond
	defer func() { retryBase = old }()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("mp3data"))
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	res, err := p.Synthesize(t.Context(), tts.Request{
		Segments: []tts.Segment{{Text: "hi"}},
		VoiceID:  "21m00Tcm4TlvDq8ikWAM",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if string(res.Audio) != "mp3data" {
		t.Errorf("audio = %q", res.Audio)
	}
}

func TestSynthesizeDoesNotRetryAuth(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(t.Context(), tts.Request{
		Segments: []tts.Segment{{Text: "hi"}},
		VoiceID:  "21m00Tcm4TlvDq8ikWAM",
	}); err == nil {
		t.Fatal("expected auth error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (auth failures are fail-fast)", calls)
	}
}
