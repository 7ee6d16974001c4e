package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/internal/subtitle"
	"github.com/feherm/szinkron/internal/translate"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

// Request is a dubbing job submission. Zero values give a
// transcription-only run; each later stage is opt-in.
type Request struct {
	// URL is the source video. Required.
	URL string `json:"url"`

	// TestMode limits downloads and estimates to the first minute of the
	// source, keeping exploratory runs cheap.
	TestMode bool `json:"test_mode"`

	// Transcription options.
	BreathDetection  bool   `json:"breath_detection"`
	UsePostprocess   bool   `json:"use_postprocess"`
	PostprocessModel string `json:"postprocess_model"`

	// Translation options.
	EnableTranslation  bool   `json:"enable_translation"`
	TargetLanguage     string `json:"target_language"`
	TranslationContext string `json:"translation_context"`
	TargetAudience     string `json:"target_audience"`
	DesiredTone        string `json:"desired_tone"`

	// Synthesis options.
	EnableSynthesis bool   `json:"enable_synthesis"`
	TTSProvider     string `json:"tts_provider"`
	VoiceID         string `json:"voice_id"`
	AudioQuality    string `json:"audio_quality"`
	SubtitleFormat  string `json:"subtitle_format"`

	// Muxing options.
	EnableMuxing         bool   `json:"enable_video_muxing"`
	VideoFormat          string `json:"video_format"`
	PreserveVideoQuality bool   `json:"preserve_video_quality"`
	PreviewMode          bool   `json:"preview_mode"`

	// MaxCostUSD caps the estimated spend; zero means no cap.
	// AbortOnOverrun turns the post-stage budget check from a warning
	// into a hard failure.
	MaxCostUSD     float64 `json:"max_cost_usd"`
	AbortOnOverrun bool    `json:"abort_on_overrun"`
}

// videoFormats the muxer can produce.
var videoFormats = map[string]bool{"mp4": true, "mkv": true, "webm": true, "avi": true}

// Normalize fills defaults and lowercases enumerated fields.
func (r *Request) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.TargetLanguage = strings.TrimSpace(r.TargetLanguage)
	if r.TranslationContext == "" {
		r.TranslationContext = string(translate.ContextCasual)
	}
	if r.AudioQuality == "" {
		r.AudioQuality = string(tts.QualityMedium)
	}
	if r.SubtitleFormat == "" {
		r.SubtitleFormat = string(subtitle.FormatSRT)
	}
	if r.TTSProvider == "" {
		r.TTSProvider = tts.SelectAuto
	}
	if r.VideoFormat == "" {
		r.VideoFormat = "mp4"
	}
	for _, f := range []*string{&r.TranslationContext, &r.AudioQuality, &r.SubtitleFormat, &r.VideoFormat} {
		*f = strings.ToLower(strings.TrimSpace(*f))
	}
}

// Validate checks the submission. Every problem found is reported, joined
// into one validation error.
func (r *Request) Validate() error {
	var errs []error
	if r.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if r.EnableTranslation {
		if r.TargetLanguage == "" {
			errs = append(errs, errors.New("target_language is required when translation is enabled"))
		}
		if !translate.Context(r.TranslationContext).Valid() {
			errs = append(errs, fmt.Errorf("unknown translation_context %q", r.TranslationContext))
		}
	}
	if r.EnableSynthesis {
		if !tts.Quality(r.AudioQuality).Valid() {
			errs = append(errs, fmt.Errorf("unknown audio_quality %q", r.AudioQuality))
		}
		if !subtitle.Format(r.SubtitleFormat).Valid() {
			errs = append(errs, fmt.Errorf("unknown subtitle_format %q", r.SubtitleFormat))
		}
	}
	if r.EnableMuxing {
		if !r.EnableSynthesis {
			errs = append(errs, errors.New("video muxing requires synthesis to be enabled"))
		}
		if !videoFormats[r.VideoFormat] {
			errs = append(errs, fmt.Errorf("unknown video_format %q", r.VideoFormat))
		}
	}
	if r.MaxCostUSD < 0 {
		errs = append(errs, errors.New("max_cost_usd must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	return apperrors.New(apperrors.KindBadRequest, joined.Error(), joined)
}
