package gemini

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/feherm/szinkron/internal/apperrors"
)

func TestExtractText(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		if _, err := extractText(nil); err == nil {
			t.Fatal("expected error for nil response")
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		if _, err := extractText(&genai.GenerateContentResponse{}); err == nil {
			t.Fatal("expected error for empty candidates")
		}
	})

	t.Run("skips non-text parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{
					genai.Blob{MIMEType: "application/octet-stream", Data: []byte{0x01}},
					genai.Text("[00:00:00] Szia."),
				}}},
			},
		}
		got, err := extractText(resp)
		if err != nil {
			t.Fatalf("extractText: %v", err)
		}
		if got != "[00:00:00] Szia." {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("concatenates text parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{
					genai.Text("one "),
					genai.Text("two"),
				}}},
			},
		}
		got, err := extractText(resp)
		if err != nil {
			t.Fatalf("extractText: %v", err)
		}
		if got != "one two" {
			t.Fatalf("got %q", got)
		}
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		code int
		want apperrors.Kind
	}{
		{"bad request", 400, apperrors.KindBadRequest},
		{"unauthorized", 401, apperrors.KindAuth},
		{"forbidden", 403, apperrors.KindAuth},
		{"not found", 404, apperrors.KindBadRequest},
		{"rate limited", 429, apperrors.KindRateLimit},
		{"server error", 500, apperrors.KindTransient},
		{"unavailable", 503, apperrors.KindTransient},
		{"teapot", 418, apperrors.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(&googleapi.Error{Code: tt.code})
			kind, ok := apperrors.KindOf(err)
			if !ok || kind != tt.want {
				t.Fatalf("kind = (%v, %v), want %v", kind, ok, tt.want)
			}
		})
	}

	t.Run("network error is transient", func(t *testing.T) {
		err := classifyError(errors.New("dial tcp: connection refused"))
		kind, _ := apperrors.KindOf(err)
		if kind != apperrors.KindTransient {
			t.Fatalf("kind = %v, want transient", kind)
		}
	})

	t.Run("nil passthrough", func(t *testing.T) {
		if classifyError(nil) != nil {
			t.Fatal("classifyError(nil) should be nil")
		}
	})
}
