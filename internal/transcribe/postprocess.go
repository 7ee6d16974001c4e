package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/feherm/szinkron/pkg/provider/textgen"
)

// postprocessLimit caps how much transcript is sent for reformatting.
const postprocessLimit = 5000

// postprocess asks the text-generation provider to reformat the raw
// transcript body into script style with explicit pause lines.
func (t *Transcriber) postprocess(ctx context.Context, body string) (string, error) {
	limited := body
	truncated := false
	if len(limited) > postprocessLimit {
		limited = limited[:postprocessLimit]
		truncated = true
	}

	resp, err := t.post.Generate(ctx, textgenRequest(limited))
	if err != nil {
		slog.Warn("transcript postprocessing failed, keeping raw formatting", "error", err)
		return "", err
	}
	out := strings.TrimSpace(resp.Text)
	if out == "" {
		return "", fmt.Errorf("transcribe: postprocessor returned empty text")
	}
	if truncated {
		out += fmt.Sprintf("\n\n[NOTE: full transcript is %d characters, only the first %d were reformatted]",
			len(body), postprocessLimit)
	}
	return out, nil
}

func textgenRequest(transcript string) textgen.Request {
	return textgen.Request{
		Prompt:          buildFormattingPrompt(transcript),
		Temperature:     0.3,
		TopP:            0.8,
		MaxOutputTokens: 8192,
	}
}

// buildFormattingPrompt renders the script-formatting instructions.
func buildFormattingPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Reformat this video transcript into a professional SCRIPT/SUBTITLE style.\n\n")
	b.WriteString("ORIGINAL TRANSCRIPT:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nFORMATTING RULES:\n")
	b.WriteString("1. Every sentence or clause on its own line with a [HH:MM:SS] timestamp.\n")
	b.WriteString("2. At most 12-15 words per line (average speaking rate: 140 words/min).\n")
	b.WriteString("3. ALWAYS break the line at sentence ends (. ! ?).\n")
	b.WriteString("4. Mark every significant pause on its own timestamped line:\n")
	b.WriteString("   [HH:MM:SS] [short pause] = roughly 0.5-1s of silence\n")
	b.WriteString("   [HH:MM:SS] [breath] = roughly 1-2s pause\n")
	b.WriteString("   [HH:MM:SS] [long pause] = roughly 2-3s pause\n")
	b.WriteString("   [HH:MM:SS] [TOPIC CHANGE] = 3s+ pause or a new topic\n")
	b.WriteString("5. Follow the natural speech rhythm.\n")
	b.WriteString("6. Break at conjunctions once a line reaches 8+ words.\n")
	b.WriteString("7. Break at commas when the sentence is already long.\n")
	b.WriteString("8. Estimate the timestamps realistically (140 words/min is about 2.3 words/s).\n\n")
	b.WriteString("IMPORTANT: keep sentences natural, mark every audible pause, and keep timestamps realistic.\n\n")
	b.WriteString("FORMATTED SCRIPT:")
	return b.String()
}
