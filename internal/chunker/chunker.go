// Package chunker splits long timed-script documents into overlapping
// character-bounded chunks for translation, and reassembles the translated
// pieces back into a single document.
//
// Splitting prefers sentence boundaries (then paragraph breaks) inside a
// trailing search window so that no chunk ends mid-sentence. Reassembly
// deduplicates the overlap by dropping translated lines whose timestamps
// were already emitted by an earlier chunk.
package chunker

import (
	"strings"

	"github.com/feherm/szinkron/internal/script"
)

const (
	// MaxSinglePass is the largest document (in runes) translated in one
	// request. Anything longer goes through Split.
	MaxSinglePass = 5000

	// ChunkSize is the target chunk length in runes.
	ChunkSize = 4000

	// Overlap is how many runes of the previous chunk are repeated at the
	// start of the next one, giving the translator continuity context.
	Overlap = 200

	// MaxChunks caps how many chunks a single document may produce.
	MaxChunks = 20

	// boundaryWindow is how far back from the cut point Split searches for
	// a sentence end or paragraph break.
	boundaryWindow = 300
)

// Chunk is one translation unit produced by Split.
type Chunk struct {
	Index int
	Text  string
}

// NeedsChunking reports whether text exceeds the single-pass limit.
func NeedsChunking(text string) bool {
	return len([]rune(text)) > MaxSinglePass
}

// Split divides text into at most MaxChunks overlapping chunks of roughly
// ChunkSize runes each. Cut points are moved backwards (up to
// boundaryWindow runes) to the nearest sentence terminator or paragraph
// break so chunks end on natural boundaries. Documents within
// MaxSinglePass are returned as a single chunk.
func Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) <= MaxSinglePass {
		return []Chunk{{Index: 0, Text: text}}
	}

	// With a hard cap on chunk count, very long documents get
	// proportionally larger chunks rather than being truncated.
	size := ChunkSize
	if need := (len(runes) + ChunkSize - 1) / ChunkSize; need > MaxChunks {
		size = (len(runes) + MaxChunks - 1) / MaxChunks
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) && len(chunks) < MaxChunks {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = boundary(runes, end)
		}

		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[start:end])})
		if end >= len(runes) {
			break
		}

		start = end - Overlap
		if start < 0 {
			start = 0
		}
		// Begin the next chunk on a line start inside the overlap so the
		// translator never sees a torn timestamp marker.
		start = lineStart(runes, start, end)
	}
	return chunks
}

// boundary moves a prospective cut point at end back to the nearest
// sentence terminator or paragraph break within boundaryWindow runes.
// If none is found the original position is kept.
func boundary(runes []rune, end int) int {
	low := end - boundaryWindow
	if low < 0 {
		low = 0
	}
	for i := end - 1; i >= low; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i + 1
		}
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return end
}

// lineStart advances pos to the first rune after the next '\n', staying
// strictly before limit. This keeps chunk starts aligned with line
// boundaries of the timed script.
func lineStart(runes []rune, pos, limit int) int {
	for i := pos; i < limit-1; i++ {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	return pos
}

// noisePrefixes marks decoration lines some models prepend to their
// output. Reassemble drops lines starting with any of these.
var noisePrefixes = []string{"📹", "📅", "🤖", "=", "📊"}

// Reassemble merges translated chunk texts back into one document.
// It walks the chunks in order, skipping decoration lines and any line
// whose leading timestamp was already emitted by a previous chunk, which
// removes the Overlap duplication.
func Reassemble(translated []string) string {
	var b strings.Builder
	seen := make(map[string]bool)

	for _, chunk := range translated {
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if hasNoisePrefix(trimmed) {
				continue
			}
			sec, _, ok, err := script.ParseLine(trimmed)
			if ok && err == nil {
				key := script.FormatTimestamp(sec) + "|" + trimmed
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			b.WriteString(trimmed)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func hasNoisePrefix(line string) bool {
	for _, p := range noisePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
