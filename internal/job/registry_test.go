package job

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/feherm/szinkron/internal/apperrors"
)

func TestRegistryCreateAssignsHexID(t *testing.T) {
	r := NewRegistry()
	j := r.Create(Request{URL: "https://example.com/a"})
	if len(j.ID) != 32 {
		t.Errorf("ID %q should be 32 hex chars", j.ID)
	}
	for _, c := range j.ID {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("ID %q contains non-hex character %q", j.ID, c)
		}
	}
	if j.Status != StatusPending {
		t.Errorf("new job status = %s", j.Status)
	}

	got, err := r.Get(j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != j {
		t.Error("Get returned a different job")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("deadbeef")
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindNotFound {
		t.Errorf("kind = %q, want not_found", kind)
	}
}

func TestRegistryListNewestFirst(t *testing.T) {
	r := NewRegistry()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	var ids []string
	for range 5 {
		ids = append(ids, r.Create(Request{URL: "https://example.com"}).ID)
	}

	jobs, total := r.List(0, 0)
	if total != 5 || len(jobs) != 5 {
		t.Fatalf("total = %d, len = %d", total, len(jobs))
	}
	for i, j := range jobs {
		if want := ids[len(ids)-1-i]; j.ID != want {
			t.Fatalf("position %d = %s, want %s", i, j.ID, want)
		}
	}

	page, total := r.List(2, 1)
	if total != 5 {
		t.Errorf("paged total = %d", total)
	}
	if len(page) != 2 || page[0].ID != ids[3] || page[1].ID != ids[2] {
		t.Errorf("page = %v", page)
	}

	empty, _ := r.List(10, 99)
	if len(empty) != 0 {
		t.Errorf("offset past the end should be empty, got %d", len(empty))
	}
}

func TestRegistryDelete(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()
	j := r.Create(Request{URL: "https://example.com"})

	file := filepath.Join(dir, j.ID+"_transcript.txt")
	if err := os.WriteFile(file, []byte("script"), 0o644); err != nil {
		t.Fatal(err)
	}
	j.mu.Lock()
	j.Status = StatusCompleted
	j.Transcript = &TranscriptResult{File: file}
	j.mu.Unlock()

	if err := r.Delete(j.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(file); !errors.Is(err, os.ErrNotExist) {
		t.Error("delete should remove result files")
	}
	if _, err := r.Get(j.ID); err == nil {
		t.Error("job should be gone after delete")
	}
}

func TestRegistryDeleteRunningConflicts(t *testing.T) {
	r := NewRegistry()
	j := r.Create(Request{URL: "https://example.com"})
	j.mu.Lock()
	j.Status = StatusTranscribing
	j.mu.Unlock()

	err := r.Delete(j.ID)
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindConflict {
		t.Errorf("kind = %q, want conflict", kind)
	}
}

func TestFinalizedTranscripts(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "aaaa_transcript.txt")
	newer := filepath.Join(dir, "bbbb_transcript.txt")
	for _, f := range []string{older, newer} {
		if err := os.WriteFile(f, []byte("script"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}
	// Unrelated files are not transcripts.
	if err := os.WriteFile(filepath.Join(dir, "cccc_audio.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := FinalizedTranscripts(dir)
	if err != nil {
		t.Fatalf("FinalizedTranscripts: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len = %d, want 2", len(files))
	}
	if files[0].Path != newer || files[1].Path != older {
		t.Errorf("order = %s, %s", files[0].Path, files[1].Path)
	}
}
