package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feherm/szinkron/internal/apperrors"
)

// Registry is the in-memory job store. Jobs live for the lifetime of the
// process; their result files live under the data directory and outlast
// restarts.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time // test override
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// newID returns a fresh 128-bit random identifier in hex.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create registers a new pending job for req and returns it.
func (r *Registry) Create(req Request) *Job {
	j := &Job{
		ID:        newID(),
		Request:   req,
		Status:    StatusPending,
		CreatedAt: r.now(),
	}
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	return j
}

// Get returns the job with the given id.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound(fmt.Errorf("job %q not found", id))
	}
	return j, nil
}

// List returns a page of jobs ordered newest first, plus the total count
// before paging. limit <= 0 means no limit.
func (r *Registry) List(limit, offset int) ([]Job, int) {
	r.mu.RLock()
	all := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		all = append(all, j)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool {
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})

	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]Job, len(all))
	for i, j := range all {
		out[i] = j.Snapshot()
	}
	return out, total
}

// Delete removes a job from the registry and deletes its files on disk.
// Running jobs cannot be deleted; cancel them first.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if ok && !j.Snapshot().Status.Terminal() && j.Snapshot().Status != StatusPending {
		r.mu.Unlock()
		return apperrors.Conflict(fmt.Errorf("job %q is still running", id))
	}
	delete(r.jobs, id)
	r.mu.Unlock()
	if !ok {
		return apperrors.NotFound(fmt.Errorf("job %q not found", id))
	}

	snap := j.Snapshot()
	for _, f := range resultFiles(&snap) {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("job: removing %s: %w", f, err)
		}
	}
	return nil
}

// resultFiles lists every artifact recorded on the job.
func resultFiles(j *Job) []string {
	var out []string
	if j.Transcript != nil && j.Transcript.File != "" {
		out = append(out, j.Transcript.File)
	}
	if j.Translation != nil && j.Translation.File != "" {
		out = append(out, j.Translation.File)
	}
	if j.Synthesis != nil {
		if j.Synthesis.File != "" {
			out = append(out, j.Synthesis.File)
		}
		if j.Synthesis.Subtitles != "" {
			out = append(out, j.Synthesis.Subtitles)
		}
	}
	if j.Muxing != nil && j.Muxing.File != "" {
		out = append(out, j.Muxing.File)
	}
	return out
}

// TranscriptFile is a finalized transcript found on disk, possibly from a
// previous process run.
type TranscriptFile struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

// FinalizedTranscripts enumerates transcript artifacts under dataDir,
// newest first. Jobs from earlier runs appear here even though the
// in-memory registry no longer knows them.
func FinalizedTranscripts(dataDir string) ([]TranscriptFile, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "*_transcript.txt"))
	if err != nil {
		return nil, fmt.Errorf("job: scanning %s: %w", dataDir, err)
	}
	out := make([]TranscriptFile, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		out = append(out, TranscriptFile{Path: m, Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Modified.After(out[k].Modified) })
	return out, nil
}
