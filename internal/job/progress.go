package job

import "sync"

// stageRange maps a running status to its slice of the global progress
// scale. Disabled stages are skipped, so progress jumps over their range.
type stageRange struct{ lo, hi int }

var stageRanges = map[Status]stageRange{
	StatusTranscribing: {0, 25},
	StatusTranslating:  {25, 50},
	StatusSynthesizing: {50, 75},
	StatusMuxing:       {75, 95},
}

// finalizePct is where the pipeline sits while results are written out.
const finalizePct = 95

// Listener observes job progress updates. Calls are serialized.
type Listener func(j *Job, status Status, pct int)

// reporter turns per-stage local progress into the job's global
// percentage. The global value never decreases, even when stage code
// reports out of order.
type reporter struct {
	mu       sync.Mutex
	job      *Job
	listener Listener
}

func newReporter(j *Job, l Listener) *reporter {
	return &reporter{job: j, listener: l}
}

// report records stage-local progress (0..100) within the stage's global
// range and notifies the listener.
func (r *reporter) report(status Status, localPct int) {
	rng, ok := stageRanges[status]
	if !ok {
		rng = stageRange{finalizePct, 100}
	}
	if localPct < 0 {
		localPct = 0
	}
	if localPct > 100 {
		localPct = 100
	}
	global := rng.lo + (rng.hi-rng.lo)*localPct/100

	r.mu.Lock()
	defer r.mu.Unlock()

	r.job.mu.Lock()
	if global < r.job.Progress {
		global = r.job.Progress
	}
	r.job.Progress = global
	r.job.mu.Unlock()

	if r.listener != nil {
		r.listener(r.job, status, global)
	}
}

// notify emits a status event at the job's current progress without
// moving it. Terminal transitions use this so observers see FAILED and
// CANCELLED outcomes too.
func (r *reporter) notify(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return
	}
	r.job.mu.Lock()
	pct := r.job.Progress
	r.job.mu.Unlock()
	r.listener(r.job, status, pct)
}
