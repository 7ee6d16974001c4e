package app

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/feherm/szinkron/internal/job"
	"github.com/feherm/szinkron/internal/observe"
)

// stageClock turns job progress events into stage duration histograms
// and terminal-state counters. It is the orchestrator's progress
// listener.
type stageClock struct {
	mu      sync.Mutex
	metrics *observe.Metrics
	running map[string]stageSpan
	done    map[string]bool
	now     func() time.Time
}

type stageSpan struct {
	status job.Status
	since  time.Time
}

func newStageClock(m *observe.Metrics) *stageClock {
	return &stageClock{
		metrics: m,
		running: make(map[string]stageSpan),
		done:    make(map[string]bool),
		now:     time.Now,
	}
}

// observe implements job.Listener. Calls are already serialized per job
// by the progress reporter.
func (c *stageClock) observe(j *job.Job, status job.Status, _ int) {
	ctx := context.Background()

	c.mu.Lock()
	prev, tracked := c.running[j.ID]
	changed := tracked && prev.status != status
	switch {
	case status.Terminal():
		delete(c.running, j.ID)
	case !tracked || changed:
		c.running[j.ID] = stageSpan{status: status, since: c.now()}
	}
	finished := status.Terminal() && !c.done[j.ID]
	if finished {
		c.done[j.ID] = true
	}
	c.mu.Unlock()

	if changed {
		c.recordStage(ctx, prev.status, c.now().Sub(prev.since))
	}
	if finished {
		var spent float64
		if status == job.StatusCompleted {
			spent = j.Snapshot().ActualCost.Total
		}
		c.metrics.RecordJobFinished(ctx, string(status), spent)
		c.metrics.ActiveJobs.Add(ctx, -1)
	}
}

func (c *stageClock) recordStage(ctx context.Context, status job.Status, d time.Duration) {
	var h metric.Float64Histogram
	switch status {
	case job.StatusTranscribing:
		h = c.metrics.TranscriptionDuration
	case job.StatusTranslating:
		h = c.metrics.TranslationDuration
	case job.StatusSynthesizing:
		h = c.metrics.SynthesisDuration
	case job.StatusMuxing:
		h = c.metrics.MuxingDuration
	}
	if h != nil {
		h.Record(ctx, d.Seconds())
	}
}
