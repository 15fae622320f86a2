// Package autosync keeps imported chat history fresh: a full pass on
// startup plus a throttled refresh ahead of memory queries.
package autosync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/importers"
)

// Job binds an importer to the path and project it syncs.
type Job struct {
	Source    string
	Path      string
	ProjectID string
	Importer  importers.Importer
}

// SourceResult reports one importer pass.
type SourceResult struct {
	Status    string           `json:"status"`
	Source    string           `json:"source"`
	Path      string           `json:"path,omitempty"`
	ProjectID string           `json:"project_id,omitempty"`
	Stats     *importers.Stats `json:"stats,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Result reports a guarded sync attempt.
type Result struct {
	Status  string         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Results []SourceResult `json:"results,omitempty"`
}

// RunStartup executes one import pass for a source. Disabled sources
// report so without touching the importer.
func RunStartup(ctx context.Context, enabled bool, job Job, log *zap.Logger) SourceResult {
	if log == nil {
		log = zap.NewNop()
	}
	if !enabled {
		return SourceResult{Status: "disabled", Source: job.Source}
	}
	return runJob(ctx, job, log)
}

func runJob(ctx context.Context, job Job, log *zap.Logger) SourceResult {
	stats := job.Importer.Run(ctx, job.Path)
	result := SourceResult{
		Status:    "ok",
		Source:    job.Source,
		Path:      job.Path,
		ProjectID: job.ProjectID,
		Stats:     &stats,
	}
	if stats.Error != "" {
		result.Status = "error"
		result.Error = stats.Error
		log.Warn("auto-sync failed", zap.String("source", job.Source), zap.String("error", stats.Error))
	}
	return result
}

// Guard throttles query-time refreshes to one pass per cooldown window.
// A sync is never required for a query to proceed; callers treat every
// outcome as advisory.
type Guard struct {
	enabled  bool
	interval float64
	jobs     []Job
	log      *zap.Logger

	// now returns monotonic seconds; injectable for tests.
	now func() float64

	mu        sync.Mutex
	lastSync  float64
	hasSynced bool
}

// Options tune a Guard.
type Options struct {
	Enabled         bool
	IntervalSeconds int
	Jobs            []Job
	Now             func() float64
	Logger          *zap.Logger
}

func NewGuard(opts Options) *Guard {
	g := &Guard{
		enabled:  opts.Enabled,
		interval: float64(opts.IntervalSeconds),
		jobs:     opts.Jobs,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if g.now == nil {
		start := time.Now()
		g.now = func() float64 { return time.Since(start).Seconds() }
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	return g
}

// MaybeSync refreshes imported history unless a pass ran within the
// cooldown window. Force bypasses the window but still serializes
// concurrent passes.
func (g *Guard) MaybeSync(ctx context.Context, force bool) Result {
	if !g.enabled && !force {
		return Result{Status: "disabled"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !force && g.hasSynced && now-g.lastSync < g.interval {
		return Result{Status: "skipped", Reason: "cooldown"}
	}

	results := make([]SourceResult, 0, len(g.jobs))
	for _, job := range g.jobs {
		results = append(results, runJob(ctx, job, g.log))
	}
	g.lastSync = now
	g.hasSynced = true
	return Result{Status: "ok", Results: results}
}
