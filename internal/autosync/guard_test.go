package autosync

import (
	"context"
	"testing"

	"github.com/cserp440/couch-context/internal/importers"
)

type fakeImporter struct {
	name  string
	runs  int
	stats importers.Stats
}

func (f *fakeImporter) Name() string { return f.name }

func (f *fakeImporter) Run(_ context.Context, _ string) importers.Stats {
	f.runs++
	return f.stats
}

func testJob(imp *fakeImporter) Job {
	return Job{Source: imp.name, Path: "/tmp/" + imp.name, ProjectID: "default", Importer: imp}
}

func TestRunStartupDisabled(t *testing.T) {
	imp := &fakeImporter{name: "claude-code"}
	out := RunStartup(context.Background(), false, testJob(imp), nil)
	if out.Status != "disabled" || out.Source != "claude-code" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if imp.runs != 0 {
		t.Fatal("disabled sources must not run")
	}
}

func TestRunStartupReportsStats(t *testing.T) {
	imp := &fakeImporter{name: "codex", stats: importers.Stats{SessionsImported: 2, MessagesImported: 4}}
	out := RunStartup(context.Background(), true, testJob(imp), nil)
	if out.Status != "ok" || out.Path != "/tmp/codex" || out.ProjectID != "default" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if out.Stats.SessionsImported != 2 {
		t.Fatalf("stats lost: %+v", out.Stats)
	}
}

func TestRunStartupSurfacesImporterError(t *testing.T) {
	imp := &fakeImporter{name: "claude-code", stats: importers.Stats{Error: "Claude directory not found"}}
	out := RunStartup(context.Background(), true, testJob(imp), nil)
	if out.Status != "error" || out.Error == "" {
		t.Fatalf("importer errors should surface: %+v", out)
	}
}

func TestGuardDisabled(t *testing.T) {
	g := NewGuard(Options{Enabled: false})
	if out := g.MaybeSync(context.Background(), false); out.Status != "disabled" {
		t.Fatalf("unexpected status: %+v", out)
	}
}

func TestGuardObeysCooldown(t *testing.T) {
	clock := 100.0
	imp := &fakeImporter{name: "codex"}
	g := NewGuard(Options{
		Enabled:         true,
		IntervalSeconds: 60,
		Jobs:            []Job{testJob(imp)},
		Now:             func() float64 { return clock },
	})

	if out := g.MaybeSync(context.Background(), false); out.Status != "ok" {
		t.Fatalf("first sync should run: %+v", out)
	}
	clock = 130
	out := g.MaybeSync(context.Background(), false)
	if out.Status != "skipped" || out.Reason != "cooldown" {
		t.Fatalf("cooldown should skip: %+v", out)
	}
	clock = 165
	if out := g.MaybeSync(context.Background(), false); out.Status != "ok" {
		t.Fatalf("cooldown expiry should run: %+v", out)
	}
	if imp.runs != 2 {
		t.Fatalf("expected 2 runs, got %d", imp.runs)
	}
}

func TestGuardForceBypassesCooldown(t *testing.T) {
	clock := 100.0
	imp := &fakeImporter{name: "codex"}
	g := NewGuard(Options{
		Enabled:         true,
		IntervalSeconds: 60,
		Jobs:            []Job{testJob(imp)},
		Now:             func() float64 { return clock },
	})
	g.MaybeSync(context.Background(), false)
	clock = 120
	if out := g.MaybeSync(context.Background(), true); out.Status != "ok" {
		t.Fatalf("force should bypass cooldown: %+v", out)
	}
	if imp.runs != 2 {
		t.Fatalf("expected 2 runs, got %d", imp.runs)
	}
}

func TestGuardErrorNeverBlocksLaterRuns(t *testing.T) {
	clock := 100.0
	failing := &fakeImporter{name: "claude-code", stats: importers.Stats{Error: "boom"}}
	healthy := &fakeImporter{name: "codex", stats: importers.Stats{SessionsImported: 1}}
	g := NewGuard(Options{
		Enabled:         true,
		IntervalSeconds: 60,
		Jobs:            []Job{testJob(failing), testJob(healthy)},
		Now:             func() float64 { return clock },
	})
	out := g.MaybeSync(context.Background(), false)
	if out.Status != "ok" || len(out.Results) != 2 {
		t.Fatalf("sync should report both sources: %+v", out)
	}
	if out.Results[0].Status != "error" || out.Results[1].Status != "ok" {
		t.Fatalf("per-source statuses wrong: %+v", out.Results)
	}
}
