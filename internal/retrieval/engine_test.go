package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cserp440/couch-context/internal/scope"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeBackend serves canned hits and rows, recording every statement so
// tests can assert which tiers actually ran.
type fakeBackend struct {
	bucket      string
	docs        map[string]map[string]any
	textHits    []SearchHit
	vectorHits  []SearchHit
	rows        func(stmt string) []map[string]any
	queryLog    []string
	searchCalls int
}

func (f *fakeBackend) BucketName() string {
	if f.bucket == "" {
		return "coding-memory"
	}
	return f.bucket
}

func (f *fakeBackend) Query(_ context.Context, stmt string, _ map[string]any) ([]map[string]any, error) {
	f.queryLog = append(f.queryLog, stmt)
	if f.rows == nil {
		return nil, nil
	}
	return f.rows(stmt), nil
}

func (f *fakeBackend) SearchText(_ context.Context, _, _ string, _ int) ([]SearchHit, error) {
	f.searchCalls++
	return f.textHits, nil
}

func (f *fakeBackend) SearchVector(_ context.Context, _ string, _ []float32, _ int) ([]SearchHit, error) {
	f.searchCalls++
	return f.vectorHits, nil
}

func (f *fakeBackend) FetchDocument(_ context.Context, id string) (map[string]any, bool) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, false
	}
	clone := make(map[string]any, len(doc))
	for k, v := range doc {
		clone[k] = v
	}
	return clone, true
}

func (f *fakeBackend) queriesMatching(substr string) int {
	n := 0
	for _, q := range f.queryLog {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, back *fakeBackend, emb *fakeEmbedder) *Engine {
	t.Helper()
	return New(back, emb, Options{
		Scope: scope.Defaults{
			DefaultProjectID:    "default",
			CurrentProjectID:    "",
			IncludeAllByDefault: true,
		},
	})
}

func TestDedupeKeepsHighestScore(t *testing.T) {
	items := []Item{
		NewItem("decision::a", 0.3, nil),
		NewItem("decision::a", 0.9, nil),
		NewItem("bug::b", 0.5, nil),
		NewItem("decision::a", 0.7, nil),
	}
	out := Dedupe(items)
	if len(out) != 2 {
		t.Fatalf("deduped to %d items: %+v", len(out), out)
	}
	if out[0].ID != "decision::a" || out[0].Score != 0.9 {
		t.Fatalf("survivor = %s score %v, want decision::a 0.9", out[0].ID, out[0].Score)
	}
	if out[1].ID != "bug::b" {
		t.Fatalf("second = %s", out[1].ID)
	}
}

func TestDedupeStableForEqualScores(t *testing.T) {
	items := []Item{
		NewItem("bug::x", 0.5, nil),
		NewItem("bug::y", 0.5, nil),
		NewItem("bug::z", 0.5, nil),
	}
	out := Dedupe(items)
	for i, want := range []string{"bug::x", "bug::y", "bug::z"} {
		if out[i].ID != want {
			t.Fatalf("order not stable: %+v", out)
		}
	}
}

func TestMatchesScope(t *testing.T) {
	sc := scope.Resolved{ProjectID: "/srv/app", ProjectIDs: []string{"/srv/app", "/srv/lib"}}
	cases := []struct {
		doc  map[string]any
		want bool
	}{
		{map[string]any{"project_id": "/srv/app"}, true},
		{map[string]any{"session_project_id": "/srv/lib"}, true},
		{map[string]any{"project_id": "default", "directory": "/srv/app"}, true},
		{map[string]any{"session_project_id": "default", "session_directory": "/srv/lib"}, true},
		{map[string]any{"project_id": "/srv/other"}, false},
		{map[string]any{}, false},
	}
	for i, tc := range cases {
		if got := MatchesScope(tc.doc, sc); got != tc.want {
			t.Fatalf("case %d: MatchesScope = %v, want %v (%v)", i, got, tc.want, tc.doc)
		}
	}
	if !MatchesScope(map[string]any{}, scope.Resolved{}) {
		t.Fatal("global scope must match everything")
	}
	if MatchesScope(map[string]any{"project_id": "/srv/app"}, scope.Resolved{ProjectIDs: []string{}}) {
		t.Fatal("empty non-nil scope must match nothing")
	}
}

func TestKeywordSearchRejectsEmptyTerms(t *testing.T) {
	back := &fakeBackend{}
	emb := &fakeEmbedder{}
	e := newTestEngine(t, back, emb)

	_, err := e.KeywordSemanticSearch(context.Background(), KeywordSearchParams{
		Terms: []string{"", "   ", "\t"},
	})
	if !errors.Is(err, ErrNoTerms) {
		t.Fatalf("err = %v, want ErrNoTerms", err)
	}
	if len(back.queryLog) != 0 || back.searchCalls != 0 || emb.calls != 0 {
		t.Fatalf("backend touched before validation: queries=%d searches=%d embeds=%d",
			len(back.queryLog), back.searchCalls, emb.calls)
	}
}

func TestSearchMergesVectorAndFTS(t *testing.T) {
	back := &fakeBackend{
		vectorHits: []SearchHit{{ID: "decision::d1", Score: 0.9}},
		textHits:   []SearchHit{{ID: "decision::d1", Score: 0.4}, {ID: "session::s1", Score: 0.6}},
		docs: map[string]map[string]any{
			"decision::d1": {"id": "decision::d1", "type": "decision", "title": "use gocb"},
			"session::s1":  {"id": "session::s1", "type": "session", "title": "setup"},
		},
	}
	e := newTestEngine(t, back, &fakeEmbedder{})

	resp, err := e.Search(context.Background(), SearchParams{Query: "gocb", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.ResultCount != 2 {
		t.Fatalf("result_count = %d: %+v", resp.ResultCount, resp.Results)
	}
	if resp.Results[0].ID != "decision::d1" || resp.Results[0].Score != 0.9 {
		t.Fatalf("top result = %s score %v", resp.Results[0].ID, resp.Results[0].Score)
	}
	if !resp.IncludeAllProjects {
		t.Fatal("default scope should be global")
	}
}

func TestSearchSurvivesEmbeddingFailure(t *testing.T) {
	back := &fakeBackend{
		textHits: []SearchHit{{ID: "session::s1", Score: 0.6}},
		docs: map[string]map[string]any{
			"session::s1": {"id": "session::s1", "type": "session"},
		},
	}
	e := newTestEngine(t, back, &fakeEmbedder{err: errors.New("provider down")})

	resp, err := e.Search(context.Background(), SearchParams{Query: "anything", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.ResultCount != 1 {
		t.Fatalf("fts-only result_count = %d", resp.ResultCount)
	}
}

func richPrimaryBackend() *fakeBackend {
	back := &fakeBackend{docs: map[string]map[string]any{}}
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("decision::d%d", i)
		back.vectorHits = append(back.vectorHits, SearchHit{ID: id, Score: 0.9 - float64(i)*0.05})
		back.docs[id] = map[string]any{"id": id, "type": "decision", "title": fmt.Sprintf("decision %d", i)}
	}
	return back
}

func TestContextSkipsKeywordTierWhenPrimaryIsRich(t *testing.T) {
	back := richPrimaryBackend()
	e := newTestEngine(t, back, &fakeEmbedder{})

	_, err := e.ContextForRequest(context.Background(), ContextParams{
		Query: "why did we choose couchbase", IncludeMessages: true,
	})
	if err != nil {
		t.Fatalf("ContextForRequest: %v", err)
	}
	if n := back.queriesMatching("LOWER(term)"); n != 0 {
		t.Fatalf("keyword tier ran %d sweeps despite rich primary results", n)
	}
	if n := back.queriesMatching("ORDER BY m.created_at DESC"); n == 0 {
		t.Fatal("raw chat fallback must always run")
	}
}

func TestContextRunsKeywordTierWhenPrimaryIsSparse(t *testing.T) {
	back := &fakeBackend{}
	e := newTestEngine(t, back, &fakeEmbedder{})

	_, err := e.ContextForRequest(context.Background(), ContextParams{
		Query: "why did we choose couchbase", IncludeMessages: true,
	})
	if err != nil {
		t.Fatalf("ContextForRequest: %v", err)
	}
	if n := back.queriesMatching("LOWER(term)"); n == 0 {
		t.Fatal("keyword tier did not run for sparse primary results")
	}
}

func TestRawChatFallbackRanksMessageOverlapAboveSession(t *testing.T) {
	msgRow := map[string]any{
		"id":            "msg::claude::s1::00000001::0000",
		"text_content":  "connect codex with couchbase memory",
		"session_title": "importer work",
	}
	sessRow := map[string]any{
		"id":    "session::claude::s2",
		"title": "connect this with codex and claude code",
	}
	back := &fakeBackend{
		rows: func(stmt string) []map[string]any {
			if strings.Contains(stmt, "JOIN") {
				return []map[string]any{cloneRow(msgRow)}
			}
			return []map[string]any{cloneRow(sessRow)}
		},
	}
	e := newTestEngine(t, back, &fakeEmbedder{})

	items := Dedupe(e.RawChatFallback(context.Background(), "connect codex memory", scope.Resolved{}, 4))
	if len(items) != 2 {
		t.Fatalf("items = %d: %+v", len(items), items)
	}
	if items[0].Kind != KindMessage {
		t.Fatalf("top item = %s, want the fully overlapping message", items[0].ID)
	}
	if items[0].Score != 1.25 {
		t.Fatalf("message score = %v, want 1.25", items[0].Score)
	}
	if items[1].Score <= 0.2 || items[1].Score >= items[0].Score {
		t.Fatalf("session score = %v, want between floor and message score", items[1].Score)
	}
	if items[0].Str("retrieval_source") != SourceRawFallback {
		t.Fatalf("retrieval_source = %q", items[0].Str("retrieval_source"))
	}
}

func TestRawChatFallbackFlatScoreWithoutTerms(t *testing.T) {
	back := &fakeBackend{
		rows: func(stmt string) []map[string]any {
			if strings.Contains(stmt, "JOIN") {
				return []map[string]any{{"id": "msg::x::00000000::0000", "text_content": "hello"}}
			}
			return []map[string]any{{"id": "session::x", "title": "hello"}}
		},
	}
	e := newTestEngine(t, back, &fakeEmbedder{})

	items := e.RawChatFallback(context.Background(), "the and for", scope.Resolved{}, 4)
	for _, it := range items {
		if it.Score != 0.05 {
			t.Fatalf("flat score = %v for %s", it.Score, it.ID)
		}
	}
}

func TestContextForRequestIdempotent(t *testing.T) {
	back := richPrimaryBackend()
	e := newTestEngine(t, back, &fakeEmbedder{})
	params := ContextParams{Query: "couchbase decision history", IncludeMessages: true}

	first, err := e.ContextForRequest(context.Background(), params)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := e.ContextForRequest(context.Background(), params)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.ContextText != second.ContextText {
		t.Fatal("condensed text differs across identical runs")
	}
	if len(first.Context.Decisions) != len(second.Context.Decisions) {
		t.Fatal("grouped decisions differ across identical runs")
	}
	for i := range first.Context.Decisions {
		if first.Context.Decisions[i].ID != second.Context.Decisions[i].ID {
			t.Fatal("group ordering differs across identical runs")
		}
	}
}

func TestRecallDecisionsFiltersCategoryAndProject(t *testing.T) {
	back := &fakeBackend{
		vectorHits: []SearchHit{
			{ID: "decision::d1", Score: 0.9},
			{ID: "decision::d2", Score: 0.8},
			{ID: "bug::b1", Score: 0.7},
		},
		docs: map[string]map[string]any{
			"decision::d1": {"id": "decision::d1", "type": "decision", "category": "architecture", "project_id": "/srv/app"},
			"decision::d2": {"id": "decision::d2", "type": "decision", "category": "library-choice", "project_id": "/srv/app"},
			"bug::b1":      {"id": "bug::b1", "type": "bug"},
		},
	}
	e := New(back, &fakeEmbedder{}, Options{Scope: scope.Defaults{
		DefaultProjectID: "default",
		CurrentProjectID: "/srv/app",
	}})

	resp, err := e.RecallDecisions(context.Background(), RecallParams{
		Query: "layering", Category: "architecture", Limit: 5,
	})
	if err != nil {
		t.Fatalf("RecallDecisions: %v", err)
	}
	if resp.ResultCount != 1 || resp.Results[0].ID != "decision::d1" {
		t.Fatalf("results = %+v", resp.Results)
	}
}

func cloneRow(row map[string]any) map[string]any {
	clone := make(map[string]any, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}
