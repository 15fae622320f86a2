package retrieval

import (
	"sort"

	"github.com/cserp440/couch-context/internal/scope"
)

// Dedupe orders items by score descending and keeps the first occurrence
// of every id, so a document retrieved by multiple tiers survives with its
// highest score. The sort is stable, which makes the merged order
// deterministic for equal scores.
func Dedupe(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	seen := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for _, it := range sorted {
		if it.ID != "" && seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}

// MatchesScope reports whether a document belongs to one of the scoped
// projects. Message rows carry their parent session's project under
// session_project_id. Documents imported before project derivation existed
// sit in "default" and are matched through their directory instead.
func MatchesScope(doc map[string]any, sc scope.Resolved) bool {
	if sc.Global() {
		return true
	}
	if len(sc.ProjectIDs) == 0 {
		return false
	}
	in := func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, id := range sc.ProjectIDs {
			if s == id {
				return true
			}
		}
		return false
	}
	if in(doc["project_id"]) || in(doc["session_project_id"]) {
		return true
	}
	if doc["project_id"] == "default" && in(doc["directory"]) {
		return true
	}
	if doc["session_project_id"] == "default" && in(doc["session_directory"]) {
		return true
	}
	return false
}

// FilterScope drops items outside the resolved scope.
func FilterScope(items []Item, sc scope.Resolved) []Item {
	if sc.Global() {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if MatchesScope(it.Doc, sc) {
			out = append(out, it)
		}
	}
	return out
}
