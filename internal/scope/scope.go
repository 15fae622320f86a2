// Package scope decides which projects a memory request is allowed to read.
//
// A project id is the canonical absolute path of a workspace directory,
// except for the configured default id which is an opaque label. A nil
// project list means global visibility across every project.
package scope

import (
	"os"
	"path/filepath"
	"strings"
)

// Request carries the caller-supplied scope overrides of a single tool call.
// Nil fields mean "use the configured default" rather than "empty".
type Request struct {
	ProjectID         string
	RelatedProjectIDs []string
	IncludeAll        *bool
}

// Resolved is the outcome of scope resolution.
type Resolved struct {
	// ProjectID is the effective project the request runs as.
	ProjectID string
	// ProjectIDs is the visibility set. Nil means every project.
	ProjectIDs []string
}

// Global reports whether the scope spans all projects.
func (r Resolved) Global() bool { return r.ProjectIDs == nil }

// Label names the scope for reasoning output.
func (r Resolved) Label() string {
	switch {
	case r.Global():
		return "all"
	case len(r.ProjectIDs) > 1:
		return "cross-project"
	default:
		return "project"
	}
}

// Defaults holds the configured fallbacks applied when a request leaves a
// scope field unset.
type Defaults struct {
	DefaultProjectID    string
	CurrentProjectID    string
	RelatedProjectIDs   []string
	IncludeAllByDefault bool
}

// NormalizePath canonicalizes a directory path used as a project id.
// Empty, "/" and "." inputs are treated as absent and return "".
func NormalizePath(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if abs == "/" || abs == "." {
		return ""
	}
	return abs
}

// DeriveProjectID picks the project id for an ingested document: the
// configured id when it is a real override, otherwise the canonical
// directory, otherwise the default.
func DeriveProjectID(configured, directory, defaultID string) string {
	if configured != "" && configured != defaultID {
		return configured
	}
	if normalized := NormalizePath(directory); normalized != "" {
		return normalized
	}
	if configured != "" {
		return configured
	}
	return defaultID
}

// NormalizeIDs canonicalizes a list of project ids, preserving order and
// dropping empties and duplicates. The default id passes through verbatim.
func NormalizeIDs(ids []string, defaultID string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if id != defaultID {
			if normalized := NormalizePath(id); normalized != "" {
				id = normalized
			}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EffectiveProjectID resolves the project a request runs as. An explicit
// non-default requested id wins, then the current workspace, then the
// default id. With allowUnset, an absent request resolves to "" so the
// caller can treat it as unscoped.
func (d Defaults) EffectiveProjectID(requested string, allowUnset bool) string {
	requested = strings.TrimSpace(requested)
	if requested != "" && requested != d.DefaultProjectID {
		if normalized := NormalizePath(requested); normalized != "" {
			return normalized
		}
		return requested
	}
	if current := NormalizePath(d.CurrentProjectID); current != "" {
		return current
	}
	if allowUnset {
		return ""
	}
	return d.DefaultProjectID
}

// Resolve applies the defaults to a request and produces the effective
// project plus the visibility set.
func (d Defaults) Resolve(req Request) Resolved {
	related := req.RelatedProjectIDs
	if related == nil {
		related = d.RelatedProjectIDs
	}
	includeAll := d.IncludeAllByDefault
	if req.IncludeAll != nil {
		includeAll = *req.IncludeAll
	}

	effective := d.EffectiveProjectID(req.ProjectID, false)
	if includeAll {
		return Resolved{ProjectID: effective}
	}

	ids := []string{effective}
	for _, id := range NormalizeIDs(related, d.DefaultProjectID) {
		if id != effective {
			ids = append(ids, id)
		}
	}
	return Resolved{ProjectID: effective, ProjectIDs: ids}
}
