package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ProjectContextParams bound the per-section sizes of a project overview.
type ProjectContextParams struct {
	ProjectID    string
	MaxSessions  int
	MaxDecisions int
	MaxBugs      int
	MaxPatterns  int
}

// ProjectContext aggregates the recent history of one project: sessions,
// decisions, bugs, patterns, thoughts and collection totals. Every
// section is best effort and degrades to empty on query failure.
func (e *Engine) ProjectContext(ctx context.Context, p ProjectContextParams) map[string]any {
	if p.MaxSessions <= 0 {
		p.MaxSessions = 5
	}
	if p.MaxDecisions <= 0 {
		p.MaxDecisions = 10
	}
	if p.MaxBugs <= 0 {
		p.MaxBugs = 5
	}
	if p.MaxPatterns <= 0 {
		p.MaxPatterns = 5
	}
	projectID := e.scope.EffectiveProjectID(p.ProjectID, false)
	bucket := e.back.BucketName()
	params := map[string]any{"project_id": projectID}
	out := map[string]any{"project_id": projectID}

	sessionFilter := "(s.project_id = $project_id OR (s.project_id = 'default' AND s.directory = $project_id))"

	sections := []struct {
		key  string
		stmt string
	}{
		{"recent_sessions", fmt.Sprintf(
			"SELECT s.id, s.title, s.summary, s.tags, s.started_at, s.message_count "+
				"FROM `%s`.conversations.sessions s WHERE %s ORDER BY s.created_at DESC LIMIT %d",
			bucket, sessionFilter, p.MaxSessions)},
		{"decisions", fmt.Sprintf(
			"SELECT d.id, d.title, d.description, d.category, d.tags, d.created_at "+
				"FROM `%s`.knowledge.decisions d WHERE d.project_id = $project_id "+
				"ORDER BY d.created_at DESC LIMIT %d", bucket, p.MaxDecisions)},
		{"recent_bugs", fmt.Sprintf(
			"SELECT b.id, b.title, b.root_cause, b.fix_description, b.severity, b.created_at "+
				"FROM `%s`.knowledge.bugs b WHERE b.project_id = $project_id "+
				"ORDER BY b.created_at DESC LIMIT %d", bucket, p.MaxBugs)},
		{"patterns", fmt.Sprintf(
			"SELECT p.id, p.title, p.description, p.`language` AS `language`, p.tags, p.created_at "+
				"FROM `%s`.knowledge.patterns p WHERE p.project_id = $project_id "+
				"ORDER BY p.created_at DESC LIMIT %d", bucket, p.MaxPatterns)},
		{"recent_thoughts", fmt.Sprintf(
			"SELECT t.id, t.content, t.category, t.tags, t.created_at "+
				"FROM `%s`.knowledge.thoughts t WHERE t.project_id = $project_id "+
				"ORDER BY t.created_at DESC LIMIT 5", bucket)},
	}
	for _, section := range sections {
		rows, err := e.back.Query(ctx, section.stmt, params)
		if err != nil {
			e.log.Warn("project context section failed",
				zap.String("section", section.key), zap.Error(err))
			rows = []map[string]any{}
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		out[section.key] = rows
	}

	stats := map[string]int{}
	counts := []struct {
		label string
		stmt  string
	}{
		{"total_sessions", fmt.Sprintf(
			"SELECT COUNT(*) AS cnt FROM `%s`.`conversations`.`sessions` s WHERE %s",
			bucket, sessionFilter)},
		{"total_decisions", fmt.Sprintf(
			"SELECT COUNT(*) AS cnt FROM `%s`.`knowledge`.`decisions` WHERE project_id = $project_id", bucket)},
		{"total_bugs", fmt.Sprintf(
			"SELECT COUNT(*) AS cnt FROM `%s`.`knowledge`.`bugs` WHERE project_id = $project_id", bucket)},
		{"total_patterns", fmt.Sprintf(
			"SELECT COUNT(*) AS cnt FROM `%s`.`knowledge`.`patterns` WHERE project_id = $project_id", bucket)},
		{"total_thoughts", fmt.Sprintf(
			"SELECT COUNT(*) AS cnt FROM `%s`.`knowledge`.`thoughts` WHERE project_id = $project_id", bucket)},
	}
	for _, count := range counts {
		stats[count.label] = 0
		rows, err := e.back.Query(ctx, count.stmt, params)
		if err != nil || len(rows) == 0 {
			continue
		}
		stats[count.label] = docInt(rows[0], "cnt")
	}
	out["stats"] = stats
	return out
}
