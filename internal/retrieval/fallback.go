package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/scope"
)

// RawChatFallback scans recent messages and sessions directly, scoring
// them by keyword overlap. Scores stay below the primary semantic tier:
// messages floor at the message floor, sessions slightly lower, and with
// no usable terms everything gets the flat recency score.
func (e *Engine) RawChatFallback(ctx context.Context, query string, sc scope.Resolved, limit int) []Item {
	if limit <= 0 {
		limit = 10
	}
	terms := ExtractQueryTerms(query)
	bucket := e.back.BucketName()
	params := map[string]any{"terms": terms}
	if !sc.Global() {
		params["project_ids"] = sc.ProjectIDs
	}

	var items []Item

	where := "TRUE"
	if len(terms) > 0 {
		where = "(ANY t IN $terms SATISFIES " +
			"LOWER(m.text_content) LIKE '%' || t || '%' " +
			"OR LOWER(TOSTRING(IFMISSINGORNULL(m.tool_calls, []))) LIKE '%' || t || '%' " +
			"OR LOWER(TOSTRING(IFMISSINGORNULL(m.tool_results, []))) LIKE '%' || t || '%' " +
			"OR LOWER(IFMISSINGORNULL(s.title, '')) LIKE '%' || t || '%' " +
			"OR LOWER(IFMISSINGORNULL(s.summary, '')) LIKE '%' || t || '%' " +
			"END)"
	}
	if !sc.Global() {
		where = sessionProjectMatch("s") + " AND " + where
	}
	msgStmt := fmt.Sprintf(
		"SELECT META(m).id AS id, m.*, s.title AS session_title, s.summary AS session_summary, "+
			"s.source AS session_source, s.project_id AS session_project_id, s.directory AS session_directory "+
			"FROM `%s`.conversations.messages m "+
			"JOIN `%s`.conversations.sessions s ON KEYS m.session_id "+
			"WHERE %s ORDER BY m.created_at DESC LIMIT %d",
		bucket, bucket, where, maxInt(limit*2, 10))

	rows, err := e.back.Query(ctx, msgStmt, params)
	if err != nil {
		e.log.Warn("raw message fallback failed", zap.Error(err))
	}
	for _, row := range rows {
		delete(row, "embedding")
		row["_scope"] = "conversations"
		row["_collection"] = "messages"
		row["retrieval_source"] = SourceRawFallback
		score := e.tuning.RawFlatScore
		if len(terms) > 0 {
			scoreText := strings.Join([]string{
				asString(row["text_content"]),
				toolSignalText(anySlice(row["tool_calls"]), anySlice(row["tool_results"])),
				asString(row["session_title"]),
				asString(row["session_summary"]),
			}, "\n")
			score = e.tuning.RawMessageFloor + KeywordScore(scoreText, terms)
		}
		id, _ := row["id"].(string)
		items = append(items, NewItem(id, score, row))
	}

	where = "TRUE"
	if len(terms) > 0 {
		where = "(ANY t IN $terms SATISFIES " +
			"LOWER(IFMISSINGORNULL(s.title, '')) LIKE '%' || t || '%' " +
			"OR LOWER(IFMISSINGORNULL(s.summary, '')) LIKE '%' || t || '%' " +
			"END)"
	}
	if !sc.Global() {
		where = sessionProjectMatch("s") + " AND " + where
	}
	sessStmt := fmt.Sprintf(
		"SELECT META(s).id AS id, s.* FROM `%s`.conversations.sessions s "+
			"WHERE %s ORDER BY s.created_at DESC LIMIT %d",
		bucket, where, maxInt(limit, 6))

	rows, err = e.back.Query(ctx, sessStmt, params)
	if err != nil {
		e.log.Warn("raw session fallback failed", zap.Error(err))
	}
	for _, row := range rows {
		delete(row, "embedding")
		row["_scope"] = "conversations"
		row["_collection"] = "sessions"
		row["retrieval_source"] = SourceRawFallback
		score := e.tuning.RawFlatScore
		if len(terms) > 0 {
			scoreText := asString(row["title"]) + "\n" + asString(row["summary"])
			score = e.tuning.RawSessionFloor + KeywordScore(scoreText, terms)
		}
		id, _ := row["id"].(string)
		items = append(items, NewItem(id, score, row))
	}

	return items
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// toolSignalText flattens tool activity into searchable text: call labels
// with subagent or skill names attached, plus truncated result excerpts.
func toolSignalText(toolCalls, toolResults []any) string {
	var parts []string
	for _, tc := range toolCalls {
		call, ok := tc.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(asString(call["name"]))
		if name == "" {
			continue
		}
		label := name
		if input, ok := call["input"].(map[string]any); ok {
			if sub, ok := input["subagent_type"].(string); ok && strings.TrimSpace(sub) != "" {
				sub = strings.TrimSpace(sub)
				label += "(" + sub + ")"
			}
			if name == "skill" {
				if skill := skillName(input); skill != "" {
					label += "(" + skill + ")"
				}
			}
		}
		parts = append(parts, label)
	}
	for _, tr := range toolResults {
		result, ok := tr.(map[string]any)
		if !ok {
			continue
		}
		if content, ok := result["content"].(string); ok {
			if content = strings.TrimSpace(content); content != "" {
				if len(content) > 120 {
					content = content[:120]
				}
				parts = append(parts, content)
			}
		}
	}
	return strings.Join(parts, " | ")
}

func skillName(input map[string]any) string {
	for _, key := range []string{"name", "skill", "skill_name", "path"} {
		if s, ok := input[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
