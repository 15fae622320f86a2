package retrieval

import (
	"context"
	"fmt"
	"strings"
)

const synthesisSystemPrompt = "Summarize retrieved coding memory for another assistant. " +
	"Select only high-signal facts relevant to the task."

// HeuristicSummary condenses the grouped context without any external
// model: the reasoning trace, the task, then the best evidence lines
// until the token budget is hit. Deterministic for identical inputs.
func HeuristicSummary(query string, g Groups, reasoningText string, maxTokens int, t Tuning) string {
	terms := ExtractQueryTerms(query)
	candidates := RankEvidence(g, terms, t)

	lines := []string{
		"Context reasoning:",
		reasoningText,
		"",
		"Task: " + query,
		"Most relevant retrieved context:",
	}

	seen := map[string]bool{}
	for _, c := range candidates {
		signature := c.Kind + "::" + c.Text
		if seen[signature] {
			continue
		}
		seen[signature] = true
		lines = append(lines, fmt.Sprintf("- [%s|%s] %s", c.Kind, c.Source, Truncate(c.Text, 220)))
		if EstimateTokens(strings.Join(lines, "\n")) > maxTokens {
			lines = lines[:len(lines)-1]
			break
		}
	}
	if len(lines) <= 5 {
		lines = append(lines, "- No high-signal retrieved evidence found.")
	}
	return TrimToTokenBudget(strings.Join(lines, "\n"), maxTokens)
}

// synthesizeContext prefers the external summarizer and falls back to the
// heuristic on any failure, so the caller always gets a usable string.
func (e *Engine) synthesizeContext(ctx context.Context, query string, g Groups, reasoningText string, maxTokens int) string {
	heuristic := func() string {
		return HeuristicSummary(query, g, reasoningText, maxTokens, e.tuning)
	}
	if e.summarizer == nil {
		return heuristic()
	}
	candidates := RankEvidence(g, ExtractQueryTerms(query), e.tuning)
	if len(candidates) == 0 {
		return heuristic()
	}
	if len(candidates) > 40 {
		candidates = candidates[:40]
	}
	var blob strings.Builder
	for i, c := range candidates {
		if i > 0 {
			blob.WriteByte('\n')
		}
		fmt.Fprintf(&blob, "- [%s|%s] %s", c.Kind, c.Source, Truncate(c.Text, 260))
	}

	targetTokens := maxTokens - 350
	if targetTokens < 300 {
		targetTokens = 300
	}
	if targetTokens > 1400 {
		targetTokens = 1400
	}
	prompt := fmt.Sprintf(
		"Task:\n%s\n\nContext reasoning:\n%s\n\nRetrieved evidence:\n%s\n\n"+
			"Return concise markdown with sections: Key facts, Prior attempts, Relevant tools/files, Risks/gaps.",
		query, reasoningText, blob.String())

	content, err := e.summarizer.Summarize(ctx, synthesisSystemPrompt, prompt, targetTokens)
	if err != nil || strings.TrimSpace(content) == "" {
		return heuristic()
	}
	return TrimToTokenBudget(strings.TrimSpace(content), maxTokens)
}
