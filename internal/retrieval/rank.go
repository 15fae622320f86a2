package retrieval

import (
	"sort"
	"strings"
)

// Evidence is one candidate line for context synthesis.
type Evidence struct {
	Kind   string  `json:"kind"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// relevance blends keyword overlap with a small richness bonus for longer
// evidence, capped so length never dominates.
func (t Tuning) relevance(text string, terms []string) float64 {
	if text == "" {
		return 0
	}
	richness := float64(len(text)) / 400.0
	if richness > 1 {
		richness = 1
	}
	return KeywordScore(text, terms) + richness*t.LengthBonusCap
}

// RankEvidence flattens the grouped context into scored evidence lines,
// sorted best first. Knowledge kinds carry priors: decisions and bugs
// above patterns, patterns above sessions, messages and thoughts none.
func RankEvidence(g Groups, terms []string, t Tuning) []Evidence {
	var out []Evidence

	for _, s := range g.Sessions {
		text := strings.TrimSpace(s.Title + "\n" + s.Summary)
		if text != "" {
			out = append(out, Evidence{
				Kind: "session", Text: text, Source: orUnknown(s.Source),
				Score: t.relevance(text, terms) + t.PriorSession,
			})
		}
	}
	for _, d := range g.Decisions {
		text := joined(d.Title, d.Description)
		if text != "" {
			out = append(out, Evidence{
				Kind: "decision", Text: text, Source: "knowledge",
				Score: t.relevance(text, terms) + t.PriorKnowledge,
			})
		}
	}
	for _, b := range g.Bugs {
		detail := b.FixDescription
		if detail == "" {
			detail = b.RootCause
		}
		if detail == "" {
			detail = b.Description
		}
		text := joined(b.Title, detail)
		if text != "" {
			out = append(out, Evidence{
				Kind: "bug", Text: text, Source: "knowledge",
				Score: t.relevance(text, terms) + t.PriorKnowledge,
			})
		}
	}
	for _, p := range g.Patterns {
		text := joined(p.Title, p.Description)
		if text != "" {
			out = append(out, Evidence{
				Kind: "pattern", Text: text, Source: "knowledge",
				Score: t.relevance(text, terms) + t.PriorPattern,
			})
		}
	}
	for _, m := range g.Messages {
		text := joined(m.Role, m.TextExcerpt)
		if text != "" {
			out = append(out, Evidence{
				Kind: "message", Text: text, Source: orUnknown(m.SessionSource),
				Score: t.relevance(text, terms),
			})
		}
	}
	for _, th := range g.Thoughts {
		text := strings.TrimSpace(th.Content)
		if text != "" {
			out = append(out, Evidence{
				Kind: "thought", Text: text, Source: "knowledge",
				Score: t.relevance(text, terms),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func joined(title, detail string) string {
	return strings.Trim(strings.TrimSpace(title+": "+detail), ": ")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
