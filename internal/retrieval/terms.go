package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var termPattern = regexp.MustCompile(`[a-z0-9_./:-]+`)

// stopTerms are generic query words that carry no retrieval signal.
var stopTerms = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "what": true, "where": true, "when": true,
	"how": true, "why": true, "tell": true, "show": true, "give": true,
	"about": true, "into": true, "does": true, "did": true, "are": true,
	"was": true, "were": true, "has": true, "have": true, "had": true,
	"project": true, "context": true, "please": true, "can": true,
	"you": true,
}

const maxQueryTerms = 12

// ExtractQueryTerms tokenizes a query into the distinct keywords used by
// the keyword tiers: lowercase, alphanumeric plus identifier punctuation,
// stop words and terms shorter than three characters dropped, capped at
// twelve terms in query order.
func ExtractQueryTerms(query string) []string {
	matches := termPattern.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]bool, len(matches))
	var terms []string
	for _, m := range matches {
		if len(m) < 3 || stopTerms[m] || seen[m] {
			continue
		}
		seen[m] = true
		terms = append(terms, m)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}

// KeywordScore is the fraction of terms found as substrings of text.
func KeywordScore(text string, terms []string) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	lowered := strings.ToLower(text)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

var codeSuffixes = []string{
	".go", ".py", ".ts", ".tsx", ".js", ".jsx", ".rs", ".java", ".rb",
	".c", ".h", ".cpp", ".hpp", ".cs", ".sql", ".sh", ".yaml", ".yml",
	".json", ".toml", ".md", ".proto",
}

// LooksLikePath reports whether a query token plausibly names a file.
func LooksLikePath(token string) bool {
	if strings.Contains(token, "/") {
		return true
	}
	for _, suffix := range codeSuffixes {
		if strings.HasSuffix(token, suffix) {
			return true
		}
	}
	return false
}

// ExtractPathTokens pulls path-like tokens out of a free-form query.
func ExtractPathTokens(query string) []string {
	var out []string
	seen := map[string]bool{}
	for _, token := range strings.Fields(query) {
		token = strings.Trim(token, `"'(),;`)
		if token == "" || seen[token] {
			continue
		}
		if LooksLikePath(strings.ToLower(token)) {
			seen[token] = true
			out = append(out, token)
		}
	}
	return out
}

// Truncate cuts s to at most n characters, the last one becoming an
// ellipsis when anything was removed.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// EstimateTokens approximates the token count of text at four characters
// per token, never reporting zero for non-empty input.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// TrimToTokenBudget hard-truncates text so its estimated token count,
// and therefore its character count, fits the budget.
func TrimToTokenBudget(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * 4
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return Truncate(text, limit)
}
