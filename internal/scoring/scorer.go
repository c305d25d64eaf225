package scoring

import (
	"math"
	"regexp"
	"strings"
	"sync"
)

// Scoring weights for query-token matches.
const (
	titleMatchPoints       = 25
	titleMultiBonusPoints  = 10
	descriptionMatchPoints = 10
)

// stopWords are dropped during query tokenization. The list covers the
// common English function words that carry no relevance signal.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "from": {}, "has": {},
	"have": {}, "how": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "was": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "why": {}, "will": {}, "with": {},
}

var punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Tokenize lowercases the query, strips punctuation, splits on
// whitespace, and drops stop words. Tokens of length <= 2 survive
// tokenization but are ignored by the matcher.
func Tokenize(query string) []string {
	cleaned := punctRe.ReplaceAllString(strings.ToLower(query), " ")
	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// tokenPattern caches compiled word-boundary matchers per token.
var (
	tokenMu       sync.Mutex
	tokenPatterns = map[string]*regexp.Regexp{}
)

func wordMatcher(token string) *regexp.Regexp {
	tokenMu.Lock()
	defer tokenMu.Unlock()
	if re, ok := tokenPatterns[token]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)
	tokenPatterns[token] = re
	return re
}

// Scorer computes a deterministic additive relevance score for a search
// result against one query. The query is tokenized once at construction.
type Scorer struct {
	tokens []string
}

// NewScorer builds a scorer for the given query text.
func NewScorer(query string) *Scorer {
	return &Scorer{tokens: Tokenize(query)}
}

// Score returns the integer relevance score for a result. The base is
// the engine's own score when available; token matches on title and
// description and a domain-authority bonus are added on top.
func (s *Scorer) Score(title, description, url string, engineScore *float64) int {
	score := 0.0
	if engineScore != nil {
		score = *engineScore
	}

	lowerTitle := strings.ToLower(title)
	lowerDesc := strings.ToLower(description)

	titleMatches := 0
	for _, tok := range s.tokens {
		if len(tok) <= 2 {
			continue
		}
		re := wordMatcher(tok)
		if re.MatchString(lowerTitle) {
			titleMatches++
			score += titleMatchPoints
		}
		if re.MatchString(lowerDesc) {
			score += descriptionMatchPoints
		}
	}
	// Multiple title hits signal a strongly on-topic page.
	if titleMatches >= 2 {
		score += float64(titleMatches * titleMultiBonusPoints)
	}

	score += float64(DomainAuthority(url))

	return int(math.Round(score))
}
