package llm

import (
	"encoding/json"
	"strings"

	"scout/internal/model"
)

// Seed and continuation bounds for the planning loop.
const (
	MaxSeedQueries = 3
	MaxNextQueries = 2
)

// ContinuationParseFailureReason is the recorded reason when the model
// produced unparseable continuation JSON.
const ContinuationParseFailureReason = "Parse error - stopping search"

// extractJSONObject tries the whole string first, then the first
// {...} block, so models that wrap JSON in prose still parse.
func extractJSONObject(content string, out any) bool {
	content = strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(content), out); err == nil {
		return true
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(content[start:end+1]), out) == nil
}

type initialDecisionJSON struct {
	Response      string   `json:"response"`
	SearchQueries []string `json:"search_queries"`
	// search_terms is a legacy inbound key still emitted by older
	// prompt revisions; accepted on input, never produced on output.
	SearchTerms []string `json:"search_terms"`
}

// ParseInitialDecision interprets the auto-mode planning output.
// Any parse failure degrades to searching with the original question
// as the sole seed query.
func ParseInitialDecision(content, originalQuery string) model.InitialDecision {
	fallback := model.InitialDecision{SearchQueries: []string{originalQuery}}

	var parsed initialDecisionJSON
	if !extractJSONObject(content, &parsed) {
		return fallback
	}

	queries := cleanQueries(parsed.SearchQueries)
	if len(queries) == 0 {
		queries = cleanQueries(parsed.SearchTerms)
	}

	if strings.TrimSpace(parsed.Response) != "" && len(queries) == 0 {
		return model.InitialDecision{Response: parsed.Response}
	}
	if len(queries) > 0 {
		if len(queries) > MaxSeedQueries {
			queries = queries[:MaxSeedQueries]
		}
		return model.InitialDecision{SearchQueries: queries}
	}
	return fallback
}

type continuationJSON struct {
	Continue    bool     `json:"continue"`
	Reason      string   `json:"reason"`
	NextQueries []string `json:"next_queries"`
}

// ParseContinuation interprets the per-iteration continue/stop output.
// Parse failures stop the loop with a recorded reason.
func ParseContinuation(content string) model.ContinuationDecision {
	var parsed continuationJSON
	if !extractJSONObject(content, &parsed) {
		return model.ContinuationDecision{
			Continue: false,
			Reason:   ContinuationParseFailureReason,
		}
	}

	decision := model.ContinuationDecision{
		Continue: parsed.Continue,
		Reason:   strings.TrimSpace(parsed.Reason),
	}
	if decision.Continue {
		queries := cleanQueries(parsed.NextQueries)
		if len(queries) > MaxNextQueries {
			queries = queries[:MaxNextQueries]
		}
		if len(queries) == 0 {
			// Continuing with nothing to run is a stop.
			decision.Continue = false
			if decision.Reason == "" {
				decision.Reason = "no follow-up queries provided"
			}
		}
		decision.NextQueries = queries
	}
	return decision
}

func cleanQueries(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
