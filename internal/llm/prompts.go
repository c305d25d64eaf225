package llm

import (
	"fmt"
	"strings"

	"scout/internal/budget"
	"scout/internal/model"
)

// Placeholder tokens required in user-supplied prompt templates.
const (
	PlaceholderQuery         = "{{QUERY}}"
	PlaceholderSearchContext = "{{SEARCH_CONTEXT}}"
)

// Default system prompts for the four call sites. Per-request
// overrides replace these verbatim.
const (
	DefaultDecisionSystem = `You are a research planner. Decide whether the question can be answered reliably from your own knowledge or needs a web search.

Prefer searching whenever the question involves recent events, news, prices, schedules, weather, specific locations, or anything where freshness matters. Answer directly only for stable knowledge (definitions, math, history, established science).

Respond with EXACTLY one JSON object and nothing else, in one of two shapes:
{"response": "<your complete answer>"}
{"search_queries": ["<query 1>", "<query 2>", "<query 3>"]}

Provide between 1 and 3 search queries. Do not include any other keys or text.`

	DefaultDirectSystem = `You are a knowledgeable assistant. Answer the question clearly and concisely from your own knowledge. If you are uncertain, say so.`

	DefaultSearchSystem = `You are a research assistant. Answer the user's question using ONLY the search findings provided. Cite the source URL inline after every factual claim, like (https://example.com/page). If the findings do not answer the question, say what is missing. Be concise and factual.`

	digestSystem = `You summarize web search results. Write 2-4 sentences capturing the facts from these results that are relevant to the user's question. No preamble, no bullet points.`

	continuationSystem = `You supervise an iterative web research session. Given the question and the findings so far, decide whether more searching would materially improve the answer.

Respond with EXACTLY one JSON object and nothing else:
{"continue": false, "reason": "<why the findings suffice>"}
{"continue": true, "reason": "<what is missing>", "next_queries": ["<query 1>", "<query 2>"]}

Provide at most 2 next queries. Do not repeat queries that were already executed.`

	summarizeSystem = `Condense the following page content to at most 300 words, keeping only facts relevant to the user's question. Plain prose, no headers.`
)

// DefaultDecisionTemplate is the user-prompt template for the initial
// planning call.
const DefaultDecisionTemplate = `Question: {{QUERY}}

Decide: answer directly or search.`

// DefaultSearchTemplate is the expanded synthesis template, used when
// few enough sources are in play.
const DefaultSearchTemplate = `Question: {{QUERY}}

Research findings:

{{SEARCH_CONTEXT}}

Write a complete answer to the question based on these findings. Cite source URLs inline for every factual claim.`

// compactSearchTemplate trims instruction overhead when many sources
// compete for context space.
const compactSearchTemplate = `Q: {{QUERY}}

Findings:
{{SEARCH_CONTEXT}}

Answer with inline URL citations.`

// Token geometry for the synthesis prompt: entries stop when the
// running estimate reaches the context ceiling. The ceiling is the
// 32 000-token total minus a 7 000-token response reserve.
const synthesisContextTokens = 25000

// Per-entry field caps in the synthesis context.
const (
	contextDescriptionChars = 300
	contextContentChars     = 800
	contextMaxResults       = 8
)

// RenderTemplate substitutes the placeholders into a template.
func RenderTemplate(template, query, searchContext string) string {
	out := strings.ReplaceAll(template, PlaceholderQuery, query)
	return strings.ReplaceAll(out, PlaceholderSearchContext, searchContext)
}

// ValidateTemplate checks that a user-supplied template carries the
// required placeholders.
func ValidateTemplate(template string, needContext bool) error {
	if !strings.Contains(template, PlaceholderQuery) {
		return fmt.Errorf("template must contain %s", PlaceholderQuery)
	}
	if needContext && !strings.Contains(template, PlaceholderSearchContext) {
		return fmt.Errorf("template must contain %s", PlaceholderSearchContext)
	}
	return nil
}

// BuildSearchContext composes the synthesis context from all digests
// in (iteration, queryIndex) order: each digest's summary, followed by
// numbered entries for the top digested results. Entries are appended
// only while the running token estimate stays inside the context
// ceiling. The output is deterministic for a fixed input.
func BuildSearchContext(digests []model.Digest) string {
	var b strings.Builder
	tokens := 0

	appendPart := func(part string) bool {
		cost := budget.EstimateTokens(part)
		if tokens+cost > synthesisContextTokens {
			return false
		}
		b.WriteString(part)
		tokens += cost
		return true
	}

	for _, d := range digests {
		if d.Summary == "" {
			continue
		}
		part := fmt.Sprintf("Search %q: %s\n\n", d.SearchQuery, d.Summary)
		if !appendPart(part) {
			return strings.TrimSpace(b.String())
		}
	}

	i := 0
	for _, d := range digests {
		for _, r := range d.RawResults {
			if i >= contextMaxResults {
				break
			}
			entry := formatContextEntry(i+1, r)
			if !appendPart(entry) {
				return strings.TrimSpace(b.String())
			}
			i++
		}
	}

	return strings.TrimSpace(b.String())
}

func formatContextEntry(i int, r model.Result) string {
	desc := truncate(r.Description, contextDescriptionChars)
	content := truncate(r.Content, contextContentChars)
	entry := fmt.Sprintf("%d. %s\n%s\n%s", i, r.Title, r.URL, desc)
	if content != "" {
		entry += "\nKey info: " + content
	}
	return entry + "\n\n"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// synthesisTemplate picks the template for final synthesis: a user
// override always wins; otherwise the compact variant kicks in once
// more than six results are in play.
func synthesisTemplate(override string, resultCount int) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	if resultCount > 6 {
		return compactSearchTemplate
	}
	return DefaultSearchTemplate
}

// digestPrompt renders the per-query digest input from the top
// results of one search.
func digestPrompt(question, searchQuery string, results []model.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User question: %s\nSearch query: %s\n\nResults:\n\n", question, searchQuery)
	for i, r := range results {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n", i+1, r.Title, r.URL, truncate(r.Description, contextDescriptionChars))
		if r.Content != "" {
			fmt.Fprintf(&b, "%s\n", truncate(r.Content, contextContentChars))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// continuationPrompt renders the continue/stop input from the digests
// accumulated so far.
func continuationPrompt(question string, digests []model.Digest, iteration, maxIterations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\nCompleted iteration: %d of at most %d\n\nFindings so far:\n\n", question, iteration+1, maxIterations)
	for _, d := range digests {
		fmt.Fprintf(&b, "- %q: %s\n", d.SearchQuery, d.Summary)
	}
	return b.String()
}
