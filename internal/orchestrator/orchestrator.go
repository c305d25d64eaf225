package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scout/internal/llm"
	"scout/internal/model"
	"scout/internal/services"
)

// MaxIterations caps the search loop. Each continuation can add at most
// two follow-up queries.
const MaxIterations = 3

// NoResultsAnswer is returned when every executed query came back
// empty. Final synthesis is not invoked in that case.
const NoResultsAnswer = "No search results were found for your question. Please try rephrasing it or asking something more specific."

// fallbackNotice prefixes the degraded answer produced when final
// synthesis keeps failing after retries.
const fallbackNotice = "AI processing failed, so here are the most relevant sources found for your question:"

// maxFallbackResults bounds the degraded answer to the top results.
const maxFallbackResults = 5

// digestLinkCount is how many representative links each digest keeps.
const digestLinkCount = 2

// planner is the slice of llm.Service the orchestrator drives.
type planner interface {
	DecideInitial(ctx context.Context, opts llm.CallOpts, question string, ov model.PromptOverrides) (model.InitialDecision, model.Usage, error)
	DigestResults(ctx context.Context, opts llm.CallOpts, question, searchQuery string, results []model.Result) (string, model.Usage, error)
	DecideContinuation(ctx context.Context, opts llm.CallOpts, question string, digests []model.Digest, iteration, maxIterations int) (model.ContinuationDecision, model.Usage, error)
	Synthesize(ctx context.Context, opts llm.CallOpts, question string, digests []model.Digest, ov model.PromptOverrides) (string, model.Usage, error)
	DirectAnswer(ctx context.Context, opts llm.CallOpts, question string, ov model.PromptOverrides) (string, model.Usage, error)
}

// searcher is the slice of services.SearchService the orchestrator
// needs for one query execution.
type searcher interface {
	Search(ctx context.Context, req *services.SearchRequest) (*services.SearchOutcome, error)
}

// Emitter receives lifecycle events in orchestrator order. A nil
// emitter disables streaming; the run is otherwise identical.
type Emitter func(model.Event)

// Outcome is the complete result of one research run, consumed by the
// transport layer to build either response shape.
type Outcome struct {
	Answer           string
	Mode             model.AnswerMode
	Digests          []model.Digest
	Usage            model.Usage
	Iterations       int
	TotalQueries     int
	TotalResults     int
	ProcessingTimeMs int64
}

// AllResults flattens every digest's results in digest order.
func (o *Outcome) AllResults() []model.Result {
	var all []model.Result
	for _, d := range o.Digests {
		all = append(all, d.RawResults...)
	}
	return all
}

// Links collects source links across all digests, deduplicated by URL
// and capped at max.
func (o *Outcome) Links(max int) []model.Link {
	seen := make(map[string]struct{})
	var links []model.Link
	for _, d := range o.Digests {
		for _, r := range d.RawResults {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			links = append(links, model.Link{Title: r.Title, URL: r.URL, Snippet: r.Description})
			if len(links) >= max {
				return links
			}
		}
	}
	return links
}

// Summaries returns the digest summaries in digest order.
func (o *Outcome) Summaries() []string {
	out := make([]string, 0, len(o.Digests))
	for _, d := range o.Digests {
		out = append(out, d.Summary)
	}
	return out
}

// Orchestrator runs the research state machine for a single request:
// decide, optionally loop over search iterations, then produce the
// final answer. It is the single owner of the digest list; the search
// service it holds is the single owner of the request's budget.
type Orchestrator struct {
	planner  planner
	searcher searcher
	logger   *slog.Logger
	maxIters int
}

// New wires an orchestrator for one request.
func New(p planner, s searcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{planner: p, searcher: s, logger: logger, maxIters: MaxIterations}
}

// Run executes the full research flow. Events, when an emitter is
// supplied, are emitted strictly in the order the phases execute; no
// event follows the terminal complete or error.
func (o *Orchestrator) Run(ctx context.Context, q model.Query, emit Emitter) (*Outcome, error) {
	start := time.Now()
	send := func(t model.EventType, payload map[string]any) {
		if emit == nil {
			return
		}
		emit(model.NewEvent(t, payload))
	}

	send(model.EventLog, map[string]any{
		"message":   "Starting research for: " + q.Text,
		"timestamp": time.Now().UTC(),
	})
	send(model.EventInit, map[string]any{
		"query":         q.Text,
		"searches":      []any{},
		"finalResponse": nil,
		"metadata": map[string]any{
			"searchMode":         q.SearchMode,
			"model":              q.Model,
			"iterations":         0,
			"maxIterations":      o.maxIters,
			"totalSearchResults": 0,
		},
	})

	opts := llm.CallOpts{APIKey: q.APIKey, Model: q.Model}
	out := &Outcome{}

	seed, direct, err := o.decide(ctx, q, opts, out, send)
	if err != nil {
		send(model.EventError, map[string]any{"error": err.Error(), "timestamp": time.Now().UTC()})
		return nil, err
	}

	if direct != "" {
		out.Answer = direct
		out.Mode = model.AnswerDirect
		o.emitFinal(out, send)
	} else {
		if err := o.searchLoop(ctx, q, opts, seed, out, send); err != nil {
			send(model.EventError, map[string]any{"error": err.Error(), "timestamp": time.Now().UTC()})
			return nil, err
		}
	}

	out.ProcessingTimeMs = time.Since(start).Milliseconds()
	send(model.EventComplete, map[string]any{
		"result": map[string]any{
			"answer":           out.Answer,
			"mode":             out.Mode,
			"totalResults":     out.TotalResults,
			"searchIterations": out.Iterations,
		},
		"executionTime": out.ProcessingTimeMs,
		"timestamp":     time.Now().UTC(),
	})
	return out, nil
}

// decide resolves the DECIDE state: returns either seed queries for the
// search loop or a ready direct answer (exactly one is non-empty).
func (o *Orchestrator) decide(ctx context.Context, q model.Query, opts llm.CallOpts, out *Outcome, send func(model.EventType, map[string]any)) ([]string, string, error) {
	switch q.SearchMode {
	case model.ModeSearch:
		return []string{q.Text}, "", nil
	case model.ModeDirect:
		answer, usage, err := o.planner.DirectAnswer(ctx, opts, q.Text, q.Prompts)
		if err != nil {
			return nil, "", fmt.Errorf("direct answer: %w", err)
		}
		out.Usage.Add(usage)
		return nil, answer, nil
	}

	send(model.EventStep, stepPayload(model.StepInitialDecision, "Deciding whether to search the web", 0))
	decision, usage, err := o.planner.DecideInitial(ctx, opts, q.Text, q.Prompts)
	out.Usage.Add(usage)
	if err != nil {
		// Transport failures on the planning call degrade to searching
		// the original question rather than failing the request.
		o.logger.Warn("initial decision failed, searching original question", "error", err)
		decision = model.InitialDecision{SearchQueries: []string{q.Text}}
	}
	send(model.EventDecision, map[string]any{"decision": decisionPayload(decision), "timestamp": time.Now().UTC()})

	if decision.Direct() {
		if strings.TrimSpace(decision.Response) != "" {
			return nil, decision.Response, nil
		}
		answer, u, err := o.planner.DirectAnswer(ctx, opts, q.Text, q.Prompts)
		if err != nil {
			return nil, "", fmt.Errorf("direct answer: %w", err)
		}
		out.Usage.Add(u)
		return nil, answer, nil
	}
	return decision.SearchQueries, "", nil
}

// searchLoop runs SEARCH_LOOP then FINAL: iterate over pending queries,
// digest each, decide whether to continue, and synthesize the answer.
func (o *Orchestrator) searchLoop(ctx context.Context, q model.Query, opts llm.CallOpts, seed []string, out *Outcome, send func(model.EventType, map[string]any)) error {
	current := seed

	for iteration := 0; iteration < o.maxIters && len(current) > 0; iteration++ {
		out.Iterations = iteration + 1
		send(model.EventStep, stepPayload(model.StepSearchIteration,
			fmt.Sprintf("Search iteration %d: %d queries", iteration+1, len(current)), iteration+1))

		hadResults := false
		for qi, term := range current {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out.TotalQueries++
			send(model.EventSearch, map[string]any{
				"term":          term,
				"iteration":     iteration + 1,
				"searchIndex":   qi + 1,
				"totalSearches": len(current),
				"timestamp":     time.Now().UTC(),
			})

			outcome, err := o.searcher.Search(ctx, &services.SearchRequest{
				Query:        term,
				Question:     q.Text,
				Limit:        q.Limit,
				FetchContent: true,
				Timeout:      time.Duration(q.TimeoutSec) * time.Second,
				LLMOpts:      opts,
			})
			if err != nil {
				o.logger.Warn("search query failed", "query", term, "error", err)
				send(model.EventSearchResults, map[string]any{
					"term": term, "resultsCount": 0, "iteration": iteration + 1, "timestamp": time.Now().UTC(),
				})
				continue
			}
			send(model.EventSearchResults, map[string]any{
				"term":         term,
				"resultsCount": len(outcome.Results),
				"iteration":    iteration + 1,
				"timestamp":    time.Now().UTC(),
			})
			if len(outcome.Results) == 0 {
				continue
			}
			hadResults = true
			out.TotalResults += len(outcome.Results)

			summary, usage, err := o.planner.DigestResults(ctx, opts, q.Text, term, outcome.Results)
			out.Usage.Add(usage)
			if err != nil || strings.TrimSpace(summary) == "" {
				o.logger.Warn("digest failed, using result titles", "query", term, "error", err)
				summary = titlesSummary(outcome.Results)
			}
			out.Digests = append(out.Digests, model.Digest{
				SearchQuery: term,
				Summary:     summary,
				Links:       topLinks(outcome.Results, digestLinkCount),
				RawResults:  outcome.Results,
				Iteration:   iteration,
				QueryIndex:  qi,
			})
		}

		if !hadResults {
			break
		}

		send(model.EventStep, stepPayload(model.StepContinuationCheck, "Checking whether more research is needed", iteration+1))
		decision, usage, err := o.planner.DecideContinuation(ctx, opts, q.Text, out.Digests, iteration, o.maxIters)
		out.Usage.Add(usage)
		if err != nil {
			o.logger.Warn("continuation decision failed, stopping", "error", err)
			decision = model.ContinuationDecision{Continue: false, Reason: "continuation check failed"}
		}
		// The iteration cap wins over whatever the model answered.
		if iteration == o.maxIters-1 {
			decision.Continue = false
		}
		send(model.EventContinuation, map[string]any{
			"shouldContinue": decision.Continue,
			"reasoning":      decision.Reason,
			"iteration":      iteration + 1,
			"timestamp":      time.Now().UTC(),
		})
		if !decision.Continue || len(decision.NextQueries) == 0 {
			break
		}
		current = decision.NextQueries
	}

	send(model.EventStep, stepPayload(model.StepSearchComplete,
		fmt.Sprintf("Search complete: %d queries, %d results", out.TotalQueries, out.TotalResults), 0))

	out.Mode = model.AnswerSearch
	if len(out.Digests) > 1 {
		out.Mode = model.AnswerMultiSearch
	}

	if len(out.Digests) == 0 {
		out.Answer = NoResultsAnswer
		o.emitFinal(out, send)
		return nil
	}

	send(model.EventStep, stepPayload(model.StepFinalGeneration, "Generating final answer", 0))
	answer, usage, err := o.planner.Synthesize(ctx, opts, q.Text, out.Digests, q.Prompts)
	out.Usage.Add(usage)
	if err != nil {
		o.logger.Error("final synthesis failed after retries, using source list", "error", err)
		answer = fallbackAnswer(out.Digests)
	}
	out.Answer = answer
	o.emitFinal(out, send)
	return nil
}

func (o *Orchestrator) emitFinal(out *Outcome, send func(model.EventType, map[string]any)) {
	searches := make([]map[string]any, 0, len(out.Digests))
	for _, d := range out.Digests {
		searches = append(searches, map[string]any{
			"query":        d.SearchQuery,
			"summary":      d.Summary,
			"links":        d.Links,
			"resultsCount": len(d.RawResults),
			"iteration":    d.Iteration + 1,
		})
	}
	send(model.EventFinalResponse, map[string]any{
		"response":         out.Answer,
		"totalResults":     out.TotalResults,
		"searchIterations": out.Iterations,
		"timestamp":        time.Now().UTC(),
		"searchResults":    out.AllResults(),
		"searches":         searches,
	})
}

func stepPayload(t model.StepType, message string, iteration int) map[string]any {
	p := map[string]any{
		"type":      t,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}
	if iteration > 0 {
		p["iteration"] = iteration
	}
	return p
}

func decisionPayload(d model.InitialDecision) map[string]any {
	if d.Direct() {
		return map[string]any{"needsSearch": false}
	}
	return map[string]any{"needsSearch": true, "searchQueries": d.SearchQueries}
}

// topLinks keeps the first n results as digest links.
func topLinks(results []model.Result, n int) []model.Link {
	if len(results) < n {
		n = len(results)
	}
	links := make([]model.Link, 0, n)
	for _, r := range results[:n] {
		links = append(links, model.Link{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return links
}

// titlesSummary is the digest fallback when the summarization call
// fails: a plain enumeration of what the query found.
func titlesSummary(results []model.Result) string {
	titles := make([]string, 0, len(results))
	for _, r := range results {
		titles = append(titles, r.Title)
	}
	return "Found sources: " + strings.Join(titles, "; ")
}

// fallbackAnswer builds the degraded final answer from the top results
// when synthesis fails even after retries.
func fallbackAnswer(digests []model.Digest) string {
	var b strings.Builder
	b.WriteString(fallbackNotice)
	b.WriteString("\n")

	count := 0
	for _, d := range digests {
		for _, r := range d.RawResults {
			if count >= maxFallbackResults {
				return b.String()
			}
			count++
			fmt.Fprintf(&b, "\n%d. %s\n%s\n%s\n", count, r.Title, r.URL, r.Description)
		}
	}
	return b.String()
}
