package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"scout/internal/budget"
	"scout/internal/extract"
	"scout/internal/llm"
	"scout/internal/metrics"
	"scout/internal/model"
	"scout/internal/scoring"
	"scout/internal/search"
)

// QualityThreshold is the minimum relevance score a result needs to be
// considered for processing.
const QualityThreshold = 20

// maxProcessedResults caps per-query content fetching regardless of
// the requested limit.
const maxProcessedResults = 8

// presummarizeThresholdChars triggers LLM pre-summarization for long
// page content, applied to the first presummarizeMaxIndex results.
const (
	presummarizeThresholdChars = 5000
	presummarizeMaxIndex       = 5
	presummarizeInputCapChars  = 12000
	meaningfulMinChars         = 200
)

// SearchRequest drives one search-and-enrich pass for a single query
// string.
type SearchRequest struct {
	Query        string
	Question     string
	Limit        int
	FetchContent bool
	Timeout      time.Duration
	LLMOpts      llm.CallOpts
}

// SearchOutcome is the enriched result set for one query.
type SearchOutcome struct {
	Results          []model.Result
	TotalFound       int
	ProcessingTimeMs int64
	Budget           budget.State
}

// searchProvider is the slice of search.Provider this service needs;
// declared locally so tests can fake it without touching the fetcher.
type searchProvider interface {
	Search(ctx context.Context, req *search.Request) ([]model.Result, error)
	Name() string
}

// summarizer is the slice of llm.Service used for pre-summarization.
type summarizer interface {
	Summarize(ctx context.Context, opts llm.CallOpts, question, content string) (string, model.Usage, error)
}

// pageFetcher is the slice of fetch.Fetcher used for content fetches.
type pageFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// SearchService runs one query against the search engine and enriches
// the top results with budget-governed page content. Content fetching
// is sequential so the Governor can refuse admissions the moment the
// budget runs out.
type SearchService struct {
	provider   searchProvider
	fetcher    pageFetcher
	governor   *budget.Governor
	summarizer summarizer
	logger     *slog.Logger
}

// NewSearchService wires the search pipeline for one request. The
// governor must be the request's single budget authority.
func NewSearchService(provider searchProvider, fetcher pageFetcher, governor *budget.Governor, sum summarizer, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		provider:   provider,
		fetcher:    fetcher,
		governor:   governor,
		summarizer: sum,
		logger:     logger,
	}
}

// Search executes the full per-query pipeline: engine call, dedup,
// scoring, quality filter, ranking, and sequential content enrichment
// for the top results.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchOutcome, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("empty search query")
	}

	start := time.Now()

	raw, err := s.provider.Search(ctx, &search.Request{Query: req.Query, Timeout: req.Timeout})
	if err != nil {
		return nil, err
	}
	metrics.RecordSearch(s.provider.Name(), len(raw))

	results := s.rank(req.Query, raw)
	totalFound := len(results)

	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(results) > limit {
		results = results[:limit]
	}

	if req.FetchContent {
		s.enrich(ctx, req, results)
	}

	return &SearchOutcome{
		Results:          results,
		TotalFound:       totalFound,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Budget:           s.governor.Snapshot(),
	}, nil
}

// rank deduplicates by exact URL, scores, applies the quality
// threshold, and sorts descending by score. The sort is stable so page
// order breaks ties deterministically.
func (s *SearchService) rank(query string, raw []model.Result) []model.Result {
	scorer := scoring.NewScorer(query)
	seen := make(map[string]struct{}, len(raw))
	ranked := make([]model.Result, 0, len(raw))

	for _, r := range raw {
		if r.URL == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}

		r.Score = scorer.Score(r.Title, r.Description, r.URL, r.EngineScore)
		if r.Score < QualityThreshold {
			continue
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// enrich fetches page content for the top results, one at a time,
// through the Governor. Once an admission is refused, the remaining
// results are skipped with a recorded reason.
func (s *SearchService) enrich(ctx context.Context, req *SearchRequest, results []model.Result) {
	processCount := len(results)
	if processCount > maxProcessedResults {
		processCount = maxProcessedResults
	}

	skipReason := ""
	for i := 0; i < processCount; i++ {
		if ctx.Err() != nil {
			return
		}
		if skipReason != "" {
			results[i].ContentError = fmt.Sprintf("Skipped due to memory limit (%s)", skipReason)
			continue
		}

		fetchStart := time.Now()
		body, err := s.fetcher.Fetch(ctx, results[i].URL, req.Timeout)
		results[i].FetchTimeMs = time.Since(fetchStart).Milliseconds()
		if err != nil {
			results[i].ContentError = err.Error()
			s.logger.Debug("content fetch failed", "url", results[i].URL, "error", err)
			continue
		}

		text := s.extractText(string(body))
		if text == "" {
			results[i].ContentError = "no extractable content"
			continue
		}

		originalLen := len(text)
		text = s.compress(ctx, req, i, text)

		admitted, adm := s.governor.AdmitContent(text)
		if !adm.Admitted {
			skipReason = adm.Reason
			metrics.RecordBudgetRefusal(adm.Reason)
			results[i].ContentError = fmt.Sprintf("Skipped due to memory limit (%s)", skipReason)
			continue
		}
		if adm.Truncated {
			admitted = strings.TrimSpace(admitted) + "\n" + budget.MarkerMemoryTruncated
			results[i].Truncated = true
		}

		// Token accounting is orthogonal to the byte ceiling: the final
		// admitted text is what fits the remaining token allowance.
		charged := s.governor.AddContent(admitted)
		if charged == "" {
			results[i].ContentError = "Skipped due to memory limit (token budget exhausted)"
			skipReason = "token budget exhausted"
			metrics.RecordBudgetRefusal(skipReason)
			continue
		}
		if len(charged) < len(admitted) {
			charged = strings.TrimSpace(charged) + "\n" + budget.MarkerTokenOptimized
			results[i].Truncated = true
		}

		results[i].Content = charged
		results[i].ContentLength = len(charged)
		if results[i].Truncated || originalLen > len(charged) {
			results[i].OriginalLength = originalLen
		}
	}
}

// extractText runs meaningful-paragraph extraction first and falls
// back to full article extraction, then strips boilerplate lines.
func (s *SearchService) extractText(html string) string {
	text := extract.MeaningfulContent(html)
	if len(text) < meaningfulMinChars {
		text = extract.Article(html)
	}
	return extract.FilterBoilerplate(text)
}

// compress reduces long content before admission: LLM
// pre-summarization for very long pages among the first results, and
// the per-page character cap for everything else.
func (s *SearchService) compress(ctx context.Context, req *SearchRequest, index int, text string) string {
	if len(text) > presummarizeThresholdChars && index < presummarizeMaxIndex && s.summarizer != nil {
		input := extract.CapContent(text, presummarizeInputCapChars)
		summary, _, err := s.summarizer.Summarize(ctx, req.LLMOpts, req.Question, input)
		if err == nil && strings.TrimSpace(summary) != "" {
			return strings.TrimSpace(summary)
		}
		s.logger.Debug("pre-summarization failed, using capped content", "error", err)
	}
	return extract.CapContent(text, s.governor.MaxPerPageChars())
}

// ProviderName reports which engine backs this service.
func (s *SearchService) ProviderName() string { return s.provider.Name() }
