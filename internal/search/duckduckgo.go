package search

import (
	"context"
	"net/url"
	"time"

	"scout/internal/extract"
	"scout/internal/fetch"
	"scout/internal/model"
)

const defaultDuckDuckGoBaseURL = "https://html.duckduckgo.com/html/"

// DuckDuckGoProvider implements Provider against the DuckDuckGo HTML
// frontend. No cookies, no JavaScript: one GET per query, parsed by
// the extract package.
type DuckDuckGoProvider struct {
	baseURL string
	fetcher *fetch.Fetcher
	timeout time.Duration
}

// NewDuckDuckGoProvider constructs the provider. An empty baseURL
// selects the public HTML frontend; tests point it at a local server.
func NewDuckDuckGoProvider(fetcher *fetch.Fetcher, baseURL string, timeout time.Duration) *DuckDuckGoProvider {
	if baseURL == "" {
		baseURL = defaultDuckDuckGoBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DuckDuckGoProvider{
		baseURL: baseURL,
		fetcher: fetcher,
		timeout: timeout,
	}
}

func (p *DuckDuckGoProvider) Name() string { return "duckduckgo" }

// Search issues one query and returns the raw extracted results in
// page order. A fetch failure is fatal for this query and is never
// retried here.
func (p *DuckDuckGoProvider) Search(ctx context.Context, req *Request) ([]model.Result, error) {
	timeout := p.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	searchURL := p.baseURL + "?q=" + url.QueryEscape(req.Query)
	body, err := p.fetcher.Fetch(ctx, searchURL, timeout)
	if err != nil {
		return nil, &FailedError{Query: req.Query, Cause: err}
	}

	raw := extract.SearchResults(string(body))
	results := make([]model.Result, 0, len(raw))
	for _, r := range raw {
		results = append(results, model.Result{
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
			EngineScore: r.EngineScore,
		})
	}
	return results, nil
}
