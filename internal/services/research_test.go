package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"scout/internal/budget"
	"scout/internal/llm"
	"scout/internal/model"
	"scout/internal/search"
)

type fakeProvider struct {
	results []model.Result
	err     error
	calls   int
}

func (f *fakeProvider) Search(ctx context.Context, req *search.Request) ([]model.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if page, ok := f.pages[url]; ok {
		return []byte(page), nil
	}
	return nil, errors.New("not found")
}

type fakeSummarizer struct {
	summary string
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, opts llm.CallOpts, question, content string) (string, model.Usage, error) {
	f.calls++
	return f.summary, model.Usage{}, nil
}

func articlePage(body string) string {
	return "<html><body><article><p>" + body + "</p></article></body></html>"
}

func testGovernor(opts ...budget.Option) *budget.Governor {
	base := []budget.Option{budget.WithHeapProbe(func() uint64 { return 0 })}
	return budget.NewGovernor(append(base, opts...)...)
}

func wikiResult(n int) model.Result {
	return model.Result{
		Title:       fmt.Sprintf("Telescope article %d", n),
		URL:         fmt.Sprintf("https://en.wikipedia.org/wiki/T%d", n),
		Description: "about telescopes",
	}
}

func TestSearchDeduplicatesAndFilters(t *testing.T) {
	provider := &fakeProvider{results: []model.Result{
		{Title: "Telescope overview", URL: "https://en.wikipedia.org/wiki/Telescope", Description: "telescope basics"},
		{Title: "Telescope overview", URL: "https://en.wikipedia.org/wiki/Telescope", Description: "duplicate"},
		{Title: "zzz unrelated", URL: "https://example.com/junk", Description: "nothing relevant"},
	}}

	svc := NewSearchService(provider, &fakeFetcher{}, testGovernor(), nil, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{Query: "telescope", Question: "telescopes?"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("got %d results, want 1 (dup and low-score dropped): %+v", len(out.Results), out.Results)
	}
	if out.Results[0].URL != "https://en.wikipedia.org/wiki/Telescope" {
		t.Fatalf("unexpected survivor: %+v", out.Results[0])
	}
	if out.Results[0].Score < QualityThreshold {
		t.Fatalf("survivor under threshold: %d", out.Results[0].Score)
	}
}

func TestSearchSortsByScoreDescending(t *testing.T) {
	provider := &fakeProvider{results: []model.Result{
		{Title: "weak match", URL: "https://host.net/a", Description: "telescope"},
		{Title: "telescope telescope guide", URL: "https://en.wikipedia.org/wiki/G", Description: "telescope details"},
	}}

	svc := NewSearchService(provider, &fakeFetcher{}, testGovernor(), nil, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{Query: "telescope guide"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Results) < 2 {
		t.Fatalf("results dropped unexpectedly: %+v", out.Results)
	}
	if out.Results[0].Score < out.Results[1].Score {
		t.Fatalf("not sorted: %d then %d", out.Results[0].Score, out.Results[1].Score)
	}
}

func TestSearchLimitsReturnedResults(t *testing.T) {
	var results []model.Result
	for i := 0; i < 12; i++ {
		results = append(results, wikiResult(i))
	}
	provider := &fakeProvider{results: results}

	svc := NewSearchService(provider, &fakeFetcher{}, testGovernor(), nil, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{Query: "telescope article", Limit: 4})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Results) != 4 {
		t.Fatalf("got %d results, want limit 4", len(out.Results))
	}
	if out.TotalFound != 12 {
		t.Fatalf("TotalFound = %d, want 12", out.TotalFound)
	}
}

func TestSearchFetchesContentSequentially(t *testing.T) {
	long := strings.Repeat("Useful telescope facts. ", 20)
	fetcher := &fakeFetcher{pages: map[string]string{}}
	var results []model.Result
	for i := 0; i < 3; i++ {
		r := wikiResult(i)
		results = append(results, r)
		fetcher.pages[r.URL] = articlePage(long)
	}
	provider := &fakeProvider{results: results}

	svc := NewSearchService(provider, fetcher, testGovernor(), nil, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{
		Query: "telescope article", FetchContent: true, Limit: 5,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i, r := range out.Results {
		if r.Content == "" || r.ContentError != "" {
			t.Fatalf("result %d missing content: %+v", i, r)
		}
		if !strings.Contains(r.Content, "Useful telescope facts.") {
			t.Fatalf("result %d content = %q", i, r.Content)
		}
	}
	if got := svc.governor.Snapshot().TotalContentBytes; got == 0 {
		t.Fatalf("governor never charged")
	}
}

func TestSearchSkipsAfterBudgetExhausted(t *testing.T) {
	page := strings.Repeat("Huge telescope content block. ", 400) // ~12KB
	fetcher := &fakeFetcher{pages: map[string]string{}}
	var results []model.Result
	for i := 0; i < 6; i++ {
		r := wikiResult(i)
		results = append(results, r)
		fetcher.pages[r.URL] = articlePage(page)
	}
	provider := &fakeProvider{results: results}

	// Tiny byte ceiling: the first page fits, later ones are refused.
	gov := testGovernor(
		budget.WithMaxContentBytes(5000),
		budget.WithMaxPerPageChars(4000),
	)
	svc := NewSearchService(provider, fetcher, gov, nil, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{
		Query: "telescope content", FetchContent: true, Limit: 6,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if out.Results[0].Content == "" {
		t.Fatalf("first result should carry content: %+v", out.Results[0])
	}

	sawSkip := false
	for _, r := range out.Results[1:] {
		if strings.HasPrefix(r.ContentError, "Skipped due to memory limit") {
			sawSkip = true
			if r.Content != "" {
				t.Fatalf("skipped result carries content: %+v", r)
			}
		}
	}
	if !sawSkip {
		t.Fatalf("expected memory-limit skips: %+v", out.Results)
	}

	st := gov.Snapshot()
	if st.TotalContentBytes > st.MaxContentBytes {
		t.Fatalf("budget exceeded: %+v", st)
	}
}

func TestSearchRecordsFetchErrors(t *testing.T) {
	r0, r1 := wikiResult(0), wikiResult(1)
	fetcher := &fakeFetcher{
		pages: map[string]string{r1.URL: articlePage(strings.Repeat("Telescope text. ", 30))},
		errs:  map[string]error{r0.URL: errors.New("connection refused")},
	}
	provider := &fakeProvider{results: []model.Result{r0, r1}}

	svc := NewSearchService(provider, fetcher, testGovernor(), nil, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{
		Query: "telescope article", FetchContent: true,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if out.Results[0].ContentError == "" {
		t.Fatalf("fetch failure not recorded: %+v", out.Results[0])
	}
	if out.Results[1].Content == "" || out.Results[1].ContentError != "" {
		t.Fatalf("second result should still be enriched: %+v", out.Results[1])
	}
}

func TestSearchPreSummarizesLongContent(t *testing.T) {
	r := wikiResult(0)
	long := strings.Repeat("A very long telescope paragraph. ", 300) // ~10KB
	fetcher := &fakeFetcher{pages: map[string]string{r.URL: articlePage(long)}}
	provider := &fakeProvider{results: []model.Result{r}}
	sum := &fakeSummarizer{summary: "Condensed telescope facts."}

	svc := NewSearchService(provider, fetcher, testGovernor(), sum, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{
		Query: "telescope article", Question: "telescopes?", FetchContent: true,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if sum.calls != 1 {
		t.Fatalf("summarizer calls = %d, want 1", sum.calls)
	}
	if !strings.Contains(out.Results[0].Content, "Condensed telescope facts.") {
		t.Fatalf("content = %q", out.Results[0].Content)
	}
}

func TestSearchPropagatesProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: &search.FailedError{Query: "q", Cause: errors.New("engine down")}}
	svc := NewSearchService(provider, &fakeFetcher{}, testGovernor(), nil, nil)

	_, err := svc.Search(context.Background(), &SearchRequest{Query: "q"})
	var ferr *search.FailedError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FailedError, got %v", err)
	}
}

func TestSearchNoContentWhenDisabled(t *testing.T) {
	r := wikiResult(0)
	fetcher := &fakeFetcher{pages: map[string]string{r.URL: articlePage("text")}}
	provider := &fakeProvider{results: []model.Result{r}}

	svc := NewSearchService(provider, fetcher, testGovernor(), nil, nil)
	out, err := svc.Search(context.Background(), &SearchRequest{Query: "telescope article"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if out.Results[0].Content != "" {
		t.Fatalf("content fetched despite FetchContent=false")
	}
}
