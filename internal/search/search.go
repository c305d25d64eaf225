package search

import (
	"context"
	"fmt"
	"time"

	"scout/internal/model"
)

// Request is a provider-agnostic search request for one query string.
type Request struct {
	Query   string
	Timeout time.Duration
}

// Provider defines the contract for pluggable search engines.
// Implementations map a Request onto an engine-specific call and
// normalize hits into model.Result records (content fields unset).
// Providers should respect the Timeout and must deduplicate nothing:
// dedup, scoring, and filtering belong to the research service.
type Provider interface {
	Search(ctx context.Context, req *Request) ([]model.Result, error)
	Name() string
}

// FailedError marks a search-page failure for one query. The failure
// is fatal for that query only; the orchestrator continues with the
// remaining queries.
type FailedError struct {
	Query string
	Cause error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("search failed for %q: %v", e.Query, e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }
