package llm

import (
	"strings"
	"testing"

	"scout/internal/model"
)

func TestValidateTemplatePlaceholders(t *testing.T) {
	if err := ValidateTemplate("Q: {{QUERY}}", false); err != nil {
		t.Fatalf("decision template rejected: %v", err)
	}
	if err := ValidateTemplate("Q: {{QUERY}}", true); err == nil {
		t.Fatalf("search template without context placeholder accepted")
	}
	if err := ValidateTemplate("{{QUERY}} {{SEARCH_CONTEXT}}", true); err != nil {
		t.Fatalf("search template rejected: %v", err)
	}
}

func TestBuildSearchContextOrdersSummariesFirst(t *testing.T) {
	digests := []model.Digest{
		{SearchQuery: "first", Summary: "summary one", RawResults: []model.Result{
			{Title: "t1", URL: "https://x/1", Description: "d1", Content: "c1"},
		}},
		{SearchQuery: "second", Summary: "summary two", RawResults: []model.Result{
			{Title: "t2", URL: "https://x/2", Description: "d2"},
		}},
	}

	ctx := BuildSearchContext(digests)
	one := strings.Index(ctx, "summary one")
	two := strings.Index(ctx, "summary two")
	entry := strings.Index(ctx, "1. t1")
	if one == -1 || two == -1 || entry == -1 {
		t.Fatalf("context missing parts:\n%s", ctx)
	}
	if !(one < two && two < entry) {
		t.Fatalf("parts out of order (one=%d two=%d entry=%d)", one, two, entry)
	}
	if !strings.Contains(ctx, "Key info: c1") {
		t.Fatalf("content line missing:\n%s", ctx)
	}
}

func TestBuildSearchContextCeiling(t *testing.T) {
	// ~19 250 estimated tokens: inside the 25 000-token ceiling, so the
	// whole summary must survive.
	big := strings.Repeat("a", 77000)
	over := strings.Repeat("b", 77000)
	digests := []model.Digest{
		{SearchQuery: "q1", Summary: big},
		{SearchQuery: "q2", Summary: over},
	}

	ctx := BuildSearchContext(digests)
	if !strings.Contains(ctx, big) {
		t.Fatalf("summary within the token ceiling was dropped (len=%d)", len(ctx))
	}
	if strings.Contains(ctx, "bbb") {
		t.Fatalf("summary past the token ceiling was kept (len=%d)", len(ctx))
	}
}

func TestSynthesisTemplateSelectionOverride(t *testing.T) {
	if got := synthesisTemplate("", 3); got != DefaultSearchTemplate {
		t.Fatalf("few results must use the expanded template")
	}
	if got := synthesisTemplate("", 7); got != compactSearchTemplate {
		t.Fatalf("many results must use the compact template")
	}
	custom := "{{QUERY}} {{SEARCH_CONTEXT}}"
	if got := synthesisTemplate(custom, 20); got != custom {
		t.Fatalf("override must always win")
	}
}
