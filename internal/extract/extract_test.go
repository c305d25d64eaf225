package extract

import (
	"strings"
	"testing"
)

func TestDecodeEntities(t *testing.T) {
	in := "Tom &amp; Jerry &lt;3 &quot;cheese&quot; &#39;n&#x27; crackers &#x2F;menu &#8212; daily"
	want := `Tom & Jerry <3 "cheese" 'n' crackers /menu — daily`
	if got := DecodeEntities(in); got != want {
		t.Fatalf("DecodeEntities = %q, want %q", got, want)
	}
}

func TestDecodeEntitiesIdempotent(t *testing.T) {
	in := "a &amp; b &lt;c&gt; &#39;d&#39; &#x2F;e"
	once := DecodeEntities(in)
	twice := DecodeEntities(once)
	if once != twice {
		t.Fatalf("decoding twice changed output: %q vs %q", once, twice)
	}
}

func TestDecodeEntitiesUnknownPreserved(t *testing.T) {
	in := "x &bogus; y"
	if got := DecodeEntities(in); got != in {
		t.Fatalf("unknown entity altered: %q", got)
	}
}

const resultBlockPage = `
<html><body>
<div class="result web-result">
  <input type="hidden" name="url" value="https://en.wikipedia.org/wiki/Go_(programming_language)">
  <input type="hidden" name="title" value="Go (programming language) &#8211; Wikipedia">
  <input type="hidden" name="extract" value="Go is a statically typed language &amp; toolchain.">
  <input type="hidden" name="score" value="3.5">
  <input type="hidden" name="state" value="ok">
  <p class="title"><a href="/l/?u=x">visible title</a></p>
</div>
<div class="result web-result">
  <input type="hidden" name="url" value="https://golang.org/doc">
  <input type="hidden" name="title" value="">
  <input type="hidden" name="extract" value="">
  <input type="hidden" name="score" value="None">
  <p class="title"><a href="/l/?u=y">Go Documentation</a></p>
  <p class="extract">Official docs for the Go language.</p>
</div>
<div class="result web-result">
  <input type="hidden" name="url" value="javascript:void(0)">
  <input type="hidden" name="title" value="dropped">
</div>
</body></html>`

func TestSearchResultsHiddenInputs(t *testing.T) {
	results := SearchResults(resultBlockPage)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (non-http url dropped)", len(results))
	}

	first := results[0]
	if first.URL != "https://en.wikipedia.org/wiki/Go_(programming_language)" {
		t.Fatalf("first url = %q", first.URL)
	}
	if !strings.Contains(first.Title, "Go (programming language)") {
		t.Fatalf("first title = %q", first.Title)
	}
	if first.Description != "Go is a statically typed language & toolchain." {
		t.Fatalf("first description = %q", first.Description)
	}
	if first.EngineScore == nil || *first.EngineScore != 3.5 {
		t.Fatalf("first engine score = %v", first.EngineScore)
	}

	second := results[1]
	if second.Title != "Go Documentation" {
		t.Fatalf("visible title fallback failed: %q", second.Title)
	}
	if second.Description != "Official docs for the Go language." {
		t.Fatalf("visible extract fallback failed: %q", second.Description)
	}
	if second.EngineScore != nil {
		t.Fatalf("score None must yield nil engine score, got %v", *second.EngineScore)
	}
}

func TestSearchResultsTableBlocks(t *testing.T) {
	page := `
<table class="result">
  <input type="hidden" name="url" value="https://example.org/a">
  <input type="hidden" name="title" value="Alpha">
</table>
<table class="result">
  <input type="hidden" name="url" value="https://example.org/b">
  <input type="hidden" name="title" value="Beta">
</table>`
	results := SearchResults(page)
	if len(results) != 2 || results[0].Title != "Alpha" || results[1].Title != "Beta" {
		t.Fatalf("table block parsing failed: %+v", results)
	}
}

func TestSearchResultsEmptyPage(t *testing.T) {
	if got := SearchResults("<html><body></body></html>"); len(got) != 0 {
		t.Fatalf("empty page yielded %d results", len(got))
	}
}

func TestHarvestLinksFallback(t *testing.T) {
	page := `
<html><body>
<p>Some context before the useful link about space telescopes and beyond.</p>
<a href="https://example.com/articles/jwst-results">James Webb results overview</a>
<a href="https://example.com/tag/space">tagged space stories</a>
<a href="https://example.com/x">tiny</a>
<a href="mailto:editor@example.com">write to the editor team</a>
<a href="/relative/path">a relative link with enough text</a>
</body></html>`

	results := SearchResults(page)
	if len(results) != 1 {
		t.Fatalf("got %d harvested links, want 1: %+v", len(results), results)
	}
	r := results[0]
	if r.URL != "https://example.com/articles/jwst-results" {
		t.Fatalf("url = %q", r.URL)
	}
	if r.Title != "James Webb results overview" {
		t.Fatalf("title = %q", r.Title)
	}
	if !strings.Contains(r.Description, "space telescopes") {
		t.Fatalf("description lacks surrounding context: %q", r.Description)
	}
}

func TestMeaningfulContent(t *testing.T) {
	page := `
<html><body>
<nav><p>Home About Contact</p></nav>
<article>
<p>` + strings.Repeat("Solid article text. ", 8) + `</p>
<p>Another substantive paragraph with details worth keeping around.</p>
</article>
<footer><p>All rights reserved.</p></footer>
</body></html>`

	got := MeaningfulContent(page)
	if !strings.Contains(got, "Solid article text.") {
		t.Fatalf("missing article paragraph: %q", got)
	}
	if strings.Contains(got, "Home About Contact") {
		t.Fatalf("nav content leaked into extraction: %q", got)
	}
}

func TestMeaningfulContentTooShort(t *testing.T) {
	page := `<html><body><article><p>short</p></article></body></html>`
	if got := MeaningfulContent(page); got != "" {
		t.Fatalf("expected empty for short content, got %q", got)
	}
}

func TestArticleStripsChrome(t *testing.T) {
	page := `
<html><body>
<script>var x = 1;</script>
<style>.a{}</style>
<header>Site header</header>
<main><h1>Title</h1><p>The body of the article, long enough to matter.</p></main>
<footer>footer text</footer>
</body></html>`

	got := Article(page)
	if !strings.Contains(got, "The body of the article") {
		t.Fatalf("article text missing: %q", got)
	}
	for _, forbidden := range []string{"var x", ".a{}", "Site header", "footer text"} {
		if strings.Contains(got, forbidden) {
			t.Fatalf("chrome %q leaked into article: %q", forbidden, got)
		}
	}
}

func TestFilterBoilerplate(t *testing.T) {
	in := strings.Join([]string{
		"Home",
		"About",
		"The actual article content starts here and keeps going on for a while.",
		"Copyright 2024 Example Corp",
		"More real content follows the legal line.",
		"Subscribe to our newsletter",
		"Follow us on social media",
	}, "\n")

	got := FilterBoilerplate(in)
	if strings.Contains(got, "Copyright") || strings.Contains(got, "Subscribe") || strings.Contains(got, "Follow us") {
		t.Fatalf("boilerplate survived: %q", got)
	}
	if strings.Contains(got, "Home") || strings.Contains(got, "About") {
		t.Fatalf("leading nav lines survived: %q", got)
	}
	if !strings.Contains(got, "actual article content") || !strings.Contains(got, "More real content") {
		t.Fatalf("real content dropped: %q", got)
	}
}

func TestCapContentSentenceBoundary(t *testing.T) {
	sentence := "This is a sentence that ends properly. "
	content := strings.Repeat(sentence, 40) // ~1560 chars

	got := CapContent(content, 1000)
	if len(got) > 1000 {
		t.Fatalf("cap exceeded: %d", len(got))
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("expected sentence-boundary cut, got suffix %q", got[len(got)-20:])
	}

	// No usable boundary in the last fifth: hard cut at max.
	noDots := strings.Repeat("x", 2000)
	if got := CapContent(noDots, 1000); len(got) != 1000 {
		t.Fatalf("hard cut = %d chars, want 1000", len(got))
	}

	// Short content passes through untouched.
	if got := CapContent("short", 1000); got != "short" {
		t.Fatalf("short content modified: %q", got)
	}
}
