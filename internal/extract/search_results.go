package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// RawResult is one candidate record pulled out of a search results
// page before scoring and deduplication.
type RawResult struct {
	Title       string
	URL         string
	Description string
	EngineScore *float64
	State       string
}

// The search frontend renders results as one of three block shapes.
// Hidden input fields inside each block carry the canonical record;
// visible title/extract paragraphs are fallbacks only.
var blockStartPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<table[^>]*class="[^"]*\bresult\b[^"]*"[^>]*>`),
	regexp.MustCompile(`(?i)<div[^>]*class="[^"]*\bresult\b[^"]*"[^>]*>`),
	regexp.MustCompile(`(?i)<div[^>]*class="[^"]*\bweb-result\b[^"]*"[^>]*>`),
}

var (
	hiddenInputRe = regexp.MustCompile(`(?is)<input[^>]*type="hidden"[^>]*>`)
	nameAttrRe    = regexp.MustCompile(`(?i)name="([^"]*)"`)
	valueAttrRe   = regexp.MustCompile(`(?i)value="([^"]*)"`)

	visibleTitleRe   = regexp.MustCompile(`(?is)<p[^>]*class="[^"]*\btitle\b[^"]*"[^>]*>(.*?)</p>`)
	visibleExtractRe = regexp.MustCompile(`(?is)<p[^>]*class="[^"]*\bextract\b[^"]*"[^>]*>(.*?)</p>`)
)

// SearchResults parses a search results page. It tries the three known
// block shapes in order; when none match it falls back to harvesting
// plain links from the page.
func SearchResults(html string) []RawResult {
	for _, pattern := range blockStartPatterns {
		blocks := splitBlocks(html, pattern)
		if len(blocks) == 0 {
			continue
		}
		results := make([]RawResult, 0, len(blocks))
		for _, block := range blocks {
			if r, ok := parseBlock(block); ok {
				results = append(results, r)
			}
		}
		if len(results) > 0 {
			return results
		}
	}
	return HarvestLinks(html)
}

// splitBlocks slices the page into per-result segments: each segment
// runs from one block-start match to the next. Nested markup inside a
// block does not matter because the canonical fields are hidden inputs
// near the top of each segment.
func splitBlocks(html string, start *regexp.Regexp) []string {
	locs := start.FindAllStringIndex(html, -1)
	if len(locs) == 0 {
		return nil
	}
	blocks := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(html)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		blocks = append(blocks, html[loc[0]:end])
	}
	return blocks
}

func parseBlock(block string) (RawResult, bool) {
	fields := map[string]string{}
	for _, input := range hiddenInputRe.FindAllString(block, -1) {
		name := firstGroup(nameAttrRe, input)
		if name == "" {
			continue
		}
		if _, seen := fields[name]; seen {
			continue
		}
		fields[name] = firstGroup(valueAttrRe, input)
	}

	r := RawResult{
		Title:       CleanText(fields["title"]),
		URL:         strings.TrimSpace(DecodeEntities(fields["url"])),
		Description: CleanText(fields["extract"]),
		State:       strings.TrimSpace(fields["state"]),
	}

	if raw, ok := fields["score"]; ok {
		if raw = strings.TrimSpace(raw); raw != "" && !strings.EqualFold(raw, "none") {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				r.EngineScore = &v
			}
		}
	}

	// Visible paragraphs back-fill whatever the hidden inputs lacked.
	if r.Title == "" {
		r.Title = CleanText(firstGroup(visibleTitleRe, block))
	}
	if r.Description == "" {
		r.Description = CleanText(firstGroup(visibleExtractRe, block))
	}

	if !validResultURL(r.URL) {
		return RawResult{}, false
	}
	return r, true
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func validResultURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// navPatterns identify links that are site navigation rather than
// content, used by the harvesting fallback.
var navPatterns = []string{
	"/page/", "/edit/", "/user/", "/admin/",
	"javascript:", "#", "mailto:",
	"/search?", "/tag/", "/category/",
}

var anchorRe = regexp.MustCompile(`(?is)<a[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)

// HarvestLinks is the last-resort extraction path: collect every
// anchor with an http(s) href and enough anchor text, skipping obvious
// navigation, and derive a description from the surrounding text.
func HarvestLinks(html string) []RawResult {
	matches := anchorRe.FindAllStringSubmatchIndex(html, -1)
	results := make([]RawResult, 0, len(matches))

	for _, m := range matches {
		href := strings.TrimSpace(DecodeEntities(html[m[2]:m[3]]))
		text := CleanText(html[m[4]:m[5]])

		if !strings.HasPrefix(href, "http") {
			continue
		}
		if len(text) < 10 {
			continue
		}
		if isNavLink(href) {
			continue
		}

		// Description: up to 200 characters of cleaned context on each
		// side of the anchor.
		start := m[0] - 200
		if start < 0 {
			start = 0
		}
		end := m[1] + 200
		if end > len(html) {
			end = len(html)
		}
		desc := CleanText(html[start:end])

		results = append(results, RawResult{
			Title:       text,
			URL:         href,
			Description: desc,
		})
	}
	return results
}

func isNavLink(href string) bool {
	lower := strings.ToLower(href)
	for _, pat := range navPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}
