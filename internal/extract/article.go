package extract

import (
	"regexp"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Selectors that usually wrap the substantive part of an article page,
// tried in order by meaningful-content extraction.
var meaningfulContainers = []string{
	"article", "main",
	".content", "#content",
	".post-content", ".entry-content",
	"[role=main]",
	".article-body", ".story-body", ".page-content",
}

// Chrome elements that never carry article content.
const chromeSelector = "script, style, nav, aside, header, footer"

// MeaningfulContent collects paragraph text from the known article
// containers. It returns an empty string when the page yields fewer
// than 200 characters, signalling the caller to fall back to full
// article extraction.
func MeaningfulContent(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(chromeSelector).Remove()

	var paragraphs []string
	for _, container := range meaningfulContainers {
		doc.Find(container + " p").Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(whitespaceRe.ReplaceAllString(sel.Text(), " "))
			if text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			break
		}
	}

	joined := strings.Join(paragraphs, "\n\n")
	if len(joined) < 200 {
		return ""
	}
	return joined
}

// Article extracts readable text from a full page. It prefers the
// first of <main>, <article>, or a content-classed <div>, strips page
// chrome, and renders the remainder as markdown-flavored text. When
// markdown conversion fails the plain node text is used.
func Article(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup: degrade to regex stripping.
		return StripTags(html)
	}
	doc.Find(chromeSelector).Remove()

	node := doc.Find("main").First()
	if node.Length() == 0 {
		node = doc.Find("article").First()
	}
	if node.Length() == 0 {
		node = doc.Find(`div[class*="content"], div[id*="content"]`).First()
	}
	if node.Length() == 0 {
		node = doc.Find("body").First()
	}
	if node.Length() == 0 {
		return ""
	}

	if inner, err := node.Html(); err == nil && strings.TrimSpace(inner) != "" {
		converter := htmlmd.NewConverter("", true, nil)
		if md, err := converter.ConvertString(inner); err == nil {
			return collapseBlankLines(md)
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(node.Text(), " "))
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	out := make([]string, 0, 64)
	for _, line := range strings.Split(s, "\n") {
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n"))
}

// Boilerplate line prefixes removed from extracted content before it
// enters the LLM context.
var boilerplatePrefixes = []string{
	"copyright", "privacy policy", "terms of service", "subscribe",
	"follow us", "share", "cookie policy", "all rights reserved",
	"sign up for", "download our app", "advertisement",
}

// Leading navigation words that identify menu fragments at the top of
// extracted text.
var navLineWords = map[string]struct{}{
	"home": {}, "about": {}, "contact": {}, "menu": {}, "navigation": {},
}

// FilterBoilerplate drops lines that are clearly page furniture:
// legal/subscription boilerplate anywhere, and short navigation labels
// in the leading lines.
func FilterBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	contentSeen := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			kept = append(kept, line)
			continue
		}
		lower := strings.ToLower(trimmed)

		if hasBoilerplatePrefix(lower) {
			continue
		}

		if !contentSeen {
			if _, nav := navLineWords[lower]; nav {
				continue
			}
			if len(trimmed) >= 40 {
				contentSeen = true
			}
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func hasBoilerplatePrefix(lower string) bool {
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// CapContent truncates content to max characters, preferring to cut on
// a sentence boundary when one falls in the last fifth of the window.
func CapContent(content string, max int) string {
	if max <= 0 || len(content) <= max {
		return content
	}
	window := content[:max]
	if idx := strings.LastIndex(window, ". "); idx >= max*4/5 {
		return window[:idx+1]
	}
	if strings.HasSuffix(window, ".") {
		return window
	}
	if idx := strings.LastIndexByte(window, '.'); idx >= max*4/5 {
		return window[:idx+1]
	}
	return window
}
