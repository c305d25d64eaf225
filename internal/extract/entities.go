package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var namedEntities = map[string]string{
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": `"`,
	"&#39;":  "'",
	"&#x27;": "'",
	"&#x2F;": "/",
	"&#x60;": "`",
	"&#x3D;": "=",
	"&nbsp;": " ",
}

var entityRe = regexp.MustCompile(`&(?:[a-zA-Z]+|#[0-9]+|#[xX][0-9a-fA-F]+);`)

// DecodeEntities resolves the HTML entities that appear in search
// result titles and descriptions, both named and numeric. Each entity
// is decoded in a single pass over the input.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entityRe.ReplaceAllStringFunc(s, func(ent string) string {
		if out, ok := namedEntities[ent]; ok {
			return out
		}
		body := ent[1 : len(ent)-1]
		if strings.HasPrefix(body, "#") {
			num := body[1:]
			base := 10
			if len(num) > 1 && (num[0] == 'x' || num[0] == 'X') {
				base = 16
				num = num[1:]
			}
			if code, err := strconv.ParseInt(num, base, 32); err == nil && code > 0 {
				return string(rune(code))
			}
		}
		return ent
	})
}

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// StripTags removes HTML tags and collapses runs of whitespace.
func StripTags(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(tagRe.ReplaceAllString(s, " "), " "))
}

// CleanText strips tags, decodes entities, and collapses whitespace,
// yielding display-ready text for titles and descriptions. Tags are
// removed before decoding so an encoded "&lt;3" survives as text.
func CleanText(s string) string {
	return DecodeEntities(StripTags(s))
}
