package scoring

import "strings"

// domainAuthority maps URL substrings to a fixed trust bonus. Matching
// is case-insensitive substring containment against the full URL; the
// highest matching bonus wins. Generic TLD entries sit at the bottom so
// a specific domain always outranks its TLD tier.
var domainAuthority = []struct {
	fragment string
	bonus    int
}{
	// Encyclopedic reference.
	{"wikipedia.org", 200},
	{"britannica.com", 180},

	// Top-tier news organizations.
	{"reuters.com", 170},
	{"apnews.com", 170},
	{"bbc.com", 160},
	{"bbc.co.uk", 160},
	{"nytimes.com", 150},
	{"theguardian.com", 150},
	{"washingtonpost.com", 140},
	{"economist.com", 140},
	{"npr.org", 130},

	// Scholarly and scientific reference.
	{"nature.com", 140},
	{"science.org", 140},
	{"sciencedirect.com", 130},
	{"springer.com", 120},
	{"jstor.org", 120},
	{"arxiv.org", 110},
	{"pubmed.ncbi.nlm.nih.gov", 120},
	{"scholar.google", 100},

	// Government, academia, and international bodies.
	{".gov", 120},
	{".edu", 120},
	{".ac.uk", 110},
	{"who.int", 110},
	{"un.org", 100},
	{"europa.eu", 100},

	// Reputable technology publications and references.
	{"stackoverflow.com", 100},
	{"github.com", 90},
	{"arstechnica.com", 90},
	{"wired.com", 80},
	{"techcrunch.com", 70},
	{"theverge.com", 70},

	// Generic TLD fallbacks.
	{".org", 40},
	{".net", 20},
}

// DomainAuthority returns the fixed trust bonus for a URL, or zero when
// no table entry matches.
func DomainAuthority(url string) int {
	lower := strings.ToLower(url)
	for _, entry := range domainAuthority {
		if strings.Contains(lower, entry.fragment) {
			return entry.bonus
		}
	}
	return 0
}
