package discovery

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

const (
	maxSitemapURLs = 100
	maxFeedItems   = 50
)

// ParseSitemap keeps sitemap <loc> entries that look like company or business pages.
func ParseSitemap(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	locs, err := xmlquery.QueryAll(doc, "//*[local-name()='loc']")
	if err != nil {
		return nil, fmt.Errorf("query sitemap: %w", err)
	}
	if len(locs) > maxSitemapURLs {
		locs = locs[:maxSitemapURLs]
	}
	var out []prospect.DiscoveredCompany
	for _, loc := range locs {
		u := strings.TrimSpace(loc.InnerText())
		lower := strings.ToLower(u)
		if u == "" || (!strings.Contains(lower, "company") && !strings.Contains(lower, "business")) {
			continue
		}
		domain, err := regdomain.Normalize(u)
		if err != nil {
			continue
		}
		out = append(out, company(src, titleFromDomain(domain), u, map[string]any{"url": u}))
	}
	return out, nil
}

var feedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+(?:raises|launches|announces|secures)\b`),
	regexp.MustCompile(`\b(?:raised by|backed by|invested in)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`),
}

// ParseRSS extracts company names from funding and launch headlines. Each
// item contributes at most one name per pattern, and names are deduplicated.
func ParseRSS(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	items, err := xmlquery.QueryAll(doc, "//item")
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	if len(items) > maxFeedItems {
		items = items[:maxFeedItems]
	}

	seen := map[string]bool{}
	var out []prospect.DiscoveredCompany
	for _, item := range items {
		titleNode := item.SelectElement("title")
		if titleNode == nil || strings.TrimSpace(titleNode.InnerText()) == "" {
			continue
		}
		title := titleNode.InnerText()
		text := title
		if desc := item.SelectElement("description"); desc != nil {
			text += " " + desc.InnerText()
		}
		for _, pattern := range feedPatterns {
			m := pattern.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			name := m[1]
			if n := len(strings.Fields(name)); n < 1 || n > 3 || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, company(src, name, guessURL(name), map[string]any{"title": truncate(title, 100)}))
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func titleFromDomain(domain string) string {
	label := strings.SplitN(domain, ".", 2)[0]
	words := strings.Fields(strings.ReplaceAll(label, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
