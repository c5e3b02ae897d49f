package discovery

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

const maxScrapedLinks = 100

// ScrapeDirectory collects outbound links from a directory page. Links back
// to the directory's own domain are ignored, so only listed company websites
// survive. Source.Selector narrows the anchors considered.
func ScrapeDirectory(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(src.URL)
	own := ""
	if src.URL != "" {
		own, _ = regdomain.Normalize(src.URL)
	}
	selector := src.Selector
	if selector == "" {
		selector = "a[href]"
	}

	var out []prospect.DiscoveredCompany
	seen := map[string]bool{}
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		if base != nil {
			link = base.ResolveReference(link)
		}
		if link.Scheme != "http" && link.Scheme != "https" {
			return true
		}
		domain, err := regdomain.Normalize(link.String())
		if err != nil || domain == own || skipped(domain) || seen[domain] {
			return true
		}
		seen[domain] = true
		name := strings.Join(strings.Fields(sel.Text()), " ")
		if name == "" {
			name = titleFromDomain(domain)
		}
		out = append(out, company(src, truncate(name, 80), link.String(), map[string]any{"anchor": name}))
		return len(out) < maxScrapedLinks
	})
	return out, nil
}
