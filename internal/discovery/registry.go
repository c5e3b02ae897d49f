package discovery

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/prospector/internal/prospect"
)

// ParseFunc extracts candidate companies from a fetched or local payload.
type ParseFunc func(payload []byte, src Source) ([]prospect.DiscoveredCompany, error)

// Registry maps parser names to implementations.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]ParseFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]ParseFunc)}
}

// Register adds or replaces a parser.
func (r *Registry) Register(name string, fn ParseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[name] = fn
}

// Lookup returns the parser registered under name.
func (r *Registry) Lookup(name string) (ParseFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.parsers[name]
	if !ok {
		return nil, fmt.Errorf("unknown parser %q", name)
	}
	return fn, nil
}

// Names lists registered parsers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry registers every built-in parser.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("yc_json", ParseYCExport)
	r.Register("public_apis", ParsePublicAPIs)
	r.Register("edgar_companies", ParseEdgarCompanies)
	r.Register("opencorporates", ParseOpenCorporates)
	r.Register("hn_whoishiring", ParseHNWhoIsHiring)
	r.Register("sitemap_urls", ParseSitemap)
	r.Register("crunchbase_sitemap", ParseSitemap)
	r.Register("rss_feed", ParseRSS)
	r.Register("github_markdown", ParseMarkdown)
	r.Register("plain_text", ParsePlainText)
	r.Register("csv", ParseCSV)
	r.Register("yc_html", ScrapeDirectory)
	r.Register("angel_list_scrape", ScrapeDirectory)
	r.Register("product_hunt_scrape", ScrapeDirectory)
	r.Register("indie_hackers_scrape", ScrapeDirectory)
	r.Register("betalist_scrape", ScrapeDirectory)
	return r
}
