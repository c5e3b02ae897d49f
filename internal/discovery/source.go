package discovery

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds. Local kinds read from disk; the rest are fetched.
const (
	KindJSON      = "json"
	KindHTML      = "html"
	KindXML       = "xml"
	KindRSS       = "rss"
	KindMarkdown  = "markdown"
	KindLocalText = "local_txt"
	KindLocalCSV  = "local_csv"
	KindLocalJSON = "local_json"
)

// Source describes one discovery feed.
type Source struct {
	ID                 string            `yaml:"-"`
	Name               string            `yaml:"name"`
	URL                string            `yaml:"url"`
	Path               string            `yaml:"path"`
	Type               string            `yaml:"type"`
	Enabled            bool              `yaml:"enabled"`
	Parser             string            `yaml:"parser"`
	Description        string            `yaml:"description"`
	Params             map[string]string `yaml:"params"`
	Selector           string            `yaml:"selector"`
	EstimatedCompanies string            `yaml:"estimated_companies"`
}

// IsLocal reports whether the source reads from the filesystem.
func (s Source) IsLocal() bool {
	return strings.HasPrefix(s.Type, "local_")
}

// DisplayName returns Name or the ID when unnamed.
func (s Source) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// DefaultSources returns the built-in catalogue in run order. Directories
// that usually block bots are present but disabled so overrides can enable them.
func DefaultSources() []Source {
	return []Source{
		{ID: "yc_export", Name: "Y Combinator Companies Export", URL: "https://www.ycombinator.com/companies/export.json",
			Type: KindJSON, Enabled: true, Parser: "yc_json", EstimatedCompanies: "4000"},
		{ID: "yc_companies_page", Name: "YC Companies HTML Page", URL: "https://www.ycombinator.com/companies",
			Type: KindHTML, Enabled: true, Parser: "yc_html", EstimatedCompanies: "100"},
		{ID: "github_yc_dataset", Name: "GitHub YC Dataset",
			URL:  "https://raw.githubusercontent.com/saasify-sh/awesome-yc-companies/master/README.md",
			Type: KindMarkdown, Enabled: true, Parser: "github_markdown", EstimatedCompanies: "300"},
		{ID: "github_startup_resources", Name: "GitHub Startup Resources",
			URL:  "https://raw.githubusercontent.com/mmccaff/PlacesToPostYourStartup/master/README.md",
			Type: KindMarkdown, Enabled: true, Parser: "github_markdown", EstimatedCompanies: "200"},
		{ID: "github_awesome_startups", Name: "GitHub Awesome Startups",
			URL:  "https://raw.githubusercontent.com/atinfo/awesome-startups/master/README.md",
			Type: KindMarkdown, Enabled: true, Parser: "github_markdown", EstimatedCompanies: "150"},
		{ID: "public_apis_org", Name: "Public APIs Directory", URL: "https://api.publicapis.org/entries",
			Type: KindJSON, Enabled: true, Parser: "public_apis", EstimatedCompanies: "1000"},
		{ID: "techcrunch_feed", Name: "TechCrunch RSS Feed", URL: "https://techcrunch.com/feed/",
			Type: KindRSS, Enabled: true, Parser: "rss_feed", EstimatedCompanies: "50"},
		{ID: "hacker_news_whoishiring", Name: "Hacker News Who is Hiring",
			URL:  "https://hn.algolia.com/api/v1/search?tags=story,author_whoishiring",
			Type: KindJSON, Enabled: true, Parser: "hn_whoishiring", EstimatedCompanies: "1000"},
		{ID: "edgar_companies", Name: "SEC EDGAR Company List", URL: "https://www.sec.gov/files/company_tickers.json",
			Type: KindJSON, Enabled: true, Parser: "edgar_companies", EstimatedCompanies: "8000"},
		{ID: "local_domains", Name: "Local Domains File", Path: "companies.txt",
			Type: KindLocalText, Enabled: true, Parser: "plain_text", EstimatedCompanies: "variable"},
		{ID: "local_csv", Name: "Local CSV File", Path: "companies.csv",
			Type: KindLocalCSV, Enabled: false, Parser: "csv", EstimatedCompanies: "variable"},
		{ID: "crunchbase_open_data", Name: "Crunchbase Open Data Map", URL: "https://data.crunchbase.com/docs/open-data-map",
			Type: KindHTML, Enabled: false, Parser: "crunchbase_sitemap", EstimatedCompanies: "500"},
		{ID: "opencorporates", Name: "OpenCorporates API", URL: "https://api.opencorporates.com/v0.4/companies/search",
			Type: KindJSON, Enabled: false, Parser: "opencorporates",
			Params: map[string]string{"q": "technology", "per_page": "100"}, EstimatedCompanies: "100"},
		{ID: "yellowpages_sitemap", Name: "YellowPages Sitemap", URL: "https://www.yellowpages.com/sitemap.xml",
			Type: KindXML, Enabled: false, Parser: "sitemap_urls", EstimatedCompanies: "100"},
		{ID: "angel_list_public", Name: "AngelList Public Pages", URL: "https://angel.co/companies",
			Type: KindHTML, Enabled: false, Parser: "angel_list_scrape", EstimatedCompanies: "200"},
		{ID: "product_hunt_public", Name: "Product Hunt Today", URL: "https://www.producthunt.com/",
			Type: KindHTML, Enabled: false, Parser: "product_hunt_scrape", EstimatedCompanies: "30"},
		{ID: "indie_hackers", Name: "Indie Hackers Products", URL: "https://www.indiehackers.com/products",
			Type: KindHTML, Enabled: false, Parser: "indie_hackers_scrape", EstimatedCompanies: "500"},
		{ID: "betalist", Name: "BetaList Startups", URL: "https://betalist.com/",
			Type: KindHTML, Enabled: false, Parser: "betalist_scrape", EstimatedCompanies: "100"},
	}
}

// LoadCatalog returns the default sources with overrides from the YAML file
// at path applied. The file maps source IDs to partial configs: known IDs are
// patched field by field, unknown IDs are appended as new sources. A missing
// file yields the defaults.
func LoadCatalog(path string) ([]Source, error) {
	sources := DefaultSources()
	if strings.TrimSpace(path) == "" {
		return sources, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return sources, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ApplyOverrides(sources, data)
}

// ApplyOverrides patches sources with a YAML override document.
func ApplyOverrides(sources []Source, data []byte) ([]Source, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(doc.Content) == 0 {
		return sources, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("sources file must map source ids to configs")
	}

	index := make(map[string]int, len(sources))
	for i, s := range sources {
		index[s.ID] = i
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		body := root.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("source %q: override must be a mapping", id)
		}
		if pos, ok := index[id]; ok {
			// Decoding onto the existing value only touches keys present in the YAML.
			if err := body.Decode(&sources[pos]); err != nil {
				return nil, fmt.Errorf("source %q: %w", id, err)
			}
			sources[pos].ID = id
			continue
		}
		added := Source{Enabled: true}
		if err := body.Decode(&added); err != nil {
			return nil, fmt.Errorf("source %q: %w", id, err)
		}
		added.ID = id
		index[id] = len(sources)
		sources = append(sources, added)
	}
	return sources, nil
}

// Enabled filters sources to the enabled ones, optionally only local ones.
func Enabled(sources []Source, localOnly bool) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if !s.Enabled {
			continue
		}
		if localOnly && !s.IsLocal() {
			continue
		}
		out = append(out, s)
	}
	return out
}
