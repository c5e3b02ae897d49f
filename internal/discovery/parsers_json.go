package discovery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/prospector/internal/prospect"
)

func company(src Source, name, rawURL string, metadata map[string]any) prospect.DiscoveredCompany {
	return prospect.DiscoveredCompany{
		URL:            rawURL,
		Name:           strings.TrimSpace(name),
		SourceName:     src.ID,
		DiscoveredFrom: src.origin(),
		Metadata:       metadata,
	}
}

func (s Source) origin() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// ParseYCExport reads the Y Combinator companies export.
func ParseYCExport(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	var rows []struct {
		Name    string `json:"name"`
		Website string `json:"website"`
		Batch   string `json:"batch"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode yc export: %w", err)
	}
	out := make([]prospect.DiscoveredCompany, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Website) == "" {
			continue
		}
		status := row.Status
		if status == "" {
			status = "active"
		}
		out = append(out, company(src, row.Name, row.Website, map[string]any{"batch": row.Batch, "status": status}))
	}
	return out, nil
}

// ParsePublicAPIs reads the public-apis directory entries.
func ParsePublicAPIs(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	var doc struct {
		Entries []map[string]any `json:"entries"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode public apis: %w", err)
	}
	out := make([]prospect.DiscoveredCompany, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		link, _ := entry["Link"].(string)
		if link == "" {
			continue
		}
		name, _ := entry["API"].(string)
		out = append(out, company(src, name, link, entry))
	}
	return out, nil
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// ParseEdgarCompanies reads the SEC ticker file. EDGAR carries no websites,
// so the first word of the registrant title is guessed as a .com domain.
func ParseEdgarCompanies(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	var doc map[string]struct {
		CIK    json.Number `json:"cik_str"`
		Ticker string      `json:"ticker"`
		Title  string      `json:"title"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode edgar companies: %w", err)
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	out := make([]prospect.DiscoveredCompany, 0, len(doc))
	for _, k := range keys {
		info := doc[k]
		if info.Title == "" {
			continue
		}
		words := strings.Fields(nonWord.ReplaceAllString(strings.ToLower(info.Title), ""))
		if len(words) == 0 {
			continue
		}
		out = append(out, company(src, info.Title, "https://"+words[0]+".com", map[string]any{
			"cik":    info.CIK.String(),
			"ticker": info.Ticker,
			"title":  info.Title,
		}))
	}
	return out, nil
}

// ParseOpenCorporates reads an OpenCorporates company search response.
func ParseOpenCorporates(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	var doc struct {
		Results struct {
			Companies []struct {
				Company map[string]any `json:"company"`
			} `json:"companies"`
		} `json:"results"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode opencorporates: %w", err)
	}
	var out []prospect.DiscoveredCompany
	for _, wrapper := range doc.Results.Companies {
		website, _ := wrapper.Company["website_url"].(string)
		if website == "" {
			continue
		}
		name, _ := wrapper.Company["name"].(string)
		out = append(out, company(src, name, website, wrapper.Company))
	}
	return out, nil
}

var hiringPattern = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+(?i:is hiring|hiring)\b`)

// Capitalized words that precede "is hiring" in thread titles rather than names.
var hiringStopwords = map[string]bool{"who": true, "ask": true, "now": true, "still": true, "also": true}

// ParseHNWhoIsHiring extracts "<Name> is hiring" mentions from Algolia HN hits.
func ParseHNWhoIsHiring(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	var doc struct {
		Hits []struct {
			ObjectID string `json:"objectID"`
			Title    string `json:"title"`
			Text     string `json:"story_text"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode hn hits: %w", err)
	}
	var out []prospect.DiscoveredCompany
	for _, hit := range doc.Hits {
		text := hit.Title + " " + hit.Text
		for _, m := range hiringPattern.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if len(strings.Fields(name)) > 4 || hiringStopwords[strings.ToLower(name)] {
				continue
			}
			out = append(out, company(src, name, guessURL(name), map[string]any{"hn_id": hit.ObjectID}))
		}
	}
	return out, nil
}

func guessURL(name string) string {
	return "https://" + strings.ReplaceAll(strings.ToLower(strings.Join(strings.Fields(name), " ")), " ", "") + ".com"
}
