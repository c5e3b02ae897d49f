package discovery

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/regdomain"
)

// Link hosts that never identify a company.
var skipDomains = []string{
	"github.com", "twitter.com", "linkedin.com", "youtube.com",
	"medium.com", "wikipedia.org", "google.com", "producthunt.com",
}

func skipped(domain string) bool {
	for _, skip := range skipDomains {
		if strings.Contains(domain, skip) {
			return true
		}
	}
	return false
}

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	bareURL      = regexp.MustCompile(`https?://[^\s\)\]>]+`)
)

// ParseMarkdown collects [text](url) links and bare URLs from a README.
func ParseMarkdown(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	text := string(payload)
	var out []prospect.DiscoveredCompany
	seenURL := map[string]bool{}

	for _, m := range markdownLink.FindAllStringSubmatch(text, -1) {
		label, u := m[1], strings.TrimSpace(m[2])
		if !strings.HasPrefix(u, "http") {
			continue
		}
		domain, err := regdomain.Normalize(u)
		if err != nil || skipped(domain) {
			continue
		}
		seenURL[u] = true
		out = append(out, company(src, truncate(label, 50), u, map[string]any{"link_text": label}))
	}
	for _, u := range bareURL.FindAllString(text, -1) {
		if seenURL[u] {
			continue
		}
		domain, err := regdomain.Normalize(u)
		if err != nil || len(domain) <= 4 || skipped(domain) {
			continue
		}
		seenURL[u] = true
		out = append(out, company(src, titleFromDomain(domain), u, map[string]any{"url": u}))
	}
	return out, nil
}

// ParsePlainText reads one domain per line. Blank lines and # comments are
// ignored, and only the first word of each line is used.
func ParsePlainText(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	var out []prospect.DiscoveredCompany
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word := strings.Trim(strings.Fields(line)[0], "*-")
		word = strings.TrimSpace(word)
		if word == "" || !strings.Contains(word, ".") {
			continue
		}
		u := word
		if !strings.HasPrefix(word, "http") {
			u = "https://" + word
		}
		name := word
		if domain, err := regdomain.Normalize(word); err == nil {
			name = titleFromDomain(domain)
		}
		out = append(out, company(src, name, u, map[string]any{"line": line}))
	}
	return out, nil
}

var (
	csvURLFields  = []string{"url", "website", "domain", "homepage", "link", "URL", "Website"}
	csvNameFields = []string{"name", "company", "Name", "Company", "title"}
)

// ParseCSV reads a headed CSV. The first non-empty URL-like column supplies
// the website and remaining non-name columns become metadata.
func ParseCSV(payload []byte, src Source) ([]prospect.DiscoveredCompany, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var out []prospect.DiscoveredCompany
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read csv row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		u := firstField(row, csvURLFields)
		if u == "" {
			continue
		}
		name := firstField(row, csvNameFields)
		if name == "" {
			if domain, err := regdomain.Normalize(u); err == nil {
				name = titleFromDomain(domain)
			} else {
				name = "Unknown"
			}
		}
		if !strings.HasPrefix(u, "http") {
			u = "https://" + u
		}
		metadata := map[string]any{}
		for k, v := range row {
			if !contains(csvURLFields, k) && !contains(csvNameFields, k) {
				metadata[k] = v
			}
		}
		out = append(out, company(src, name, u, metadata))
	}
	return out, nil
}

func firstField(row map[string]string, fields []string) string {
	for _, f := range fields {
		if v := strings.TrimSpace(row[f]); v != "" {
			return v
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
