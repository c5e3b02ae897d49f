// Package batch reads and writes the contacts JSON interchange files and
// imports them into the store.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/JakeFAU/prospector/internal/prospect"
)

// FilePattern matches batch files in an export directory.
const FilePattern = "contacts*.json"

// ErrNoBatch is returned when a directory holds no batch files.
var ErrNoBatch = errors.New("no contacts batch files found")

// Contact is one contact entry of a batch file.
type Contact struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Position        string `json:"position,omitempty"`
	Department      string `json:"department,omitempty"`
	Type            string `json:"type,omitempty"`
	Confidence      *int   `json:"confidence"`
	Priority        *int   `json:"priority,omitempty"`
	IsDecisionMaker bool   `json:"is_decision_maker,omitempty"`
}

// Company is one company entry of a batch file.
type Company struct {
	Company      string    `json:"company,omitempty"`
	Domain       string    `json:"domain"`
	Organization string    `json:"organization"`
	Category     string    `json:"category,omitempty"`
	Contacts     []Contact `json:"contacts"`
}

// File describes a batch file on disk.
type File struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// FromContacts converts ranked contacts into batch entries.
func FromContacts(contacts []prospect.Contact) []Contact {
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		priority := int(c.Priority)
		out = append(out, Contact{
			Email:           c.Email,
			Name:            c.Name,
			Position:        c.Position,
			Department:      c.Department,
			Type:            c.Type,
			Confidence:      c.Confidence,
			Priority:        &priority,
			IsDecisionMaker: c.IsDecisionMaker,
		})
	}
	return out
}

// FileName returns the export file name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("contacts_%s.json", t.Format("20060102_1504"))
}

// Read decodes a batch file.
func Read(path string) ([]Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", path, err)
	}
	var out []Company
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", path, err)
	}
	return out, nil
}

// Write encodes companies to path, replacing any existing file.
func Write(path string, companies []Company) error {
	if companies == nil {
		companies = []Company{}
	}
	data, err := json.MarshalIndent(companies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create batch dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write batch %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename batch %s: %w", path, err)
	}
	return nil
}

// List returns the batch files in dir, newest first.
func List(dir string) ([]File, error) {
	matches, err := filepath.Glob(filepath.Join(dir, FilePattern))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	files := make([]File, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, File{Path: m, ModTime: info.ModTime(), Size: info.Size()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Path > files[j].Path
	})
	return files, nil
}

// Latest returns the most recently modified batch file in dir.
func Latest(dir string) (string, error) {
	files, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoBatch
	}
	return files[0].Path, nil
}
