package prospect

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// ContactStatus is the tri-state delivery status of a contact.
type ContactStatus int

// Contact status values persisted in the contacted column.
const (
	StatusFailed  ContactStatus = -1
	StatusPending ContactStatus = 0
	StatusSent    ContactStatus = 1
)

// String returns the lowercase name of the status.
func (s ContactStatus) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	default:
		return "unknown"
	}
}

// Priority ranks a contact for outreach. Lower values go first.
type Priority int

// Priority buckets assigned by the ranking rules.
const (
	PriorityDecisionMaker Priority = 0
	PriorityHR            Priority = 1
	PriorityEngineering   Priority = 2
	PriorityGeneric       Priority = 3
	PriorityExcluded      Priority = 4
)

// String returns a short label for logs and metrics.
func (p Priority) String() string {
	switch p {
	case PriorityDecisionMaker:
		return "decision_maker"
	case PriorityHR:
		return "hr"
	case PriorityEngineering:
		return "engineering"
	case PriorityGeneric:
		return "generic"
	case PriorityExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Persisted reports whether contacts of this priority are stored.
func (p Priority) Persisted() bool {
	return p >= PriorityDecisionMaker && p < PriorityExcluded
}

// Defaults applied when a field is missing.
const (
	DefaultCategory    = "engineering"
	DefaultContactType = "unknown"
	GenericContactType = "generic"
	UnknownName        = "N/A"
	MaxErrorLength     = 500
)

// DiscoveredCompany is a candidate company emitted by a source adapter.
type DiscoveredCompany struct {
	URL            string         `json:"url"`
	Domain         string         `json:"domain"`
	Name           string         `json:"name,omitempty"`
	SourceName     string         `json:"source_name"`
	DiscoveredFrom string         `json:"discovered_from,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CompanyInput carries the fields written by UpsertCompany.
type CompanyInput struct {
	Domain         string
	Organization   string
	Category       string
	DiscoveredFrom string
	SourceName     string
	Metadata       json.RawMessage
}

// Company is a persisted company row.
type Company struct {
	ID             int64
	Domain         string
	Organization   string
	Category       string
	DiscoveredFrom string
	SourceName     string
	Metadata       json.RawMessage
	LastChecked    *time.Time
}

// Contact is a ranked contact produced by the classifier.
type Contact struct {
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	Position        string   `json:"position,omitempty"`
	Department      string   `json:"department,omitempty"`
	Type            string   `json:"type"`
	Confidence      *int     `json:"confidence"`
	Priority        Priority `json:"priority"`
	IsDecisionMaker bool     `json:"is_decision_maker"`
}

// ConfidenceOrZero returns the confidence score, treating missing as zero.
func (c Contact) ConfidenceOrZero() int {
	if c.Confidence == nil {
		return 0
	}
	return *c.Confidence
}

// PendingContact is a queue entry joined with its company.
type PendingContact struct {
	ID           int64
	CompanyID    int64
	Email        string
	Name         string
	Type         string
	Confidence   *int
	Priority     Priority
	Domain       string
	Organization string
	Category     string
}

// IsGeneric reports whether the contact is a shared inbox.
func (p PendingContact) IsGeneric() bool {
	return p.Type == GenericContactType
}

// StatusCounts summarizes the store for operator reports.
type StatusCounts struct {
	Companies int `json:"companies"`
	Contacts  int `json:"contacts"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Processed returns the number of contacts in a terminal state.
func (s StatusCounts) Processed() int {
	return s.Sent + s.Failed
}

// TruncateError renders err for the last_error column.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	return TruncateReason(err.Error())
}

// TruncateReason keeps the first MaxErrorLength characters of reason. The cut
// falls on a rune boundary so the result stays valid UTF-8.
func TruncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= MaxErrorLength {
		return reason
	}
	return string([]rune(reason)[:MaxErrorLength])
}
