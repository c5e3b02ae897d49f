package ranking

import (
	"sort"
	"strings"

	"github.com/JakeFAU/prospector/internal/prospect"
)

// Ranker applies an ordered rule table.
type Ranker struct {
	rules []Rule
}

// New builds a Ranker. A nil rule set uses DefaultRules.
func New(rules []Rule) *Ranker {
	if rules == nil {
		rules = DefaultRules
	}
	return &Ranker{rules: rules}
}

// Classify returns the priority of the first matching rule, or
// PriorityExcluded when none match.
func (r *Ranker) Classify(rec Record) prospect.Priority {
	for _, rule := range r.rules {
		if rule.matches(rec) {
			return rule.Priority
		}
	}
	return prospect.PriorityExcluded
}

// Rank classifies records, drops blank and excluded entries, and sorts the
// rest by priority, confidence (descending, missing as zero), then email.
// The organization falls back to domain when blank.
func (r *Ranker) Rank(domain, organization string, records []Record) (string, []prospect.Contact) {
	org := strings.TrimSpace(organization)
	if org == "" {
		org = domain
	}
	contacts := make([]prospect.Contact, 0, len(records))
	for _, rec := range records {
		email := strings.ToLower(strings.TrimSpace(rec.Email))
		if email == "" {
			continue
		}
		priority := r.Classify(rec)
		if !priority.Persisted() {
			continue
		}
		contacts = append(contacts, toContact(rec, email, priority))
	}
	Sort(contacts)
	return org, contacts
}

func toContact(rec Record, email string, priority prospect.Priority) prospect.Contact {
	name := rec.fullName()
	if name == "" {
		name = prospect.UnknownName
	}
	ctype := strings.ToLower(strings.TrimSpace(rec.Type))
	if ctype == "" {
		ctype = prospect.DefaultContactType
	}
	return prospect.Contact{
		Email:           email,
		Name:            name,
		Position:        strings.TrimSpace(rec.Position),
		Department:      strings.TrimSpace(rec.Department),
		Type:            ctype,
		Confidence:      rec.Confidence,
		Priority:        priority,
		IsDecisionMaker: priority == prospect.PriorityDecisionMaker,
	}
}

// Sort orders contacts in queue order. It is stable for equal keys.
func Sort(contacts []prospect.Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if ac, bc := a.ConfidenceOrZero(), b.ConfidenceOrZero(); ac != bc {
			return ac > bc
		}
		return strings.ToLower(a.Email) < strings.ToLower(b.Email)
	})
}
