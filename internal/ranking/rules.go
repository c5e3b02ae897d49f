// Package ranking classifies raw lookup records into outreach priorities and
// orders them for the send queue.
package ranking

import (
	"strings"

	"github.com/JakeFAU/prospector/internal/prospect"
)

// Field selects the record text a rule inspects.
type Field int

// Selectable fields.
const (
	FieldAll Field = iota
	FieldDepartmentOrLocalPart
	FieldType
)

// Rule assigns Priority when any keyword is contained in the selected text.
// FieldType rules compare the declared type for equality instead.
type Rule struct {
	Priority prospect.Priority
	Field    Field
	Keywords []string
}

// DecisionMakerKeywords mark executives and business owners. The list is
// intentionally broad and matches titles such as "Product Engineer".
var DecisionMakerKeywords = []string{
	"ceo", "cfo", "cto", "coo", "cmo", "chief", "president", "founder", "owner",
	"director", "vp", "vice president", "head of", "manager", "lead", "executive",
	"decision", "strategic", "business", "operations", "product", "sales",
	"marketing", "revenue", "growth", "strategy",
}

// HRKeywords mark recruiting and people teams.
var HRKeywords = []string{
	"hr", "human resources", "recruiting", "talent", "people", "careers", "jobs",
	"hiring", "director",
}

// EngineeringKeywords mark engineering teams.
var EngineeringKeywords = []string{
	"engineering", "engineer", "eng", "dev", "developer",
}

// DefaultRules is evaluated top to bottom; the first match wins.
var DefaultRules = []Rule{
	{Priority: prospect.PriorityDecisionMaker, Field: FieldAll, Keywords: DecisionMakerKeywords},
	{Priority: prospect.PriorityHR, Field: FieldDepartmentOrLocalPart, Keywords: HRKeywords},
	{Priority: prospect.PriorityEngineering, Field: FieldDepartmentOrLocalPart, Keywords: EngineeringKeywords},
	{Priority: prospect.PriorityGeneric, Field: FieldType, Keywords: []string{prospect.GenericContactType}},
}

// Record is a raw contact as returned by the lookup API.
type Record struct {
	Email      string
	FirstName  string
	LastName   string
	Position   string
	Department string
	Type       string
	Confidence *int
}

func (r Record) localPart() string {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}

func (r Record) fullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

func (r Record) text(field Field) []string {
	local := r.localPart()
	dept := strings.ToLower(r.Department)
	switch field {
	case FieldAll:
		all := strings.Join([]string{local, dept, strings.ToLower(r.fullName()), strings.ToLower(r.Position)}, " ")
		return []string{all}
	case FieldDepartmentOrLocalPart:
		return []string{dept, local}
	default:
		return nil
	}
}

func (rule Rule) matches(r Record) bool {
	if rule.Field == FieldType {
		declared := strings.ToLower(strings.TrimSpace(r.Type))
		for _, kw := range rule.Keywords {
			if declared == kw {
				return true
			}
		}
		return false
	}
	for _, text := range r.text(rule.Field) {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}
