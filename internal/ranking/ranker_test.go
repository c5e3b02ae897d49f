package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prospector/internal/prospect"
)

func intPtr(v int) *int { return &v }

func TestClassifyPrecedence(t *testing.T) {
	t.Parallel()

	r := New(nil)
	tests := []struct {
		name string
		rec  Record
		want prospect.Priority
	}{
		{
			name: "cto in engineering is a decision maker",
			rec:  Record{Email: "ada@acme.com", Position: "CTO", Department: "Engineering"},
			want: prospect.PriorityDecisionMaker,
		},
		{
			name: "recruiting local part",
			rec:  Record{Email: "recruiting@acme.com"},
			want: prospect.PriorityHR,
		},
		{
			name: "hr department",
			rec:  Record{Email: "sam@acme.com", Department: "Human Resources"},
			want: prospect.PriorityHR,
		},
		{
			name: "engineering department",
			rec:  Record{Email: "kim@acme.com", Department: "it engineering"},
			want: prospect.PriorityEngineering,
		},
		{
			name: "dev local part",
			rec:  Record{Email: "devs@acme.com"},
			want: prospect.PriorityEngineering,
		},
		{
			name: "generic type",
			rec:  Record{Email: "info@acme.com", Type: "Generic"},
			want: prospect.PriorityGeneric,
		},
		{
			name: "unmatched personal",
			rec:  Record{Email: "pat@acme.com", Type: "personal", Department: "finance"},
			want: prospect.PriorityExcluded,
		},
		{
			name: "domain text is ignored",
			rec:  Record{Email: "pat@engineering-co.com", Type: "personal"},
			want: prospect.PriorityExcluded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, r.Classify(tt.rec))
		})
	}
}

func TestRankFiltersAndOrders(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Email: "info@acme.com", Type: "generic", Confidence: intPtr(90)},
		{Email: "  ", Type: "generic"},
		{Email: "Zed.Jobs@Acme.com", Type: "personal", Confidence: intPtr(70)},
		{Email: "alex@acme.com", Type: "personal", Department: "finance"},
		{Email: "ceo@acme.com", FirstName: "Ada", LastName: "Lovelace", Type: "personal", Confidence: intPtr(50)},
		{Email: "careers@acme.com", Type: "generic"},
		{Email: "b.hr@acme.com", Type: "personal", Confidence: intPtr(70)},
	}

	org, contacts := New(nil).Rank("acme.com", "", records)
	assert.Equal(t, "acme.com", org)

	emails := make([]string, 0, len(contacts))
	for _, c := range contacts {
		emails = append(emails, c.Email)
	}
	require.Equal(t, []string{
		"ceo@acme.com",
		"b.hr@acme.com",
		"zed.jobs@acme.com",
		"careers@acme.com",
		"info@acme.com",
	}, emails)

	assert.True(t, contacts[0].IsDecisionMaker)
	assert.Equal(t, "Ada Lovelace", contacts[0].Name)
	assert.Equal(t, prospect.UnknownName, contacts[1].Name)
	assert.Equal(t, prospect.PriorityGeneric, contacts[4].Priority)
	assert.Nil(t, contacts[3].Confidence)
}

func TestRankDeterministic(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Email: "b@x.com", Type: "generic", Confidence: intPtr(10)},
		{Email: "a@x.com", Type: "generic", Confidence: intPtr(10)},
		{Email: "c@x.com", Type: "generic"},
	}
	reversed := []Record{records[2], records[1], records[0]}

	_, first := New(nil).Rank("x.com", "X", records)
	_, second := New(nil).Rank("x.com", "X", reversed)
	assert.Equal(t, first, second)
	assert.Equal(t, "a@x.com", first[0].Email)
	assert.Equal(t, "c@x.com", first[2].Email)
}

func TestRankDefaultsType(t *testing.T) {
	t.Parallel()

	org, contacts := New(nil).Rank("x.com", " X Corp ", []Record{{Email: "talent@x.com"}})
	require.Len(t, contacts, 1)
	assert.Equal(t, "X Corp", org)
	assert.Equal(t, prospect.DefaultContactType, contacts[0].Type)
}

func TestCustomRules(t *testing.T) {
	t.Parallel()

	r := New([]Rule{{Priority: prospect.PriorityHR, Field: FieldAll, Keywords: []string{"ops"}}})
	assert.Equal(t, prospect.PriorityHR, r.Classify(Record{Email: "devops@x.com"}))
	assert.Equal(t, prospect.PriorityExcluded, r.Classify(Record{Email: "ceo@x.com"}))
}
