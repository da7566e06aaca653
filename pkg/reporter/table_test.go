package reporter

import (
	"bytes"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

func TestTableWrite(t *testing.T) {
	table := Table{
		Name:    "example",
		Columns: []string{"a", "b"},
		Rows:    [][]string{{"1", "has,comma"}, {"2", ""}},
	}
	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf, ','))
	assert.Equal(t, "a,b\n1,\"has,comma\"\n2,\n", buf.String())
}

func TestBreakdownTable(t *testing.T) {
	b := engagement.ComputeBreakdown([]usage.DailyRecord{
		{
			UserID:           "u1",
			Date:             time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			Messages:         4,
			CreditsUsed:      2.5,
			ClientType:       usage.ClientCLI,
			SubscriptionTier: usage.SubscriptionPower,
		},
	})

	tests := map[string]struct {
		columns []string
		row     []string
	}{
		BreakdownTotals: {
			columns: []string{"users", "activeUsers", "messages", "conversations", "credits", "overageCredits"},
			row:     []string{"1", "1", "4", "0", "2.5", "0"},
		},
		BreakdownClients: {
			columns: []string{"clientType", "users", "messages", "conversations", "credits"},
			row:     []string{"KIRO_CLI", "1", "4", "0", "2.5"},
		},
		BreakdownSubscriptions: {
			columns: []string{"subscriptionTier", "users", "messages", "credits"},
			row:     []string{"Power", "1", "4", "2.5"},
		},
		BreakdownDaily: {
			columns: []string{"date", "activeUsers", "messages", "conversations", "credits"},
			row:     []string{"2025-03-01", "1", "4", "0", "2.5"},
		},
		BreakdownDailyClients: {
			columns: []string{"date", "clientType", "messages", "conversations"},
			row:     []string{"2025-03-01", "KIRO_CLI", "4", "0"},
		},
		BreakdownCredits: {
			columns: []string{"userId", "credits", "overageCredits", "overageCap", "overageEnabled"},
			row:     []string{"u1", "2.5", "0", "0", "false"},
		},
	}

	for kind, tt := range tests {
		kind, tt := kind, tt
		t.Run(kind, func(t *testing.T) {
			table, value, err := BreakdownTable(b, kind)
			require.NoError(t, err)
			assert.NotNil(t, value)
			assert.Equal(t, kind, table.Name)
			assert.Equal(t, tt.columns, table.Columns)
			require.Len(t, table.Rows, 1)
			assert.Equal(t, tt.row, table.Rows[0])
		})
	}

	_, _, err := BreakdownTable(b, "weather")
	assert.Error(t, err)
}

func TestUserFilter(t *testing.T) {
	pop := engagement.Population{
		{UserSummary: engagement.UserSummary{UserID: "a", ActiveDays: 3, TotalMessages: 10}, Tier: engagement.TierLight, Recency: engagement.RecencyWeek},
		{UserSummary: engagement.UserSummary{UserID: "b", ActiveDays: 20, TotalMessages: 10}, Tier: engagement.TierPower, Recency: engagement.RecencyWeek},
		{UserSummary: engagement.UserSummary{UserID: "c", DaysSinceActive: -1}, Tier: engagement.TierIdle, Recency: engagement.RecencyNever},
	}

	tests := map[string]struct {
		query    url.Values
		expected []string
	}{
		"default order is by id": {
			query:    url.Values{},
			expected: []string{"a", "b", "c"},
		},
		"ties are broken by id": {
			query:    url.Values{"sort": {"messages"}},
			expected: []string{"a", "b", "c"},
		},
		"active days descending": {
			query:    url.Values{"sort": {"activeDays"}},
			expected: []string{"b", "a", "c"},
		},
		"repeated tier parameters": {
			query:    url.Values{"tier": {"idle", "power"}},
			expected: []string{"b", "c"},
		},
		"recency and limit": {
			query:    url.Values{"recency": {"week"}, "limit": {"1"}},
			expected: []string{"a"},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			f, err := ParseUserFilter(tt.query)
			require.NoError(t, err)
			ids := []string{}
			for _, m := range f.Apply(pop) {
				ids = append(ids, m.UserID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}
