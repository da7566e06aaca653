package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// Table is a flattened view of part of a report, used for the csv and
// tabular output formats.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

func (t Table) Write(w io.Writer, delimiter rune) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = delimiter
	if err := csvWriter.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (t Table) WriteTabular(w io.Writer, padding int) error {
	tabWriter := tabwriter.NewWriter(w, 0, 8, padding, '\t', 0)
	if err := t.Write(tabWriter, '\t'); err != nil {
		return err
	}
	return tabWriter.Flush()
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatShare(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func UsersTable(pop engagement.Population) Table {
	t := Table{
		Name: "users",
		Columns: []string{
			"userId", "name", "tier", "recency", "activeDays", "totalMessages",
			"totalConversations", "totalCredits", "firstActiveDate", "lastActiveDate", "daysSinceActive",
		},
	}
	for _, m := range pop {
		first, last := "", ""
		if m.ActiveDays > 0 {
			first = m.FirstActiveDate.Format(usage.DateLayout)
			last = m.LastActiveDate.Format(usage.DateLayout)
		}
		t.Rows = append(t.Rows, []string{
			m.UserID,
			m.Name,
			m.Tier.String(),
			m.Recency.String(),
			strconv.Itoa(m.ActiveDays),
			formatInt(m.TotalMessages),
			formatInt(m.TotalConversations),
			formatFloat(m.TotalCredits),
			first,
			last,
			strconv.Itoa(m.DaysSinceActive),
		})
	}
	return t
}

func SegmentsTable(segments []engagement.TierCount) Table {
	t := Table{Name: "segments", Columns: []string{"tier", "users", "share"}}
	for _, s := range segments {
		t.Rows = append(t.Rows, []string{s.Tier.String(), strconv.Itoa(s.Users), formatShare(s.Share)})
	}
	return t
}

func FunnelTable(funnel []engagement.StageCount) Table {
	t := Table{Name: "funnel", Columns: []string{"stage", "users", "conversionRate", "populationShare"}}
	for _, s := range funnel {
		t.Rows = append(t.Rows, []string{
			s.Stage.String(),
			strconv.Itoa(s.Users),
			formatShare(s.ConversionRate),
			formatShare(s.PopulationShare),
		})
	}
	return t
}

// Breakdown kinds served by BreakdownTable.
const (
	BreakdownTotals        = "totals"
	BreakdownClients       = "clients"
	BreakdownSubscriptions = "subscriptions"
	BreakdownDaily         = "daily"
	BreakdownDailyClients  = "daily-clients"
	BreakdownCredits       = "credits"
)

var BreakdownKinds = []string{
	BreakdownTotals,
	BreakdownClients,
	BreakdownSubscriptions,
	BreakdownDaily,
	BreakdownDailyClients,
	BreakdownCredits,
}

// BreakdownTable returns the table and the typed value of one breakdown
// kind.
func BreakdownTable(b engagement.Breakdown, kind string) (Table, interface{}, error) {
	t := Table{Name: kind}
	switch kind {
	case BreakdownTotals:
		t.Columns = []string{"users", "activeUsers", "messages", "conversations", "credits", "overageCredits"}
		t.Rows = [][]string{{
			strconv.Itoa(b.Totals.Users),
			strconv.Itoa(b.Totals.ActiveUsers),
			formatInt(b.Totals.Messages),
			formatInt(b.Totals.Conversations),
			formatFloat(b.Totals.Credits),
			formatFloat(b.Totals.OverageCredits),
		}}
		return t, b.Totals, nil
	case BreakdownClients:
		t.Columns = []string{"clientType", "users", "messages", "conversations", "credits"}
		for _, c := range b.Clients {
			t.Rows = append(t.Rows, []string{
				c.ClientType.String(),
				strconv.Itoa(c.Users),
				formatInt(c.Messages),
				formatInt(c.Conversations),
				formatFloat(c.Credits),
			})
		}
		return t, b.Clients, nil
	case BreakdownSubscriptions:
		t.Columns = []string{"subscriptionTier", "users", "messages", "credits"}
		for _, s := range b.Subscriptions {
			t.Rows = append(t.Rows, []string{
				s.SubscriptionTier.String(),
				strconv.Itoa(s.Users),
				formatInt(s.Messages),
				formatFloat(s.Credits),
			})
		}
		return t, b.Subscriptions, nil
	case BreakdownDaily:
		t.Columns = []string{"date", "activeUsers", "messages", "conversations", "credits"}
		for _, d := range b.Daily {
			t.Rows = append(t.Rows, []string{
				d.Date.Format(usage.DateLayout),
				strconv.Itoa(d.ActiveUsers),
				formatInt(d.Messages),
				formatInt(d.Conversations),
				formatFloat(d.Credits),
			})
		}
		return t, b.Daily, nil
	case BreakdownDailyClients:
		t.Columns = []string{"date", "clientType", "messages", "conversations"}
		for _, d := range b.DailyClients {
			t.Rows = append(t.Rows, []string{
				d.Date.Format(usage.DateLayout),
				d.ClientType.String(),
				formatInt(d.Messages),
				formatInt(d.Conversations),
			})
		}
		return t, b.DailyClients, nil
	case BreakdownCredits:
		t.Columns = []string{"userId", "credits", "overageCredits", "overageCap", "overageEnabled"}
		for _, c := range b.Credits {
			t.Rows = append(t.Rows, []string{
				c.UserID,
				formatFloat(c.Credits),
				formatFloat(c.OverageCredits),
				formatFloat(c.OverageCap),
				strconv.FormatBool(c.OverageEnabled),
			})
		}
		return t, b.Credits, nil
	}
	return t, nil, fmt.Errorf("unknown breakdown %q, must be one of %v", kind, BreakdownKinds)
}
