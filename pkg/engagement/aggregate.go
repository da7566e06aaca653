package engagement

import (
	"sort"
	"time"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// UserSummary is the activity of one user over the reporting window.
type UserSummary struct {
	UserID             string    `json:"userId"`
	TotalMessages      int64     `json:"totalMessages"`
	TotalConversations int64     `json:"totalConversations"`
	TotalCredits       float64   `json:"totalCredits"`
	ActiveDays         int       `json:"activeDays"`
	FirstActiveDate    time.Time `json:"firstActiveDate"`
	LastActiveDate     time.Time `json:"lastActiveDate"`
	// DaysSinceActive is the number of days between the last active date
	// and the end of the window. It is -1 when the user was never active.
	DaysSinceActive int `json:"daysSinceActive"`
}

// Aggregation is the per-user view of one snapshot of daily records.
type Aggregation struct {
	Window Window
	// Summaries holds every user with at least one active day.
	Summaries map[string]UserSummary
	// Inactive holds users that appear in the data without a single active
	// day. Their ActiveDays is zero.
	Inactive map[string]UserSummary
	// Records are the de-duplicated records inside the window.
	Records []usage.DailyRecord
	Quality usage.DataQuality
}

// Aggregate collapses daily records into per-user summaries. Records are
// de-duplicated by (user, date) keeping the first one seen, and records
// dated outside the window are dropped. A zero windowEnd means the window
// ends on the latest date found in records.
func Aggregate(records []usage.DailyRecord, cfg Config, windowEnd time.Time) (*Aggregation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if windowEnd.IsZero() {
		windowEnd = latestDate(records)
	}

	agg := &Aggregation{
		Window:    NewWindow(windowEnd, cfg.WindowDays),
		Summaries: map[string]UserSummary{},
		Inactive:  map[string]UserSummary{},
		Quality:   usage.DataQuality{TotalRows: len(records)},
	}

	seen := make(map[string]struct{}, len(records))
	all := map[string]*UserSummary{}
	for _, rec := range records {
		key := rec.Key()
		if !agg.Window.Contains(rec.Date) {
			agg.Quality.RecordOutOfWindow(key)
			continue
		}
		if _, dup := seen[key]; dup {
			agg.Quality.RecordDuplicate(key)
			continue
		}
		seen[key] = struct{}{}
		agg.Records = append(agg.Records, rec)

		s, ok := all[rec.UserID]
		if !ok {
			s = &UserSummary{UserID: rec.UserID, DaysSinceActive: -1}
			all[rec.UserID] = s
		}
		s.TotalMessages += rec.Messages
		s.TotalConversations += rec.Conversations
		s.TotalCredits += rec.CreditsUsed

		if !rec.Active() {
			continue
		}
		// each (user, date) is seen once, so every active record is a new active day
		s.ActiveDays++
		if s.FirstActiveDate.IsZero() || rec.Date.Before(s.FirstActiveDate) {
			s.FirstActiveDate = rec.Date
		}
		if rec.Date.After(s.LastActiveDate) {
			s.LastActiveDate = rec.Date
		}
	}

	for id, s := range all {
		if s.ActiveDays == 0 {
			agg.Inactive[id] = *s
			continue
		}
		s.DaysSinceActive = usage.DaysBetween(s.LastActiveDate, agg.Window.End)
		agg.Summaries[id] = *s
	}

	sort.SliceStable(agg.Records, func(i, j int) bool {
		if !agg.Records[i].Date.Equal(agg.Records[j].Date) {
			return agg.Records[i].Date.Before(agg.Records[j].Date)
		}
		return agg.Records[i].UserID < agg.Records[j].UserID
	})
	return agg, nil
}

func latestDate(records []usage.DailyRecord) time.Time {
	var latest time.Time
	for _, rec := range records {
		if rec.Date.After(latest) {
			latest = rec.Date
		}
	}
	if latest.IsZero() {
		return usage.Day(time.Now())
	}
	return latest
}
