package reporter

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/util/slice"
)

// Sort orders for user listings. Every order except userId puts the
// largest value first.
const (
	SortUserID     = "userId"
	SortActiveDays = "activeDays"
	SortMessages   = "messages"
	SortCredits    = "credits"
	SortLastActive = "lastActive"
)

var userSorts = map[string]func(a, b engagement.Member) bool{
	SortUserID:     func(a, b engagement.Member) bool { return false },
	SortActiveDays: func(a, b engagement.Member) bool { return a.ActiveDays > b.ActiveDays },
	SortMessages:   func(a, b engagement.Member) bool { return a.TotalMessages > b.TotalMessages },
	SortCredits:    func(a, b engagement.Member) bool { return a.TotalCredits > b.TotalCredits },
	SortLastActive: func(a, b engagement.Member) bool { return a.LastActiveDate.After(b.LastActiveDate) },
}

// UserFilter selects and orders members of a population.
type UserFilter struct {
	Tiers   []engagement.Tier
	Recency []engagement.Recency
	SortBy  string
	Limit   int
}

// ParseUserFilter reads the tier, recency, sort and limit query parameters.
// tier and recency accept comma separated values.
func ParseUserFilter(vals url.Values) (UserFilter, error) {
	f := UserFilter{SortBy: vals.Get("sort")}
	for _, v := range splitValues(vals["tier"]) {
		tier, err := engagement.ParseTier(v)
		if err != nil {
			return f, err
		}
		f.Tiers = append(f.Tiers, tier)
	}
	for _, v := range splitValues(vals["recency"]) {
		r, err := engagement.ParseRecency(v)
		if err != nil {
			return f, err
		}
		f.Recency = append(f.Recency, r)
	}
	if f.SortBy == "" {
		f.SortBy = SortUserID
	}
	if _, ok := userSorts[f.SortBy]; !ok {
		return f, fmt.Errorf("invalid sort %q", f.SortBy)
	}
	if limit := vals.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q, must be a non-negative integer", limit)
		}
		f.Limit = n
	}
	return f, nil
}

func splitValues(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Apply returns a filtered copy of pop. Ties are broken by user id.
func (f UserFilter) Apply(pop engagement.Population) engagement.Population {
	out := make(engagement.Population, 0, len(pop))
	for _, m := range pop {
		if len(f.Tiers) > 0 && !slice.Contains(f.Tiers, m.Tier) {
			continue
		}
		if len(f.Recency) > 0 && !slice.Contains(f.Recency, m.Recency) {
			continue
		}
		out = append(out, m)
	}

	less, ok := userSorts[f.SortBy]
	if !ok {
		less = userSorts[SortUserID]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].UserID < out[j].UserID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
