package engagement

import (
	"fmt"
	"strings"
)

// Tier is the engagement bucket of a user.
type Tier int

const (
	TierIdle Tier = iota
	TierLight
	TierActive
	TierPower
)

var tierNames = map[Tier]string{
	TierIdle:   "Idle",
	TierLight:  "Light",
	TierActive: "Active",
	TierPower:  "Power",
}

// Tiers lists the tiers from most to least engaged.
func Tiers() []Tier {
	return []Tier{TierPower, TierActive, TierLight, TierIdle}
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return TierIdle, fmt.Errorf("unknown engagement tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Engaged reports whether the tier counts as engaged for the funnel.
func (t Tier) Engaged() bool {
	switch t {
	case TierLight, TierActive, TierPower:
		return true
	}
	return false
}

// Classify assigns a tier from the share of window days a user was active.
// A ratio exactly on a threshold belongs to the higher tier.
func Classify(s UserSummary, cfg Config) (Tier, error) {
	if cfg.WindowDays < 1 {
		return TierIdle, ErrInvalidWindow
	}
	if s.ActiveDays <= 0 {
		return TierIdle, nil
	}
	ratio := float64(s.ActiveDays) / float64(cfg.WindowDays)
	switch {
	case ratio >= cfg.PowerRatio:
		return TierPower, nil
	case ratio >= cfg.ActiveRatio:
		return TierActive, nil
	default:
		return TierLight, nil
	}
}

// Recency buckets a user by how long ago they were last active.
type Recency int

const (
	RecencyNever Recency = iota
	RecencyWeek
	RecencyMonth
	RecencyInactive
	RecencyDormant
)

var recencyNames = map[Recency]string{
	RecencyNever:    "never",
	RecencyWeek:     "week",
	RecencyMonth:    "month",
	RecencyInactive: "inactive",
	RecencyDormant:  "dormant",
}

func (r Recency) String() string {
	if name, ok := recencyNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Recency(%d)", int(r))
}

func ParseRecency(s string) (Recency, error) {
	for r, name := range recencyNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return RecencyNever, fmt.Errorf("unknown recency %q", s)
}

func (r Recency) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Recency) UnmarshalText(b []byte) error {
	parsed, err := ParseRecency(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RecencyOf buckets a summary: active within 7 days, within 30 days, within
// 90 days or longer ago.
func RecencyOf(s UserSummary) Recency {
	switch {
	case s.ActiveDays == 0 || s.DaysSinceActive < 0:
		return RecencyNever
	case s.DaysSinceActive <= 7:
		return RecencyWeek
	case s.DaysSinceActive <= 30:
		return RecencyMonth
	case s.DaysSinceActive <= 90:
		return RecencyInactive
	default:
		return RecencyDormant
	}
}

// TierCount is the number of users in one tier.
type TierCount struct {
	Tier  Tier    `json:"tier"`
	Users int     `json:"users"`
	Share float64 `json:"share"`
}

// Segments counts the population per tier, every tier included.
func Segments(pop Population) []TierCount {
	counts := map[Tier]int{}
	for _, m := range pop {
		counts[m.Tier]++
	}
	out := make([]TierCount, 0, len(tierNames))
	for _, t := range Tiers() {
		out = append(out, TierCount{
			Tier:  t,
			Users: counts[t],
			Share: ratio(counts[t], len(pop)),
		})
	}
	return out
}

func ratio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
