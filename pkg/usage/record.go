package usage

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the layout of the report date column.
	DateLayout = "2006-01-02"

	// timestampLayout is how Presto and Athena render a timestamp column
	// when the crawler typed the date as a timestamp.
	timestampLayout = "2006-01-02 15:04:05.000"
)

// DailyRecord is the activity of a single user on a single day.
type DailyRecord struct {
	UserID             string           `json:"userId"`
	Date               time.Time        `json:"date"`
	ClientType         ClientType       `json:"clientType"`
	Messages           int64            `json:"messages"`
	Conversations      int64            `json:"conversations"`
	CreditsUsed        float64          `json:"creditsUsed"`
	OverageCap         float64          `json:"overageCap"`
	OverageCreditsUsed float64          `json:"overageCreditsUsed"`
	OverageEnabled     bool             `json:"overageEnabled"`
	ProfileID          string           `json:"profileId,omitempty"`
	SubscriptionTier   SubscriptionTier `json:"subscriptionTier"`
}

// Key identifies the (user, date) pair a record belongs to.
func (r DailyRecord) Key() string {
	return r.UserID + "/" + r.Date.Format(DateLayout)
}

// Active reports whether the record counts as an active day.
func (r DailyRecord) Active() bool {
	return r.Messages > 0
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// ParseDate parses a report date. Both plain dates and Presto timestamps are
// accepted; the time of day is discarded.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, timestampLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ClientType is the product surface a record was reported from.
type ClientType int

const (
	ClientUnknown ClientType = iota
	ClientIDE
	ClientCLI
	ClientPlugin
)

var clientTypeNames = map[ClientType]string{
	ClientUnknown: "UNKNOWN",
	ClientIDE:     "KIRO_IDE",
	ClientCLI:     "KIRO_CLI",
	ClientPlugin:  "PLUGIN",
}

// ClientTypes lists every client type in display order.
func ClientTypes() []ClientType {
	return []ClientType{ClientIDE, ClientCLI, ClientPlugin, ClientUnknown}
}

func (c ClientType) String() string {
	if name, ok := clientTypeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ClientType(%d)", int(c))
}

// ParseClientType maps a client_type column value to a ClientType. An empty
// value is ClientUnknown, anything else that is not recognized is an error.
func ParseClientType(s string) (ClientType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ClientUnknown, nil
	}
	for c, name := range clientTypeNames {
		if name == s {
			return c, nil
		}
	}
	return ClientUnknown, fmt.Errorf("unknown client type %q", s)
}

func (c ClientType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClientType) UnmarshalText(b []byte) error {
	parsed, err := ParseClientType(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SubscriptionTier is the plan a user is subscribed to.
type SubscriptionTier int

const (
	SubscriptionUnknown SubscriptionTier = iota
	SubscriptionPro
	SubscriptionProPlus
	SubscriptionPower
)

var subscriptionTierNames = map[SubscriptionTier]string{
	SubscriptionUnknown: "Unknown",
	SubscriptionPro:     "Pro",
	SubscriptionProPlus: "ProPlus",
	SubscriptionPower:   "Power",
}

// SubscriptionTiers lists every subscription tier in display order.
func SubscriptionTiers() []SubscriptionTier {
	return []SubscriptionTier{SubscriptionPro, SubscriptionProPlus, SubscriptionPower, SubscriptionUnknown}
}

func (s SubscriptionTier) String() string {
	if name, ok := subscriptionTierNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SubscriptionTier(%d)", int(s))
}

// ParseSubscriptionTier accepts the plan names in any case, with or without
// separators ("PRO_PLUS", "Pro Plus", "pro+").
func ParseSubscriptionTier(s string) (SubscriptionTier, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "", " ", "", "+", "plus").Replace(norm)
	if norm == "" {
		return SubscriptionUnknown, nil
	}
	for tier, name := range subscriptionTierNames {
		if strings.ToLower(name) == norm {
			return tier, nil
		}
	}
	return SubscriptionUnknown, fmt.Errorf("unknown subscription tier %q", s)
}

func (s SubscriptionTier) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SubscriptionTier) UnmarshalText(b []byte) error {
	parsed, err := ParseSubscriptionTier(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
