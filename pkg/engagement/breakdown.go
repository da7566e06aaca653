package engagement

import (
	"sort"
	"time"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// Totals are the organization wide sums over the window.
type Totals struct {
	Users          int     `json:"users"`
	ActiveUsers    int     `json:"activeUsers"`
	Messages       int64   `json:"messages"`
	Conversations  int64   `json:"conversations"`
	Credits        float64 `json:"credits"`
	OverageCredits float64 `json:"overageCredits"`
}

type ClientUsage struct {
	ClientType    usage.ClientType `json:"clientType"`
	Users         int              `json:"users"`
	Messages      int64            `json:"messages"`
	Conversations int64            `json:"conversations"`
	Credits       float64          `json:"credits"`
}

type SubscriptionUsage struct {
	SubscriptionTier usage.SubscriptionTier `json:"subscriptionTier"`
	Users            int                    `json:"users"`
	Messages         int64                  `json:"messages"`
	Credits          float64                `json:"credits"`
}

type DailyActivity struct {
	Date          time.Time `json:"date"`
	ActiveUsers   int       `json:"activeUsers"`
	Messages      int64     `json:"messages"`
	Conversations int64     `json:"conversations"`
	Credits       float64   `json:"credits"`
}

// DailyClientActivity is one day's usage of a single client type.
type DailyClientActivity struct {
	Date          time.Time        `json:"date"`
	ClientType    usage.ClientType `json:"clientType"`
	Messages      int64            `json:"messages"`
	Conversations int64            `json:"conversations"`
}

type dayClient struct {
	date   time.Time
	client usage.ClientType
}

// UserCredits splits a user's consumption into plan and overage credits.
type UserCredits struct {
	UserID         string  `json:"userId"`
	Credits        float64 `json:"credits"`
	OverageCredits float64 `json:"overageCredits"`
	OverageCap     float64 `json:"overageCap"`
	OverageEnabled bool    `json:"overageEnabled"`
}

// Combined is plan plus overage credits.
func (c UserCredits) Combined() float64 {
	return c.Credits + c.OverageCredits
}

// Breakdown slices the window's records by client, plan and day.
type Breakdown struct {
	Totals        Totals                `json:"totals"`
	Clients       []ClientUsage         `json:"clients"`
	Subscriptions []SubscriptionUsage   `json:"subscriptions"`
	Daily         []DailyActivity       `json:"daily"`
	DailyClients  []DailyClientActivity `json:"dailyClients"`
	Credits       []UserCredits         `json:"credits"`
}

// ComputeBreakdown expects records that were already de-duplicated, as
// found in Aggregation.Records. Client types and plans without any record
// are left out.
func ComputeBreakdown(records []usage.DailyRecord) Breakdown {
	var b Breakdown

	users := map[string]struct{}{}
	activeUsers := map[string]struct{}{}
	clientUsers := map[usage.ClientType]map[string]struct{}{}
	clients := map[usage.ClientType]*ClientUsage{}
	planUsers := map[usage.SubscriptionTier]map[string]struct{}{}
	plans := map[usage.SubscriptionTier]*SubscriptionUsage{}
	days := map[time.Time]*DailyActivity{}
	dayClients := map[dayClient]*DailyClientActivity{}
	credits := map[string]*UserCredits{}

	for _, rec := range records {
		users[rec.UserID] = struct{}{}
		b.Totals.Messages += rec.Messages
		b.Totals.Conversations += rec.Conversations
		b.Totals.Credits += rec.CreditsUsed
		b.Totals.OverageCredits += rec.OverageCreditsUsed

		c, ok := clients[rec.ClientType]
		if !ok {
			c = &ClientUsage{ClientType: rec.ClientType}
			clients[rec.ClientType] = c
			clientUsers[rec.ClientType] = map[string]struct{}{}
		}
		clientUsers[rec.ClientType][rec.UserID] = struct{}{}
		c.Messages += rec.Messages
		c.Conversations += rec.Conversations
		c.Credits += rec.CreditsUsed

		p, ok := plans[rec.SubscriptionTier]
		if !ok {
			p = &SubscriptionUsage{SubscriptionTier: rec.SubscriptionTier}
			plans[rec.SubscriptionTier] = p
			planUsers[rec.SubscriptionTier] = map[string]struct{}{}
		}
		planUsers[rec.SubscriptionTier][rec.UserID] = struct{}{}
		p.Messages += rec.Messages
		p.Credits += rec.CreditsUsed

		d, ok := days[rec.Date]
		if !ok {
			d = &DailyActivity{Date: rec.Date}
			days[rec.Date] = d
		}
		if rec.Active() {
			d.ActiveUsers++
			activeUsers[rec.UserID] = struct{}{}
		}
		d.Messages += rec.Messages
		d.Conversations += rec.Conversations
		d.Credits += rec.CreditsUsed

		key := dayClient{date: rec.Date, client: rec.ClientType}
		dc, ok := dayClients[key]
		if !ok {
			dc = &DailyClientActivity{Date: rec.Date, ClientType: rec.ClientType}
			dayClients[key] = dc
		}
		dc.Messages += rec.Messages
		dc.Conversations += rec.Conversations

		uc, ok := credits[rec.UserID]
		if !ok {
			uc = &UserCredits{UserID: rec.UserID}
			credits[rec.UserID] = uc
		}
		uc.Credits += rec.CreditsUsed
		uc.OverageCredits += rec.OverageCreditsUsed
		if rec.OverageCap > uc.OverageCap {
			uc.OverageCap = rec.OverageCap
		}
		uc.OverageEnabled = uc.OverageEnabled || rec.OverageEnabled
	}

	b.Totals.Users = len(users)
	b.Totals.ActiveUsers = len(activeUsers)

	for _, ct := range usage.ClientTypes() {
		if c, ok := clients[ct]; ok {
			c.Users = len(clientUsers[ct])
			b.Clients = append(b.Clients, *c)
		}
	}
	for _, tier := range usage.SubscriptionTiers() {
		if p, ok := plans[tier]; ok {
			p.Users = len(planUsers[tier])
			b.Subscriptions = append(b.Subscriptions, *p)
		}
	}
	for _, d := range days {
		b.Daily = append(b.Daily, *d)
	}
	sort.Slice(b.Daily, func(i, j int) bool { return b.Daily[i].Date.Before(b.Daily[j].Date) })

	clientOrder := map[usage.ClientType]int{}
	for i, ct := range usage.ClientTypes() {
		clientOrder[ct] = i
	}
	for _, dc := range dayClients {
		b.DailyClients = append(b.DailyClients, *dc)
	}
	sort.Slice(b.DailyClients, func(i, j int) bool {
		a, c := b.DailyClients[i], b.DailyClients[j]
		if !a.Date.Equal(c.Date) {
			return a.Date.Before(c.Date)
		}
		return clientOrder[a.ClientType] < clientOrder[c.ClientType]
	})

	for _, uc := range credits {
		b.Credits = append(b.Credits, *uc)
	}
	sort.Slice(b.Credits, func(i, j int) bool {
		if b.Credits[i].Combined() != b.Credits[j].Combined() {
			return b.Credits[i].Combined() > b.Credits[j].Combined()
		}
		return b.Credits[i].UserID < b.Credits[j].UserID
	})
	return b
}
