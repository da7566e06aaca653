package engagement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

func TestComputeBreakdown(t *testing.T) {
	records := []usage.DailyRecord{
		{UserID: "a", Date: day(1), ClientType: usage.ClientCLI, Messages: 4, Conversations: 1, CreditsUsed: 2, SubscriptionTier: usage.SubscriptionPro},
		{UserID: "a", Date: day(2), ClientType: usage.ClientIDE, Messages: 6, Conversations: 2, CreditsUsed: 3, OverageCreditsUsed: 5, OverageCap: 50, OverageEnabled: true, SubscriptionTier: usage.SubscriptionPro},
		{UserID: "b", Date: day(1), ClientType: usage.ClientIDE, Messages: 10, Conversations: 3, CreditsUsed: 4, SubscriptionTier: usage.SubscriptionPower},
		{UserID: "c", Date: day(2), ClientType: usage.ClientIDE, Messages: 0, SubscriptionTier: usage.SubscriptionPower},
	}
	b := ComputeBreakdown(records)

	assert.Equal(t, Totals{
		Users:          3,
		ActiveUsers:    2,
		Messages:       20,
		Conversations:  6,
		Credits:        9,
		OverageCredits: 5,
	}, b.Totals)

	require.Len(t, b.Clients, 2)
	assert.Equal(t, usage.ClientIDE, b.Clients[0].ClientType)
	assert.Equal(t, 3, b.Clients[0].Users)
	assert.Equal(t, int64(16), b.Clients[0].Messages)
	assert.Equal(t, usage.ClientCLI, b.Clients[1].ClientType)
	assert.Equal(t, 1, b.Clients[1].Users)

	require.Len(t, b.Subscriptions, 2)
	assert.Equal(t, usage.SubscriptionPro, b.Subscriptions[0].SubscriptionTier)
	assert.Equal(t, 1, b.Subscriptions[0].Users)
	assert.Equal(t, usage.SubscriptionPower, b.Subscriptions[1].SubscriptionTier)
	assert.Equal(t, 2, b.Subscriptions[1].Users)

	require.Len(t, b.Daily, 2)
	assert.Equal(t, day(1), b.Daily[0].Date)
	assert.Equal(t, 2, b.Daily[0].ActiveUsers)
	assert.Equal(t, int64(14), b.Daily[0].Messages)
	assert.Equal(t, 1, b.Daily[1].ActiveUsers)

	assert.Equal(t, []DailyClientActivity{
		{Date: day(1), ClientType: usage.ClientIDE, Messages: 10, Conversations: 3},
		{Date: day(1), ClientType: usage.ClientCLI, Messages: 4, Conversations: 1},
		{Date: day(2), ClientType: usage.ClientIDE, Messages: 6, Conversations: 2},
	}, b.DailyClients)

	require.Len(t, b.Credits, 3)
	assert.Equal(t, "a", b.Credits[0].UserID)
	assert.Equal(t, 10.0, b.Credits[0].Combined())
	assert.Equal(t, 50.0, b.Credits[0].OverageCap)
	assert.True(t, b.Credits[0].OverageEnabled)
	assert.Equal(t, "b", b.Credits[1].UserID)
	assert.Equal(t, "c", b.Credits[2].UserID)
}

func TestComputeBreakdownEmpty(t *testing.T) {
	b := ComputeBreakdown(nil)
	assert.Equal(t, Totals{}, b.Totals)
	assert.Empty(t, b.Clients)
	assert.Empty(t, b.Subscriptions)
	assert.Empty(t, b.Daily)
	assert.Empty(t, b.DailyClients)
	assert.Empty(t, b.Credits)
}
