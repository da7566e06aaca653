package engagement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		activeDays int
		windowDays int
		expected   Tier
	}{
		"no activity is idle": {
			activeDays: 0,
			windowDays: 30,
			expected:   TierIdle,
		},
		"a single day is light": {
			activeDays: 1,
			windowDays: 30,
			expected:   TierLight,
		},
		"just under the active threshold is light": {
			activeDays: 8,
			windowDays: 30,
			expected:   TierLight,
		},
		"exactly the active threshold is active": {
			activeDays: 3,
			windowDays: 10,
			expected:   TierActive,
		},
		"two of three days is active": {
			activeDays: 2,
			windowDays: 3,
			expected:   TierActive,
		},
		"exactly the power threshold is power": {
			activeDays: 7,
			windowDays: 10,
			expected:   TierPower,
		},
		"every day is power": {
			activeDays: 30,
			windowDays: 30,
			expected:   TierPower,
		},
		"one day window": {
			activeDays: 1,
			windowDays: 1,
			expected:   TierPower,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			s := UserSummary{UserID: "u", ActiveDays: tt.activeDays}
			tier, err := Classify(s, windowConfig(tt.windowDays))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tier)

			again, err := Classify(s, windowConfig(tt.windowDays))
			require.NoError(t, err)
			assert.Equal(t, tier, again, "classification must be deterministic")
		})
	}
}

func TestClassifyInvalidWindow(t *testing.T) {
	_, err := Classify(UserSummary{ActiveDays: 1}, windowConfig(0))
	assert.Equal(t, ErrInvalidWindow, err)
}

func TestRecencyOf(t *testing.T) {
	for _, tt := range []struct {
		activeDays int
		since      int
		expected   Recency
	}{
		{0, -1, RecencyNever},
		{1, 0, RecencyWeek},
		{1, 7, RecencyWeek},
		{1, 8, RecencyMonth},
		{1, 30, RecencyMonth},
		{1, 90, RecencyInactive},
		{1, 91, RecencyDormant},
	} {
		got := RecencyOf(UserSummary{ActiveDays: tt.activeDays, DaysSinceActive: tt.since})
		assert.Equal(t, tt.expected, got, "since=%d", tt.since)
	}
}

func TestSegmentsCoverEveryTier(t *testing.T) {
	pop := Population{
		{UserSummary: UserSummary{UserID: "a"}, Tier: TierPower},
		{UserSummary: UserSummary{UserID: "b"}, Tier: TierPower},
		{UserSummary: UserSummary{UserID: "c"}, Tier: TierLight},
		{UserSummary: UserSummary{UserID: "d"}, Tier: TierIdle},
	}
	segments := Segments(pop)
	require.Len(t, segments, 4)

	total := 0
	for i, tier := range Tiers() {
		assert.Equal(t, tier, segments[i].Tier)
		total += segments[i].Users
	}
	assert.Equal(t, len(pop), total)
	assert.Equal(t, 2, segments[0].Users)
	assert.Equal(t, 0.5, segments[0].Share)
	assert.Equal(t, 0, segments[1].Users)
	assert.Equal(t, 0.0, segments[1].Share)
}

func TestSegmentsEmpty(t *testing.T) {
	for _, s := range Segments(nil) {
		assert.Equal(t, 0, s.Users)
		assert.Equal(t, 0.0, s.Share)
	}
}

func TestTierText(t *testing.T) {
	for _, tier := range Tiers() {
		text, err := tier.MarshalText()
		require.NoError(t, err)
		var parsed Tier
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, tier, parsed)
	}
	_, err := ParseTier("whale")
	assert.Error(t, err)
}
