package engagement

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

func TestFunnelEmptyPopulation(t *testing.T) {
	stages := Funnel(nil, DefaultConfig())
	require.Len(t, stages, 4)
	for i, stage := range Stages() {
		assert.Equal(t, stage, stages[i].Stage)
		assert.Equal(t, 0, stages[i].Users)
		assert.Equal(t, 0.0, stages[i].ConversionRate)
		assert.Equal(t, 0.0, stages[i].PopulationShare)
	}
}

func TestFunnelRates(t *testing.T) {
	cfg := windowConfig(10)
	pop := Population{
		{UserSummary: UserSummary{UserID: "idle"}, Tier: TierIdle},
		{UserSummary: UserSummary{UserID: "light", ActiveDays: 1}, Tier: TierLight},
		{UserSummary: UserSummary{UserID: "active", ActiveDays: 5}, Tier: TierActive},
		{UserSummary: UserSummary{UserID: "regular", ActiveDays: 7}, Tier: TierPower},
	}
	stages := Funnel(pop, cfg)

	assert.Equal(t, 3, stages[0].Users)
	assert.Equal(t, 0.75, stages[0].ConversionRate)
	assert.Equal(t, 3, stages[1].Users)
	assert.Equal(t, 1.0, stages[1].ConversionRate)
	assert.Equal(t, 1, stages[2].Users)
	assert.InDelta(t, 1.0/3.0, stages[2].ConversionRate, 1e-9)
	assert.Equal(t, 1, stages[3].Users)
	assert.Equal(t, 1.0, stages[3].ConversionRate)
	assert.Equal(t, 0.25, stages[3].PopulationShare)
}

func TestFunnelPowerRequiresRetention(t *testing.T) {
	// with a short window a power user can have fewer active days than
	// the retention threshold
	cfg := windowConfig(3)
	pop := Population{
		{UserSummary: UserSummary{UserID: "u", ActiveDays: 3}, Tier: TierPower},
	}
	stages := Funnel(pop, cfg)
	assert.Equal(t, 1, stages[1].Users)
	assert.Equal(t, 0, stages[2].Users)
	assert.Equal(t, 0, stages[3].Users)
	assert.Equal(t, 0.0, stages[3].ConversionRate)
}

func TestFunnelIsMonotonic(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for _, window := range []int{3, 7, 14, 30} {
		cfg := windowConfig(window)
		var records []usage.DailyRecord
		for u := 0; u < 40; u++ {
			for d := 1; d <= window; d++ {
				records = append(records, record(fmt.Sprintf("u%d", u), d, int64(rnd.Intn(4))))
			}
		}
		agg, err := Aggregate(records, cfg, day(window))
		require.NoError(t, err)
		pop, err := BuildPopulation(agg, nil, cfg)
		require.NoError(t, err)

		stages := Funnel(pop, cfg)
		for i := 1; i < len(stages); i++ {
			assert.True(t, stages[i].Users <= stages[i-1].Users,
				"window %d: stage %s has more users than %s", window, stages[i].Stage, stages[i-1].Stage)
		}
		for _, s := range stages {
			assert.True(t, s.ConversionRate >= 0 && s.ConversionRate <= 1)
		}
	}
}

func TestBuildPopulationWithRoster(t *testing.T) {
	cfg := windowConfig(3)
	agg, err := Aggregate([]usage.DailyRecord{
		record("u1", 1, 5),
		record("u1", 2, 5),
		record("u2", 2, 0),
	}, cfg, time.Time{})
	require.NoError(t, err)

	pop, err := BuildPopulation(agg, []string{"u1", " ", "u3"}, cfg)
	require.NoError(t, err)
	require.Len(t, pop, 3)

	assert.Equal(t, "u1", pop[0].UserID)
	assert.Equal(t, TierActive, pop[0].Tier)
	assert.Equal(t, RecencyWeek, pop[0].Recency)
	assert.Equal(t, "u2", pop[1].UserID)
	assert.Equal(t, TierIdle, pop[1].Tier)
	assert.Equal(t, "u3", pop[2].UserID)
	assert.Equal(t, TierIdle, pop[2].Tier)
	assert.Equal(t, RecencyNever, pop[2].Recency)
	assert.Equal(t, -1, pop[2].DaysSinceActive)

	stages := Funnel(pop, cfg)
	assert.Equal(t, 1, stages[0].Users)
	assert.InDelta(t, 1.0/3.0, stages[0].ConversionRate, 1e-9)
}

func TestStageJSON(t *testing.T) {
	data, err := json.Marshal(StageCount{Stage: StageRetained, Users: 2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"Retained"`)

	var sc StageCount
	require.NoError(t, json.Unmarshal(data, &sc))
	assert.Equal(t, StageRetained, sc.Stage)
}
