package engagement

import (
	"fmt"
	"sort"
	"strings"
)

// Member is one user of the known population with their segment.
type Member struct {
	UserSummary
	Name    string  `json:"name,omitempty"`
	Tier    Tier    `json:"tier"`
	Recency Recency `json:"recency"`
}

// Population is the full known user base, sorted by user id.
type Population []Member

// BuildPopulation classifies every observed user and adds roster users that
// never showed up in the data as Idle members.
func BuildPopulation(agg *Aggregation, roster []string, cfg Config) (Population, error) {
	summaries := make(map[string]UserSummary, len(agg.Summaries)+len(agg.Inactive)+len(roster))
	for id, s := range agg.Inactive {
		summaries[id] = s
	}
	for id, s := range agg.Summaries {
		summaries[id] = s
	}
	for _, id := range roster {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := summaries[id]; !ok {
			summaries[id] = UserSummary{UserID: id, DaysSinceActive: -1}
		}
	}

	pop := make(Population, 0, len(summaries))
	for _, s := range summaries {
		tier, err := Classify(s, cfg)
		if err != nil {
			return nil, err
		}
		pop = append(pop, Member{
			UserSummary: s,
			Tier:        tier,
			Recency:     RecencyOf(s),
		})
	}
	sort.Slice(pop, func(i, j int) bool { return pop[i].UserID < pop[j].UserID })
	return pop, nil
}

// Stage is a step of the engagement funnel.
type Stage int

const (
	StageAnyActivity Stage = iota
	StageEngaged
	StageRetained
	StagePower
)

var stageNames = map[Stage]string{
	StageAnyActivity: "AnyActivity",
	StageEngaged:     "Engaged",
	StageRetained:    "Retained",
	StagePower:       "Power",
}

// Stages lists the funnel stages in order.
func Stages() []Stage {
	return []Stage{StageAnyActivity, StageEngaged, StageRetained, StagePower}
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for stage, name := range stageNames {
		if strings.EqualFold(name, string(b)) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown funnel stage %q", string(b))
}

func (s Stage) admits(m Member, cfg Config) bool {
	switch s {
	case StageAnyActivity:
		return m.ActiveDays > 0
	case StageEngaged:
		return m.Tier.Engaged()
	case StageRetained:
		return m.ActiveDays >= cfg.RetainedMinActiveDays
	case StagePower:
		return m.Tier == TierPower
	}
	return false
}

// StageCount is the size of a funnel stage. ConversionRate is relative to
// the previous stage, or to the whole population for the first stage.
type StageCount struct {
	Stage          Stage   `json:"stage"`
	Users          int     `json:"users"`
	ConversionRate float64 `json:"conversionRate"`
	// PopulationShare is relative to the whole population for every stage.
	PopulationShare float64 `json:"populationShare"`
}

// Funnel counts the population at each stage. A user only reaches a stage
// after passing every earlier one, so counts never increase along the
// funnel. Empty stages and an empty population produce zero rates.
func Funnel(pop Population, cfg Config) []StageCount {
	stages := Stages()
	counts := make([]int, len(stages))
	for _, m := range pop {
		for i, stage := range stages {
			if !stage.admits(m, cfg) {
				break
			}
			counts[i]++
		}
	}

	out := make([]StageCount, len(stages))
	prev := len(pop)
	for i, stage := range stages {
		out[i] = StageCount{
			Stage:           stage,
			Users:           counts[i],
			ConversionRate:  ratio(counts[i], prev),
			PopulationShare: ratio(counts[i], len(pop)),
		}
		prev = counts[i]
	}
	return out
}
