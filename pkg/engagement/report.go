package engagement

import (
	"time"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// Report is everything derived from one snapshot of the usage table.
type Report struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Window      Window            `json:"window"`
	Config      Config            `json:"config"`
	Users       Population        `json:"users"`
	Segments    []TierCount       `json:"segments"`
	Funnel      []StageCount      `json:"funnel"`
	Breakdown   Breakdown         `json:"breakdown"`
	Quality     usage.DataQuality `json:"quality"`
}

// Input is the raw material of a report.
type Input struct {
	Rows []usage.Row
	// Roster optionally lists every known user id, including users that
	// never used the product.
	Roster []string
	// WindowEnd is the last day of the window. When zero the window ends
	// on the latest date found in the data.
	WindowEnd   time.Time
	GeneratedAt time.Time
}

// Compute parses the rows and runs aggregation, segmentation and the funnel
// in order.
func Compute(in Input, cfg Config) (*Report, error) {
	records, parseQuality := usage.ParseRows(in.Rows)

	agg, err := Aggregate(records, cfg, in.WindowEnd)
	if err != nil {
		return nil, err
	}
	pop, err := BuildPopulation(agg, in.Roster, cfg)
	if err != nil {
		return nil, err
	}

	quality := agg.Quality
	quality.TotalRows = parseQuality.TotalRows
	quality.MalformedRows = parseQuality.MalformedRows
	quality.Samples = append(append([]string(nil), parseQuality.Samples...), agg.Quality.Samples...)
	if len(quality.Samples) > usage.MaxQualitySamples {
		quality.Samples = quality.Samples[:usage.MaxQualitySamples]
	}

	return &Report{
		GeneratedAt: in.GeneratedAt,
		Window:      agg.Window,
		Config:      cfg,
		Users:       pop,
		Segments:    Segments(pop),
		Funnel:      Funnel(pop, cfg),
		Breakdown:   ComputeBreakdown(agg.Records),
		Quality:     quality,
	}, nil
}

// User looks a member up by id.
func (r *Report) User(id string) (Member, bool) {
	for _, m := range r.Users {
		if m.UserID == id {
			return m, true
		}
	}
	return Member{}, false
}
