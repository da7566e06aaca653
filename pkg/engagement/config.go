package engagement

import (
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

const (
	DefaultWindowDays            = 30
	DefaultPowerRatio            = 0.7
	DefaultActiveRatio           = 0.3
	DefaultRetainedMinActiveDays = 7
)

var (
	ErrInvalidWindow     = errors.New("reporting window must be at least 1 day")
	errInvalidRatios     = errors.New("tier ratios must satisfy 0 < activeRatio <= powerRatio <= 1")
	errInvalidRetainDays = errors.New("retainedMinActiveDays must be at least 1")
)

// Config holds the tunable parameters of segmentation and the funnel.
type Config struct {
	// WindowDays is the length of the reporting window in days.
	WindowDays int `json:"windowDays"`
	// PowerRatio is the minimum active day ratio of a Power user.
	PowerRatio float64 `json:"powerRatio"`
	// ActiveRatio is the minimum active day ratio of an Active user.
	ActiveRatio float64 `json:"activeRatio"`
	// RetainedMinActiveDays is how many active days put a user in the
	// Retained funnel stage.
	RetainedMinActiveDays int `json:"retainedMinActiveDays"`
}

func DefaultConfig() Config {
	return Config{
		WindowDays:            DefaultWindowDays,
		PowerRatio:            DefaultPowerRatio,
		ActiveRatio:           DefaultActiveRatio,
		RetainedMinActiveDays: DefaultRetainedMinActiveDays,
	}
}

func (c Config) Validate() error {
	if c.WindowDays < 1 {
		return ErrInvalidWindow
	}
	if c.ActiveRatio <= 0 || c.ActiveRatio > c.PowerRatio || c.PowerRatio > 1 {
		return errInvalidRatios
	}
	if c.RetainedMinActiveDays < 1 {
		return errInvalidRetainDays
	}
	return nil
}

// LoadConfigFile reads a YAML (or JSON) file over the defaults. Fields left
// out of the file keep their default values.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read engagement config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse engagement config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid engagement config %s: %v", path, err)
	}
	return cfg, nil
}

// Window is the inclusive range of days a report covers.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// NewWindow returns the window of the given length ending on end.
func NewWindow(end time.Time, days int) Window {
	end = usage.Day(end)
	return Window{
		Start: end.AddDate(0, 0, -(days - 1)),
		End:   end,
		Days:  days,
	}
}

// Contains reports whether the day of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := usage.Day(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s (%d days)", w.Start.Format(usage.DateLayout), w.End.Format(usage.DateLayout), w.Days)
}
