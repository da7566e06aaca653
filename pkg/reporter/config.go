package reporter

import (
	"fmt"
	"time"

	"github.com/robfig/cron"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
)

const (
	DefaultRefreshSchedule = "@every 5m"
	DefaultAPIListen       = ":8080"
	DefaultMetricsListen   = ":8082"
	DefaultRefreshTimeout  = 15 * time.Minute
	// DefaultFetchSlackDays widens the fetched range when the window end is
	// taken from the data, since report delivery lags by a day or more.
	DefaultFetchSlackDays = 7
	defaultNameLookups    = 8
)

type TLSConfig struct {
	UseTLS  bool
	TLSCert string
	TLSKey  string
}

func (cfg *TLSConfig) Valid() error {
	if cfg.UseTLS {
		if cfg.TLSCert == "" {
			return fmt.Errorf("must set TLS certificate if TLS is enabled")
		}
		if cfg.TLSKey == "" {
			return fmt.Errorf("must set TLS private key if TLS is enabled")
		}
	}
	return nil
}

type Config struct {
	Engagement engagement.Config

	// WindowEnd pins the last day of the window. When zero the window ends
	// on the latest day found in the data.
	WindowEnd      time.Time
	FetchSlackDays int

	RefreshSchedule string
	// RefreshTimeout bounds a single refresh. Zero means no bound.
	RefreshTimeout  time.Duration
	APIListen       string
	MetricsListen   string
	APITLSConfig    TLSConfig

	// NameLookups bounds the concurrent display name lookups of a refresh.
	NameLookups int
}

func DefaultConfig() Config {
	return Config{
		Engagement:      engagement.DefaultConfig(),
		FetchSlackDays:  DefaultFetchSlackDays,
		RefreshSchedule: DefaultRefreshSchedule,
		RefreshTimeout:  DefaultRefreshTimeout,
		APIListen:       DefaultAPIListen,
		MetricsListen:   DefaultMetricsListen,
		NameLookups:     defaultNameLookups,
	}
}

func (cfg *Config) Validate() error {
	if err := cfg.Engagement.Validate(); err != nil {
		return err
	}
	if cfg.FetchSlackDays < 0 {
		return fmt.Errorf("fetch slack days must not be negative, got %d", cfg.FetchSlackDays)
	}
	if cfg.RefreshTimeout < 0 {
		return fmt.Errorf("refresh timeout must not be negative, got %s", cfg.RefreshTimeout)
	}
	if cfg.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %v", cfg.RefreshSchedule, err)
		}
	}
	return cfg.APITLSConfig.Valid()
}

// fetchWindow is the range of days requested from the source. It covers the
// reporting window even when the window end is inferred from the data.
func (cfg *Config) fetchWindow(now time.Time) engagement.Window {
	if !cfg.WindowEnd.IsZero() {
		return engagement.NewWindow(cfg.WindowEnd, cfg.Engagement.WindowDays)
	}
	return engagement.NewWindow(now, cfg.Engagement.WindowDays+cfg.FetchSlackDays)
}
