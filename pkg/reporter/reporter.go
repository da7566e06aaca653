package reporter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/export"
	"github.com/kiro-usage/usage-reporter/pkg/roster"
	"github.com/kiro-usage/usage-reporter/pkg/source"
)

const refreshKey = "refresh"

var errNoReport = errors.New("no report has been generated yet")

// NameResolver turns user ids into readable names.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) string
}

type Option func(*Reporter)

func WithRoster(r roster.Roster) Option {
	return func(rep *Reporter) { rep.roster = r }
}

func WithNames(n NameResolver) Option {
	return func(rep *Reporter) { rep.names = n }
}

func WithStore(s export.Store) Option {
	return func(rep *Reporter) { rep.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(rep *Reporter) { rep.now = now }
}

// Reporter periodically rebuilds the engagement report and serves the
// latest one over HTTP.
type Reporter struct {
	cfg    Config
	logger log.FieldLogger

	source source.Source
	roster roster.Roster
	names  NameResolver
	store  export.Store
	now    func() time.Time

	rand   *rand.Rand
	randMu sync.Mutex

	refreshGroup singleflight.Group

	mu          sync.RWMutex
	// lifetime bounds shared refreshes; Run replaces it with its own ctx.
	lifetime    context.Context
	report      *engagement.Report
	lastErr     error
	lastAttempt time.Time
}

func New(logger log.FieldLogger, cfg Config, src source.Source, opts ...Option) (*Reporter, error) {
	if src == nil {
		return nil, fmt.Errorf("a usage source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NameLookups < 1 {
		cfg.NameLookups = defaultNameLookups
	}
	rep := &Reporter{
		cfg:      cfg,
		logger:   logger.WithField("component", "reporter"),
		source:   src,
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().Unix())),
		lifetime: context.Background(),
	}
	for _, opt := range opts {
		opt(rep)
	}
	return rep, nil
}

// Report returns the latest report, or nil before the first successful
// refresh.
func (rep *Reporter) Report() *engagement.Report {
	rep.mu.RLock()
	defer rep.mu.RUnlock()
	return rep.report
}

func (rep *Reporter) lastRefresh() (time.Time, error) {
	rep.mu.RLock()
	defer rep.mu.RUnlock()
	return rep.lastAttempt, rep.lastErr
}

// Refresh rebuilds the report. Concurrent callers share a single refresh
// which runs under the reporter's own context, so a caller giving up on ctx
// does not cancel it for the others. A failed refresh keeps the previous
// report in place.
func (rep *Reporter) Refresh(ctx context.Context) (*engagement.Report, error) {
	ch := rep.refreshGroup.DoChan(refreshKey, func() (interface{}, error) {
		refreshCtx, cancel := rep.refreshContext()
		defer cancel()
		return rep.refresh(refreshCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*engagement.Report), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (rep *Reporter) refreshContext() (context.Context, context.CancelFunc) {
	rep.mu.RLock()
	base := rep.lifetime
	rep.mu.RUnlock()
	if rep.cfg.RefreshTimeout > 0 {
		return context.WithTimeout(base, rep.cfg.RefreshTimeout)
	}
	return context.WithCancel(base)
}

func (rep *Reporter) refresh(ctx context.Context) (*engagement.Report, error) {
	start := rep.now()
	began := time.Now()
	refreshTotalCounter.Inc()

	report, err := rep.buildReport(ctx, start)

	rep.mu.Lock()
	rep.lastAttempt = start
	rep.lastErr = err
	if err == nil {
		rep.report = report
	}
	rep.mu.Unlock()

	if err != nil {
		refreshFailedCounter.Inc()
		rep.logger.WithError(err).Error("failed to refresh usage report")
		return nil, err
	}
	refreshDurationHistogram.Observe(time.Since(began).Seconds())
	observeReport(report)

	logger := rep.logger.WithFields(log.Fields{
		"window": report.Window.String(),
		"users":  len(report.Users),
	})
	if report.Quality.HasWarnings() {
		logger.WithFields(log.Fields{
			"malformedRows":   report.Quality.MalformedRows,
			"duplicateRows":   report.Quality.DuplicateRows,
			"outOfWindowRows": report.Quality.OutOfWindowRows,
		}).Warnf("skipped %d of %d rows", report.Quality.Skipped(), report.Quality.TotalRows)
	}
	logger.Infof("refreshed usage report in %s", time.Since(began))

	if rep.store != nil {
		location, err := rep.store.Write(ctx, report)
		if err != nil {
			logger.WithError(err).Error("failed to export usage report")
		} else {
			logger.Debugf("exported usage report to %s", location)
		}
	}
	return report, nil
}

func (rep *Reporter) buildReport(ctx context.Context, now time.Time) (*engagement.Report, error) {
	window := rep.cfg.fetchWindow(now)
	rows, err := rep.source.Fetch(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usage rows for %s: %v", window, err)
	}
	rep.logger.Debugf("fetched %d usage rows for %s", len(rows), window)

	var ids []string
	if rep.roster != nil {
		ids, err = rep.roster.ListUserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list roster users: %v", err)
		}
	}

	report, err := engagement.Compute(engagement.Input{
		Rows:        rows,
		Roster:      ids,
		WindowEnd:   rep.cfg.WindowEnd,
		GeneratedAt: now.UTC(),
	}, rep.cfg.Engagement)
	if err != nil {
		return nil, err
	}
	if rep.names != nil {
		if err := rep.resolveNames(ctx, report.Users); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// resolveNames fills in member names with a bounded number of concurrent
// lookups. A lookup that fails leaves the id as the name.
func (rep *Reporter) resolveNames(ctx context.Context, pop engagement.Population) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rep.cfg.NameLookups)
	for i := range pop {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pop[i].Name = rep.names.DisplayName(gctx, pop[i].UserID)
			return nil
		})
	}
	return g.Wait()
}

// Run refreshes the report on the configured schedule and serves the API
// and metrics until ctx is cancelled.
func (rep *Reporter) Run(ctx context.Context) error {
	rep.logger.Infof("starting usage reporter")
	rep.mu.Lock()
	rep.lifetime = ctx
	rep.mu.Unlock()

	apiServer := &http.Server{
		Addr:    rep.cfg.APIListen,
		Handler: rep.newRouter(),
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    rep.cfg.MetricsListen,
		Handler: metricsMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rep.logger.Infof("HTTP API server listening on %s", rep.cfg.APIListen)
		var err error
		if rep.cfg.APITLSConfig.UseTLS {
			err = apiServer.ListenAndServeTLS(rep.cfg.APITLSConfig.TLSCert, rep.cfg.APITLSConfig.TLSKey)
		} else {
			err = apiServer.ListenAndServe()
		}
		return serverErr("HTTP API", err)
	})
	g.Go(func() error {
		rep.logger.Infof("metrics server listening on %s", rep.cfg.MetricsListen)
		return serverErr("metrics", metricsServer.ListenAndServe())
	})

	scheduler := cron.New()
	if rep.cfg.RefreshSchedule != "" {
		schedule, err := cron.ParseStandard(rep.cfg.RefreshSchedule)
		if err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %v", rep.cfg.RefreshSchedule, err)
		}
		scheduler.Schedule(schedule, cron.FuncJob(func() {
			rep.Refresh(gctx)
		}))
		scheduler.Start()
	}

	g.Go(func() error {
		rep.Refresh(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		rep.logger.Info("stopping usage reporter")
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for name, srv := range map[string]*http.Server{"HTTP API": apiServer, "metrics": metricsServer} {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				rep.logger.WithError(err).Errorf("failed to shutdown %s server", name)
			}
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		rep.logger.WithError(err).Error("usage reporter stopped with an error")
		return err
	}
	rep.logger.Info("usage reporter stopped")
	return nil
}

func serverErr(name string, err error) error {
	if err == nil || err == http.ErrServerClosed {
		return nil
	}
	return fmt.Errorf("%s server error: %v", name, err)
}
