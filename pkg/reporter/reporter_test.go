package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/export"
	"github.com/kiro-usage/usage-reporter/pkg/source/mock"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

var testNow = time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)

func usageRow(user, date, messages string) usage.Row {
	return usage.Row{
		usage.ColumnUserID:           user,
		usage.ColumnDate:             date,
		usage.ColumnMessages:         messages,
		usage.ColumnClientType:       "KIRO_IDE",
		usage.ColumnSubscriptionTier: "Pro",
		usage.ColumnCreditsUsed:      "1.5",
	}
}

// testRows has one user active every day of March, one user active once,
// a duplicate row and a malformed row.
func testRows() []usage.Row {
	var rows []usage.Row
	for d := 1; d <= 31; d++ {
		rows = append(rows, usageRow("power", fmt.Sprintf("2025-03-%02d", d), "10"))
	}
	rows = append(rows,
		usageRow("light", "2025-03-30", "2"),
		usageRow("light", "2025-03-30", "2"),
		usageRow("broken", "not-a-date", "1"),
	)
	return rows
}

type staticRoster []string

func (r staticRoster) ListUserIDs(context.Context) ([]string, error) {
	return r, nil
}

type staticNames map[string]string

func (n staticNames) DisplayName(_ context.Context, id string) string {
	if name, ok := n[id]; ok {
		return name
	}
	return id
}

func newTestLogger() (logrus.FieldLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func newTestReporter(t *testing.T, src *mock.MockSource, opts ...Option) (*Reporter, *test.Hook) {
	logger, hook := newTestLogger()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	rep, err := New(logger, DefaultConfig(), src, opts...)
	require.NoError(t, err)
	return rep, hook
}

func TestRefresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mock.NewMockSource(ctrl)
	fetchWindow := engagement.NewWindow(testNow, engagement.DefaultWindowDays+DefaultFetchSlackDays)
	src.EXPECT().Fetch(gomock.Any(), fetchWindow).Return(testRows(), nil)

	store, err := export.NewFileStore(t.TempDir())
	require.NoError(t, err)

	rep, hook := newTestReporter(t, src,
		WithRoster(staticRoster{"power", "newcomer"}),
		WithNames(staticNames{"power": "Pat Power"}),
		WithStore(store),
	)
	assert.Nil(t, rep.Report())

	report, err := rep.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, report, rep.Report())

	assert.Equal(t, testNow, report.GeneratedAt)
	assert.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), report.Window.End)
	assert.Equal(t, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), report.Window.Start)
	assert.Equal(t, 1, report.Quality.MalformedRows)
	assert.Equal(t, 1, report.Quality.DuplicateRows)
	assert.Equal(t, 1, report.Quality.OutOfWindowRows)

	power, ok := report.User("power")
	require.True(t, ok)
	assert.Equal(t, engagement.TierPower, power.Tier)
	assert.Equal(t, 30, power.ActiveDays)
	assert.Equal(t, "Pat Power", power.Name)

	light, ok := report.User("light")
	require.True(t, ok)
	assert.Equal(t, engagement.TierLight, light.Tier)
	assert.Equal(t, "light", light.Name)

	newcomer, ok := report.User("newcomer")
	require.True(t, ok)
	assert.Equal(t, engagement.TierIdle, newcomer.Tier)
	assert.Equal(t, engagement.RecencyNever, newcomer.Recency)

	exported, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, exported, 1)
	assert.Equal(t, testNow, exported[0])

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, 1, entry.Data["malformedRows"])
		}
	}
	assert.True(t, warned, "expected a data quality warning")
}

func TestRefreshPinnedWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	end := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	src := mock.NewMockSource(ctrl)
	src.EXPECT().Fetch(gomock.Any(), engagement.NewWindow(end, engagement.DefaultWindowDays)).Return(testRows(), nil)

	logger, _ := newTestLogger()
	cfg := DefaultConfig()
	cfg.WindowEnd = end
	rep, err := New(logger, cfg, src)
	require.NoError(t, err)

	report, err := rep.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, end, report.Window.End)
	// the light user was active after the window end
	_, ok := report.User("light")
	assert.False(t, ok)
}

func TestRefreshFailureKeepsPreviousReport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mock.NewMockSource(ctrl)
	gomock.InOrder(
		src.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(testRows(), nil),
		src.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, errors.New("athena is down")),
	)
	rep, _ := newTestReporter(t, src)

	first, err := rep.Refresh(context.Background())
	require.NoError(t, err)

	_, err = rep.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "athena is down")
	assert.Same(t, first, rep.Report())

	_, lastErr := rep.lastRefresh()
	assert.Equal(t, err, lastErr)
}

func TestRefreshOutlivesCallerContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	src := mock.NewMockSource(ctrl)
	src.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ engagement.Window) ([]usage.Row, error) {
			once.Do(func() { close(started) })
			select {
			case <-release:
				return testRows(), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}).MinTimes(1)
	rep, _ := newTestReporter(t, src)

	impatient, cancel := context.WithCancel(context.Background())
	impatientErr := make(chan error, 1)
	go func() {
		_, err := rep.Refresh(impatient)
		impatientErr <- err
	}()
	<-started

	type result struct {
		report *engagement.Report
		err    error
	}
	patient := make(chan result, 1)
	go func() {
		report, err := rep.Refresh(context.Background())
		patient <- result{report, err}
	}()

	cancel()
	assert.Equal(t, context.Canceled, <-impatientErr)

	close(release)
	res := <-patient
	require.NoError(t, res.err)
	require.NotNil(t, res.report)
	assert.Same(t, res.report, rep.Report())

	_, lastErr := rep.lastRefresh()
	assert.NoError(t, lastErr)
}

func TestRefreshTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mock.NewMockSource(ctrl)
	src.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ engagement.Window) ([]usage.Row, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	logger, _ := newTestLogger()
	cfg := DefaultConfig()
	cfg.RefreshTimeout = 20 * time.Millisecond
	rep, err := New(logger, cfg, src, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	_, err = rep.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
	assert.Nil(t, rep.Report())
}

func TestRefreshWithoutRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mock.NewMockSource(ctrl)
	src.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, nil)
	rep, _ := newTestReporter(t, src)

	report, err := rep.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Users)
	require.Len(t, report.Funnel, len(engagement.Stages()))
	for _, stage := range report.Funnel {
		assert.Equal(t, 0, stage.Users)
		assert.Equal(t, 0.0, stage.ConversionRate)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger, _ := newTestLogger()

	tests := map[string]struct {
		mutate      func(*Config)
		errContains string
	}{
		"zero window": {
			mutate:      func(cfg *Config) { cfg.Engagement.WindowDays = 0 },
			errContains: "at least 1 day",
		},
		"bad schedule": {
			mutate:      func(cfg *Config) { cfg.RefreshSchedule = "every so often" },
			errContains: "invalid refresh schedule",
		},
		"negative slack": {
			mutate:      func(cfg *Config) { cfg.FetchSlackDays = -1 },
			errContains: "must not be negative",
		},
		"negative refresh timeout": {
			mutate:      func(cfg *Config) { cfg.RefreshTimeout = -time.Second },
			errContains: "refresh timeout must not be negative",
		},
		"tls without cert": {
			mutate:      func(cfg *Config) { cfg.APITLSConfig.UseTLS = true },
			errContains: "TLS certificate",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(logger, cfg, mock.NewMockSource(ctrl))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}

	_, err := New(logger, DefaultConfig(), nil)
	assert.Error(t, err)
}
