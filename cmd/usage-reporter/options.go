package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/kiro-usage/usage-reporter/pkg/aws"
	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/export"
	"github.com/kiro-usage/usage-reporter/pkg/reporter"
	"github.com/kiro-usage/usage-reporter/pkg/reporting"
	"github.com/kiro-usage/usage-reporter/pkg/roster"
	"github.com/kiro-usage/usage-reporter/pkg/source"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// options are the settings shared by the start and report commands.
type options struct {
	logLevel            string
	logFullTimestamp    bool
	logDisableTimestamp bool
	logJSON             bool

	sourceURL        string
	queryTemplate    string
	engagementConfig string
	windowDays       int
	powerRatio       float64
	activeRatio      float64
	retainedDays     int
	windowEnd        string
	fetchSlackDays   int

	rosterFile          string
	identityStoreID     string
	identityStoreRoster bool
	exportURL           string

	awsRegion       string
	athenaOutput    string
	athenaWorkGroup string
	athenaCatalog   string
	athenaPoll      time.Duration

	prestoConnBackoff time.Duration
	prestoMaxRetries  int
	logQueries        bool

	nameLookups    int
	refreshTimeout time.Duration
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.logLevel, "log-level", log.InfoLevel.String(), "log level")
	fs.BoolVar(&o.logFullTimestamp, "log-timestamp", true, "log full timestamp if true, otherwise log time since startup")
	fs.BoolVar(&o.logDisableTimestamp, "disable-timestamp", false, "disable timestamp logging")
	fs.BoolVar(&o.logJSON, "log-json", false, "log as JSON instead of text")

	fs.StringVar(&o.sourceURL, "source", "", "where daily usage rows are read from: athena://<database>[/<table>], presto://<host:port>/<catalog>/<schema>/<table>, s3://<bucket>[/<prefix>] or a local path")
	fs.StringVar(&o.queryTemplate, "query-template", "", "if set, a file holding the SQL template used by the athena and presto sources")
	fs.StringVar(&o.engagementConfig, "engagement-config", "", "if set, a YAML file holding the engagement thresholds; the flags below override it")
	fs.IntVar(&o.windowDays, "window-days", engagement.DefaultWindowDays, "number of days in the reporting window")
	fs.Float64Var(&o.powerRatio, "power-ratio", engagement.DefaultPowerRatio, "fraction of window days a Power user is active on")
	fs.Float64Var(&o.activeRatio, "active-ratio", engagement.DefaultActiveRatio, "fraction of window days an Active user is active on")
	fs.IntVar(&o.retainedDays, "retained-min-active-days", engagement.DefaultRetainedMinActiveDays, "active days needed to reach the Retained funnel stage")
	fs.StringVar(&o.windowEnd, "window-end", "", "if set, the last day (YYYY-MM-DD) of the reporting window; defaults to the latest day in the data")
	fs.IntVar(&o.fetchSlackDays, "fetch-slack-days", reporter.DefaultFetchSlackDays, "extra days fetched before the window when the window end comes from the data")

	fs.StringVar(&o.rosterFile, "roster-file", "", "if set, a file listing every user id to report on, including users without activity")
	fs.StringVar(&o.identityStoreID, "identity-store-id", "", "if set, the IAM Identity Center identity store used to resolve display names")
	fs.BoolVar(&o.identityStoreRoster, "identity-store-roster", false, "if true, every user of the identity store is reported on; ignored when --roster-file is set")
	fs.StringVar(&o.exportURL, "export-url", "", "if set, every report is written as JSON to this file:// or s3:// location")

	fs.StringVar(&o.awsRegion, "aws-region", "", "AWS region; defaults to the SDK's region resolution")
	fs.StringVar(&o.athenaOutput, "athena-output-location", "", "s3:// URI Athena writes query results to")
	fs.StringVar(&o.athenaWorkGroup, "athena-workgroup", "", "Athena workgroup queries run in")
	fs.StringVar(&o.athenaCatalog, "athena-catalog", "", "Athena data catalog")
	fs.DurationVar(&o.athenaPoll, "athena-poll-interval", time.Second, "how often Athena is polled for query completion")

	fs.DurationVar(&o.prestoConnBackoff, "presto-conn-backoff", 5*time.Second, "initial delay between Presto connection attempts")
	fs.IntVar(&o.prestoMaxRetries, "presto-max-retries", 5, "maximum number of Presto connection attempts")
	fs.BoolVar(&o.logQueries, "log-queries", false, "log every SQL query sent to Presto")
	fs.IntVar(&o.nameLookups, "name-lookups", 8, "maximum number of concurrent display name lookups")
	fs.DurationVar(&o.refreshTimeout, "refresh-timeout", reporter.DefaultRefreshTimeout, "upper bound on a single report refresh; 0 disables it")
}

func (o *options) newLogger() (log.FieldLogger, error) {
	logLevel, err := log.ParseLevel(o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", o.logLevel)
	}
	base := log.New()
	base.Level = logLevel
	if o.logJSON {
		base.Formatter = &log.JSONFormatter{DisableTimestamp: o.logDisableTimestamp}
	} else {
		base.Formatter = &log.TextFormatter{
			FullTimestamp:    o.logFullTimestamp,
			DisableTimestamp: o.logDisableTimestamp,
		}
	}
	logger := base.WithFields(log.Fields{
		"app": "usage-reporter",
	})
	logger.Debugf("setting log level to %s", logLevel.String())
	return logger, nil
}

// engagementConfigFrom loads the config file if one was given, then applies the
// threshold flags that were set explicitly.
func (o *options) engagementConfigFrom(fs *pflag.FlagSet) (engagement.Config, error) {
	cfg := engagement.DefaultConfig()
	if o.engagementConfig != "" {
		var err error
		if cfg, err = engagement.LoadConfigFile(o.engagementConfig); err != nil {
			return cfg, err
		}
	}
	if o.engagementConfig == "" || fs.Changed("window-days") {
		cfg.WindowDays = o.windowDays
	}
	if o.engagementConfig == "" || fs.Changed("power-ratio") {
		cfg.PowerRatio = o.powerRatio
	}
	if o.engagementConfig == "" || fs.Changed("active-ratio") {
		cfg.ActiveRatio = o.activeRatio
	}
	if o.engagementConfig == "" || fs.Changed("retained-min-active-days") {
		cfg.RetainedMinActiveDays = o.retainedDays
	}
	return cfg, cfg.Validate()
}

func (o *options) reporterConfig(fs *pflag.FlagSet) (reporter.Config, error) {
	cfg := reporter.DefaultConfig()
	var err error
	if cfg.Engagement, err = o.engagementConfigFrom(fs); err != nil {
		return cfg, err
	}
	if o.windowEnd != "" {
		if cfg.WindowEnd, err = usage.ParseDate(o.windowEnd); err != nil {
			return cfg, fmt.Errorf("invalid --window-end %q: %v", o.windowEnd, err)
		}
	}
	cfg.FetchSlackDays = o.fetchSlackDays
	cfg.NameLookups = o.nameLookups
	cfg.RefreshTimeout = o.refreshTimeout
	return cfg, nil
}

// components holds everything a reporter is built from.
type components struct {
	source source.Source
	opts   []reporter.Option
}

func (c *components) Close() {
	if closer, ok := c.source.(interface{ Close() error }); ok {
		closer.Close()
	}
}

func (o *options) newComponents(ctx context.Context, logger log.FieldLogger) (*components, error) {
	if o.sourceURL == "" {
		return nil, fmt.Errorf("--source must be set")
	}

	var sess *session.Session
	if o.needsAWS() {
		var err error
		if sess, err = aws.NewSession(o.awsRegion); err != nil {
			return nil, fmt.Errorf("could not create AWS session: %v", err)
		}
	}

	srcOpts := source.Options{
		Logger:     logger,
		AWSRegion:  o.awsRegion,
		AWSSession: sess,
		Athena: aws.AthenaConfig{
			OutputLocation: o.athenaOutput,
			WorkGroup:      o.athenaWorkGroup,
			Catalog:        o.athenaCatalog,
			PollInterval:   o.athenaPoll,
		},
		PrestoConnBackoff: o.prestoConnBackoff,
		PrestoMaxRetries:  o.prestoMaxRetries,
		LogQueries:        o.logQueries,
	}
	if o.queryTemplate != "" {
		query, err := reporting.LoadQueryTemplate(o.queryTemplate)
		if err != nil {
			return nil, err
		}
		srcOpts.Query = query
	}

	src, err := source.NewFromURL(ctx, o.sourceURL, srcOpts)
	if err != nil {
		return nil, err
	}
	c := &components{source: src}

	if o.identityStoreID != "" {
		directory := aws.NewIdentityStoreDirectory(sess, logger, o.identityStoreID)
		c.opts = append(c.opts, reporter.WithNames(directory))
		if o.rosterFile == "" && o.identityStoreRoster {
			c.opts = append(c.opts, reporter.WithRoster(directory))
		}
	}
	if o.rosterFile != "" {
		c.opts = append(c.opts, reporter.WithRoster(roster.File{Path: o.rosterFile}))
	}

	if o.exportURL != "" {
		store, err := export.NewStoreFromURL(o.exportURL, sess)
		if err != nil {
			return nil, err
		}
		c.opts = append(c.opts, reporter.WithStore(store))
	}
	return c, nil
}

// needsAWS reports whether any configured component talks to AWS, so a
// single session can be shared between them.
func (o *options) needsAWS() bool {
	if o.identityStoreID != "" {
		return true
	}
	for _, prefix := range []string{"athena://", "s3://"} {
		if strings.HasPrefix(o.sourceURL, prefix) || strings.HasPrefix(o.exportURL, prefix) {
			return true
		}
	}
	return false
}

func dumpConfig(logger log.FieldLogger, cfg reporter.Config) {
	logger.Debugf("config: %s", spew.Sprintf("%+v", cfg))
}

func setupSignals() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Infof("got signal %s, performing shutdown", sig)
		cancel()
	}()
	return ctx
}
