package main

import (
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"

	"github.com/kiro-usage/usage-reporter/pkg/reporter"
)

var (
	startOpts options

	apiListen       string
	metricsListen   string
	refreshSchedule string
	useTLS          bool
	tlsCert         string
	tlsKey          string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "serves the engagement report over HTTP and refreshes it on a schedule",
	RunE:  runStart,
}

func init() {
	startOpts.addFlags(startCmd.Flags())
	startCmd.Flags().StringVar(&apiListen, "api-listen", reporter.DefaultAPIListen, "address the HTTP API listens on")
	startCmd.Flags().StringVar(&metricsListen, "metrics-listen", reporter.DefaultMetricsListen, "address the Prometheus metrics endpoint listens on")
	startCmd.Flags().StringVar(&refreshSchedule, "refresh-schedule", reporter.DefaultRefreshSchedule, "cron schedule the report is refreshed on; empty refreshes only at startup and through the API")
	startCmd.Flags().BoolVar(&useTLS, "use-tls", false, "If true, uses TLS to secure HTTP API traffic")
	startCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "If use-tls is true, specifies the path to the TLS certificate.")
	startCmd.Flags().StringVar(&tlsKey, "tls-key", "", "If use-tls is true, specifies the path to the TLS private key.")
}

func runStart(cmd *cobra.Command, _ []string) error {
	logger, err := startOpts.newLogger()
	if err != nil {
		return err
	}
	logger.Infof("starting usage-reporter %s", version.Info())

	cfg, err := startOpts.reporterConfig(cmd.Flags())
	if err != nil {
		return err
	}
	cfg.APIListen = apiListen
	cfg.MetricsListen = metricsListen
	cfg.RefreshSchedule = refreshSchedule
	cfg.APITLSConfig = reporter.TLSConfig{UseTLS: useTLS, TLSCert: tlsCert, TLSKey: tlsKey}
	dumpConfig(logger, cfg)

	ctx := setupSignals()
	c, err := startOpts.newComponents(ctx, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	rep, err := reporter.New(logger, cfg, c.source, c.opts...)
	if err != nil {
		return err
	}
	if err := rep.Run(ctx); err != nil {
		return err
	}
	logger.Infof("usage-reporter has stopped")
	return nil
}
