package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/reporter"
)

const breakdownPrefix = "breakdown-"

var (
	reportOpts options

	reportFormat  string
	reportSection string
	reportOutput  string
	reportPadding int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "computes the engagement report once and prints it",
	RunE:  runReport,
}

func init() {
	reportOpts.addFlags(reportCmd.Flags())
	reportCmd.Flags().StringVar(&reportFormat, "format", reporter.FormatTabular, "output format: json, csv or tabular")
	reportCmd.Flags().StringVar(&reportSection, "section", "segments", fmt.Sprintf("part of the report to print: report, users, segments, funnel, quality or %s<%s>", breakdownPrefix, strings.Join(reporter.BreakdownKinds, "|")))
	reportCmd.Flags().StringVar(&reportOutput, "output", "", "if set, the file the report is written to instead of stdout")
	reportCmd.Flags().IntVar(&reportPadding, "padding", 2, "column padding of the tabular format")
}

func runReport(cmd *cobra.Command, _ []string) error {
	logger, err := reportOpts.newLogger()
	if err != nil {
		return err
	}
	cfg, err := reportOpts.reporterConfig(cmd.Flags())
	if err != nil {
		return err
	}
	cfg.RefreshSchedule = ""
	dumpConfig(logger, cfg)

	ctx := context.Background()
	c, err := reportOpts.newComponents(ctx, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	rep, err := reporter.New(logger, cfg, c.source, c.opts...)
	if err != nil {
		return err
	}
	report, err := rep.Refresh(ctx)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if reportOutput != "" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeReport(out, report, reportSection, reportFormat, reportPadding)
}

func writeReport(w io.Writer, report *engagement.Report, section, format string, padding int) error {
	var table reporter.Table
	var value interface{}
	switch {
	case section == "report":
		value = report
	case section == "quality":
		value = report.Quality
	case section == "users":
		table, value = reporter.UsersTable(report.Users), report.Users
	case section == "segments":
		table, value = reporter.SegmentsTable(report.Segments), report.Segments
	case section == "funnel":
		table, value = reporter.FunnelTable(report.Funnel), report.Funnel
	case strings.HasPrefix(section, breakdownPrefix):
		var err error
		if table, value, err = reporter.BreakdownTable(report.Breakdown, strings.TrimPrefix(section, breakdownPrefix)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown section %q", section)
	}

	if format == reporter.FormatJSON || table.Columns == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	switch format {
	case reporter.FormatCSV:
		return table.Write(w, ',')
	case reporter.FormatTabular:
		return table.WriteTabular(w, padding)
	}
	return fmt.Errorf("format must be one of: %s, %s or %s", reporter.FormatJSON, reporter.FormatCSV, reporter.FormatTabular)
}
