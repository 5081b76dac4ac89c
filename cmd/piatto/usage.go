package main

import (
	"fmt"

	"piatto/internal/metrics"

	"github.com/spf13/cobra"
)

var (
	usageDays   int
	cleanupDays int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded API usage and process health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		usage, err := application.Metrics().GetDailyUsage(cmd.Context(), usageDays)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), formatUsage(usage, metrics.GetSysHealth(application.Config().DataDir)))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old request metrics and stale stored sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		removed, items, err := application.Cleanup(cmd.Context(), cleanupDays)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render(
			fmt.Sprintf("✓ %d request metrics and %d stored items removed", removed, items)))
		return nil
	},
}

func formatUsage(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	out := headerStyle.Render("API usage") + "\n"
	if len(usage) == 0 {
		out += mutedStyle.Render("  no requests recorded") + "\n"
	}
	for _, d := range usage {
		line := fmt.Sprintf("  %s  %4d requests  %3d errors  %6.0f ms avg", d.Date, d.Requests, d.Errors, d.AvgLatencyMS)
		if d.Errors > 0 {
			line = warnStyle.Render(line)
		}
		out += line + "\n"
	}
	out += headerStyle.Render("Health") + "\n"
	out += fmt.Sprintf("  memory %d MB alloc / %d MB sys, %d goroutines\n", health.AllocMB, health.SysMB, health.Goroutines)
	out += fmt.Sprintf("  data directory %s in %d files, up %s\n", health.DataDiskSize, health.DataFiles, health.Uptime)
	return out
}

func init() {
	usageCmd.Flags().IntVar(&usageDays, "days", 7, "number of days to show")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "keep this many days")
	rootCmd.AddCommand(usageCmd, cleanupCmd)
}
