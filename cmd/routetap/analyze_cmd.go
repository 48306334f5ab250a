package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/routetap/routetap/pkg/audit"
	"github.com/routetap/routetap/pkg/auth"
	"github.com/routetap/routetap/pkg/cli"
	"github.com/routetap/routetap/pkg/security"
)

var analyzeSecurityCmd = &cobra.Command{
	Use:   "analyze-security <run-path>",
	Short: "Audit transport-security hygiene of console/aux/vty lines in a completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runPath := args[0]
		start := time.Now()

		if err := checkPermission(auth.PermAnalyzeSecurity, auth.NewContext().WithResource(runPath)); err != nil {
			return err
		}

		report, err := security.Analyze(runPath)
		logAnalyzeAudit(runPath, err, time.Since(start))
		if err != nil {
			return err
		}

		if err := security.WriteReports(report, runPath); err != nil {
			return err
		}

		printSecuritySummary(report)

		if report.Errors > 0 || report.NonCompliant > 0 {
			return exitWithCode(ExitPartialFailure, fmt.Sprintf("%d non-compliant, %d error(s) out of %d device(s)", report.NonCompliant, report.Errors, report.DevicesAudited))
		}
		return nil
	},
}

func printSecuritySummary(r security.AggregateReport) {
	t := cli.NewTable("METRIC", "VALUE")
	t.Row("devices audited", fmt.Sprintf("%d", r.DevicesAudited))
	t.Row("compliant", fmt.Sprintf("%d", r.Compliant))
	t.Row("non-compliant", fmt.Sprintf("%d", r.NonCompliant))
	t.Row("errors", fmt.Sprintf("%d", r.Errors))
	t.Row("compliance rate", fmt.Sprintf("%.1f%%", r.ComplianceRate))
	t.Flush()
	fmt.Printf("\nreports written alongside %s\n", r.RunPath)
}

func logAnalyzeAudit(runPath string, err error, elapsed time.Duration) {
	user := "unknown"
	if app.permChecker != nil {
		user = app.permChecker.CurrentUser()
	}
	event := audit.NewEvent(user, "", "analyze.security").WithDuration(elapsed)
	event.RunID = runPath
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	audit.Log(event)
}
