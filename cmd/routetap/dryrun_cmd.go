package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/routetap/routetap/pkg/audit"
	"github.com/routetap/routetap/pkg/auth"
	"github.com/routetap/routetap/pkg/cli"
	"github.com/routetap/routetap/pkg/scheduler"
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Test bastion and device reachability without collecting anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkPermission(auth.PermConnectivityTest, auth.NewContext()); err != nil {
			return err
		}

		devices, err := loadFilteredDevices(scheduler.FilterOptions{})
		if err != nil {
			return err
		}

		start := time.Now()
		pool := newPool()
		results := scheduler.RunConnectivity(pool, devices, app.collector.DefaultUser, app.collector.DefaultPassword, app.collector.Bastion.Port, app.collector.Workers)
		pool.CloseAll()

		failures := printConnectivityResults(results)

		logConnectivityAudit(err, time.Since(start))

		if failures > 0 {
			return exitWithCode(ExitPartialFailure, fmt.Sprintf("%d/%d device(s) unreachable", failures, len(results)))
		}
		return nil
	},
}

func printConnectivityResults(results []scheduler.ConnectivityResult) int {
	t := cli.NewTable("HOSTNAME", "STATUS", "LATENCY", "ERROR")
	failures := 0
	for _, r := range results {
		status := cli.Green("reachable")
		if !r.Success {
			status = cli.Red("unreachable")
			failures++
		}
		t.Row(r.Hostname, status, r.Elapsed.Round(time.Millisecond).String(), dash(r.Error))
	}
	t.Flush()
	fmt.Printf("\n%d/%d device(s) reachable\n", len(results)-failures, len(results))
	return failures
}

func logConnectivityAudit(err error, elapsed time.Duration) {
	user := "unknown"
	if app.permChecker != nil {
		user = app.permChecker.CurrentUser()
	}
	event := audit.NewEvent(user, "", "connectivity.test").WithDuration(elapsed).WithDryRun(true)
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	audit.Log(event)
}
