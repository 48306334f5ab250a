package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/routetap/routetap/pkg/audit"
	"github.com/routetap/routetap/pkg/auth"
	"github.com/routetap/routetap/pkg/cli"
	"github.com/routetap/routetap/pkg/inventory"
	"github.com/routetap/routetap/pkg/runstore"
	"github.com/routetap/routetap/pkg/scheduler"
	"github.com/routetap/routetap/pkg/settings"
)

var collectLayers []string

func addLayersFlag(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&collectLayers, "layers", "l", nil, "Comma-separated layers to collect (default: all)")
}

var collectAllCmd = &cobra.Command{
	Use:   "collect-all",
	Short: "Collect every device in the inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := loadFilteredDevices(scheduler.FilterOptions{})
		if err != nil {
			return err
		}
		return runCollection(devices, "", "")
	},
}

var collectDevicesCmd = &cobra.Command{
	Use:   "collect-devices <hostname> [hostname...]",
	Short: "Collect an explicit list of devices",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := loadFilteredDevices(scheduler.FilterOptions{Hostnames: args})
		if err != nil {
			return err
		}
		return runCollection(devices, "", "")
	},
}

var collectGroupCmd = &cobra.Command{
	Use:   "collect-group <name>",
	Short: "Collect every device tagged with an inventory group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group := args[0]
		devices, err := loadFilteredDevices(scheduler.FilterOptions{Group: group})
		if err != nil {
			return err
		}
		return runCollection(devices, group, group)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{collectAllCmd, collectDevicesCmd, collectGroupCmd} {
		addLayersFlag(cmd)
	}
}

// runCollection wires devices through the full connect -> schedule -> write
// -> audit pipeline shared by all three collect-* subcommands. selector and
// group are used only for the permission context and audit record; group is
// non-empty only for collect-group.
func runCollection(devices []*inventory.DeviceRecord, selector, group string) error {
	layers := collectLayers
	if len(layers) == 0 {
		layers = append([]string(nil), defaultLayers()...)
	}
	if err := scheduler.ValidateLayers(layers); err != nil {
		return err
	}

	perm := auth.PermCollectRun
	permCtx := auth.NewContext()
	if group != "" {
		perm = auth.PermCollectGroup
		permCtx = permCtx.WithGroup(group)
	}
	if err := checkPermission(perm, permCtx); err != nil {
		return err
	}

	c := app.collector
	writer, err := runstore.Open(c.OutputRoot, layers, c.CompressThresh)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := newPool()
	progress := scheduler.NewTaskProgress(len(devices), reportProgress)

	opts := scheduler.Options{
		Workers:         c.Workers,
		BaseTimeout:     c.BaseTimeout,
		BastionPort:     c.Bastion.Port,
		DefaultUser:     c.DefaultUser,
		DefaultPassword: c.DefaultPassword,
		Layers:          layers,
		RedisAddr:       c.RedisAddr,
		LockSelector:    lockSelectorFor(selector, group),
		LockHolder:      app.permChecker.CurrentUser(),
	}

	start := time.Now()
	report, runErr := scheduler.RunCollection(ctx, pool, writer, devices, opts, progress)
	elapsed := time.Since(start)

	logCollectionAudit(report, group, layers, runErr, elapsed)

	if runErr != nil {
		return runErr
	}

	if group != "" {
		rememberGroup(group)
	}

	printRunSummary(report)

	switch {
	case report.Cancelled:
		return exitWithCode(ExitPartialFailure, "collection cancelled, partial run saved")
	case report.FailedDevices > 0:
		return exitWithCode(ExitPartialFailure, fmt.Sprintf("%d/%d device(s) failed", report.FailedDevices, report.TotalDevices))
	}
	return nil
}

func defaultLayers() []string {
	return []string{"health", "interfaces", "igp", "mpls", "bgp", "vpn", "static", "console"}
}

func lockSelectorFor(selector, group string) string {
	if group != "" {
		return "group:" + group
	}
	if selector != "" {
		return selector
	}
	return "all"
}

func reportProgress(outcome scheduler.DeviceOutcome, snap scheduler.ProgressSnapshot) {
	status := cli.Green("ok")
	if !outcome.Success {
		status = cli.Red("failed")
	}
	fmt.Printf("[%d/%d] %-24s %s\n", snap.Completed, snap.Total, outcome.Hostname, status)
}

func printRunSummary(report scheduler.RunReport) {
	fmt.Println()
	t := cli.NewTable("HOSTNAME", "STATUS", "COMMANDS OK", "COMMANDS FAILED")
	for _, d := range report.Devices {
		status := cli.Green("ok")
		if !d.Success {
			status = cli.Red("failed")
		}
		t.Row(d.Hostname, status, fmt.Sprintf("%d", d.CommandsSucceeded), fmt.Sprintf("%d", d.CommandsFailed))
	}
	t.Flush()
	fmt.Printf("\nrun %s: %d/%d device(s) succeeded\n", report.RunID, report.SuccessfulDevices, report.TotalDevices)
}

func rememberGroup(group string) {
	s, err := settings.Load()
	if err != nil {
		return
	}
	s.LastGroup = group
	if err := s.Save(); err != nil {
		return
	}
}

func logCollectionAudit(report scheduler.RunReport, group string, layers []string, err error, elapsed time.Duration) {
	user := "unknown"
	if app.permChecker != nil {
		user = app.permChecker.CurrentUser()
	}
	event := audit.NewEvent(user, "", "collect.run").
		WithRun(report.RunID).
		WithGroup(group).
		WithLayers(layers).
		WithDuration(elapsed)
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	audit.Log(event)
}
