// routetap collects read-only operational state from a fleet of routers
// across a bastion-tunnelled SSH connection pool, and reports on
// transport-security hygiene of the terminal lines it already collected.
//
// Every subcommand that touches devices accepts --inventory, --workers,
// --timeout and the usual bastion/credential overrides; flags win over
// environment variables, which win over the persisted settings file, which
// wins over documented defaults.
//
// Examples:
//
//	routetap validate-inventory devices.csv
//	routetap dry-run --inventory devices.csv
//	routetap collect-all --inventory devices.csv --layers health,bgp,console
//	routetap collect-group core --inventory devices.csv
//	routetap analyze-security /var/lib/routetap/runs/collector-run-20260731-090000
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/routetap/routetap/pkg/audit"
	"github.com/routetap/routetap/pkg/auth"
	"github.com/routetap/routetap/pkg/rtconfig"
	"github.com/routetap/routetap/pkg/settings"
	"github.com/routetap/routetap/pkg/util"
)

// Exit codes, per §"Exit codes" — three, not the usual two.
const (
	ExitSuccess        = 0
	ExitPartialFailure = 1
	ExitFatal          = 2
)

// App holds CLI state shared across all commands.
type App struct {
	inventoryPath string
	workers       int
	timeoutSec    int
	bastionHost   string
	bastionUser   string
	defaultUser   string
	verbose       bool
	jsonOutput    bool

	settings    *settings.Settings
	collector   *rtconfig.CollectorContext
	permChecker *auth.Checker
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ec, ok := err.(*exitCodeError); ok {
			os.Exit(ec.code)
		}
		os.Exit(ExitFatal)
	}
}

// exitCodeError lets a subcommand request a specific process exit code
// (§"Exit codes") while still reporting its message through cobra's normal
// error path.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

func exitWithCode(code int, msg string) error {
	return &exitCodeError{code: code, msg: msg}
}

var rootCmd = &cobra.Command{
	Use:               "routetap",
	Short:             "Bastion-tunnelled read-only collector for router fleets",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isSettingsOrVersion(cmd) {
			return nil
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Logger.Warnf("could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}

		if app.verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		app.collector, err = rtconfig.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		applyFlagOverrides(app.collector)

		policy, err := auth.LoadPolicy(defaultPolicyPath())
		if err != nil {
			policy = auth.NewPolicy()
		}
		app.permChecker = auth.NewChecker(policy)

		auditPath := app.settings.GetAuditLogPath(app.collector.OutputRoot)
		auditLogger, err := audit.NewFileLogger(auditPath, audit.RotationConfig{
			MaxSize:    int64(app.settings.GetAuditMaxSizeMB()) * 1024 * 1024,
			MaxBackups: app.settings.GetAuditMaxBackups(),
		})
		if err != nil {
			util.Logger.Warnf("could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		return nil
	},
}

func defaultPolicyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "routetap-policy.yaml"
	}
	return home + "/.routetap/policy.yaml"
}

func applyFlagOverrides(c *rtconfig.CollectorContext) {
	if app.bastionHost != "" {
		c.Bastion.Host = app.bastionHost
	}
	if app.bastionUser != "" {
		c.Bastion.User = app.bastionUser
	}
	if app.defaultUser != "" {
		c.DefaultUser = app.defaultUser
	}
	if app.workers > 0 {
		c.Workers = app.workers
	}
	if app.timeoutSec > 0 {
		c.BaseTimeout = time.Duration(app.timeoutSec) * time.Second
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.inventoryPath, "inventory", "i", "", "Inventory CSV path")
	rootCmd.PersistentFlags().IntVarP(&app.workers, "workers", "w", 0, "Concurrent device worker count")
	rootCmd.PersistentFlags().IntVarP(&app.timeoutSec, "timeout", "t", 0, "Base per-command timeout in seconds")
	rootCmd.PersistentFlags().StringVar(&app.bastionHost, "bastion-host", "", "Bastion host override")
	rootCmd.PersistentFlags().StringVar(&app.bastionUser, "bastion-user", "", "Bastion user override")
	rootCmd.PersistentFlags().StringVar(&app.defaultUser, "default-user", "", "Default device login username")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output where supported")

	rootCmd.AddGroup(
		&cobra.Group{ID: "inventory", Title: "Inventory:"},
		&cobra.Group{ID: "collect", Title: "Collection:"},
		&cobra.Group{ID: "report", Title: "Reporting:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{validateInventoryCmd, dryRunCmd} {
		cmd.GroupID = "inventory"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{collectAllCmd, collectDevicesCmd, collectGroupCmd} {
		cmd.GroupID = "collect"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{analyzeSecurityCmd} {
		cmd.GroupID = "report"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{configureCmd, showConfigCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

func isSettingsOrVersion(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "configure", "show-config":
			return true
		}
	}
	return false
}

// checkPermission denies the operation up front; audit logging of the
// outcome happens at the call site once the operation has actually run, so
// a failure still gets recorded.
func checkPermission(perm auth.Permission, permCtx *auth.Context) error {
	if app.permChecker == nil {
		return nil
	}
	return app.permChecker.Check(perm, permCtx)
}

