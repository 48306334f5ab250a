package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/routetap/routetap/pkg/audit"
	"github.com/routetap/routetap/pkg/auth"
	"github.com/routetap/routetap/pkg/cli"
	"github.com/routetap/routetap/pkg/inventory"
)

var validateInventoryCmd = &cobra.Command{
	Use:   "validate-inventory <path>",
	Short: "Load and validate an inventory CSV without connecting to any device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		start := time.Now()

		if err := checkPermission(auth.PermInventoryValidate, auth.NewContext().WithResource(path)); err != nil {
			return err
		}

		records, err := inventory.Load(path)
		logInventoryAudit(path, err, time.Since(start))
		if err != nil {
			return err
		}

		stats := inventory.Validate(records)
		printInventoryStats(stats)

		if len(stats.Errors) > 0 {
			cmd.SilenceUsage = true
			return exitWithCode(ExitPartialFailure, fmt.Sprintf("%d inventory row(s) failed validation", len(stats.Errors)))
		}
		return nil
	},
}

func logInventoryAudit(path string, err error, elapsed time.Duration) {
	user := "unknown"
	if app.permChecker != nil {
		user = app.permChecker.CurrentUser()
	}
	event := audit.NewEvent(user, "", "inventory.validate").WithDuration(elapsed)
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	audit.Log(event)
}

func printInventoryStats(stats *inventory.ValidationStats) {
	fmt.Printf("%d device(s) loaded\n\n", stats.TotalDevices)

	familyTable := cli.NewTable("FAMILY", "COUNT")
	for _, f := range []inventory.Family{inventory.FamilyClassic, inventory.FamilyEnhanced, inventory.FamilyCarrier} {
		if n := stats.CountsByFamily[f]; n > 0 {
			familyTable.Row(string(f), fmt.Sprintf("%d", n))
		}
	}
	familyTable.Flush()

	if len(stats.Errors) > 0 {
		fmt.Println()
		fmt.Println(cli.Red(fmt.Sprintf("%d error(s):", len(stats.Errors))))
		for _, e := range stats.Errors {
			fmt.Println("  " + e)
		}
	}
}
