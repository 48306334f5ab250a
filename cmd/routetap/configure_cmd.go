package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/routetap/routetap/pkg/cli"
	"github.com/routetap/routetap/pkg/settings"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactively set persisted CLI defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}

		reader := bufio.NewReader(os.Stdin)
		s.DefaultInventoryPath = promptString(reader, "Default inventory path", s.DefaultInventoryPath)
		s.OutputRoot = promptString(reader, "Run output root", s.GetOutputRoot())
		s.BastionHost = promptString(reader, "Bastion host", s.BastionHost)
		s.BastionPort = promptInt(reader, "Bastion port", s.BastionPort, 22)
		s.BastionUser = promptString(reader, "Bastion user", s.BastionUser)
		s.DefaultUser = promptString(reader, "Default device username", s.DefaultUser)
		s.Workers = promptInt(reader, "Default worker count", s.Workers, settings.DefaultWorkers)

		// The bastion secret is never persisted to settings.json — only read
		// here to confirm it, and left to ROUTETAP_BASTION_PASSWORD or an
		// interactive prompt at collection time.
		fmt.Print("Bastion password (leave blank to keep using environment/prompt): ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading bastion password: %w", err)
		}
		if len(secret) > 0 {
			fmt.Println(cli.Dim("password confirmed, not persisted to settings file"))
		}

		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println(cli.Green("settings saved to " + settings.DefaultSettingsPath()))
		return nil
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Print the persisted CLI settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		t := cli.NewTable("SETTING", "VALUE")
		t.Row("default_inventory_path", dash(s.DefaultInventoryPath))
		t.Row("output_root", s.GetOutputRoot())
		t.Row("bastion_host", dash(s.BastionHost))
		t.Row("bastion_port", strconv.Itoa(s.BastionPort))
		t.Row("bastion_user", dash(s.BastionUser))
		t.Row("default_user", dash(s.DefaultUser))
		t.Row("workers", strconv.Itoa(s.GetWorkers()))
		t.Row("last_group", dash(s.LastGroup))
		t.Row("audit_log_path", s.GetAuditLogPath(s.GetOutputRoot()))
		t.Flush()
		return nil
	},
}

func promptString(r *bufio.Reader, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

func promptInt(r *bufio.Reader, label string, current, fallback int) int {
	def := current
	if def == 0 {
		def = fallback
	}
	fmt.Printf("%s [%d]: ", label, def)
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return def
	}
	return n
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
