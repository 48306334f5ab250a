package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Artefact file names written into the run directory by WriteReports.
const (
	ExecutiveSummaryFile = "security_executive_summary.txt"
	DetailedReportFile   = "security_detailed_report.txt"
	PerDeviceFile        = "security_per_device_report.txt"
	ComplianceFile       = "security_compliance_report.txt"
	CompleteBackupFile   = "security_complete_backup.json"
)

// WriteReports renders the five artefacts (§4.7) into runPath. Output is
// pure given report — the same report always produces byte-identical
// files, satisfying idempotent re-analysis of an unchanged run.
func WriteReports(report AggregateReport, runPath string) error {
	writers := []struct {
		name string
		body func(AggregateReport) string
	}{
		{ExecutiveSummaryFile, renderExecutiveSummary},
		{DetailedReportFile, renderDetailedReport},
		{PerDeviceFile, renderPerDevice},
		{ComplianceFile, renderCompliance},
	}
	for _, w := range writers {
		if err := os.WriteFile(filepath.Join(runPath, w.name), []byte(w.body(report)), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", w.name, err)
		}
	}

	backup, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling complete backup: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runPath, CompleteBackupFile), backup, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", CompleteBackupFile, err)
	}
	return nil
}

func sortedViolationKinds(counts map[ViolationKind]int) []ViolationKind {
	kinds := make([]ViolationKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func renderExecutiveSummary(r AggregateReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transport-security audit: %s\n", r.RunPath)
	fmt.Fprintf(&b, "Devices audited: %d\n", r.DevicesAudited)
	fmt.Fprintf(&b, "Compliant: %d\n", r.Compliant)
	fmt.Fprintf(&b, "Non-compliant: %d\n", r.NonCompliant)
	fmt.Fprintf(&b, "Errors: %d\n", r.Errors)
	fmt.Fprintf(&b, "Compliance rate: %.1f%%\n", r.ComplianceRate)
	fmt.Fprintf(&b, "\nViolation totals:\n")
	for _, kind := range sortedViolationKinds(r.ViolationTotals) {
		fmt.Fprintf(&b, "  %-30s %d\n", kind, r.ViolationTotals[kind])
	}
	return b.String()
}

func renderDetailedReport(r AggregateReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Detailed transport-security findings: %s\n\n", r.RunPath)
	for _, d := range r.Devices {
		fmt.Fprintf(&b, "== %s ==\n", d.Hostname)
		fmt.Fprintf(&b, "status: %s  console_data_found: %t  risk: %s  total_violations: %d\n",
			d.Status, d.ConsoleDataFound, d.Risk, d.TotalViolations)

		lineKinds := make([]LineKind, 0, len(d.ViolationsByLine))
		for k := range d.ViolationsByLine {
			lineKinds = append(lineKinds, k)
		}
		sort.Slice(lineKinds, func(i, j int) bool { return lineKinds[i] < lineKinds[j] })
		for _, lk := range lineKinds {
			for _, v := range d.ViolationsByLine[lk] {
				fmt.Fprintf(&b, "  [%s/%s] %s (%s): %s\n", lk, v.LineID, v.Kind, v.Severity, v.Text)
			}
		}
		if len(d.Remediations) > 0 {
			fmt.Fprintf(&b, "  remediation:\n")
			for _, rem := range d.Remediations {
				fmt.Fprintf(&b, "    - %s\n", rem)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderPerDevice(r AggregateReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-8s %-10s %-10s\n", "hostname", "status", "risk", "violations")
	for _, d := range r.Devices {
		fmt.Fprintf(&b, "%-30s %-8s %-10s %-10d\n", d.Hostname, d.Status, d.Risk, d.TotalViolations)
	}
	return b.String()
}

func renderCompliance(r AggregateReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compliance report: %s\n", r.RunPath)
	fmt.Fprintf(&b, "Overall compliance rate: %.1f%% (%d/%d judged devices)\n",
		r.ComplianceRate, r.Compliant, r.Compliant+r.NonCompliant)
	fmt.Fprintf(&b, "\nNon-compliant devices:\n")
	foundAny := false
	for _, d := range r.Devices {
		if d.Status != "ERROR" && d.Risk != "compliant" {
			fmt.Fprintf(&b, "  %-30s risk=%-10s violations=%d\n", d.Hostname, d.Risk, d.TotalViolations)
			foundAny = true
		}
	}
	if !foundAny {
		b.WriteString("  (none)\n")
	}
	return b.String()
}
