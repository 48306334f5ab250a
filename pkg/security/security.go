// Package security implements the post-hoc transport-security analyzer
// (C7): it reads an already-written run directory and reports on console,
// aux, and vty line transport-security hygiene.
package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/routetap/routetap/pkg/runstore"
	"github.com/routetap/routetap/pkg/util"
)

// metadataFiles are run-level artefacts at the root of a run directory,
// not device subtrees, and must be skipped when walking for devices.
var metadataFiles = map[string]struct{}{
	"collection_metadata.json": {},
	"file_metadata.json":       {},
	"collection_report.json":   {},
}

// discoveryStem is the sanitised stem of the console layer's "show line"
// discovery command — its output lists line numbers, not line
// configuration, so it is never scanned for violations.
var discoveryStem = util.SanitizeCommand("show line")

// DeviceAudit is one device's transport-security findings.
type DeviceAudit struct {
	Hostname         string                     `json:"hostname"`
	ConsoleDataFound bool                       `json:"console_data_found"`
	Status           string                     `json:"status"` // OK | ERROR
	ViolationsByLine map[LineKind][]Violation   `json:"violations_by_line_kind,omitempty"`
	CountsByKind     map[ViolationKind]int      `json:"counts_by_kind,omitempty"`
	TotalViolations  int                        `json:"total_violations"`
	Risk             string                     `json:"risk"`
	Remediations     []string                   `json:"remediations,omitempty"`
}

// AggregateReport summarises a run's devices.
type AggregateReport struct {
	RunPath          string                `json:"run_path"`
	DevicesAudited   int                   `json:"devices_audited"`
	Compliant        int                   `json:"compliant"`
	NonCompliant     int                   `json:"non_compliant"`
	Errors           int                   `json:"errors"`
	ViolationTotals  map[ViolationKind]int `json:"violation_totals"`
	ComplianceRate   float64               `json:"compliance_rate"`
	Devices          []DeviceAudit         `json:"devices"`
}

// Analyze reads runPath (a collector-run-* directory) and produces an
// AggregateReport. A run missing collection_metadata.json — meaning
// Finalise never ran — is a fatal error to the analyzer (§4.7).
func Analyze(runPath string) (AggregateReport, error) {
	if !runstore.IsCompleteRun(runPath) {
		return AggregateReport{}, fmt.Errorf("%w: %s has no collection_metadata.json", util.ErrRunIncomplete, runPath)
	}

	entries, err := os.ReadDir(runPath)
	if err != nil {
		return AggregateReport{}, fmt.Errorf("reading run directory %s: %w", runPath, err)
	}

	report := AggregateReport{
		RunPath:         runPath,
		ViolationTotals: map[ViolationKind]int{},
	}

	var hostnames []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := metadataFiles[e.Name()]; skip {
			continue
		}
		hostnames = append(hostnames, e.Name())
	}
	sort.Strings(hostnames)

	for _, hostname := range hostnames {
		audit := analyzeDevice(runPath, hostname)
		report.Devices = append(report.Devices, audit)
		switch {
		case audit.Status == "ERROR":
			report.Errors++
		case audit.Risk == "compliant":
			report.Compliant++
		default:
			report.NonCompliant++
		}
		for kind, count := range audit.CountsByKind {
			report.ViolationTotals[kind] += count
		}
	}

	report.DevicesAudited = len(report.Devices)
	judged := report.Compliant + report.NonCompliant
	if judged > 0 {
		report.ComplianceRate = float64(report.Compliant) / float64(judged) * 100
	}
	return report, nil
}

type lineBlock struct {
	id    string
	kind  LineKind
	lines []string
}

func analyzeDevice(runPath, hostname string) DeviceAudit {
	consoleDir := filepath.Join(runPath, hostname, "console")
	info, err := os.Stat(consoleDir)
	if err != nil || !info.IsDir() {
		return DeviceAudit{Hostname: hostname, ConsoleDataFound: false, Status: "OK", Risk: "compliant"}
	}

	entries, err := os.ReadDir(consoleDir)
	if err != nil {
		return DeviceAudit{Hostname: hostname, ConsoleDataFound: false, Status: "ERROR"}
	}

	blocks, parseErr := readLineBlocks(consoleDir, entries)
	if parseErr {
		return DeviceAudit{Hostname: hostname, ConsoleDataFound: true, Status: "ERROR"}
	}
	if len(blocks) == 0 {
		return DeviceAudit{Hostname: hostname, ConsoleDataFound: false, Status: "OK", Risk: "compliant"}
	}

	violationsByLine := map[LineKind][]Violation{}
	countsByKind := map[ViolationKind]int{}
	total := 0
	for _, b := range blocks {
		found := scanBlock(b.id, b.kind, b.lines)
		if len(found) == 0 {
			continue
		}
		violationsByLine[b.kind] = append(violationsByLine[b.kind], found...)
		for _, v := range found {
			countsByKind[v.Kind]++
		}
		total += len(found)
	}

	return DeviceAudit{
		Hostname:         hostname,
		ConsoleDataFound: true,
		Status:           "OK",
		ViolationsByLine: violationsByLine,
		CountsByKind:     countsByKind,
		TotalViolations:  total,
		Risk:             riskLevel(total),
		Remediations:     remediationsFor(countsByKind),
	}
}

// readLineBlocks groups console-directory files by command stem, preferring
// the structured JSON sibling and falling back to raw text when it's
// absent, per §4.7. The boolean return is true if a JSON file existed but
// could not be decoded (a hard parse error for that device).
func readLineBlocks(consoleDir string, entries []os.DirEntry) ([]lineBlock, bool) {
	seen := map[string]struct{}{}
	var blocks []lineBlock

	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".gz") {
			continue
		}
		stem := strings.TrimSuffix(strings.TrimSuffix(name, ".json"), ".txt")
		if stem == discoveryStem {
			continue
		}
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}

		lines, ok, hardErr := readBlock(consoleDir, stem)
		if hardErr {
			return nil, true
		}
		if !ok {
			continue
		}
		header := ""
		if len(lines) > 0 {
			header = lines[0]
		}
		blocks = append(blocks, lineBlock{id: stem, kind: classifyLineKind(header), lines: lines})
	}
	return blocks, false
}

func readBlock(consoleDir, stem string) (lines []string, ok bool, hardErr bool) {
	jsonPath := filepath.Join(consoleDir, stem+".json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		var structured map[string]any
		if err := json.Unmarshal(data, &structured); err != nil {
			return nil, false, true
		}
		if raw, ok := structured["lines"].([]any); ok {
			var out []string
			for _, v := range raw {
				if s, ok := v.(string); ok {
					out = append(out, s)
				}
			}
			return out, true, false
		}
		if raw, ok := structured["raw_output"].(string); ok {
			return splitLines(raw), true, false
		}
		return nil, true, false
	}

	txtPath := filepath.Join(consoleDir, stem+".txt")
	data, err := os.ReadFile(txtPath)
	if err != nil {
		return nil, false, false
	}
	return splitLines(string(data)), true, false
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if r == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
