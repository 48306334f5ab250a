package security

import "strings"

// ViolationKind names one of the four transport-security checks applied to
// a device's terminal-line configuration blocks (§4.7).
type ViolationKind string

const (
	ViolationTransportInputAll      ViolationKind = "transport_input_all"
	ViolationTransportInputTelnet   ViolationKind = "transport_input_telnet"
	ViolationTransportOutputAll     ViolationKind = "transport_output_all"
	ViolationTransportOutputTelnet  ViolationKind = "transport_output_telnet"
)

// Severity of a violation kind, fixed regardless of which device or line it
// occurred on.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// rule pairs a case-insensitive phrase with the kind/severity it signals.
// Every rule is applied to every line; the order fixes the order of
// remediation strings.
var rules = []struct {
	phrase   string
	kind     ViolationKind
	severity string
}{
	{"transport input all", ViolationTransportInputAll, SeverityCritical},
	{"transport input telnet", ViolationTransportInputTelnet, SeverityHigh},
	{"transport output all", ViolationTransportOutputAll, SeverityMedium},
	{"transport output telnet", ViolationTransportOutputTelnet, SeverityMedium},
}

// remediations gives one deterministic remediation string per violation
// kind, in the fixed order they're checked.
var remediations = map[ViolationKind]string{
	ViolationTransportInputAll:     "restrict transport input to ssh only (remove 'transport input all')",
	ViolationTransportInputTelnet:  "disable telnet access (remove 'transport input telnet')",
	ViolationTransportOutputAll:    "restrict transport output to ssh only (remove 'transport output all')",
	ViolationTransportOutputTelnet: "disable telnet as an output transport (remove 'transport output telnet')",
}

// LineKind classifies which terminal line block a violation occurred in.
type LineKind string

const (
	LineKindAux     LineKind = "aux"
	LineKindConsole LineKind = "console"
	LineKindVTY     LineKind = "vty"
	LineKindOther   LineKind = "other"
)

func classifyLineKind(header string) LineKind {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "line aux"):
		return LineKindAux
	case strings.Contains(h, "line con"):
		return LineKindConsole
	case strings.Contains(h, "line vty"):
		return LineKindVTY
	default:
		return LineKindOther
	}
}

// Violation is one matched rule against one configuration line.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Severity string        `json:"severity"`
	LineKind LineKind      `json:"line_kind"`
	LineID   string        `json:"line_id"`
	Text     string        `json:"text"`
}

// scanBlock applies every rule to every line of a terminal-line
// configuration block, case-insensitively.
func scanBlock(lineID string, kind LineKind, lines []string) []Violation {
	var found []Violation
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, r := range rules {
			if strings.Contains(lower, r.phrase) {
				found = append(found, Violation{
					Kind:     r.kind,
					Severity: r.severity,
					LineKind: kind,
					LineID:   lineID,
					Text:     strings.TrimSpace(line),
				})
			}
		}
	}
	return found
}

// riskLevel derives a device's overall risk from its total violation count
// (§4.7: high >= 5, medium >= 2, low >= 1, compliant = 0).
func riskLevel(total int) string {
	switch {
	case total >= 5:
		return "high"
	case total >= 2:
		return "medium"
	case total >= 1:
		return "low"
	default:
		return "compliant"
	}
}

// remediationsFor returns one remediation string per distinct violation
// kind present, in rule-table order (deterministic).
func remediationsFor(countsByKind map[ViolationKind]int) []string {
	var out []string
	for _, r := range rules {
		if countsByKind[r.kind] > 0 {
			out = append(out, remediations[r.kind])
		}
	}
	return out
}
