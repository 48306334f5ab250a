// Package parser gives best-effort structured interpretation of device
// command output, with a deterministic fallback that never raises to
// callers.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/routetap/routetap/pkg/inventory"
)

// ParserUsed names which strategy produced a ParseResult.
type ParserUsed string

const (
	UsedStructured   ParserUsed = "structured"
	UsedTextPatterns ParserUsed = "text_patterns"
	UsedRawText      ParserUsed = "raw_text"
	UsedErrorFallback ParserUsed = "error_fallback"
)

// ParseResult is the façade's uniform return value.
type ParseResult struct {
	Command    string
	Success    bool
	Structured map[string]any
	RawText    string
	Error      string
	ParserUsed ParserUsed
}

// canonicalRenames maps family-specific command spellings to the
// canonical form text parsers key on (§4.3: carrier uses "ipv4" where
// others use "ip", and the BGP-summary rename).
var canonicalRenames = map[string]string{
	"show ipv4 interface brief":     "show ip interface brief",
	"show bgp ipv4 unicast summary": "show ip bgp summary",
	"show ospf":                     "show ip ospf",
}

func canonicalize(command string) string {
	lower := strings.ToLower(strings.TrimSpace(command))
	if canon, ok := canonicalRenames[lower]; ok {
		return canon
	}
	return lower
}

// nativeParsers are per-canonical-command structured parsers (strategy 1,
// §4.3). They return (data, true) on success.
var nativeParsers = map[string]func(string) (map[string]any, bool){
	"show version":             parseShowVersion,
	"show ip interface brief":  parseInterfaceBrief,
	"show ipv6 interface brief": parseInterfaceBrief,
	"show ip bgp summary":      parseBGPSummary,
	"show ip ospf neighbor":    parseOSPFNeighbors,
}

// Parse returns a ParseResult for (command, text, family). It never
// propagates a panic to the caller; any internal failure degrades to
// error_fallback. family is not consulted: canonicalisation goes by the
// command text alone.
func Parse(command, text string, family inventory.Family) (result ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ParseResult{
				Command:    command,
				Success:    true,
				Structured: map[string]any{"raw_output": text, "error": fmt.Sprintf("%v", r)},
				RawText:    text,
				Error:      fmt.Sprintf("%v", r),
				ParserUsed: UsedErrorFallback,
			}
		}
	}()

	canon := canonicalize(command)

	if fn, ok := nativeParsers[canon]; ok {
		if data, ok := fn(text); ok {
			return ParseResult{Command: command, Success: true, Structured: data, RawText: text, ParserUsed: UsedStructured}
		}
	}

	if data, ok := parseTextPatterns(canon, text); ok {
		return ParseResult{Command: command, Success: true, Structured: data, RawText: text, ParserUsed: UsedTextPatterns}
	}

	return ParseResult{
		Command:    command,
		Success:    text != "",
		Structured: map[string]any{"raw_output": text},
		RawText:    text,
		ParserUsed: UsedRawText,
	}
}

// parseTextPatterns dispatches to the small built-in set of well-known
// command parsers (strategy 2, §4.3), falling back to a generic
// lines-plus-potential-headers dictionary.
func parseTextPatterns(canon, text string) (map[string]any, bool) {
	switch {
	case strings.Contains(canon, "show version"):
		return parseShowVersion(text)
	case strings.Contains(canon, "interface brief"):
		return parseInterfaceBrief(text)
	case strings.Contains(canon, "bgp summary"):
		return parseBGPSummary(text)
	case strings.Contains(canon, "ospf neighbor"):
		return parseOSPFNeighbors(text)
	default:
		return parseGenericTable(text), text != ""
	}
}

var (
	versionRe  = regexp.MustCompile(`(?i)Version\s+([^\s,]+)`)
	uptimeRe   = regexp.MustCompile(`(?i)uptime is (.+)`)
	hostnameRe = regexp.MustCompile(`(?m)^(\S+)\s+uptime`)
	modelRe    = regexp.MustCompile(`(?i)cisco\s+(\S+)`)
)

func parseShowVersion(text string) (map[string]any, bool) {
	data := map[string]any{}
	if m := versionRe.FindStringSubmatch(text); m != nil {
		data["version"] = m[1]
	}
	if m := hostnameRe.FindStringSubmatch(text); m != nil {
		data["hostname"] = m[1]
	}
	if m := uptimeRe.FindStringSubmatch(text); m != nil {
		data["uptime"] = strings.TrimSpace(m[1])
	}
	if m := modelRe.FindStringSubmatch(text); m != nil {
		data["model"] = m[1]
	}
	return data, len(data) > 0
}

// parseInterfaceBrief tabulates "show ip interface brief"-style output into
// {interface: {address, method, status, protocol}}.
func parseInterfaceBrief(text string) (map[string]any, bool) {
	interfaces := map[string]any{}
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "Interface") || strings.Contains(line, "Protocol") || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		addr := fields[1]
		if addr == "unassigned" {
			addr = ""
		}
		interfaces[fields[0]] = map[string]string{
			"address":  addr,
			"method":   fields[3],
			"status":   strings.Join(fields[4:len(fields)-1], " "),
			"protocol": fields[len(fields)-1],
		}
	}
	return map[string]any{"interfaces": interfaces}, len(interfaces) > 0
}

func parseBGPSummary(text string) (map[string]any, bool) {
	neighbors := map[string]any{}
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "Neighbor") && strings.Contains(line, "AS") {
			inSection = true
			continue
		}
		if !inSection || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 5 && isIPv4(fields[0]) {
			neighbors[fields[0]] = map[string]string{
				"as_number": fields[2],
				"state":     fields[len(fields)-1],
			}
		}
	}
	return map[string]any{"neighbors": neighbors}, len(neighbors) > 0
}

func parseOSPFNeighbors(text string) (map[string]any, bool) {
	neighbors := map[string]any{}
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "Neighbor ID") || strings.Contains(line, "Interface") || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 4 && isIPv4(fields[0]) {
			entry := map[string]string{"priority": fields[1], "state": fields[2]}
			if len(fields) > 5 {
				entry["interface"] = fields[5]
			}
			neighbors[fields[0]] = entry
		}
	}
	return map[string]any{"neighbors": neighbors}, len(neighbors) > 0
}

// parseGenericTable is the last built-in text strategy: lines plus any
// potential header lines, for commands with no dedicated parser.
func parseGenericTable(text string) map[string]any {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	data := map[string]any{
		"lines":      lines,
		"line_count": len(lines),
	}

	var headers []string
	for i, line := range lines {
		if i >= 5 {
			break
		}
		lower := strings.ToLower(line)
		for _, kw := range []string{"interface", "neighbor", "route", "address"} {
			if strings.Contains(lower, kw) {
				headers = append(headers, line)
				break
			}
		}
	}
	if len(headers) > 0 {
		data["potential_headers"] = headers
	}
	return data
}

func isIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}
