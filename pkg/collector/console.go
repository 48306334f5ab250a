package collector

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/routetap/routetap/pkg/inventory"
	"github.com/routetap/routetap/pkg/parser"
	"github.com/routetap/routetap/pkg/runstore"
	"github.com/routetap/routetap/pkg/util"
)

// lineRowRe matches one row of "show line" output: an optional active
// marker, the absolute line number, the per-type line number, and the
// line type (CTY/AUX/VTY/TTY).
var lineRowRe = regexp.MustCompile(`^\*?\s*(\d+)\s+(\d+)\s+(CTY|AUX|VTY|TTY)`)

// CollectConsole is the console layer's collector: run "show line" to
// discover configured terminal lines, then pull the running-config section
// for each one. Unlike the other layers its command list isn't static —
// it's derived from the first command's own output (§6.2 console row).
func CollectConsole(ctx context.Context, exec Executor, writer *runstore.Writer, dir string, hostname string, family inventory.Family, baseTimeout time.Duration) LayerResult {
	const layer = "console"
	result := LayerResult{Hostname: hostname, Family: family, Layer: layer}

	discoveryText, elapsed, err := exec.Execute("show line", baseTimeout, layer)
	discoveryRecord := CommandRecord{Command: "show line", Elapsed: elapsed}
	if err != nil {
		discoveryRecord.Error = err.Error()
		result.Commands = append(result.Commands, discoveryRecord)
		result.FailureCount++
		util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("show line failed: %v", err)
		return finalise(result)
	}

	discoveryRecord.OutputSize = len(discoveryText)
	if _, werr := writer.WriteRaw(dir, "show line", discoveryText, hostname, layer, string(family)); werr != nil {
		discoveryRecord.Error = werr.Error()
		result.Commands = append(result.Commands, discoveryRecord)
		result.FailureCount++
		util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("writing raw output for show line: %v", werr)
		return finalise(result)
	}
	discoveryRecord.Success = true
	parsed := parser.Parse("show line", discoveryText, family)
	discoveryRecord.ParserUsed = parsed.ParserUsed
	if parsed.Success && parsed.Structured != nil {
		discoveryRecord.Parsed = true
		if _, werr := writer.WriteParsed(dir, "show line", parsed.Structured, hostname, layer, string(family)); werr != nil {
			util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("writing parsed output for show line: %v", werr)
		}
	}
	result.Commands = append(result.Commands, discoveryRecord)
	result.SuccessCount++

	lineIDs := discoverLines(discoveryText)
	for _, id := range lineIDs {
		if ctx.Err() != nil {
			break
		}
		time.Sleep(InterCommandDelay)
		command := fmt.Sprintf("show running-config | section line %s", id)
		record := CommandRecord{Command: command}

		text, elapsed, err := exec.Execute(command, baseTimeout, layer)
		record.Elapsed = elapsed
		if err != nil {
			record.Error = err.Error()
			result.Commands = append(result.Commands, record)
			result.FailureCount++
			util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("command failed: %s: %v", command, err)
			continue
		}

		record.OutputSize = len(text)
		if _, werr := writer.WriteRaw(dir, command, text, hostname, layer, string(family)); werr != nil {
			record.Error = werr.Error()
			result.Commands = append(result.Commands, record)
			result.FailureCount++
			util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("writing raw output for %s: %v", command, werr)
			continue
		}
		record.Success = true
		parsed := parser.Parse(command, text, family)
		record.ParserUsed = parsed.ParserUsed
		if parsed.Success && parsed.Structured != nil {
			record.Parsed = true
			if _, werr := writer.WriteParsed(dir, command, parsed.Structured, hostname, layer, string(family)); werr != nil {
				util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("writing parsed output for %s: %v", command, werr)
			}
		}
		result.Commands = append(result.Commands, record)
		result.SuccessCount++
	}

	return finalise(result)
}

func discoverLines(text string) []string {
	var ids []string
	for _, line := range splitLines(text) {
		m := lineRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ids = append(ids, m[1])
	}
	return ids
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

func finalise(result LayerResult) LayerResult {
	total := result.SuccessCount + result.FailureCount
	if total > 0 {
		result.SuccessRate = float64(result.SuccessCount) / float64(total) * 100
	}
	return result
}
