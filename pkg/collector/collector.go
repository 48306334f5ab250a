// Package collector implements the uniform layer-collector contract (C5):
// one Collect entry point per functional layer, each driving a curated,
// family-indexed command list over a device session.
package collector

import (
	"context"
	"embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/routetap/routetap/pkg/inventory"
	"github.com/routetap/routetap/pkg/parser"
	"github.com/routetap/routetap/pkg/runstore"
	"github.com/routetap/routetap/pkg/util"
)

//go:embed commands/*.yaml
var commandFS embed.FS

// Layers lists the collection layers in the fixed execution order used
// when no explicit order is supplied (§6.2, §5 "layers execute in the
// caller-supplied order").
var Layers = []string{"health", "interfaces", "igp", "mpls", "bgp", "vpn", "static", "console"}

// InterCommandDelay paces consecutive commands on one session so a single
// device isn't hammered with back-to-back show commands.
const InterCommandDelay = 500 * time.Millisecond

type familyCommands map[string][]string

var layerCommands = map[string]familyCommands{}

func init() {
	for _, layer := range Layers {
		if layer == "console" {
			continue // discovered at runtime, not a fixed list
		}
		data, err := commandFS.ReadFile(fmt.Sprintf("commands/%s.yaml", layer))
		if err != nil {
			panic(fmt.Sprintf("collector: missing embedded command table for layer %q: %v", layer, err))
		}
		var fc familyCommands
		if err := yaml.Unmarshal(data, &fc); err != nil {
			panic(fmt.Sprintf("collector: malformed command table for layer %q: %v", layer, err))
		}
		layerCommands[layer] = fc
	}
}

// Commands returns the command list for layer and family, falling back to
// the classic-family list (with a warning) when family is unrecognised. A
// layer with no static table (console, or an unknown layer) gives nil.
func Commands(layer string, family inventory.Family) []string {
	fc, ok := layerCommands[layer]
	if !ok {
		return nil
	}
	key := string(family)
	if list, ok := fc[key]; ok {
		return list
	}
	util.WithLayer(layer).Warnf("unknown family %q, using classic command list", family)
	return fc[string(inventory.FamilyClassic)]
}

// Executor is the single capability a collector needs from a live device
// session: send a command, get text back. Collectors never see the
// underlying SSH client, so they cannot depend on a concrete transport.
type Executor interface {
	Execute(command string, baseTimeout time.Duration, layer string) (text string, elapsed time.Duration, err error)
}

// CommandRecord is one executed command's outcome within a LayerResult.
type CommandRecord struct {
	Command    string        `json:"command"`
	Success    bool          `json:"success"`
	Elapsed    time.Duration `json:"elapsed"`
	OutputSize int           `json:"output_size"`
	Parsed     bool          `json:"parsed"`
	ParserUsed parser.ParserUsed `json:"parser_used"`
	Error      string        `json:"error,omitempty"`
}

// LayerResult is the outcome of collecting one layer from one device.
type LayerResult struct {
	Hostname     string          `json:"hostname"`
	Family       inventory.Family `json:"family"`
	Layer        string          `json:"layer"`
	Commands     []CommandRecord `json:"commands"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	SuccessRate  float64         `json:"success_rate"`
}

// Collect drives every command for layer against device, writing raw and
// (where parseable) structured output through writer, and returns the
// per-command outcomes. One command's failure never aborts the layer
// (§4.5 step c) — isolation is enforced by recording the error and moving
// on, never returning early.
func Collect(ctx context.Context, exec Executor, writer *runstore.Writer, dir string, hostname string, family inventory.Family, layer string, baseTimeout time.Duration) LayerResult {
	commands := Commands(layer, family)
	result := LayerResult{Hostname: hostname, Family: family, Layer: layer}

	for i, command := range commands {
		if ctx.Err() != nil {
			break
		}
		record := CommandRecord{Command: command}

		text, elapsed, err := exec.Execute(command, baseTimeout, layer)
		record.Elapsed = elapsed
		if err != nil {
			record.Success = false
			record.Error = err.Error()
			result.Commands = append(result.Commands, record)
			result.FailureCount++
			util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("command failed: %s: %v", command, err)
			pace(i, len(commands))
			continue
		}

		record.OutputSize = len(text)

		if _, werr := writer.WriteRaw(dir, command, text, hostname, layer, string(family)); werr != nil {
			record.Success = false
			record.Error = werr.Error()
			result.Commands = append(result.Commands, record)
			result.FailureCount++
			util.WithFields(map[string]interface{}{"device": hostname, "layer": layer}).Warnf("writing raw output for %s: %v", command, werr)
			pace(i, len(commands))
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
		pace(i, len(commands))
	}

	total := result.SuccessCount + result.FailureCount
	if total > 0 {
		result.SuccessRate = float64(result.SuccessCount) / float64(total) * 100
	}
	return result
}

func pace(i, total int) {
	if i < total-1 {
		time.Sleep(InterCommandDelay)
	}
}
