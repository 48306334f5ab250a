// Package runstore owns the on-disk run layout and metadata for one
// collection invocation: raw and parsed command output, per-file and
// per-run metadata, and gzip compression above a threshold.
package runstore

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/routetap/routetap/pkg/util"
)

// StandardLayers is the fixed set of layer subdirectories created up front
// for every device, matching §6.3.
var StandardLayers = []string{"health", "interfaces", "igp", "mpls", "bgp", "vpn", "static", "console"}

// RunDirPrefix names every run directory, timestamped at OpenRun.
const RunDirPrefix = "collector-run-"

// FileMetadata describes one persisted command output.
type FileMetadata struct {
	FileName         string    `json:"file_name"`
	RawSize          int64     `json:"raw_size"`
	CompressedSize   int64     `json:"compressed_size,omitempty"`
	CompressionRatio float64   `json:"compression_ratio,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Command          string    `json:"command"`
	Hostname         string    `json:"hostname"`
	Layer            string    `json:"layer"`
	Family           string    `json:"family"`
}

// RunMetadata is the header persisted as collection_metadata.json.
type RunMetadata struct {
	RunID              string    `json:"run_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time,omitempty"`
	TotalDevices       int       `json:"total_devices"`
	SuccessfulDevices  int       `json:"successful_devices"`
	FailedDevices      int       `json:"failed_devices"`
	TotalCommands      int       `json:"total_commands"`
	SuccessfulCommands int       `json:"successful_commands"`
	FailedCommands     int       `json:"failed_commands"`
	RawBytes           int64     `json:"raw_bytes"`
	CompressedBytes    int64     `json:"compressed_bytes"`
	Layers             []string  `json:"layers"`
}

// RunDirectory is the root for one collection invocation.
type RunDirectory struct {
	Path string
	ID   string
}

// DeviceDirs maps layer name to the absolute path of that layer's directory
// under one device's subtree.
type DeviceDirs map[string]string

// Writer owns a RunDirectory's entire on-disk layout and metadata, and
// serialises concurrent writes through one mutex, as required by §4.2 and
// the concurrency model in §5.
type Writer struct {
	mu                sync.Mutex
	run               RunDirectory
	meta              RunMetadata
	files             []FileMetadata
	compressThreshold int64
	finalised         bool
}

// Open creates the timestamped run root under outputRoot and initialises
// RunMetadata with a start time. Idempotent within one process only in the
// sense that each call creates a fresh run; callers should call Open once
// per invocation.
func Open(outputRoot string, layers []string, compressThreshold int64) (*Writer, error) {
	if compressThreshold <= 0 {
		compressThreshold = 1 << 20
	}
	now := time.Now()
	runID := RunDirPrefix + now.Format("20060102-150405")
	runPath := filepath.Join(outputRoot, runID)

	if err := os.MkdirAll(runPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating run directory: %v", util.ErrWriterFailed, err)
	}

	w := &Writer{
		run: RunDirectory{Path: runPath, ID: runID},
		meta: RunMetadata{
			RunID:     runID,
			StartTime: now,
			Layers:    layers,
		},
		compressThreshold: compressThreshold,
	}
	return w, nil
}

// Run returns the underlying RunDirectory.
func (w *Writer) Run() RunDirectory {
	return w.run
}

// OpenDevice creates each requested layer directory up front under the
// device's subtree so collectors can write without further mkdir races,
// and returns the mapping of layer name to directory path.
func (w *Writer) OpenDevice(hostname string, layers []string) (DeviceDirs, error) {
	dirs := make(DeviceDirs, len(layers))
	deviceRoot := filepath.Join(w.run.Path, hostname)
	for _, layer := range layers {
		layerPath := filepath.Join(deviceRoot, layer)
		if err := os.MkdirAll(layerPath, 0755); err != nil {
			return nil, fmt.Errorf("%w: creating %s/%s: %v", util.ErrWriterFailed, hostname, layer, err)
		}
		dirs[layer] = layerPath
	}
	return dirs, nil
}

// WriteRaw writes a command's raw output under dir, named from a
// deterministic sanitiser applied to command (§Sanitiser rules). Above the
// compression threshold, it additionally writes a gzip sibling. A write
// failure is surfaced to the caller but never poisons the Writer —
// subsequent writes still proceed.
func (w *Writer) WriteRaw(dir, command, text, hostname, layer, family string) (FileMetadata, error) {
	stem := util.SanitizeCommand(command)
	fileName := stem + ".txt"
	path := filepath.Join(dir, fileName)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return FileMetadata{}, fmt.Errorf("%w: writing %s: %v", util.ErrWriterFailed, path, err)
	}

	fm := FileMetadata{
		FileName:  fileName,
		RawSize:   int64(len(text)),
		CreatedAt: time.Now(),
		Command:   command,
		Hostname:  hostname,
		Layer:     layer,
		Family:    family,
	}

	if fm.RawSize > w.compressThreshold {
		compressedSize, err := gzipTo(path+".gz", []byte(text))
		if err != nil {
			util.WithField("path", path).Warnf("compression failed, raw output retained: %v", err)
		} else {
			fm.CompressedSize = compressedSize
			if fm.RawSize > 0 {
				fm.CompressionRatio = float64(fm.RawSize-compressedSize) / float64(fm.RawSize)
			}
		}
	}

	w.files = append(w.files, fm)
	w.meta.RawBytes += fm.RawSize
	w.meta.CompressedBytes += fm.CompressedSize
	return fm, nil
}

// WriteParsed writes structured data as a sibling JSON file with the same
// sanitised stem.
func (w *Writer) WriteParsed(dir, command string, structured any, hostname, layer, family string) (FileMetadata, error) {
	stem := util.SanitizeCommand(command)
	fileName := stem + ".json"
	path := filepath.Join(dir, fileName)

	data, err := json.MarshalIndent(structured, "", "  ")
	if err != nil {
		return FileMetadata{}, fmt.Errorf("%w: marshalling parsed output for %s: %v", util.ErrWriterFailed, command, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.WriteFile(path, data, 0644); err != nil {
		return FileMetadata{}, fmt.Errorf("%w: writing %s: %v", util.ErrWriterFailed, path, err)
	}

	fm := FileMetadata{
		FileName:  fileName,
		RawSize:   int64(len(data)),
		CreatedAt: time.Now(),
		Command:   command,
		Hostname:  hostname,
		Layer:     layer,
		Family:    family,
	}
	w.files = append(w.files, fm)
	return fm, nil
}

// WriteDeviceSummary writes <hostname>/device_summary.json, an aggregate of
// every LayerResult collected for that device. Supplements §4.2 with the
// original collector's per-device summary.json (see SPEC_FULL.md).
func (w *Writer) WriteDeviceSummary(hostname string, layerResults any) error {
	path := filepath.Join(w.run.Path, hostname, "device_summary.json")
	data, err := json.MarshalIndent(layerResults, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshalling device summary for %s: %v", util.ErrWriterFailed, hostname, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing device summary for %s: %v", util.ErrWriterFailed, hostname, err)
	}
	return nil
}

// WriteRunReport persists a structured summary supplied by the scheduler on
// completion, as collection_report.json.
func (w *Writer) WriteRunReport(report any) error {
	path := filepath.Join(w.run.Path, "collection_report.json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshalling run report: %v", util.ErrWriterFailed, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return os.WriteFile(path, data, 0644)
}

// RecordDeviceOutcome updates the device/command counters kept in
// RunMetadata. Called by the scheduler as each device finishes.
func (w *Writer) RecordDeviceOutcome(succeeded bool, commandsSucceeded, commandsFailed int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.meta.TotalDevices++
	if succeeded {
		w.meta.SuccessfulDevices++
	} else {
		w.meta.FailedDevices++
	}
	w.meta.SuccessfulCommands += commandsSucceeded
	w.meta.FailedCommands += commandsFailed
	w.meta.TotalCommands += commandsSucceeded + commandsFailed
}

// Finalise sets the end time, flushes RunMetadata and the FileMetadata
// list, and marks the run complete. The presence of collection_metadata.json
// on disk is what marks a run "complete enough" to feed to the analyzer.
func (w *Writer) Finalise() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalised {
		return nil
	}
	w.meta.EndTime = time.Now()

	metaPath := filepath.Join(w.run.Path, "collection_metadata.json")
	metaData, err := json.MarshalIndent(w.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshalling run metadata: %v", util.ErrWriterFailed, err)
	}
	if err := os.WriteFile(metaPath, metaData, 0644); err != nil {
		return fmt.Errorf("%w: writing run metadata: %v", util.ErrWriterFailed, err)
	}

	filesPath := filepath.Join(w.run.Path, "file_metadata.json")
	filesData, err := json.MarshalIndent(w.files, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshalling file metadata: %v", util.ErrWriterFailed, err)
	}
	if err := os.WriteFile(filesPath, filesData, 0644); err != nil {
		return fmt.Errorf("%w: writing file metadata: %v", util.ErrWriterFailed, err)
	}

	w.finalised = true
	return nil
}

// Metadata returns a copy of the current RunMetadata (safe to call
// mid-run; reflects state as of the call).
func (w *Writer) Metadata() RunMetadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta
}

func gzipTo(path string, data []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return 0, err
	}
	return int64(buf.Len()), nil
}

// IsCompleteRun reports whether collection_metadata.json exists in runPath,
// the on-disk marker that a run finished Finalise successfully.
func IsCompleteRun(runPath string) bool {
	_, err := os.Stat(filepath.Join(runPath, "collection_metadata.json"))
	return err == nil
}
