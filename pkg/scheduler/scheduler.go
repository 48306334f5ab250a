// Package scheduler orchestrates device-level collection across a worker
// pool (C6): it owns device filtering, per-device session lifecycle,
// layer ordering, cancellation, and success/failure accounting.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/routetap/routetap/pkg/bastion"
	"github.com/routetap/routetap/pkg/collector"
	"github.com/routetap/routetap/pkg/inventory"
	"github.com/routetap/routetap/pkg/runlock"
	"github.com/routetap/routetap/pkg/runstore"
	"github.com/routetap/routetap/pkg/util"
)

// Options configures a collection run.
type Options struct {
	Workers         int
	BaseTimeout     time.Duration
	BastionPort     int
	DefaultUser     string
	DefaultPassword string
	Layers          []string

	// RedisAddr, when set, turns on the distributed run lock: two
	// operators collecting the same LockSelector concurrently from
	// different hosts cause the second RunCollection to fail fast instead
	// of racing the first for the same devices. Left empty, locking is a
	// no-op.
	RedisAddr    string
	LockSelector string
	LockHolder   string
	LockTTL      time.Duration
}

// RunReport is the scheduler's top-level summary of a collection run,
// persisted as collection_report.json alongside C2's own metadata files.
type RunReport struct {
	RunID             string          `json:"run_id"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	TotalDevices      int             `json:"total_devices"`
	SuccessfulDevices int             `json:"successful_devices"`
	FailedDevices     int             `json:"failed_devices"`
	Layers            []string        `json:"layers"`
	Cancelled         bool            `json:"cancelled"`
	Devices           []DeviceOutcome `json:"devices"`
}

// ValidateLayers rejects any requested layer collector doesn't know about.
func ValidateLayers(layers []string) error {
	known := make(map[string]struct{}, len(collector.Layers))
	for _, l := range collector.Layers {
		known[l] = struct{}{}
	}
	for _, l := range layers {
		if _, ok := known[l]; !ok {
			return fmt.Errorf("%w: %q", util.ErrUnknownLayer, l)
		}
	}
	return nil
}

// sessionExecutor adapts one acquired Session to collector.Executor so
// collectors never see the underlying SSH client (§ "duck-typed
// connection" redesign — a single capability, Execute, and one lifecycle,
// Close, owned by C4).
type sessionExecutor struct {
	session *bastion.Session
}

func (e *sessionExecutor) Execute(command string, baseTimeout time.Duration, layer string) (string, time.Duration, error) {
	return bastion.Execute(e.session, command, baseTimeout, layer)
}

// RunCollection drives collection of opts.Layers, in order, across devices
// using up to opts.Workers concurrent device workers. Once the layers are
// validated and the run lock is held, it always tears down the pool and
// finalises writer before returning, cancelled or not (§5); an unknown
// layer or a lock failure returns at once, touching neither.
func RunCollection(ctx context.Context, pool *bastion.Pool, writer *runstore.Writer, devices []*inventory.DeviceRecord, opts Options, progress *TaskProgress) (RunReport, error) {
	if err := ValidateLayers(opts.Layers); err != nil {
		return RunReport{}, err
	}

	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	lock, err := runlock.Acquire(ctx, opts.RedisAddr, opts.LockSelector, opts.LockHolder, lockTTL)
	if err != nil {
		return RunReport{}, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			util.Warnf("releasing run lock: %v", err)
		}
	}()

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	startTime := time.Now()
	meta := writer.Run()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var outcomes []DeviceOutcome

	for _, device := range devices {
		if ctx.Err() != nil {
			break // no new jobs are dispatched once cancelled (§5)
		}
		wg.Add(1)
		go func(device *inventory.DeviceRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := runDeviceIsolated(ctx, pool, writer, device, opts)
			if progress != nil {
				progress.Complete(outcome)
			}

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(device)
	}
	wg.Wait()

	pool.CloseAll()

	report := RunReport{
		RunID:     meta.ID,
		StartTime: startTime,
		EndTime:   time.Now(),
		Layers:    opts.Layers,
		Cancelled: ctx.Err() != nil,
		Devices:   outcomes,
	}
	report.TotalDevices = len(outcomes)
	for _, o := range outcomes {
		if o.Success {
			report.SuccessfulDevices++
		} else {
			report.FailedDevices++
		}
	}

	if err := writer.WriteRunReport(report); err != nil {
		util.Errorf("writing collection report: %v", err)
	}
	if err := writer.Finalise(); err != nil {
		util.Errorf("finalising run: %v", err)
	}

	return report, nil
}

// runDeviceIsolated runs processDevice behind a recover() so a panic inside
// one device's work (a bad parser, a writer bug, anything) never takes down
// the process or any other device's goroutine (§5). A recovered panic counts
// as that device failing, nothing more.
func runDeviceIsolated(ctx context.Context, pool *bastion.Pool, writer *runstore.Writer, device *inventory.DeviceRecord, opts Options) (outcome DeviceOutcome) {
	defer func() {
		if r := recover(); r != nil {
			util.WithDevice(device.Hostname).Errorf("recovered from panic: %v", r)
			outcome = DeviceOutcome{Hostname: device.Hostname, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return processDevice(ctx, pool, writer, device, opts)
}

// processDevice acquires one Session, drives every requested layer against
// it in order, and releases it exactly once. A device is "successful" iff
// at least one command succeeded across all its layers (§4.6).
func processDevice(ctx context.Context, pool *bastion.Pool, writer *runstore.Writer, device *inventory.DeviceRecord, opts Options) DeviceOutcome {
	logger := util.WithDevice(device.Hostname)

	if ctx.Err() != nil {
		return DeviceOutcome{Hostname: device.Hostname, Err: ctx.Err()}
	}

	creds := inventory.ResolveCredentials(device, opts.DefaultUser, opts.DefaultPassword)
	session, err := pool.RetryingAcquire(device, creds, opts.BastionPort)
	if err != nil {
		logger.Warnf("could not acquire session: %v", err)
		return DeviceOutcome{Hostname: device.Hostname, Err: err}
	}
	defer pool.Release(device, session)

	dirs, err := writer.OpenDevice(device.Hostname, opts.Layers)
	if err != nil {
		logger.Warnf("could not open device output directory: %v", err)
		return DeviceOutcome{Hostname: device.Hostname, Err: err}
	}

	exec := &sessionExecutor{session: session}
	layerResults := make(map[string]collector.LayerResult, len(opts.Layers))
	commandsSucceeded, commandsFailed := 0, 0

	for _, layer := range opts.Layers {
		if ctx.Err() != nil {
			break // between-layers cancellation check (§5)
		}
		var lr collector.LayerResult
		if layer == "console" {
			lr = collector.CollectConsole(ctx, exec, writer, dirs[layer], device.Hostname, device.Family, opts.BaseTimeout)
		} else {
			lr = collector.Collect(ctx, exec, writer, dirs[layer], device.Hostname, device.Family, layer, opts.BaseTimeout)
		}
		layerResults[layer] = lr
		commandsSucceeded += lr.SuccessCount
		commandsFailed += lr.FailureCount
	}

	if err := writer.WriteDeviceSummary(device.Hostname, layerResults); err != nil {
		logger.Warnf("writing device summary: %v", err)
	}

	success := commandsSucceeded > 0
	writer.RecordDeviceOutcome(success, commandsSucceeded, commandsFailed)

	return DeviceOutcome{
		Hostname:          device.Hostname,
		Success:           success,
		CommandsSucceeded: commandsSucceeded,
		CommandsFailed:    commandsFailed,
	}
}
