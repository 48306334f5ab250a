package scheduler

import (
	"sync"
	"time"

	"github.com/routetap/routetap/pkg/bastion"
	"github.com/routetap/routetap/pkg/inventory"
)

// ConnectivityResult is one device's dry-run reachability outcome.
type ConnectivityResult struct {
	Hostname string
	Success  bool
	Elapsed  time.Duration
	Error    string
}

// RunConnectivity tests reachability of every device concurrently, bounded
// by workers, using C4's TestReachable. Used by dry-run and the
// pre-collection connectivity phase (§4.3).
func RunConnectivity(pool *bastion.Pool, devices []*inventory.DeviceRecord, defaultUser, defaultPassword string, port, workers int) []ConnectivityResult {
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]ConnectivityResult, 0, len(devices))

	for _, device := range devices {
		wg.Add(1)
		go func(device *inventory.DeviceRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			creds := inventory.ResolveCredentials(device, defaultUser, defaultPassword)
			ok, elapsed, err := pool.TestReachable(device, creds, port)

			r := ConnectivityResult{Hostname: device.Hostname, Success: ok, Elapsed: elapsed}
			if err != nil {
				r.Error = err.Error()
			}

			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(device)
	}
	wg.Wait()
	return results
}
