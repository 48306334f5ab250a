// Package bastion implements the bounded, bastion-tunnelled SSH connection
// pool (C4): one SSH connection to the bastion multiplexes direct-tcpip
// channels to each device, up to a hard cap on concurrently open device
// sessions.
package bastion

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/routetap/routetap/pkg/inventory"
	"github.com/routetap/routetap/pkg/util"
)

// AliveProbeTimeout is the deadline given to Acquire's lightweight
// aliveness check of a cached Session (§4.4).
const AliveProbeTimeout = 5 * time.Second

// timeoutTriggerKeywords extend a command's timeout to MinExtendedTimeout
// when its text contains one of these (§4.4).
var timeoutTriggerKeywords = []string{"bgp", "route", "forwarding"}

// healthTimeoutTriggers are health-layer commands that also get the
// extended timeout regardless of the generic keyword match.
var healthTimeoutTriggers = []string{"processes memory", "environment all"}

// MinExtendedTimeout is the minimum timeout applied to BGP/VPN/route or
// heavy health commands (§4.4).
const MinExtendedTimeout = 120 * time.Second

// DeviceConnStat is one device's connection attempt history, supplementing
// §4.4 with the original collector's per-device retry/attempt tracking.
type DeviceConnStat struct {
	Attempts     int
	RetryHistory []RetryRecord
}

// RetryRecord is one retry attempt, classification + timestamp + elapsed,
// bounded to the last 20 per device.
type RetryRecord struct {
	Timestamp    time.Time
	Classification string
	Elapsed      time.Duration
}

const maxRetryHistory = 20

// Pool manages SSH sessions to target devices, all tunnelled through one
// bastion. Acquire/Release hold the lock only for map operations, never
// while building a session (§5).
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session
	stats    map[string]*DeviceConnStat

	bastionClient *ssh.Client
	bastionOnce   sync.Once
	bastionErr    error

	bastionConfig rtconfigBastion
	maxSessions   int
	retryAttempts int
	retryDelay    time.Duration
}

// rtconfigBastion is the minimal bastion shape Pool needs; kept local so
// pkg/bastion doesn't import pkg/rtconfig (avoiding a dependency cycle —
// rtconfig is the outer assembly layer).
type rtconfigBastion struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string
}

// Config configures a new Pool.
type Config struct {
	BastionHost     string
	BastionPort     int
	BastionUser     string
	BastionPassword string
	BastionKeyPath  string
	MaxSessions     int
	RetryAttempts   int
	RetryDelay      time.Duration
}

// NewPool creates a Pool. The bastion SSH connection is dialed lazily, on
// first Acquire, not at construction.
func NewPool(cfg Config) *Pool {
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 15
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 1 * time.Second
	}

	return &Pool{
		sessions: make(map[string]*Session),
		stats:    make(map[string]*DeviceConnStat),
		bastionConfig: rtconfigBastion{
			Host:     cfg.BastionHost,
			Port:     cfg.BastionPort,
			User:     cfg.BastionUser,
			Password: cfg.BastionPassword,
			KeyPath:  cfg.BastionKeyPath,
		},
		maxSessions:   maxSessions,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

func deviceKey(hostname string, port int, username string) string {
	return fmt.Sprintf("%s:%d:%s", hostname, port, username)
}

func (p *Pool) bastion() (*ssh.Client, error) {
	p.bastionOnce.Do(func() {
		auth, err := bastionAuthMethods(p.bastionConfig)
		if err != nil {
			p.bastionErr = fmt.Errorf("%w: %v", util.ErrBastionUnreachable, err)
			return
		}
		config := &ssh.ClientConfig{
			User:            p.bastionConfig.User,
			Auth:            auth,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         30 * time.Second,
		}
		addr := fmt.Sprintf("%s:%d", p.bastionConfig.Host, p.bastionConfig.Port)
		client, err := ssh.Dial("tcp", addr, config)
		if err != nil {
			p.bastionErr = fmt.Errorf("%w: dialing %s: %v", util.ErrBastionUnreachable, addr, err)
			return
		}
		p.bastionClient = client
	})
	return p.bastionClient, p.bastionErr
}

// Acquire returns a cached, alive Session for device, or builds a new one
// if the cache is below the cap. If the cap is reached with no cached
// Session for this device, it fails with a pool-exhausted error.
func (p *Pool) Acquire(device *inventory.DeviceRecord, creds inventory.Credentials, port int) (*Session, error) {
	key := deviceKey(device.Hostname, port, creds.Username)

	p.mu.Lock()
	if existing, ok := p.sessions[key]; ok {
		p.mu.Unlock()
		if existing.probe(AliveProbeTimeout) {
			return existing, nil
		}
		existing.Close()
		p.mu.Lock()
		delete(p.sessions, key)
	}
	if len(p.sessions) >= p.maxSessions {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %d/%d sessions in use", util.ErrPoolExhausted, len(p.sessions), p.maxSessions)
	}
	p.mu.Unlock()

	session, err := p.buildSession(device, creds, port, key)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) >= p.maxSessions {
		session.Close()
		return nil, fmt.Errorf("%w: %d/%d sessions in use", util.ErrPoolExhausted, len(p.sessions), p.maxSessions)
	}
	p.sessions[key] = session
	return session, nil
}

func (p *Pool) buildSession(device *inventory.DeviceRecord, creds inventory.Credentials, port int, key string) (*Session, error) {
	bastionClient, err := p.bastion()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	client, err := buildDeviceClient(bastionClient, device.ManagementIP, port, config)
	if err != nil {
		classification := classifyConnectError(err)
		return nil, util.NewConnectError(device.Hostname, classification != "auth" && classification != "invalid_address", err)
	}

	session := &Session{
		key:       key,
		hostname:  device.Hostname,
		client:    client,
		createdAt: time.Now(),
		alive:     true,
	}
	session.prepare()
	return session, nil
}

// Release returns a Session to the cache; normal release never closes it.
func (p *Pool) Release(device *inventory.DeviceRecord, session *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[session.key] = session
}

// RetryingAcquire calls Acquire; on a retryable ConnectError it sleeps with
// exponential back-off plus +-20% jitter and retries up to retryAttempts.
func (p *Pool) RetryingAcquire(device *inventory.DeviceRecord, creds inventory.Credentials, port int) (*Session, error) {
	var lastErr error
	delay := p.retryDelay

	for attempt := 1; attempt <= p.retryAttempts; attempt++ {
		start := time.Now()
		session, err := p.Acquire(device, creds, port)
		if err == nil {
			return session, nil
		}
		lastErr = err

		var connErr *util.ConnectError
		retryable := false
		if asConnectError(err, &connErr) {
			retryable = connErr.Retryable
			p.recordAttempt(device.Hostname, classifyConnectError(connErr.Cause), time.Since(start))
		}
		if !retryable || attempt == p.retryAttempts {
			break
		}

		jitter := 1.0 + (rand.Float64()*0.4 - 0.2) // +-20%
		sleepFor := time.Duration(float64(delay) * jitter)
		util.WithDevice(device.Hostname).Debugf("connection attempt %d failed, retrying in %s: %v", attempt, sleepFor, err)
		time.Sleep(sleepFor)
		delay *= 2
	}
	return nil, lastErr
}

func asConnectError(err error, target **util.ConnectError) bool {
	ce, ok := err.(*util.ConnectError)
	if ok {
		*target = ce
	}
	return ok
}

func (p *Pool) recordAttempt(hostname, classification string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stat, ok := p.stats[hostname]
	if !ok {
		stat = &DeviceConnStat{}
		p.stats[hostname] = stat
	}
	stat.Attempts++
	stat.RetryHistory = append(stat.RetryHistory, RetryRecord{
		Timestamp:      time.Now(),
		Classification: classification,
		Elapsed:        elapsed,
	})
	if len(stat.RetryHistory) > maxRetryHistory {
		stat.RetryHistory = stat.RetryHistory[len(stat.RetryHistory)-maxRetryHistory:]
	}
}

// PoolStats is the aggregate view returned by Stats().
type PoolStats struct {
	Active   int
	Max      int
	ByDevice map[string]DeviceConnStat
}

// Stats returns current pool occupancy and per-device connection history.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	byDevice := make(map[string]DeviceConnStat, len(p.stats))
	for host, stat := range p.stats {
		byDevice[host] = *stat
	}
	return PoolStats{Active: len(p.sessions), Max: p.maxSessions, ByDevice: byDevice}
}

// TestReachable runs one round-trip of a trivial command against device,
// used by dry-run and the pre-collection connectivity phase.
func (p *Pool) TestReachable(device *inventory.DeviceRecord, creds inventory.Credentials, port int) (success bool, elapsed time.Duration, reachErr error) {
	start := time.Now()
	session, err := p.Acquire(device, creds, port)
	if err != nil {
		return false, time.Since(start), err
	}
	_, err = session.run("show version | include uptime", 10*time.Second)
	elapsed = time.Since(start)
	if err != nil {
		return false, elapsed, err
	}
	return true, elapsed, nil
}

// Execute sends command over session, applying the per-command timeout
// policy of §4.4.
func Execute(session *Session, command string, baseTimeout time.Duration, layer string) (text string, elapsed time.Duration, err error) {
	timeout := commandTimeout(command, layer, baseTimeout)
	start := time.Now()
	text, err = session.run(command, timeout)
	elapsed = time.Since(start)
	return text, elapsed, err
}

func commandTimeout(command, layer string, base time.Duration) time.Duration {
	if base <= 0 {
		base = 60 * time.Second // default base timeout when the caller supplies none
	}
	lower := commandLower(command)
	for _, kw := range timeoutTriggerKeywords {
		if contains(lower, kw) {
			return maxDuration(base, MinExtendedTimeout)
		}
	}
	if layer == "bgp" || layer == "vpn" {
		return maxDuration(base, MinExtendedTimeout)
	}
	for _, kw := range healthTimeoutTriggers {
		if contains(lower, kw) {
			return maxDuration(base, MinExtendedTimeout)
		}
	}
	return base
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// CloseAll tears down every cached Session, then releases bastion
// resources.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	bastionClient := p.bastionClient
	p.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	if bastionClient != nil {
		bastionClient.Close()
	}
}
