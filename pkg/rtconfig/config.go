// Package rtconfig assembles the one CollectorContext struct threaded
// explicitly through every constructor, replacing ambient global config.
package rtconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/routetap/routetap/pkg/settings"
	"github.com/routetap/routetap/pkg/util"
)

// Defaults matching spec.md §4.4 (connection pool) and §4.6 (scheduler).
const (
	DefaultBastionPort    = 22
	DefaultMaxSessions    = 15
	DefaultWorkers        = 15
	DefaultTimeoutSeconds = 60
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultCompressThresh = 1 << 20 // 1 MiB
)

// BastionConfig is the process-wide, read-only-after-start bastion address.
type BastionConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string
}

// Addr returns "host:port" for dialing.
func (b BastionConfig) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// CollectorContext holds everything a constructor across C1-C7 needs: the
// bastion address, default device credentials, concurrency and timeout
// policy, the output root, and a logger. Built once at CLI startup and
// passed down explicitly instead of read from globals.
type CollectorContext struct {
	Bastion BastionConfig

	DefaultUser     string
	DefaultPassword string

	Workers        int
	MaxSessions    int
	BaseTimeout    time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	OutputRoot     string
	CompressThresh int64
	RedisAddr      string

	Logger *logrus.Logger
}

// Load builds a CollectorContext from, in precedence order: environment
// variables, the persisted settings file, then documented defaults. CLI
// flags are applied by the caller on top of the returned context (cobra
// flags win last, since they're parsed after Load runs).
func Load() (*CollectorContext, error) {
	s, err := settings.Load()
	if err != nil {
		util.Logger.Warnf("could not load settings: %v", err)
		s = &settings.Settings{}
	}
	return FromSettings(s), nil
}

// FromSettings builds a CollectorContext layering environment variables
// over a loaded Settings and the package defaults.
func FromSettings(s *settings.Settings) *CollectorContext {
	ctx := &CollectorContext{
		Bastion: BastionConfig{
			Host: s.BastionHost,
			Port: s.BastionPort,
			User: s.BastionUser,
		},
		DefaultUser:    s.DefaultUser,
		Workers:        s.GetWorkers(),
		MaxSessions:    DefaultMaxSessions,
		BaseTimeout:    DefaultTimeoutSeconds * time.Second,
		RetryAttempts:  DefaultRetryAttempts,
		RetryDelay:     DefaultRetryDelay,
		OutputRoot:     s.GetOutputRoot(),
		CompressThresh: DefaultCompressThresh,
		Logger:         util.Logger,
	}
	if ctx.Bastion.Port == 0 {
		ctx.Bastion.Port = DefaultBastionPort
	}

	applyEnv(ctx)
	return ctx
}

func applyEnv(ctx *CollectorContext) {
	if v := os.Getenv("ROUTETAP_BASTION_HOST"); v != "" {
		ctx.Bastion.Host = v
	}
	if v := os.Getenv("ROUTETAP_BASTION_USER"); v != "" {
		ctx.Bastion.User = v
	}
	if v := os.Getenv("ROUTETAP_BASTION_PASSWORD"); v != "" {
		ctx.Bastion.Password = v
	}
	if v := os.Getenv("ROUTETAP_BASTION_KEY"); v != "" {
		ctx.Bastion.KeyPath = v
	}
	if v := envInt("ROUTETAP_BASTION_PORT"); v != 0 {
		ctx.Bastion.Port = v
	}
	if v := os.Getenv("ROUTETAP_DEFAULT_USER"); v != "" {
		ctx.DefaultUser = v
	}
	if v := os.Getenv("ROUTETAP_DEFAULT_PASSWORD"); v != "" {
		ctx.DefaultPassword = v
	}
	if v := envInt("ROUTETAP_WORKERS"); v != 0 {
		ctx.Workers = v
	}
	if v := envInt("ROUTETAP_TIMEOUT_SECONDS"); v != 0 {
		ctx.BaseTimeout = time.Duration(v) * time.Second
	}
	if v := envInt("ROUTETAP_RETRY_ATTEMPTS"); v != 0 {
		ctx.RetryAttempts = v
	}
	if v := envInt("ROUTETAP_RETRY_DELAY_SECONDS"); v != 0 {
		ctx.RetryDelay = time.Duration(v) * time.Second
	}
	if v := os.Getenv("ROUTETAP_OUTPUT_ROOT"); v != "" {
		ctx.OutputRoot = v
	}
	if v := envInt("ROUTETAP_MAX_SESSIONS"); v != 0 {
		ctx.MaxSessions = v
	}
	if v := os.Getenv("ROUTETAP_REDIS_ADDR"); v != "" {
		ctx.RedisAddr = v
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		util.Logger.Warnf("%s: invalid integer %q, ignoring", name, v)
		return 0
	}
	return n
}

// Validate checks preconditions the engine needs before any collection can
// start. An unset bastion host is the most common misconfiguration.
func (c *CollectorContext) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(c.Bastion.Host != "", "bastion host is not configured")
	v.Add(c.Bastion.User != "", "bastion user is not configured")
	v.Add(c.Workers > 0, "worker count must be positive")
	v.Add(c.MaxSessions > 0, "max sessions must be positive")
	return v.Build()
}
