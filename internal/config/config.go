// Package config loads the daemon's on-disk configuration (spec.md §6,
// SPEC_FULL.md §5.2), grounded on the teacher's coordinator/cfg.go:
// gopkg.in/yaml.v3, a DefaultConfig() constructor, LoadConfig(path)
// reading the file then unmarshalling onto the defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/iqrf/iqmesh-gateway/internal/autonetwork"
	"github.com/iqrf/iqmesh-gateway/internal/logging"
)

// Config is the root configuration document.
type Config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// DPA is the transport/timeout/retry configuration shared by every
	// component that talks to the coordinator.
	DPA DPAConfig `yaml:"dpa"`
	// Splitter is the JSON bus wiring.
	Splitter SplitterConfig `yaml:"splitter"`
	// Scheduler is the task scheduler's persistence configuration.
	Scheduler SchedulerConfig `yaml:"scheduler"`
	// Autonetwork holds the default input parameters applied to a run
	// when a request does not override them.
	Autonetwork AutonetworkConfig `yaml:"autonetwork"`
}

// DPAConfig configures the DPA transport (spec.md §4.1).
type DPAConfig struct {
	// Endpoint is the address of the underlying serial/IQRF-GW-Daemon
	// transport (e.g. a unix socket or TCP address), opaque to this
	// package.
	Endpoint string `yaml:"endpoint"`
	// RequestTimeout bounds one Execute call when a request does not
	// specify its own timeout.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// DefaultRetries is the retry count ExecuteWithRetry uses absent an
	// explicit per-request override.
	DefaultRetries int `yaml:"defaultRetries"`
}

// SplitterConfig configures the JSON bus (spec.md §6).
type SplitterConfig struct {
	// Endpoint is the address the splitter bus listens on / publishes to
	// (e.g. a websocket or MQTT endpoint), opaque to this package.
	Endpoint string `yaml:"endpoint"`
}

// SchedulerConfig configures the task scheduler (spec.md §4.6).
type SchedulerConfig struct {
	// PersistDir is the directory holding one JSON file per persisted
	// task.
	PersistDir string `yaml:"persistDir"`
}

// AutonetworkConfig holds the default Autonetwork input parameters
// applied to a run when a request does not override them (spec.md §3).
type AutonetworkConfig struct {
	DiscoveryTxPower         uint8  `yaml:"discoveryTxPower"`
	DiscoveryBeforeStart     bool   `yaml:"discoveryBeforeStart"`
	SkipDiscoveryEachWave    bool   `yaml:"skipDiscoveryEachWave"`
	UnbondUnrespondingNodes  bool   `yaml:"unbondUnrespondingNodes"`
	AbortOnTooManyNodesFound bool   `yaml:"abortOnTooManyNodesFound"`
	ActionRetries            uint8  `yaml:"actionRetries"`
	TotalWaves               uint16 `yaml:"totalWaves"`
	EmptyWaves               uint16 `yaml:"emptyWaves"`
}

// Params builds the autonetwork.InputParams this configuration defaults
// to; a splitter request may override any of these fields before a run
// starts.
func (c AutonetworkConfig) Params() autonetwork.InputParams {
	return autonetwork.InputParams{
		DiscoveryTxPower:         c.DiscoveryTxPower,
		DiscoveryBeforeStart:     c.DiscoveryBeforeStart,
		SkipDiscoveryEachWave:    c.SkipDiscoveryEachWave,
		UnbondUnrespondingNodes:  c.UnbondUnrespondingNodes,
		AbortOnTooManyNodesFound: c.AbortOnTooManyNodesFound,
		ActionRetries:            c.ActionRetries,
		TotalWaves:               c.TotalWaves,
		EmptyWaves:               c.EmptyWaves,
	}
}

// DefaultConfig returns the configuration used when a daemon starts
// without an on-disk config, and as the base that LoadConfig unmarshals
// onto.
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.Config{
			Level: zapcore.InfoLevel,
		},
		DPA: DPAConfig{
			Endpoint:       "/var/run/iqrf-gw-daemon.sock",
			RequestTimeout: 10 * time.Second,
			DefaultRetries: 3,
		},
		Splitter: SplitterConfig{
			Endpoint: "ws://localhost:1338",
		},
		Scheduler: SchedulerConfig{
			PersistDir: "/var/lib/iqmeshd/scheduler",
		},
		Autonetwork: AutonetworkConfig{
			DiscoveryTxPower: 6,
			ActionRetries:    1,
			TotalWaves:       10,
			EmptyWaves:       2,
		},
	}
}

// LoadConfig loads the configuration from the given path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	return cfg, nil
}
