// Package procconfig manages ribd process bootstrap configuration using
// koanf/v2.
//
// This is deliberately distinct from internal/config's two-phase-commit
// engine: procconfig loads the process-wide bootstrap (listen addresses,
// default protocol timers, the initial declarative instance list) that
// seeds the northbound data tree at startup. The northbound schema itself
// is out of scope (spec.md section 1); procconfig only gets the process
// off the ground.
//
// Supports YAML files and environment variables.
package procconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete ribd process bootstrap configuration.
type Config struct {
	Metrics   MetricsConfig    `koanf:"metrics"`
	Log       LogConfig        `koanf:"log"`
	Defaults  DefaultsConfig   `koanf:"defaults"`
	GoBGP     GoBGPConfig      `koanf:"gobgp"`
	Instances []InstanceConfig `koanf:"instances"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DefaultsConfig holds process-wide protocol timer defaults, overridable
// per instance through the northbound commit path once an instance is up.
type DefaultsConfig struct {
	// BFDDesiredMinTx is the default desired minimum TX interval.
	BFDDesiredMinTx time.Duration `koanf:"bfd_desired_min_tx"`

	// BFDRequiredMinRx is the default required minimum RX interval.
	BFDRequiredMinRx time.Duration `koanf:"bfd_required_min_rx"`

	// BFDDetectMultiplier is the default detection time multiplier.
	BFDDetectMultiplier uint32 `koanf:"bfd_detect_multiplier"`

	// DecisionDebounce is the best-path coalescing window (spec.md section 4.6,
	// section 6: "BGP decision-process debounce is 100 ms").
	DecisionDebounce time.Duration `koanf:"decision_debounce"`

	// RIPInvalidInterval is the RIP route invalid timer.
	RIPInvalidInterval time.Duration `koanf:"rip_invalid_interval"`

	// RIPFlushInterval is the RIP garbage-collect timer.
	RIPFlushInterval time.Duration `koanf:"rip_flush_interval"`

	// SPFInitialDelay is the SPF delay FSM's Quiet->ShortWait timer.
	SPFInitialDelay time.Duration `koanf:"spf_initial_delay"`

	// SPFShortHoldDown is the SPF delay FSM's ShortWait->LongWait hold-down.
	SPFShortHoldDown time.Duration `koanf:"spf_short_hold_down"`

	// SPFShortDelay is the SPF delay FSM's LongWait->ShortWait-again timer.
	SPFShortDelay time.Duration `koanf:"spf_short_delay"`
}

// InstanceConfig describes one declarative protocol instance created at
// daemon startup (spec.md section 3: "Protocol instance").
type InstanceConfig struct {
	// Name identifies the instance (used in the event-recorder file name).
	Name string `koanf:"name"`

	// Protocol selects the protocol engine: "bfd", "isis", "ospf", "ldp",
	// "bgp", "rip", or "vrrp".
	Protocol string `koanf:"protocol"`

	// RouterID, when set, seeds the instance's readiness predicate
	// (spec.md section 3: a view is exposed only once "up").
	RouterID string `koanf:"router_id"`

	// LocalAS is the local autonomous system number. Only meaningful
	// when Protocol is "bgp".
	LocalAS uint32 `koanf:"local_as"`
}

// GoBGPConfig configures the BFD-liveness-to-BGP-peer bridge
// (internal/gobgp), bridging a "bfd" instance's session state changes
// into GoBGP peer actions per RFC 5882 section 3/4.
type GoBGPConfig struct {
	// Enabled turns the bridge goroutine on. Requires both a "bfd" and
	// a "bgp" instance to be configured.
	Enabled bool `koanf:"enabled"`

	// Addr is the GoBGP gRPC listen address (e.g. "127.0.0.1:50051").
	Addr string `koanf:"addr"`

	// Strategy selects the gobgp.Strategy ("disable-peer" is the only
	// one currently implemented).
	Strategy string `koanf:"strategy"`

	// DampeningEnabled turns on RFC 5882 section 3.2 flap dampening.
	DampeningEnabled bool `koanf:"dampening_enabled"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Defaults: DefaultsConfig{
			BFDDesiredMinTx:     1 * time.Second,
			BFDRequiredMinRx:    1 * time.Second,
			BFDDetectMultiplier: 3,
			DecisionDebounce:    100 * time.Millisecond,
			RIPInvalidInterval:  180 * time.Second,
			RIPFlushInterval:    120 * time.Second,
			SPFInitialDelay:     50 * time.Millisecond,
			SPFShortHoldDown:    200 * time.Millisecond,
			SPFShortDelay:       10 * time.Millisecond,
		},
		GoBGP: GoBGPConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:50051",
			Strategy: "disable-peer",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for ribd configuration.
const envPrefix = "RIBD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RIBD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	RIBD_METRICS_ADDR -> metrics.addr
//	RIBD_METRICS_PATH -> metrics.path
//	RIBD_LOG_LEVEL     -> log.level
//	RIBD_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms RIBD_METRICS_ADDR -> metrics.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
		"defaults.bfd_desired_min_tx":  defaults.Defaults.BFDDesiredMinTx.String(),
		"defaults.bfd_required_min_rx": defaults.Defaults.BFDRequiredMinRx.String(),
		"defaults.bfd_detect_multiplier": defaults.Defaults.BFDDetectMultiplier,
		"defaults.decision_debounce":     defaults.Defaults.DecisionDebounce.String(),
		"defaults.rip_invalid_interval":  defaults.Defaults.RIPInvalidInterval.String(),
		"defaults.rip_flush_interval":    defaults.Defaults.RIPFlushInterval.String(),
		"defaults.spf_initial_delay":     defaults.Defaults.SPFInitialDelay.String(),
		"defaults.spf_short_hold_down":   defaults.Defaults.SPFShortHoldDown.String(),
		"defaults.spf_short_delay":       defaults.Defaults.SPFShortDelay.String(),
		"gobgp.enabled":                  defaults.GoBGP.Enabled,
		"gobgp.addr":                     defaults.GoBGP.Addr,
		"gobgp.strategy":                 defaults.GoBGP.Strategy,
		"gobgp.dampening_enabled":        defaults.GoBGP.DampeningEnabled,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrInvalidDetectMultiplier indicates the detect multiplier is zero.
	ErrInvalidDetectMultiplier = errors.New("defaults.bfd_detect_multiplier must be >= 1")

	// ErrInvalidDesiredMinTx indicates the desired min TX interval is invalid.
	ErrInvalidDesiredMinTx = errors.New("defaults.bfd_desired_min_tx must be > 0")

	// ErrInvalidRequiredMinRx indicates the required min RX interval is invalid.
	ErrInvalidRequiredMinRx = errors.New("defaults.bfd_required_min_rx must be > 0")

	// ErrInvalidInstanceProtocol indicates an instance names an unknown protocol.
	ErrInvalidInstanceProtocol = errors.New("instance protocol is not recognized")

	// ErrInvalidInstanceName indicates an instance has an empty name.
	ErrInvalidInstanceName = errors.New("instance name must not be empty")

	// ErrDuplicateInstanceName indicates two instances share the same name.
	ErrDuplicateInstanceName = errors.New("duplicate instance name")
)

// ValidProtocols lists the recognized instance protocol strings
// (spec.md section 1's seven protocol engines).
var ValidProtocols = map[string]bool{
	"bfd":  true,
	"isis": true,
	"ospf": true,
	"ldp":  true,
	"bgp":  true,
	"rip":  true,
	"vrrp": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	if cfg.Defaults.BFDDetectMultiplier < 1 {
		return ErrInvalidDetectMultiplier
	}

	if cfg.Defaults.BFDDesiredMinTx <= 0 {
		return ErrInvalidDesiredMinTx
	}

	if cfg.Defaults.BFDRequiredMinRx <= 0 {
		return ErrInvalidRequiredMinRx
	}

	return validateInstances(cfg.Instances)
}

// validateInstances checks each declarative instance entry for correctness.
func validateInstances(instances []InstanceConfig) error {
	seen := make(map[string]struct{}, len(instances))

	for i, ic := range instances {
		if ic.Name == "" {
			return fmt.Errorf("instances[%d]: %w", i, ErrInvalidInstanceName)
		}

		if !ValidProtocols[ic.Protocol] {
			return fmt.Errorf("instances[%d] protocol %q: %w", i, ic.Protocol, ErrInvalidInstanceProtocol)
		}

		if _, dup := seen[ic.Name]; dup {
			return fmt.Errorf("instances[%d] name %q: %w", i, ic.Name, ErrDuplicateInstanceName)
		}
		seen[ic.Name] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
