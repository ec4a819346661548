package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/doridoridoriand/connwatch/internal/ping"
	"github.com/doridoridoriand/connwatch/internal/state"
)

// EnvPrefix prefixes environment overrides, e.g. CONNWATCH_TARGET.
const EnvPrefix = "CONNWATCH"

// ErrEmptyTarget is returned when no host is configured.
var ErrEmptyTarget = errors.New("target must not be empty")

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Monitor: Monitor{
			Target:      "www.google.com",
			Interval:    5 * time.Second,
			Timeout:     2 * time.Second,
			HistorySize: state.DefaultHistorySize,
			Thresholds: Thresholds{
				GoodLatencyMs:         100,
				QuestionableLatencyMs: 500,
				BadDropRatePercent:    11,
			},
		},
		Probe:     ProbeOptions{Mode: ping.ModeICMP, Port: ping.DefaultTCPPort},
		Log:       LogOptions{Level: "info"},
		HTTP:      HTTPOptions{RatePerSec: 5},
		Autostart: AutostartOptions{Unit: "connwatch"},
	}
}

// NewViper returns a viper instance with defaults and env binding applied.
// path may be empty, in which case only defaults and env are used.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("target", d.Target)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("history_size", d.HistorySize)
	v.SetDefault("thresholds.good_latency_ms", d.Thresholds.GoodLatencyMs)
	v.SetDefault("thresholds.questionable_latency_ms", d.Thresholds.QuestionableLatencyMs)
	v.SetDefault("thresholds.bad_drop_rate_percent", d.Thresholds.BadDropRatePercent)
	v.SetDefault("probe.mode", string(d.Probe.Mode))
	v.SetDefault("probe.port", d.Probe.Port)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("http.rate_per_sec", d.HTTP.RatePerSec)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("ui.disable", d.UI.Disable)
	v.SetDefault("autostart.unit", d.Autostart.Unit)
}

// Load reads the config file (if any), applies env and CLI overrides and
// validates the result.
func Load(v *viper.Viper, overrides CLIOverrides) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v, overrides)
}

func decode(v *viper.Viper, overrides CLIOverrides) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Target = strings.TrimSpace(cfg.Target)
	applyCLIOverrides(&cfg, overrides)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func Validate(cfg Config) error {
	err := ValidateMonitor(cfg.Monitor)
	switch cfg.Probe.Mode {
	case ping.ModeICMP, ping.ModeExec, ping.ModeTCP:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown probe.mode %q", cfg.Probe.Mode))
	}
	if cfg.Probe.Mode == ping.ModeTCP && (cfg.Probe.Port < 1 || cfg.Probe.Port > 65535) {
		err = multierr.Append(err, fmt.Errorf("probe.port out of range: %d", cfg.Probe.Port))
	}
	if cfg.HTTP.RatePerSec < 0 {
		err = multierr.Append(err, fmt.Errorf("http.rate_per_sec must not be negative"))
	}
	return err
}

// ValidateMonitor checks the fields the scheduler depends on.
func ValidateMonitor(m Monitor) error {
	var err error
	if strings.TrimSpace(m.Target) == "" {
		err = multierr.Append(err, ErrEmptyTarget)
	}
	if m.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf("interval must be positive, got %v", m.Interval))
	}
	if m.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("timeout must be positive, got %v", m.Timeout))
	}
	if m.HistorySize < 1 {
		err = multierr.Append(err, fmt.Errorf("history_size must be at least 1, got %d", m.HistorySize))
	}
	th := m.Thresholds
	if th.GoodLatencyMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("thresholds.good_latency_ms must be positive"))
	}
	if th.QuestionableLatencyMs < th.GoodLatencyMs {
		err = multierr.Append(err, fmt.Errorf("thresholds.questionable_latency_ms (%d) must not be below good_latency_ms (%d)",
			th.QuestionableLatencyMs, th.GoodLatencyMs))
	}
	if th.BadDropRatePercent < 0 || th.BadDropRatePercent > 100 {
		err = multierr.Append(err, fmt.Errorf("thresholds.bad_drop_rate_percent must be within 0..100, got %d", th.BadDropRatePercent))
	}
	return err
}

// Watch re-reads the config file on change and hands valid results to
// onChange. Invalid files are reported to onError and otherwise ignored.
func Watch(v *viper.Viper, overrides CLIOverrides, onChange func(Config), onError func(error)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v, overrides)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(*cfg)
	})
	v.WatchConfig()
}

func applyCLIOverrides(cfg *Config, overrides CLIOverrides) {
	if overrides.Target != nil {
		cfg.Target = strings.TrimSpace(*overrides.Target)
	}
	if overrides.Interval != nil {
		cfg.Interval = *overrides.Interval
	}
	if overrides.Timeout != nil {
		cfg.Timeout = *overrides.Timeout
	}
	if overrides.HistorySize != nil {
		cfg.HistorySize = *overrides.HistorySize
	}
	if overrides.ProbeMode != nil {
		cfg.Probe.Mode = *overrides.ProbeMode
	}
	if overrides.Listen != nil {
		val := *overrides.Listen
		if isDigits(val) {
			val = ":" + val
		}
		cfg.HTTP.Listen = val
	}
	if overrides.LogDir != nil {
		cfg.Log.Dir = *overrides.LogDir
	}
	if overrides.UIDisable != nil {
		cfg.UI.Disable = *overrides.UIDisable
	}
	if isDigits(cfg.HTTP.Listen) {
		cfg.HTTP.Listen = ":" + cfg.HTTP.Listen
	}
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
