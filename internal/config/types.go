package config

import (
	"time"

	"github.com/doridoridoriand/connwatch/internal/ping"
	"github.com/doridoridoriand/connwatch/internal/state"
)

// Monitor holds everything the scheduler needs for the single watched host.
type Monitor struct {
	Target      string        `mapstructure:"target"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HistorySize int           `mapstructure:"history_size"`
	Thresholds  Thresholds    `mapstructure:"thresholds"`
}

// Thresholds configures health classification.
type Thresholds struct {
	GoodLatencyMs         int `mapstructure:"good_latency_ms"`
	QuestionableLatencyMs int `mapstructure:"questionable_latency_ms"`
	BadDropRatePercent    int `mapstructure:"bad_drop_rate_percent"`
}

// State converts to the classifier's threshold type.
func (t Thresholds) State() state.Thresholds {
	return state.Thresholds{
		GoodLatencyMs:         t.GoodLatencyMs,
		QuestionableLatencyMs: t.QuestionableLatencyMs,
		BadDropRatePercent:    t.BadDropRatePercent,
	}
}

// ProbeOptions selects the probing mechanism.
type ProbeOptions struct {
	Mode ping.Mode `mapstructure:"mode"`
	Port int       `mapstructure:"port"`
}

// LogOptions configures the log sink.
type LogOptions struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

// HTTPOptions configures the optional control/metrics listener.
type HTTPOptions struct {
	Listen         string   `mapstructure:"listen"`
	RatePerSec     int      `mapstructure:"rate_per_sec"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// JournalOptions configures the sqlite journal.
type JournalOptions struct {
	Path string `mapstructure:"path"`
}

// UIOptions configures the terminal surface.
type UIOptions struct {
	Disable bool `mapstructure:"disable"`
}

// AutostartOptions configures launch-at-login registration.
type AutostartOptions struct {
	Unit string `mapstructure:"unit"`
}

// Config is the full application configuration.
type Config struct {
	Monitor   `mapstructure:",squash"`
	Probe     ProbeOptions     `mapstructure:"probe"`
	Log       LogOptions       `mapstructure:"log"`
	HTTP      HTTPOptions      `mapstructure:"http"`
	Journal   JournalOptions   `mapstructure:"journal"`
	UI        UIOptions        `mapstructure:"ui"`
	Autostart AutostartOptions `mapstructure:"autostart"`
}

// CLIOverrides holds optional CLI values that override file and env values.
type CLIOverrides struct {
	Target      *string
	Interval    *time.Duration
	Timeout     *time.Duration
	HistorySize *int
	ProbeMode   *ping.Mode
	Listen      *string
	LogDir      *string
	UIDisable   *bool
}
