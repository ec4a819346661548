package log

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/doridoridoriand/connwatch/internal/state"
)

// FileName is the log file written inside Options.Dir.
const FileName = "connwatch.log"

// Options configures the logger.
type Options struct {
	// Dir enables rotated file output when non-empty; stderr otherwise.
	Dir   string
	Level string
}

// Logger wraps zap with connwatch specific event helpers.
type Logger struct {
	*zap.Logger
}

// New builds a JSON logger writing to a rotated file or stderr.
func New(opts Options) (*Logger, error) {
	var sink zapcore.WriteSyncer
	if opts.Dir == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return newWithSink(sink, ParseLevel(opts.Level)), nil
}

func newWithSink(sink zapcore.WriteSyncer, level zapcore.Level) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), sink, level)
	return &Logger{Logger: zap.New(core)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// LogProbeResult logs one probe outcome.
func (l *Logger) LogProbeResult(target string, outcome state.Outcome, err error) {
	ms, ok := outcome.Latency()
	if ok {
		l.Debug("probe_result", zap.String("target", target), zap.Int("latency_ms", ms))
		return
	}
	l.Warn("probe_failed", zap.String("target", target), zap.Error(err))
}

// LogConfigLoad logs a config load event.
func (l *Logger) LogConfigLoad(success bool, path string, err error) {
	if path == "" {
		path = "<defaults>"
	}
	if success {
		l.Info("config_loaded", zap.String("path", path))
		return
	}
	l.Error("config_load_failed", zap.String("path", path), zap.Error(err))
}

// LogError logs a general error for component.
func (l *Logger) LogError(component string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("component", component), zap.Error(err))
	l.Error("error_occurred", fields...)
}

// ParseLevel parses a log level string, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
