package logger

import (
	"os"
	"strings"
	"sync"

	"market-streamer/src/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// -----------------------------------------------------------------------------

var (
	baseMu     sync.RWMutex
	base       = newBase(nil)
	configured bool
)

// -----------------------------------------------------------------------------

// Logger provides component scoped logging on top of a shared zap core.
type Logger struct {
	name  string
	sugar *zap.SugaredLogger
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. The first non-nil config configures the
// shared core (level and optional rotated log file); later configs are ignored.
func NewLogger(config *models.MConfig, name string) *Logger {
	if config != nil {
		baseMu.Lock()
		if !configured {
			base = newBase(config)
			configured = true
		}
		baseMu.Unlock()
	}

	baseMu.RLock()
	defer baseMu.RUnlock()
	return &Logger{
		name:  name,
		sugar: base.Named(name).Sugar(),
	}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{name: "nop", sugar: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, e.g. one built on an observer core in tests.
func FromZap(name string, z *zap.Logger) *Logger {
	return &Logger{name: name, sugar: z.Named(name).Sugar()}
}

// -----------------------------------------------------------------------------

func newBase(config *models.MConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if config != nil {
		level = parseLevel(config.LogLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}

	if config != nil && config.LogFile.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.LogFile.Path,
			MaxSize:    config.LogFile.MaxSizeMB,
			MaxBackups: config.LogFile.MaxBackups,
			MaxAge:     config.LogFile.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...))
}

// -----------------------------------------------------------------------------

func parseLevel(s string) zapcore.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARNING", "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// -----------------------------------------------------------------------------

// With returns a child logger carrying extra structured fields (e.g. session id).
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{name: l.name, sugar: l.sugar.With(keysAndValues...)}
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
	_ = l.sugar.Sync()
	os.Exit(1)
}

// -----------------------------------------------------------------------------

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
