package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Environment types
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Environment variables read by ApplyEnv.
const (
	EnvVarLevel       = "MERKLESYNC_LOG_LEVEL"
	EnvVarFormat      = "MERKLESYNC_LOG_FORMAT"
	EnvVarEnvironment = "MERKLESYNC_ENVIRONMENT"
	EnvVarAddSource   = "MERKLESYNC_LOG_ADD_SOURCE"
)

// ApplyEnv overlays the environment on base. Fields still empty afterwards
// take the defaults of the selected environment.
func ApplyEnv(base Config) Config {
	config := base

	if level := os.Getenv(EnvVarLevel); level != "" {
		config.Level = strings.ToLower(level)
	}
	if format := os.Getenv(EnvVarFormat); format != "" {
		config.Format = strings.ToLower(format)
	}
	if env := os.Getenv(EnvVarEnvironment); env != "" {
		config.Environment = strings.ToLower(env)
	}
	addSource, addSourceSet := os.LookupEnv(EnvVarAddSource)

	if config.Environment == "" {
		config.Environment = DefaultConfig.Environment
	}

	switch config.Environment {
	case EnvDevelopment:
		if config.Format == "" {
			config.Format = "text"
		}
		if config.Level == "" {
			config.Level = "debug"
		}
		if !addSourceSet {
			config.AddSource = true
		}
	case EnvTest:
		if config.Format == "" {
			config.Format = "text"
		}
		if config.Level == "" {
			config.Level = "debug"
		}
	default:
		if config.Format == "" {
			config.Format = DefaultConfig.Format
		}
		if config.Level == "" {
			config.Level = DefaultConfig.Level
		}
	}

	if addSourceSet {
		config.AddSource = strings.EqualFold(addSource, "true")
	}

	return config
}

// CustomLevel defines a custom log level between existing ones
type CustomLevel slog.Level

// LevelTrace is used for per-message reconciliation detail.
const LevelTrace CustomLevel = CustomLevel(slog.LevelDebug - 4)

// String returns the string representation of the custom level
func (l CustomLevel) String() string {
	if l == LevelTrace {
		return "TRACE"
	}
	return slog.Level(l).String()
}

// Trace logs at trace level on l.
func (l *Logger) Trace(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.LogAttrs(ctx, slog.Level(LevelTrace), msg, attrs...)
}

// DynamicLevelVar allows changing log level at runtime
type DynamicLevelVar struct {
	*slog.LevelVar
}

// NewDynamicLevelVar creates a new dynamic level variable
func NewDynamicLevelVar(initialLevel slog.Level) *DynamicLevelVar {
	levelVar := &slog.LevelVar{}
	levelVar.Set(initialLevel)
	return &DynamicLevelVar{LevelVar: levelVar}
}

// SetFromString sets the level from a string representation. It reports
// false for unknown names and leaves the level unchanged.
func (d *DynamicLevelVar) SetFromString(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		d.Set(ParseLevel(level))
		return true
	default:
		return false
	}
}

// NewLoggerWithDynamicLevel creates a logger whose level can be changed
// after construction. The initial level comes from config.Level.
func NewLoggerWithDynamicLevel(config Config) (*Logger, *DynamicLevelVar) {
	levelVar := NewDynamicLevelVar(ParseLevel(config.Level))
	return &Logger{Logger: slog.New(newHandler(config, levelVar.LevelVar))}, levelVar
}
