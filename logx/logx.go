// Package logx wires structured logging for every kernel subsystem through
// a single zerolog.Logger, following the component-scoped child-logger
// convention used throughout this lineage.
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Subsystems derive scoped
// children from it via With rather than logging against it directly.
var Logger zerolog.Logger

// Level mirrors the kernel's own notion of verbosity so callers don't need
// to import zerolog just to build a Config.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls global logger construction.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func init() {
	Init(Config{Level: InfoLevel})
}

// Init (re)configures the global Logger. Safe to call multiple times; the
// CLI calls it once during cobra.OnInitialize after flags are parsed.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// With returns a child logger tagged with a "component" field, the scoping
// convention every kernel subsystem (blockfile, pager, wal, mvcc, session)
// uses to identify its log lines.
func With(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
