package fdbridge

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogTag is the source tag attached to bridge diagnostics and relayed
// standard stream records.
const LogTag = "NodeBridge"

const (
	EnvLogLevel     = "FDBRIDGE_LOG_LEVEL"
	EnvLogTimestamp = "FDBRIDGE_LOG_TIMESTAMP"
	EnvLogNoColor   = "FDBRIDGE_LOG_NOCOLOR"
	EnvLogJSON      = "FDBRIDGE_LOG_JSON"
)

// Sink receives one record per relayed chunk of a standard stream.
type Sink interface {
	Log(level zerolog.Level, tag, message string)
}

// LoggerSink writes relayed records to a zerolog logger.
type LoggerSink struct {
	Logger zerolog.Logger
}

func (s LoggerSink) Log(level zerolog.Level, tag, message string) {
	s.Logger.WithLevel(level).Str("tag", tag).Msg(message)
}

// NewLogger builds the host logger writing to w. Environment variables
// override cfg.
//
// When stderr is redirected, w must not be os.Stderr: records would loop back
// through the redirect pipe. Pass a duplicate of the original descriptor.
func NewLogger(w io.Writer, cfg LogConfig) zerolog.Logger {
	applyEnvOverrides(&cfg)

	level, ok := parseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	out := w
	if !cfg.JSON {
		cw := zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}

	ctx := zerolog.New(out).Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func applyEnvOverrides(cfg *LogConfig) {
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		if _, ok := parseLevel(raw); ok {
			cfg.Level = raw
		}
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
