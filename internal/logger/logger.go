package logger

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
)

// Options configure the CLI logger.
type Options struct {
	// Verbosity raises the level: 0 is info, 1 and more is debug.
	Verbosity int
	// JSON switches from text to JSON output.
	JSON bool
}

// AddFlags adds logging flags to the given flag set.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.IntVarP(&o.Verbosity, "verbosity", "v", 0, "set the log level verbosity")
	f.BoolVar(&o.JSON, "log-json", false, "log in JSON format")
}

// New returns a logger writing to w. level is the configured level name;
// verbosity flags can only make it more verbose.
func New(w io.Writer, o Options, level slog.Level) *slog.Logger {
	if o.Verbosity > 0 && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.JSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
