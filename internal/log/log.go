// Package log provides structured, colored logging for the wallet core.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Component loggers are derived from it.
var Logger zerolog.Logger

// Component loggers.
var (
	Vault    zerolog.Logger
	Secrets  zerolog.Logger
	Ledger   zerolog.Logger
	Pipeline zerolog.Logger
	Remote   zerolog.Logger
	Cache    zerolog.Logger
	Storage  zerolog.Logger
)

// components binds each component logger to its name.
var components = map[string]*zerolog.Logger{
	"vault":    &Vault,
	"secrets":  &Secrets,
	"ledger":   &Ledger,
	"pipeline": &Pipeline,
	"remote":   &Remote,
	"cache":    &Cache,
	"storage":  &Storage,
}

func init() {
	// stderr keeps command output on stdout clean.
	setRoot(zerolog.New(console(os.Stderr)).Level(zerolog.InfoLevel).With().Timestamp().Logger())
}

// Options configures Init.
type Options struct {
	Level string // debug, info, warn, error or disabled
	JSON  bool   // JSON on stderr instead of colored text
	File  string // optional log file, always JSON
}

// Init rebuilds every logger from opts. The file, when set, is opened for
// append and receives the same events as the console.
func Init(opts Options) error {
	var out io.Writer = console(os.Stderr)
	if opts.JSON {
		out = os.Stderr
	}
	var f *os.File
	if opts.File != "" {
		var err error
		f, err = os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	setRoot(zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp().Logger())
	swapFile(f)
	return nil
}

// logFile is the file the root logger currently writes to, if any.
var logFile *os.File

// swapFile closes the previous log file once no logger refers to it.
func swapFile(f *os.File) {
	prev := logFile
	logFile = f
	if prev != nil && prev != f {
		prev.Close()
	}
}

func console(w io.Writer) zerolog.ConsoleWriter {
	_, noColor := os.LookupEnv("NO_COLOR")
	return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: noColor}
}

func setRoot(l zerolog.Logger) {
	Logger = l
	for name, c := range components {
		*c = Logger.With().Str("component", name).Logger()
	}
}

// ParseLevel maps a level name to a zerolog level. Unknown names give info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Discard silences all output. Tests call it to keep runs quiet.
func Discard() {
	setRoot(zerolog.Nop())
	swapFile(nil)
}

// Benchmark logs the duration of an operation at debug level when the
// returned func is called.
func Benchmark(op string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().Str("operation", op).Dur("took", time.Since(start)).Msg("Timing")
	}
}
