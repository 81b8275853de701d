// Package logger builds the process-wide phuslu/log DefaultLogger from
// configuration and hands out component loggers derived from it.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gameboost/internal/config"

	"github.com/phuslu/log"
)

// parseLogLevel converts string log level to log.Level. Unknown names map
// to info; config.Validate rejects them before they get here.
func parseLogLevel(levelStr string) log.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// parseTimeLocation parses time location string
func parseTimeLocation(location string) *time.Location {
	switch location {
	case "Local":
		return time.Local
	case "UTC":
		return time.UTC
	default:
		if loc, err := time.LoadLocation(location); err == nil {
			return loc
		}
		return time.Local
	}
}

// mapTimeFormat maps string time format to log.TimeFormat
func mapTimeFormat(format string) string {
	switch format {
	case "Unix":
		return log.TimeFormatUnix
	case "UnixMs":
		return log.TimeFormatUnixMs
	default:
		return format
	}
}

// GlogFormatter writes glog-style lines, tagged with the component when
// the entry carries one:
//
//	I2026-01-02T15:04:05.000Z 12 manager.go:140] [session] Session active
type GlogFormatter struct{}

// Formatter builds the log entry in glog format.
func (f GlogFormatter) Formatter(w io.Writer, a *log.FormatterArgs) (int, error) {
	var buf bytes.Buffer

	if len(a.Level) > 0 {
		buf.WriteByte(a.Level[0] - 32) // 'I' for info
	} else {
		buf.WriteByte('?')
	}

	buf.WriteString(a.Time)
	buf.WriteByte(' ')
	buf.WriteString(a.Goid)
	if a.Caller != "" {
		buf.WriteByte(' ')
		buf.WriteString(a.Caller)
	}
	buf.WriteString("] ")

	if c := a.Get("component"); c != "" {
		buf.WriteByte('[')
		buf.WriteString(c)
		buf.WriteString("] ")
	}

	buf.WriteString(a.Message)
	buf.WriteByte('\n')

	return w.Write(buf.Bytes())
}

// asyncBuffer is the channel size of every asynchronous writer.
const asyncBuffer = 4096

// maybeAsync wraps w in an AsyncWriter when async is set.
func maybeAsync(w log.Writer, async bool) log.Writer {
	if !async {
		return w
	}
	return &log.AsyncWriter{ChannelSize: asyncBuffer, Writer: w}
}

// createConsoleWriter creates a console writer based on configuration
func createConsoleWriter(config *config.ConsoleConfig) (log.Writer, error) {
	var baseWriter io.Writer
	switch config.Writer {
	case "stdout":
		baseWriter = os.Stdout
	case "stderr":
		baseWriter = os.Stderr
	default:
		baseWriter = os.Stderr
	}

	var writer log.Writer

	if config.FastIO {
		// Use fast IOWriter for JSON output
		writer = &log.IOWriter{Writer: baseWriter}
	} else {
		// Use ConsoleWriter for formatted output
		consoleWriter := &log.ConsoleWriter{
			ColorOutput:    config.ColorOutput,
			QuoteString:    config.QuoteString,
			EndWithMessage: true,
			Writer:         baseWriter,
		}

		// Set formatter based on format
		switch config.Format {
		case "logfmt":
			// Logfmt format
			consoleWriter.Formatter = log.LogfmtFormatter{TimeField: "time"}.Formatter
			writer = consoleWriter
		case "glog":
			// Glog format
			consoleWriter.Formatter = GlogFormatter{}.Formatter
			writer = consoleWriter
		case "auto":
			fallthrough
		default:
			// Default colorized console format
			writer = consoleWriter
		}
	}

	return maybeAsync(writer, config.Async), nil
}

// createFileWriter creates a file writer based on configuration
func createFileWriter(config *config.FileConfig) (log.Writer, error) {
	// Ensure directory exists if requested
	if config.EnsureFolder {
		dir := filepath.Dir(config.Filename)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	baseWriter := &log.FileWriter{
		Filename:     config.Filename,
		FileMode:     0644,                         // Fixed mode for Windows
		MaxSize:      config.MaxSize * 1024 * 1024, // Convert MB to bytes
		MaxBackups:   config.MaxBackups,
		TimeFormat:   mapTimeFormat(config.TimeFormat),
		LocalTime:    config.LocalTime,
		HostName:     config.HostName,
		ProcessID:    config.ProcessID,
		EnsureFolder: config.EnsureFolder,
	}

	return maybeAsync(baseWriter, config.Async), nil
}

// createSyslogWriter creates a syslog writer based on configuration
func createSyslogWriter(config *config.SyslogConfig) (log.Writer, error) {
	baseWriter := &log.SyslogWriter{
		Network:  config.Network,
		Address:  config.Address,
		Hostname: config.Hostname,
		Tag:      config.Tag,
		Marker:   config.Marker,
	}

	return maybeAsync(baseWriter, config.Async), nil
}

// createWriter creates a log.Writer based on the output configuration.
// Disabled outputs yield a nil writer.
func createWriter(output config.LogOutput) (log.Writer, error) {
	if !output.Enabled {
		return nil, nil
	}

	missing := func() (log.Writer, error) {
		return nil, fmt.Errorf("%s output missing %s configuration", output.Type, output.Type)
	}

	switch output.Type {
	case "console":
		if output.Console == nil {
			return missing()
		}
		return createConsoleWriter(output.Console)
	case "file":
		if output.File == nil {
			return missing()
		}
		return createFileWriter(output.File)
	case "syslog":
		if output.Syslog == nil {
			return missing()
		}
		return createSyslogWriter(output.Syslog)
	case "eventlog":
		if output.Eventlog == nil {
			return missing()
		}
		return createEventlogWriter(output.Eventlog)
	default:
		return nil, fmt.Errorf("unknown output type: %s", output.Type)
	}
}

// createMultiWriter creates a multi-writer that outputs to multiple destinations
func createMultiWriter(outputs []config.LogOutput) (log.Writer, error) {
	var writers []log.Writer

	for _, output := range outputs {
		if !output.Enabled {
			continue
		}

		writer, err := createWriter(output)
		if err != nil {
			return nil, err
		}
		if writer != nil {
			writers = append(writers, writer)
		}
	}

	if len(writers) == 0 {
		// Fallback to stderr if no writers are configured
		return &log.IOWriter{Writer: os.Stderr}, nil
	}

	if len(writers) == 1 {
		// Single writer - no need for multi-writer wrapper
		return writers[0], nil
	}

	// Multiple writers - use phuslu/log's MultiEntryWriter
	multiWriter := log.MultiEntryWriter(writers)
	return &multiWriter, nil
}

// levelsMu guards the level overrides and the list of component loggers
// that Reconfigure updates in place.
var (
	levelsMu   sync.Mutex
	overrides  map[string]log.Level
	components []componentLogger
)

type componentLogger struct {
	name   string
	logger *log.Logger
}

func parseOverrides(levels map[string]string) map[string]log.Level {
	m := make(map[string]log.Level, len(levels))
	for name, level := range levels {
		m[strings.ToLower(name)] = parseLogLevel(level)
	}
	return m
}

// levelFor returns the level for component. levelsMu must be held.
func levelFor(component string, fallback log.Level) log.Level {
	if l, ok := overrides[strings.ToLower(component)]; ok {
		return l
	}
	return fallback
}

// ConfigureLogging configures the global DefaultLogger with user configuration
func ConfigureLogging(config config.LoggingConfig) error {
	// Create a multi-writer that handles all configured outputs
	multiWriter, err := createMultiWriter(config.Outputs)
	if err != nil {
		return err
	}

	// Configure the default logger (used by main application and as base for component loggers)
	log.DefaultLogger = log.Logger{
		Level:        parseLogLevel(config.Defaults.Level),
		Caller:       config.Defaults.Caller,
		TimeField:    config.Defaults.TimeField,
		TimeFormat:   mapTimeFormat(config.Defaults.TimeFormat),
		TimeLocation: parseTimeLocation(config.Defaults.TimeLocation),
		Writer:       multiWriter,
	}
	levelsMu.Lock()
	overrides = parseOverrides(config.Components)
	levelsMu.Unlock()

	enabled := 0
	for _, o := range config.Outputs {
		if o.Enabled {
			enabled++
		}
	}
	log.Info().
		Str("level", config.Defaults.Level).
		Int("outputs", enabled).
		Int("component_overrides", len(config.Components)).
		Msg("Loggers configured")

	return nil
}

// Reconfigure applies the default and per-component levels of config to the
// DefaultLogger and to every component logger already handed out. Output
// changes need a restart.
func Reconfigure(config config.LoggingConfig) {
	levelsMu.Lock()
	defer levelsMu.Unlock()

	def := parseLogLevel(config.Defaults.Level)
	log.DefaultLogger.SetLevel(def)
	overrides = parseOverrides(config.Components)
	for _, c := range components {
		c.logger.SetLevel(levelFor(c.name, def))
	}
}

// Close flushes and closes the configured writers. Async writers drop
// pending entries if this is not called before exit.
func Close() error {
	if c, ok := log.DefaultLogger.Writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewLoggerWithContext creates a new logger by copying the global DefaultLogger
// (which contains all user configuration) and adding component-specific context.
// A level configured under [logging.components] for component wins over the
// default level, and later Reconfigure calls update it. This should be called
// after ConfigureLogging.
func NewLoggerWithContext(component string) *log.Logger {
	levelsMu.Lock()
	defer levelsMu.Unlock()

	bl := &log.DefaultLogger
	l := &log.Logger{
		Level:        levelFor(component, bl.Level),
		Caller:       0, // Disable caller for component loggers to avoid confusion
		TimeField:    bl.TimeField,
		TimeFormat:   bl.TimeFormat,
		TimeLocation: bl.TimeLocation,
		Writer:       bl.Writer,
		Context:      log.NewContext(bl.Context).Str("component", component).Value(),
	}
	components = append(components, componentLogger{name: component, logger: l})
	return l
}
