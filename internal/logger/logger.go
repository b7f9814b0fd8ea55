// Package logger provides the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/env"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
	colorBold    = 1
)

var levelLabels = map[string]string{
	"trace": colorize("TRC", colorMagenta),
	"debug": colorize("DBG", colorYellow),
	"info":  colorize("INF", colorGreen),
	"warn":  colorize("WRN", colorRed),
	"error": colorize("ERR", colorRed),
	"fatal": colorize("FTL", colorRed),
	"panic": colorize("PNC", colorRed),
}

var (
	once   sync.Once
	logger *zerolog.Logger
)

// Get returns the singleton logger instance, initializing it on first call.
func Get() *zerolog.Logger {
	once.Do(func() {
		logger = newLogger(os.Stderr)
	})
	return logger
}

// For returns a child of the singleton logger tagged with a component name.
func For(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}

func colorize(s any, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// newLogger picks the console or JSON writer from ENV and the level from
// LOG_LEVEL (default info).
func newLogger(out io.Writer) *zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(env.GetOrDefault("LOG_LEVEL", "info")))

	switch env.GetOrDefault("ENV", "development") {
	case "development", "dev":
		return newDevelopment(out)
	default:
		return newProduction(out)
	}
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL %q; defaulting to 'info'\n", s)
		return zerolog.InfoLevel
	}
	return level
}

// newDevelopment creates a console logger with colored levels
func newDevelopment(out io.Writer) *zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i any) string {
			ll, ok := i.(string)
			if !ok {
				return strings.ToUpper(fmt.Sprintf("%s", i))[0:3]
			}
			if label, ok := levelLabels[ll]; ok {
				return label
			}
			return colorize(strings.ToUpper(ll)[0:3], colorBold)
		},
		// Secrets never reach the console, even at debug level.
		FieldsExclude: []string{"secret", "password", "client_secret"},
	}

	zl := zerolog.New(output).With().Timestamp().Logger()
	return &zl
}

// newProduction creates a JSON logger with UNIX timestamps, suitable for
// the long-running worker and proxy processes.
func newProduction(out io.Writer) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zl := zerolog.New(out).With().Timestamp().Str("service", "agora").Logger()
	return &zl
}
