// Package logger wraps zerolog with the terse, per-component style the
// pipeline's services use for lifecycle and per-symbol trace lines.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

func init() {
	Init("info")
}

// Init (re)configures the package-level logger. level is one of
// debug/info/warn/error; anything else falls back to info.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339
	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	base = zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetOutput redirects the base logger's writer; used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = base.Output(w)
}

// Component is a sub-logger carrying a fixed "component" field, e.g.
// logger.Component("discovery").Infof("cycle done: %d symbols", n).
type Component struct {
	log zerolog.Logger
}

// With returns a Component logger tagged with name (service/package name).
func With(name string) Component {
	mu.RLock()
	defer mu.RUnlock()
	return Component{log: base.With().Str("component", name).Logger()}
}

func (c Component) Debugf(format string, args ...any) { c.log.Debug().Msg(fmt.Sprintf(format, args...)) }
func (c Component) Infof(format string, args ...any)  { c.log.Info().Msg(fmt.Sprintf(format, args...)) }
func (c Component) Warnf(format string, args ...any)  { c.log.Warn().Msg(fmt.Sprintf(format, args...)) }
func (c Component) Errorf(format string, args ...any) { c.log.Error().Msg(fmt.Sprintf(format, args...)) }

// Fields attaches structured key/value pairs to the next line.
func (c Component) Fields(kv map[string]any) Component {
	ctx := c.log.With()
	for k, v := range kv {
		ctx = ctx.Interface(k, v)
	}
	return Component{log: ctx.Logger()}
}

// Package-level convenience funcs for call sites that don't need a
// named component (startup/shutdown lines in cmd/ mains).

func Debugf(format string, args ...any) {
	mu.RLock()
	l := base
	mu.RUnlock()
	l.Debug().Msg(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	mu.RLock()
	l := base
	mu.RUnlock()
	l.Info().Msg(fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	mu.RLock()
	l := base
	mu.RUnlock()
	l.Warn().Msg(fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	mu.RLock()
	l := base
	mu.RUnlock()
	l.Error().Msg(fmt.Sprintf(format, args...))
}
