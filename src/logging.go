package r2span

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is the narrow logging surface this package depends on, so
// tests can substitute a silent or capturing implementation without
// pulling in charmbracelet/log directly.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	With(kv ...any) Logger
}

// charmLogger adapts *log.Logger to the Logger interface.
type charmLogger struct {
	l *log.Logger
}

// NewLogger builds the root logger for a process, scoped with levels
// derived from the `logging` CSV option.
func NewLogger(levels LevelMask) Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           levels.charmLevel(),
	})
	return &charmLogger{l: l}
}

func (c *charmLogger) Debugf(format string, args ...any) { c.l.Debugf(format, args...) }
func (c *charmLogger) Infof(format string, args ...any)  { c.l.Infof(format, args...) }
func (c *charmLogger) Warnf(format string, args ...any)  { c.l.Warnf(format, args...) }
func (c *charmLogger) Errorf(format string, args ...any) { c.l.Errorf(format, args...) }

func (c *charmLogger) With(kv ...any) Logger {
	return &charmLogger{l: c.l.With(kv...)}
}

// LevelMask is the OR-combined set of log levels named by the `logging`
// option, a csv of levels defaulting to "notice,warning,error".
type LevelMask uint8

const (
	LevelDebug LevelMask = 1 << iota
	LevelNotice
	LevelWarning
	LevelError
)

// ParseLevelMask parses a comma-separated level list, ignoring unknown
// tokens: the levels CSV is advisory verbosity control, not a
// configuration option whose validity gates Configure.
func ParseLevelMask(csv string) LevelMask {
	if strings.TrimSpace(csv) == "" {
		return LevelNotice | LevelWarning | LevelError
	}
	var mask LevelMask
	for _, tok := range strings.Split(csv, ",") {
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "debug":
			mask |= LevelDebug
		case "notice":
			mask |= LevelNotice
		case "warning", "warn":
			mask |= LevelWarning
		case "error":
			mask |= LevelError
		}
	}
	if mask == 0 {
		mask = LevelNotice | LevelWarning | LevelError
	}
	return mask
}

// charmLevel maps the mask onto the nearest charmbracelet/log.Level: the
// two level systems aren't isomorphic (this module has no "notice" level
// of its own below it), so the lowest enabled bit wins.
func (m LevelMask) charmLevel() log.Level {
	switch {
	case m&LevelDebug != 0:
		return log.DebugLevel
	case m&LevelNotice != 0:
		return log.InfoLevel
	case m&LevelWarning != 0:
		return log.WarnLevel
	case m&LevelError != 0:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// nopLogger discards everything; used by tests that don't assert on log
// output and don't want test noise.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) With(...any) Logger    { return nopLogger{} }

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
