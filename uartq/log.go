package uartq

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Component identifiers used in the component attribute.
const (
	ComponentUART   Component = "uart"
	ComponentSim    Component = "sim"
	ComponentBridge Component = "bridge"
)

var (
	defaultLogger *slog.Logger

	// logLevel controls the minimum level of the default logger.
	logLevel = new(slog.LevelVar)

	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum level of the default logger.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the minimum level of the default logger.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces the logger used by this module.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	defaultLogger = logger
}

// NewLogger returns a logger writing to w at the shared level, as JSON when
// json is set.
func NewLogger(w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Logger returns the current logger tagged with component.
func Logger(component Component) *slog.Logger {
	logMutex.RLock()
	logger := defaultLogger
	logMutex.RUnlock()
	return logger.With("component", string(component))
}
