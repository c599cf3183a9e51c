package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// defaultBufferSize is how many recent entries /api/logs can return.
const defaultBufferSize = 1000

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex
	logBuffer       *RingBuffer
	logCallback     LogCallback
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// levelFor resolves the effective level of module: its own override when
// valid, otherwise the global level, otherwise info.
func (c Config) levelFor(module string) slog.Level {
	if s, ok := c.Modules[module]; ok {
		if l, valid := parseLevel(s); valid {
			return l
		}
	}
	if l, valid := parseLevel(c.Level); valid {
		return l
	}
	return slog.LevelInfo
}

// Initialize sets up the logging system. Loggers handed out earlier only
// wrote to stdout; their handlers are rebuilt here so they also reach the
// journal and the ring buffer.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true
	logBuffer = NewRingBuffer(defaultBufferSize)
	globalLevelVar.Set(config.levelFor(""))

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(config.levelFor(module))
		moduleLoggers[module] = newModuleLogger(config.Format, module, levelVar)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// Passing nil removes it.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// SetLevels applies new global and per-module levels to every existing
// logger without rebuilding handlers. The output format is not changed.
func SetLevels(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = config.Level
	globalConfig.Modules = config.Modules

	globalLevelVar.Set(globalConfig.levelFor(""))
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(globalConfig.levelFor(module))
	}
}

func dispatchLogEntry(entry LogEntry) {
	mutex.RLock()
	cb := logCallback
	mutex.RUnlock()
	if cb != nil {
		cb(entry)
	}
}

// GetLogger returns a logger for the specified module, creating it if needed.
// Every logger carries a "module" attribute.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, exists := moduleLoggers[module]
	mutex.RUnlock()
	if exists {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		levelVar.Set(globalConfig.levelFor(module))
		format = globalConfig.Format
	}

	logger = newModuleLogger(format, module, levelVar)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

func newModuleLogger(format, module string, level slog.Leveler) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", module)
}

// createHandler fans records out to stdout (when something is attached),
// the journal (when reachable) and the ring buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	// logBuffer is nil before Initialize; BufferHandler is disabled then.
	handlers = append(handlers, NewBufferHandler(logBuffer, level, dispatchLogEntry))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable reports whether stdout is a terminal, pipe, socket or
// regular file. /dev/null is a device and does not count.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
