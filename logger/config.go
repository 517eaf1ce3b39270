package logger

import (
	"log/slog"
	"strings"
	"sync"
)

// ModuleConfig holds per-module log levels. Module names are dotted
// package paths relative to the repository root ("engine.scheduler",
// "engine.synth.gemini"); a level set on a prefix applies to everything
// beneath it unless a more specific entry overrides it.
type ModuleConfig struct {
	mu           sync.RWMutex
	defaultLevel slog.Level
	modules      map[string]slog.Level
}

// NewModuleConfig creates a ModuleConfig with the given default level.
func NewModuleConfig(defaultLevel slog.Level) *ModuleConfig {
	return &ModuleConfig{
		defaultLevel: defaultLevel,
		modules:      make(map[string]slog.Level),
	}
}

// SetModuleLevel sets the log level for a module and its children.
func (m *ModuleConfig) SetModuleLevel(module string, level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[module] = level
}

// SetDefaultLevel sets the level used when no module entry matches.
func (m *ModuleConfig) SetDefaultLevel(level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultLevel = level
}

// LevelFor resolves the level for a module: exact match first, then
// each parent up the dotted hierarchy, then the default. For
// "engine.synth.gemini" that means "engine.synth.gemini", then
// "engine.synth", then "engine".
func (m *ModuleConfig) LevelFor(module string) slog.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for {
		if level, ok := m.modules[module]; ok {
			return level
		}
		lastDot := strings.LastIndex(module, ".")
		if lastDot == -1 {
			return m.defaultLevel
		}
		module = module[:lastDot]
	}
}

// globalModuleConfig is the module configuration behind the package
// logger. Replaced wholesale by Configure.
var globalModuleConfig = NewModuleConfig(slog.LevelInfo)

// LoggingConfigSpec is the programmatic logging configuration accepted
// by Configure.
type LoggingConfigSpec struct {
	DefaultLevel string
	Format       string // "json" or "text"
	CommonFields map[string]string
	Modules      []ModuleLoggingSpec
}

// ModuleLoggingSpec sets the level for one module subtree.
type ModuleLoggingSpec struct {
	Name   string
	Level  string
	Fields map[string]string
}

// Log format names accepted by LoggingConfigSpec.Format.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Configure rebuilds the package logger from cfg: default level,
// output format, fields stamped on every record, and per-module level
// overrides. A nil cfg is a no-op, as is any Configure call after a
// custom logger was installed with SetLogger.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil {
		return nil
	}
	if customHandler != nil {
		return nil
	}

	defaultLevel := slog.LevelInfo
	if cfg.DefaultLevel != "" {
		defaultLevel = ParseLevel(cfg.DefaultLevel)
	}

	var commonFields []slog.Attr
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	moduleConfig := NewModuleConfig(defaultLevel)
	for _, mod := range cfg.Modules {
		moduleConfig.SetModuleLevel(mod.Name, ParseLevel(mod.Level))
	}
	globalModuleConfig = moduleConfig

	initLoggerWithConfig(defaultLevel, commonFields, moduleConfig, cfg.Format == FormatJSON)
	return nil
}

// initLoggerWithConfig swaps in a new package logger. Module-aware
// filtering is only layered on when cfg carries module overrides; the
// plain context handler is cheaper and covers the common case.
func initLoggerWithConfig(level slog.Level, commonFields []slog.Attr, moduleConfig *ModuleConfig, useJSON bool) {
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if useJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}

	var handler slog.Handler
	if moduleConfig != nil && len(moduleConfig.modules) > 0 {
		handler = NewModuleHandler(base, moduleConfig, commonFields...)
	} else {
		handler = NewContextHandler(base, commonFields...)
	}

	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}

// GetModuleConfig returns the active module configuration.
func GetModuleConfig() *ModuleConfig {
	return globalModuleConfig
}
