package logger

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
)

// ContextHandler wraps an inner slog.Handler and stamps every record
// with the common fields plus whatever scope values (job_id, unit_id,
// request_id) the context carries. Attributes given at the log site
// come last and win over both.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// ModuleHandler extends ContextHandler with per-module level filtering
// and a "logger" attribute naming the emitting module. The module is
// derived from the record's program counter.
type ModuleHandler struct {
	ContextHandler
	moduleConfig *ModuleConfig
}

var (
	_ slog.Handler = (*ContextHandler)(nil)
	_ slog.Handler = (*ModuleHandler)(nil)
)

// NewContextHandler creates a ContextHandler over inner. commonFields
// are added to every record.
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{
		inner:        inner,
		commonFields: commonFields,
	}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches the record and hands it to the inner handler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, h.enrich(ctx, r, ""))
}

// enrich rebuilds the record with common fields, the module name when
// given, context scope fields, and finally the record's own attributes.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) enrich(ctx context.Context, r slog.Record, module string) slog.Record {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	for _, attr := range h.commonFields {
		out.AddAttrs(attr)
	}
	if module != "" {
		out.AddAttrs(slog.String("logger", module))
	}
	for _, key := range allContextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			out.AddAttrs(slog.String(string(key), v))
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})
	return out
}

// WithAttrs returns a handler with attrs added to the inner handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:        h.inner.WithAttrs(attrs),
		commonFields: h.commonFields,
	}
}

// WithGroup returns a handler with the group opened on the inner handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{
		inner:        h.inner.WithGroup(name),
		commonFields: h.commonFields,
	}
}

// Unwrap returns the inner handler.
func (h *ContextHandler) Unwrap() slog.Handler {
	return h.inner
}

// NewModuleHandler creates a ModuleHandler over inner using
// moduleConfig for per-module levels.
func NewModuleHandler(inner slog.Handler, moduleConfig *ModuleConfig, commonFields ...slog.Attr) *ModuleHandler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{
			inner:        inner,
			commonFields: commonFields,
		},
		moduleConfig: moduleConfig,
	}
}

// Enabled resolves the calling module from the stack and applies its
// configured level.
func (h *ModuleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.moduleConfig.LevelFor(callerModule())
}

// Handle drops records below the emitting module's level, then
// enriches and forwards the rest.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ModuleHandler) Handle(ctx context.Context, r slog.Record) error {
	module := moduleFromPC(r.PC)
	if r.Level < h.moduleConfig.LevelFor(module) {
		return nil
	}
	return h.inner.Handle(ctx, h.enrich(ctx, r, module))
}

// WithAttrs returns a handler with attrs added to the inner handler.
func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{
			inner:        h.inner.WithAttrs(attrs),
			commonFields: h.commonFields,
		},
		moduleConfig: h.moduleConfig,
	}
}

// WithGroup returns a handler with the group opened on the inner handler.
func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{
			inner:        h.inner.WithGroup(name),
			commonFields: h.commonFields,
		},
		moduleConfig: h.moduleConfig,
	}
}

// callerModule walks the stack for the first frame outside this
// package and returns its module name. Used by Enabled, which has no
// record PC to go by.
func callerModule() string {
	const maxDepth = 10
	var pcs [maxDepth]uintptr
	//nolint:mnd // skip runtime.Callers, callerModule, and Enabled
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		module := extractModuleFromFunction(frame.Function)
		if module != "" && !strings.HasPrefix(module, "engine.logger") {
			return module
		}
		if !more {
			return ""
		}
	}
}

// moduleFromPC resolves the module name for a single program counter.
func moduleFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return extractModuleFromFunction(frame.Function)
}

// extractModuleFromFunction turns a fully qualified function name into
// a dotted module name:
// "github.com/CadenzaLabs/NarrateKit/engine/scheduler.(*Engine).Run"
// becomes "engine.scheduler". Functions outside this repository map to
// the empty string and fall under the default level.
func extractModuleFromFunction(fn string) string {
	const moduleRoot = "github.com/CadenzaLabs/NarrateKit/"
	idx := strings.Index(fn, moduleRoot)
	if idx == -1 {
		return ""
	}
	path := fn[idx+len(moduleRoot):]

	// Strip the function and any method receiver:
	// "engine/scheduler.(*Engine).Run" -> "engine/scheduler".
	if parenIdx := strings.Index(path, "("); parenIdx != -1 {
		path = path[:parenIdx]
	}
	if dotIdx := strings.LastIndex(path, "."); dotIdx != -1 {
		path = path[:dotIdx]
	}

	return strings.ReplaceAll(path, "/", ".")
}
