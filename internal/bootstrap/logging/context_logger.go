// Package logging carries a slog logger and a set of sticky attrs in the
// context, so every layer logs with the attributes its callers accumulated
// (app, command, component, review id) without threading a logger through
// each signature.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

type loggerKey struct{}
type attrsKey struct{}

var (
	fallback     *slog.Logger
	fallbackOnce sync.Once
)

// WithLogger pins logger as the emitter for everything logged under ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithAttrs appends attrs to the set every later log call under ctx emits.
// A repeated key replaces the inherited value.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(attrs) == 0 {
		return ctx
	}
	return context.WithValue(ctx, attrsKey{}, merge(contextAttrs(ctx), attrs))
}

func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelInfo, msg, attrs)
}

func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelWarn, msg, attrs)
}

func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelError, msg, attrs)
}

func emit(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	logger(ctx).LogAttrs(ctx, level, msg, merge(contextAttrs(ctx), attrs)...)
}

func logger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	fallbackOnce.Do(func() {
		fallback = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	})
	return fallback
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

// merge returns a fresh slice: base first, then extra, with extra winning
// on key collisions. Never aliases either input; stored attr slices are
// shared across goroutines.
func merge(base []slog.Attr, extra []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(base)+len(extra))
	position := make(map[string]int, len(base)+len(extra))

	for _, set := range [][]slog.Attr{base, extra} {
		for _, attr := range set {
			if attr.Key != "" {
				if i, seen := position[attr.Key]; seen {
					out[i] = attr
					continue
				}
				position[attr.Key] = len(out)
			}
			out = append(out, attr)
		}
	}
	return out
}
