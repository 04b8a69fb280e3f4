// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// Slog returns a *slog.Logger that forwards records to the global
// zerolog logger. Used for libraries that want an slog handle, such as
// the supervisor's sutureslog event hook.
func Slog() *slog.Logger {
	return slog.New(slogHandler{})
}

type slogHandler struct {
	fields []slog.Attr
	group  string
}

func (h slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return slogToZerolog(level) >= zerolog.GlobalLevel()
}

func (h slogHandler) Handle(_ context.Context, record slog.Record) error {
	// WithLevel has a pointer receiver, bind the logger first.
	l := Logger()
	event := l.WithLevel(slogToZerolog(record.Level))
	for _, attr := range h.fields {
		event = appendAttr(event, h.group, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = appendAttr(event, h.group, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (h slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.fields)+len(attrs))
	merged = append(merged, h.fields...)
	merged = append(merged, attrs...)
	return slogHandler{fields: merged, group: h.group}
}

func (h slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	prefix := name
	if h.group != "" {
		prefix = h.group + "." + name
	}
	return slogHandler{fields: h.fields, group: prefix}
}

func appendAttr(event *zerolog.Event, group string, attr slog.Attr) *zerolog.Event {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return event.Str(key, value.String())
	case slog.KindInt64:
		return event.Int64(key, value.Int64())
	case slog.KindUint64:
		return event.Uint64(key, value.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, value.Float64())
	case slog.KindBool:
		return event.Bool(key, value.Bool())
	case slog.KindDuration:
		return event.Dur(key, value.Duration())
	case slog.KindTime:
		return event.Time(key, value.Time())
	case slog.KindGroup:
		for _, nested := range value.Group() {
			event = appendAttr(event, key, nested)
		}
		return event
	default:
		return event.Interface(key, value.Any())
	}
}

func slogToZerolog(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
