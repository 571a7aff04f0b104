// Package log routes the slog output of every techlife package to a single, swappable slog.Handler. Nothing is logged
// until To is called.
package log

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
)

const (
	ComponentKey = "component"
	ErrorKey     = "error"
)

// Error returns a slog.Attr for the provided error. The key will be ErrorKey.
func Error(e error) slog.Attr {
	return slog.Any(ErrorKey, e)
}

// Hex returns a slog.Attr holding the hex encoding of a binary payload. Command frames are not valid UTF-8, so they
// are never logged as strings.
func Hex(key string, payload []byte) slog.Attr {
	return slog.String(key, hex.EncodeToString(payload))
}

// indirectHandler forwards records to whichever slog.Handler was most recently passed to To.
type indirectHandler struct {
	h atomic.Pointer[slog.Handler]
}

func (i *indirectHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h := i.h.Load()
	if h == nil {
		return false
	}

	return (*h).Enabled(ctx, level)
}

func (i *indirectHandler) Handle(ctx context.Context, record slog.Record) error {
	h := i.h.Load()
	if h == nil {
		return nil
	}

	return (*h).Handle(ctx, record)
}

func (i *indirectHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &boundHandler{parent: i, attrs: attrs}
}

func (i *indirectHandler) WithGroup(name string) slog.Handler {
	return &boundHandler{parent: i, group: name}
}

// boundHandler remembers attributes and groups added to a logger so they survive a later call to To. Loggers built
// by ForComponent are usually created at package init or construction time, before main has configured a sink.
type boundHandler struct {
	parent slog.Handler
	attrs  []slog.Attr
	group  string
}

func (b *boundHandler) resolve() slog.Handler {
	h := b.parent
	if p, ok := h.(*boundHandler); ok {
		h = p.resolve()
	} else {
		inner := sink.h.Load()
		if inner == nil {
			return nil
		}
		h = *inner
	}

	if b.group != "" {
		return h.WithGroup(b.group)
	}

	return h.WithAttrs(b.attrs)
}

func (b *boundHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return sink.Enabled(ctx, level)
}

func (b *boundHandler) Handle(ctx context.Context, record slog.Record) error {
	h := b.resolve()
	if h == nil {
		return nil
	}

	return h.Handle(ctx, record)
}

func (b *boundHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &boundHandler{parent: b, attrs: attrs}
}

func (b *boundHandler) WithGroup(name string) slog.Handler {
	return &boundHandler{parent: b, group: name}
}

var (
	_ slog.Handler = &indirectHandler{}
	_ slog.Handler = &boundHandler{}

	sink = &indirectHandler{h: atomic.Pointer[slog.Handler]{}}
)

// To updates all slog.Logger objects used internally by techlife to write logs to the provided slog.Handler. By
// default, log values will be discarded unless To is called at least once with a non-discarding slog.Handler.
func To(h slog.Handler) {
	sink.h.Store(&h)
}

// ForComponent constructs a slog.Logger for the specified component (which is stored in an attribute with the key
// ComponentKey).
func ForComponent(component string) *slog.Logger {
	return slog.New(sink).With(slog.String(ComponentKey, component))
}
