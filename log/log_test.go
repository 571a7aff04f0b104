package log

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForComponent(t *testing.T) {
	// Built before a sink exists, like package-level loggers are.
	l := ForComponent("sut").With(slog.String("device", "AA"))

	var b bytes.Buffer
	To(slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { To(slog.DiscardHandler) })

	l.With(Error(errors.New("boom")), Hex("frame", []byte{0xfa, 0x23})).Info("hello")

	out := b.String()
	assert.Contains(t, out, "component=sut")
	assert.Contains(t, out, "device=AA")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "frame=fa23")
	assert.Contains(t, out, "msg=hello")
}

func TestDiscardsWithoutSink(t *testing.T) {
	sink.h.Store(nil)
	t.Cleanup(func() { To(slog.DiscardHandler) })

	l := ForComponent("sut")
	require.False(t, l.Enabled(t.Context(), slog.LevelError))

	l.Error("dropped")
}
