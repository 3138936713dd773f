package logutil

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(NewLogger(&buf, LevelTrace))
	Trace("sampler step", "step", 3)

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "step=3")
	assert.Contains(t, out, "source=logutil_test.go:")

	buf.Reset()
	slog.SetDefault(NewLogger(&buf, slog.LevelDebug))
	Trace("hidden")
	assert.Empty(t, buf.String(), "Trace unterhalb von Debug wird verworfen")

	slog.SetDefault(NewLogger(&buf, slog.LevelInfo))
	slog.Info("restore started")
	assert.NotContains(t, buf.String(), "source=", "Quellangabe nur ab Debug")
}
