package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/woot/logging"
)

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(&buf, slog.LevelInfo)
	log.Debug("hidden")
	log.Info("shown", "doc", "d1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `msg="[woot] shown"`)
	assert.Contains(t, out, "doc=d1")
}

func TestWithDefaultArgs(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(&buf, slog.LevelDebug)

	parent := logging.WithDefaultArgs(context.Background(), "doc", "d1")
	ctx := logging.WithDefaultArgs(parent, "site", 2)
	log.WarnCtx(ctx, "pool", "depth", 10)
	log.InfoCtx(parent, "parent")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "level=WARN")
	assert.Contains(t, string(lines[0]), "depth=10 doc=d1 site=2")
	assert.Contains(t, string(lines[1]), "doc=d1")
	assert.NotContains(t, string(lines[1]), "site=2")
}

func TestParseLevel(t *testing.T) {
	level, err := logging.ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = logging.ParseLevel("loud")
	assert.Error(t, err)
}
