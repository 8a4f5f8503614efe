package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	logger, done, err := Setup(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)
	defer done()

	logger.Info("hidden")
	logger.Warn("shown", "index", "title_1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "index=title_1")
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, done, err := Setup(Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer done()

	logger.Debug("query plan", "path", "IndexSeek")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "query plan", rec["msg"])
	assert.Equal(t, "IndexSeek", rec["path"])

	_, _, err = Setup(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("collection", "books")
	logger.Debug("plan")
	logger.Error("failed")

	assert.Contains(t, a.String(), "plan")
	assert.Contains(t, a.String(), "failed")
	assert.NotContains(t, b.String(), "plan")
	assert.Contains(t, b.String(), "collection=books")
}
