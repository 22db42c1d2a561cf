package log_tool

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogToolWritesMessage(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	factory := NewLogToolFactory()

	tool, err := factory.Create(context.Background(), map[string]any{
		"message": "processing user user-1",
		"level":   "warn",
	})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), nil, logger)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "processing user user-1", result.Output["message"])
	assert.Equal(t, "warn", result.Output["level"])
	assert.Contains(t, buf.String(), "processing user user-1")
	assert.Contains(t, buf.String(), "WARN")
}

func TestLogToolDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tool := NewLogTool(map[string]any{"message": "hello"})

	result, err := tool.Execute(context.Background(), nil, logger)
	require.NoError(t, err)

	assert.Equal(t, "info", result.Output["level"])
	assert.Contains(t, buf.String(), "INFO")
}

func TestLogToolNilParams(t *testing.T) {
	factory := NewLogToolFactory()

	tool, err := factory.Create(context.Background(), nil)
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), nil, slog.Default())
	require.NoError(t, err)
	assert.True(t, result.Success)
}
