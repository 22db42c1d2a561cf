package transform

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTransform(t *testing.T, params map[string]any) (any, error) {
	t.Helper()

	tool, err := NewTool(params)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	result, err := tool.Execute(context.Background(), nil, logger)
	if err != nil {
		return nil, err
	}

	return result.Output["result"], nil
}

func TestTransformField(t *testing.T) {
	out, err := runTransform(t, map[string]any{
		"input":    map[string]any{"name": "ada", "age": 36},
		"template": "{{.name}}",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", out)
}

func TestTransformBuildsJSON(t *testing.T) {
	out, err := runTransform(t, map[string]any{
		"input":    map[string]any{"first": "Ada", "last": "Lovelace"},
		"template": `{"full_name": "{{.first}} {{.last}}"}`,
	})
	require.NoError(t, err)

	obj, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", obj["full_name"])
}

func TestTransformMalformedJSONStaysString(t *testing.T) {
	out, err := runTransform(t, map[string]any{
		"input":    map[string]any{"v": "x"},
		"template": `{not json {{.v}}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "{not json x}", out)
}

func TestTransformMissingTemplate(t *testing.T) {
	_, err := NewTool(map[string]any{"input": "data"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateMissing)
}

func TestTransformBadTemplate(t *testing.T) {
	_, err := runTransform(t, map[string]any{
		"template": "{{.name",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestFactoryDescriptor(t *testing.T) {
	f := NewToolFactory()

	assert.Equal(t, "transform", f.ID())
	assert.NotNil(t, f.Schema())
}
