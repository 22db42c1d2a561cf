package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToolRequiresQueue(t *testing.T) {
	_, err := NewTool(map[string]any{"message": "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueNameMissing)
}

func TestNewToolParsesConnection(t *testing.T) {
	tool, err := NewTool(map[string]any{
		"queue":   "jobs",
		"message": map[string]any{"id": "user-1"},
		"connection": map[string]any{
			"addr": "redis.internal:6379",
			"db":   "2",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "jobs", tool.Queue)
	assert.Equal(t, "redis.internal:6379", tool.Connection["addr"])
	assert.Equal(t, "2", tool.Connection["db"])
}

func TestRedisClientRejectsBadDB(t *testing.T) {
	tool, err := NewTool(map[string]any{
		"queue":      "jobs",
		"message":    "x",
		"connection": map[string]any{"db": "not-a-number"},
	})
	require.NoError(t, err)

	_, err = tool.redisClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid db value")
}

func TestEncodeMessage(t *testing.T) {
	str, err := encodeMessage("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", str)

	obj, err := encodeMessage(map[string]any{"id": 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 7}`, obj)
}

func TestFactoryDescriptor(t *testing.T) {
	f := NewToolFactory()

	assert.Equal(t, "queue_publish", f.ID())
	assert.Equal(t, []string{"queue", "message"}, f.Schema()["required"])
}
