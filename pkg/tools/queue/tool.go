// Package queue provides the queue publish tool. It pushes a message onto a
// Redis list so another workflow, or an external consumer, can pick it up.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/protocol"
	redis "github.com/redis/go-redis/v9"
)

var ErrQueueNameMissing = errors.New("queue name is required")

func NewToolFactory() *ToolFactory {
	return &ToolFactory{}
}

type ToolFactory struct{}

func (f *ToolFactory) Create(_ context.Context, params map[string]any) (protocol.Tool, error) {
	return NewTool(params)
}

func (f *ToolFactory) ID() string {
	return "queue_publish"
}

func (f *ToolFactory) Name() string {
	return "Queue Publish"
}

func (f *ToolFactory) Description() string {
	return "Publishes a message onto a Redis-backed queue."
}

func (f *ToolFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"queue": map[string]any{
				"type":        "string",
				"description": "Name of the queue to publish to.",
			},
			"message": map[string]any{
				"description": "Message payload. Objects are serialized as JSON.",
			},
			"connection": map[string]any{
				"type":        "object",
				"description": "Redis connection settings.",
				"properties": map[string]any{
					"addr":     map[string]any{"type": "string", "default": "localhost:6379"},
					"password": map[string]any{"type": "string"},
					"db":       map[string]any{"type": "string", "default": "0"},
				},
			},
		},
		"required":             []string{"queue", "message"},
		"additionalProperties": true,
	}
}

// Tool publishes one message per execution.
type Tool struct {
	Queue      string
	Message    any
	Connection map[string]string

	// client overrides connection settings when set; used by tests.
	client redis.UniversalClient
}

func NewTool(params map[string]any) (*Tool, error) {
	queue, _ := params["queue"].(string)
	if queue == "" {
		return nil, ErrQueueNameMissing
	}

	connection := make(map[string]string)

	if connectionParam, ok := params["connection"].(map[string]any); ok {
		for k, v := range connectionParam {
			if str, ok := v.(string); ok {
				connection[k] = str
			}
		}
	}

	return &Tool{
		Queue:      queue,
		Message:    params["message"],
		Connection: connection,
	}, nil
}

func (t *Tool) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (*models.ToolResult, error) {
	logger = logger.With("module", "queue_publish_tool", "queue", t.Queue)

	client, err := t.redisClient()
	if err != nil {
		return nil, err
	}

	payload, err := encodeMessage(t.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode queue message: %w", err)
	}

	if err := client.RPush(ctx, t.Queue, payload).Err(); err != nil {
		return &models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("failed to publish to queue %s: %v", t.Queue, err),
		}, nil
	}

	logger.InfoContext(ctx, "Published message to queue", "bytes", len(payload))

	return &models.ToolResult{
		Success: true,
		Output: map[string]any{
			"queue":        t.Queue,
			"published_at": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (t *Tool) redisClient() (redis.UniversalClient, error) {
	if t.client != nil {
		return t.client, nil
	}

	addr := t.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if dbStr := t.Connection["db"]; dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("invalid db value %q: %w", dbStr, err)
		}

		db = parsed
	}

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: t.Connection["password"],
		DB:       db,
	}), nil
}

func encodeMessage(message any) (string, error) {
	if str, ok := message.(string); ok {
		return str, nil
	}

	raw, err := json.Marshal(message)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}
