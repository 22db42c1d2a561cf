// Package httprequest provides the HTTP request tool. Parameters arrive
// fully resolved; the tool only builds and performs the call.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/karzal/wove/pkg/models"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLMissing is returned when no url param is configured.
	ErrURLMissing = errors.New("missing or invalid 'url' parameter")
	// ErrServerError is returned when the server answers 5xx and retries remain.
	ErrServerError = errors.New("server error during HTTP request")
)

// Tool performs one HTTP request with optional headers, body and retries.
type Tool struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig defines retry behavior. Delay is in milliseconds.
type RetryConfig struct {
	Attempts int
	Delay    int
}

// NewTool builds a request tool from resolved parameters.
func NewTool(params map[string]any) (*Tool, error) {
	url, ok := params["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLMissing
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := params["body"].(string)

	headers := make(map[string]string)

	if headersParam, exists := params["headers"]; exists {
		if headersMap, ok := headersParam.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	retry := RetryConfig{Attempts: 1}
	if retryParam, exists := params["retry"]; exists {
		retry = parseRetryConfig(retryParam)
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := params["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Tool{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		Retry:   retry,
	}, nil
}

func parseRetryConfig(retryParam any) RetryConfig {
	retry := RetryConfig{Attempts: 1}

	retryMap, ok := retryParam.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok {
		retry.Delay = int(delay)
	}

	return retry
}

// Execute performs the request, retrying 5xx answers up to the configured
// attempts. Non-2xx final answers are reported as failed tool results so the
// dispatcher surfaces them with block identity attached.
func (t *Tool) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (*models.ToolResult, error) {
	logger = logger.With("module", "http_request_tool")
	logger.InfoContext(ctx, "Executing HTTP request", "method", t.Method, "url", t.URL)

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= t.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, fmt.Sprintf("HTTP request retry attempt %d/%d", attempt, t.Retry.Attempts))
			time.Sleep(time.Duration(t.Retry.Delay) * time.Millisecond)
		}

		req, err := t.buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		client := &http.Client{Timeout: t.Timeout}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)

			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < t.Retry.Attempts {
			if err := resp.Body.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("status %d: %w", resp.StatusCode, ErrServerError)

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return t.processResponse(ctx, resp, logger)
}

func (t *Tool) buildRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, strings.NewReader(t.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range t.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

func (t *Tool) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (*models.ToolResult, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)

		logger.DebugContext(ctx, "Response is not JSON, keeping it as a string")
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     flattenHeaders(resp.Header),
	}

	logger.InfoContext(ctx, "HTTP request completed",
		"status_code", resp.StatusCode,
		"body_length", len(bodyBytes),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return &models.ToolResult{
			Success: false,
			Output:  output,
			Error:   fmt.Sprintf("request failed with status %d", resp.StatusCode),
		}, nil
	}

	return &models.ToolResult{Success: true, Output: output}, nil
}

// flattenHeaders keeps the first value per header so the output stays easy to
// reference from downstream blocks.
func flattenHeaders(header http.Header) map[string]any {
	flat := make(map[string]any, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}

	return flat
}
