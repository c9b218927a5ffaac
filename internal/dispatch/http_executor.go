package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ductran/service-agent/internal/job"
)

// HTTPExecutor performs one outbound request per dispatch. The response is
// captured verbatim as opaque data: any status the remote returns is
// success; only connection/timeout/DNS-class failures raise. No retry, no
// schema validation, and no engine-imposed timeout beyond the transport
// defaults.
type HTTPExecutor struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPExecutor creates a new HTTPExecutor.
func NewHTTPExecutor(logger *slog.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		client: &http.Client{},
		logger: logger,
	}
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, j *job.Job) (*Outcome, error) {
	var requestBody io.Reader
	if len(j.Body) > 0 {
		encoded, err := json.Marshal(j.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		requestBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(j.Method), j.URL, requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range j.Headers {
		req.Header.Set(key, value)
	}
	if requestBody != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	e.logger.Info("HTTP job executed",
		slog.String("job_id", j.JobID),
		slog.String("method", req.Method),
		slog.String("url", j.URL),
		slog.Int("status", resp.StatusCode),
		slog.Int("body_size", len(raw)),
	)

	return &Outcome{
		Response:        decodeResponseBody(raw),
		ResponseHeaders: flattenHeaders(resp.Header),
	}, nil
}

// decodeResponseBody captures the response as a structured value. JSON
// objects pass through; other JSON values and non-JSON bodies are wrapped
// under a "data" key so the stored response stays an object.
func decodeResponseBody(raw []byte) job.JSONMap {
	if len(raw) == 0 {
		return job.JSONMap{}
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return job.JSONMap{"data": string(raw)}
	}

	if obj, ok := value.(map[string]interface{}); ok {
		return job.JSONMap(obj)
	}
	return job.JSONMap{"data": value}
}

func flattenHeaders(h http.Header) job.StringMap {
	headers := make(job.StringMap, len(h))
	for key, values := range h {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}
