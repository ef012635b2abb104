package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTool is a Tool for making HTTP requests. It supports GET and
// POST and returns the status code, headers, and body of the response.
//
// Input parameters:
//   - url: target URL (required)
//   - method: "GET" or "POST" (defaults to "GET")
//   - headers: optional map of request headers
//   - body: optional request body string
//
// Output (map[string]any):
//   - status_code: HTTP status code
//   - headers: response headers
//   - body: response body as string
//
// Example:
//
//	t := tool.NewHTTPTool(10 * time.Second)
//	result, err := t.Invoke(ctx, map[string]any{
//	    "url": "https://api.example.com/data",
//	    "headers": map[string]any{"Authorization": "Bearer token"},
//	})
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool creates an HTTP tool. timeout bounds each request in
// addition to the caller's context; zero means context-only.
func NewHTTPTool(timeout time.Duration) *HTTPTool {
	return &HTTPTool{
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the tool identifier.
func (h *HTTPTool) Name() string {
	return "http_request"
}

// Description explains the tool.
func (h *HTTPTool) Description() string {
	return "Perform an HTTP GET or POST request and return status, headers, and body"
}

// Invoke executes one HTTP request from the input parameters.
func (h *HTTPTool) Invoke(ctx context.Context, input map[string]any) (any, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != "GET" && method != "POST" {
		return nil, fmt.Errorf("unsupported HTTP method: %s (supported: GET, POST)", method)
	}

	var body io.Reader
	if bodyStr, ok := input["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}, nil
}
