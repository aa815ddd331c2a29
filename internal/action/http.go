package action

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body becomes step output.
const maxResponseBytes = 10 << 20

// HTTPAction implements http steps. Params: url, method (default GET),
// body, and header_<Name> for each request header.
type HTTPAction struct {
	client *http.Client
}

// NewHTTPAction creates an HTTP action with a 60s client timeout.
func NewHTTPAction() *HTTPAction {
	return &HTTPAction{client: &http.Client{Timeout: 60 * time.Second}}
}

// Execute sends the request. The body is returned as "stdout"; a status of
// 400 or above fails the step with the status and the trimmed body.
func (h *HTTPAction) Execute(ctx context.Context, params map[string]string) (map[string]string, error) {
	req, err := newRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("http: reading response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("http: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return map[string]string{
		"stdout":       string(body),
		"status_code":  strconv.Itoa(resp.StatusCode),
		"content_type": resp.Header.Get("Content-Type"),
	}, nil
}

func newRequest(ctx context.Context, params map[string]string) (*http.Request, error) {
	url := params["url"]
	if url == "" {
		return nil, fmt.Errorf("http: url is required")
	}

	var body io.Reader
	if params["body"] != "" {
		body = strings.NewReader(params["body"])
	}
	req, err := http.NewRequestWithContext(ctx, method(params), url, body)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}

	for k, v := range params {
		if name, ok := strings.CutPrefix(k, "header_"); ok {
			req.Header.Set(name, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func method(params map[string]string) string {
	if m := params["method"]; m != "" {
		return strings.ToUpper(m)
	}
	return http.MethodGet
}

func (h *HTTPAction) DryRun(params map[string]string) string {
	return fmt.Sprintf("Would send %s request to %s", method(params), params["url"])
}
