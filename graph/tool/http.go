package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultMaxBodyBytes = 4 << 20

// HTTPTool performs GET and POST requests.
//
// Input:
//   - url (required)
//   - method: GET or POST, default GET
//   - headers: map of header values
//   - body: string, or any other value which is sent as JSON
//
// Output:
//   - status_code
//   - headers: single values as strings, repeated ones as []string
//   - body: the response text
//   - json: the decoded body, when the response is application/json
//
// With WithAllowedHosts set, requests to any other host are refused.
type HTTPTool struct {
	client       *http.Client
	maxBodyBytes int64
	allowed      map[string]struct{}
}

// HTTPOption configures an HTTPTool.
type HTTPOption func(*HTTPTool)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPTool) { h.client = c }
}

// WithMaxBodyBytes caps how much of a response is read.
func WithMaxBodyBytes(n int64) HTTPOption {
	return func(h *HTTPTool) { h.maxBodyBytes = n }
}

// WithAllowedHosts limits requests to the named hosts. Hosts are compared
// without port and case-insensitively.
func WithAllowedHosts(hosts ...string) HTTPOption {
	return func(h *HTTPTool) {
		h.allowed = make(map[string]struct{}, len(hosts))
		for _, host := range hosts {
			h.allowed[strings.ToLower(host)] = struct{}{}
		}
	}
}

// NewHTTPTool returns an HTTPTool. Timeouts come from the call context.
func NewHTTPTool(opts ...HTTPOption) *HTTPTool {
	h := &HTTPTool{client: &http.Client{}, maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns "http_request".
func (h *HTTPTool) Name() string {
	return "http_request"
}

// Call executes the request described by input.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, ok := StringArg(input, "url")
	if !ok {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	if err := h.checkHost(urlStr); err != nil {
		return nil, err
	}

	method := http.MethodGet
	if m, ok := StringArg(input, "method"); ok {
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported HTTP method: %s (supported: GET, POST)", method)
	}

	var body io.Reader
	jsonBody := false
	switch b := input["body"].(type) {
	case nil:
	case string:
		if b != "" {
			body = strings.NewReader(b)
		}
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
		jsonBody = true
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if valueStr, ok := value.(string); ok {
				req.Header.Set(key, valueStr)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	result := map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var decoded interface{}
		if err := json.Unmarshal(respBody, &decoded); err == nil {
			result["json"] = decoded
		}
	}
	return result, nil
}

func (h *HTTPTool) checkHost(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if h.allowed == nil {
		return nil
	}
	if _, ok := h.allowed[strings.ToLower(u.Hostname())]; !ok {
		return fmt.Errorf("host %q is not allowed", u.Hostname())
	}
	return nil
}
