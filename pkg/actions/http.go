package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/fault"
)

// httpMethods is the closed set of verbs the http action accepts.
var httpMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// maxHTTPBody caps how much of a response body is exposed to the scope.
const maxHTTPBody = 4 << 20

// HTTP issues one request and exposes status, headers and body to later
// steps. A non-2xx status fails the step unless allow_failure is set.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates the http action. client may be nil for a default
// client with a 30s timeout.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{client: client}
}

func (h *HTTP) Name() string { return "http" }

// PrimaryProperty enables `with: https://example.com/healthz` shorthand.
func (h *HTTP) PrimaryProperty() string { return "url" }

func (h *HTTP) Execute(ctx context.Context, cfg map[string]any) (*engine.Result, error) {
	url, err := requireString(cfg, "url", "http")
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if raw, err := optionalString(cfg, "method", "http"); err != nil {
		return nil, err
	} else if raw != "" {
		method = strings.ToUpper(raw)
		if !httpMethods[method] {
			return nil, fault.New(fault.ConfigInvalid, "http: unsupported method %q", raw)
		}
	}

	var body io.Reader
	contentType := ""
	if raw, ok := cfg["body"]; ok && raw != nil {
		switch v := raw.(type) {
		case string:
			body = strings.NewReader(v)
		default:
			data, merr := json.Marshal(v)
			if merr != nil {
				return nil, fault.Wrap(fault.ConfigInvalid, merr, "http: \"body\" is not serializable")
			}
			body = strings.NewReader(string(data))
			contentType = "application/json"
		}
	}

	if raw, ok := cfg["timeout"]; ok && raw != nil {
		str, isStr := raw.(string)
		if !isStr {
			return nil, fault.New(fault.ConfigInvalid, "http: \"timeout\" must be a duration string, got %T", raw)
		}
		d, perr := time.ParseDuration(str)
		if perr != nil {
			return nil, fault.New(fault.ConfigInvalid, "http: invalid timeout %q: %v", str, perr)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "http: invalid request for %q", url)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if raw, ok := cfg["headers"]; ok && raw != nil {
		m, isMap := raw.(map[string]any)
		if !isMap {
			return nil, fault.New(fault.ConfigInvalid, "http: \"headers\" must be a mapping, got %T", raw)
		}
		for k, v := range m {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}

	allowFailure := false
	if raw, ok := cfg["allow_failure"]; ok {
		allowFailure = truthy(raw)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.NotFound, err, "http: %s %s failed", method, url).
			WithGuidance("Check the URL and network reachability")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return nil, fmt.Errorf("http: read response from %s: %w", url, err)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	res := &engine.Result{
		Code:    fmt.Sprintf("status_%d", resp.StatusCode),
		Message: fmt.Sprintf("%s %s returned %d in %s", method, url, resp.StatusCode, time.Since(start).Round(time.Millisecond)),
		Value: map[string]any{
			"status":  resp.StatusCode,
			"body":    string(data),
			"headers": headers,
		},
	}
	if (resp.StatusCode < 200 || resp.StatusCode > 299) && !allowFailure {
		return res, fault.New(fault.ExplicitFail, "http: %s %s returned %d", method, url, resp.StatusCode).
			WithMeta(map[string]any{"status": resp.StatusCode, "body": string(data)})
	}
	return res, nil
}
