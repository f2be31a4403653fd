package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 1024

// Invoker performs the actual work of a tool.
type Invoker interface {
	Invoke(ctx context.Context, d Descriptor, params map[string]any) (map[string]any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, d Descriptor, params map[string]any) (map[string]any, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, d Descriptor, params map[string]any) (map[string]any, error) {
	return f(ctx, d, params)
}

// HTTPInvoker POSTs the parameters as JSON to the tool endpoint and decodes
// the JSON response.
type HTTPInvoker struct {
	Client *http.Client
}

// NewHTTPInvoker returns an invoker whose requests are traced and bounded
// by timeout.
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Invoke implements Invoker.
func (h *HTTPInvoker) Invoke(ctx context.Context, d Descriptor, params map[string]any) (map[string]any, error) {
	if d.Endpoint == "" {
		return nil, fmt.Errorf("tool %s has no endpoint configured", d.Name)
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters for tool %s: %w", d.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for tool %s: %w", d.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", d.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("tool %s returned status %d: %s", d.Name, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("decode response of tool %s: %w", d.Name, err)
	}
	if obj, ok := decoded.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"output": decoded}, nil
}
