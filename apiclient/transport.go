package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config controls low-level transport behavior such as timeouts.
type Config struct {
	Timeout time.Duration
}

func defaultConfig() Config {
	return Config{Timeout: 5 * time.Second}
}

// Transport performs GET requests against the usbridge status side channel.
// Problem responses (4xx/5xx with an RFC 7807 body) are returned as the raw
// body so the caller can decode them; other failures are errors.
type Transport struct {
	base   string
	client *http.Client
	mock   func(path string) (string, error)
}

// NewTransport creates a transport for the server at addr (host:port).
func NewTransport(addr string) *Transport { return NewTransportWithConfig(addr, nil) }

// NewTransportWithConfig creates a transport with optional timeout configuration.
func NewTransportWithConfig(addr string, cfg *Config) *Transport {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Transport{base: strings.TrimSuffix(base, "/"), client: &http.Client{Timeout: c.Timeout}}
}

// NewMockTransport creates a transport that returns canned responses without real networking.
func NewMockTransport(responder func(path string) (string, error)) *Transport {
	return &Transport{base: "mock", mock: responder}
}

// DoCtx fetches path and returns the body without its trailing newline.
func (t *Transport) DoCtx(ctx context.Context, path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if t.mock != nil {
		return t.mock(path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/"+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if resp.StatusCode >= 300 && !strings.HasPrefix(strings.TrimSpace(string(body)), "{") {
		return "", fmt.Errorf("request %s: %s", path, resp.Status)
	}
	return strings.TrimSuffix(string(body), "\n"), nil
}
