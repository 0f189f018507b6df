// Package apiclient reads the usbridge status side channel.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apitypes "github.com/Alia5/usbridge/apitypes"
)

// Client provides typed access to the status side channel, handling response
// parsing and problem errors.
type Client struct{ transport *Transport }

// New constructs a client for the status server at addr (host:port).
func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

// NewWithConfig constructs a client with custom transport timeouts.
func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport constructs a Client using a custom Transport implementation.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*apitypes.HealthResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "health")
	if err != nil {
		return nil, err
	}
	return parse[apitypes.HealthResponse](raw)
}

// Status returns the link state and the open transfers.
func (c *Client) Status(ctx context.Context) (*apitypes.StatusResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "status")
	if err != nil {
		return nil, err
	}
	return parse[apitypes.StatusResponse](raw)
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	var problem apitypes.ApiError
	if err := json.Unmarshal([]byte(data), &problem); err == nil && (problem.Status != 0 || problem.Title != "") {
		return nil, &problem
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
