// Package router maps tunnelled request URLs to handlers.
package router

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Request is the descriptor parsed from a forwarded request payload.
type Request struct {
	Ctx context.Context
	// ID correlates log lines of one request.
	ID string
	// URL is the raw payload text.
	URL string
	// Segments is the path split on "/" with empty segments dropped.
	Segments []string
	// Query maps each key to its first non-empty value.
	Query map[string]string
	// Params holds placeholder values of the matched route.
	Params map[string]string
	// Route is the pattern that matched, set by Router.Route.
	Route string
}

// Path returns the normalized path.
func (r *Request) Path() string {
	return "/" + strings.Join(r.Segments, "/")
}

// ParseRequest parses a UTF-8 URL such as "/api/download/x?start=0&end=9".
func ParseRequest(ctx context.Context, payload []byte) (*Request, error) {
	if !utf8.Valid(payload) {
		return nil, ErrBadRequest("request is not valid UTF-8")
	}
	raw := string(payload)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrBadRequest(fmt.Sprintf("invalid request URL: %v", err))
	}

	req := &Request{
		Ctx:    ctx,
		URL:    raw,
		Query:  map[string]string{},
		Params: map[string]string{},
	}
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			req.Segments = append(req.Segments, s)
		}
	}

	// Malformed pairs are skipped rather than failing the request.
	values, _ := url.ParseQuery(u.RawQuery)
	for k, vs := range values {
		for _, v := range vs {
			if v != "" {
				req.Query[k] = v
				break
			}
		}
	}
	return req, nil
}
