package router

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ResponseWriter receives the reply body. Only the last non-empty write is
// sent back to the device. Writers may retain p, so handlers must not modify
// a slice after writing it.
type ResponseWriter interface {
	io.Writer
	io.StringWriter
}

// HandlerFunc processes a request and writes the reply. The logger is
// request-scoped.
type HandlerFunc func(req *Request, w ResponseWriter, logger *slog.Logger) error

// Router implements simple path pattern matching with placeholders in {name}.
// Literal segments match case-insensitively; placeholder values keep their
// original case.
type Router struct {
	routes []routeEntry
	logger *slog.Logger
}

type routeEntry struct {
	pattern string
	parts   []string
	handler HandlerFunc
}

// New returns an empty Router.
func New(logger *slog.Logger) *Router { return &Router{logger: logger} }

// Register registers a handler for a path pattern like "api/download/{id}".
func (r *Router) Register(pattern string, handler HandlerFunc) {
	var parts []string
	for _, p := range strings.Split(pattern, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	r.routes = append(r.routes, routeEntry{pattern: strings.Join(parts, "/"), parts: parts, handler: handler})
}

// Match returns the handler, route pattern and params for segments, or a nil
// handler when no pattern matches.
func (r *Router) Match(segments []string) (HandlerFunc, string, map[string]string) {
	for _, rt := range r.routes {
		if len(rt.parts) != len(segments) {
			continue
		}
		params := map[string]string{}
		ok := true
		for i, part := range rt.parts {
			if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
				params[part[1:len(part)-1]] = segments[i]
				continue
			}
			if !strings.EqualFold(part, segments[i]) {
				ok = false
				break
			}
		}
		if ok {
			return rt.handler, rt.pattern, params
		}
	}
	return nil, "", nil
}

// Route dispatches req to the matching handler.
func (r *Router) Route(req *Request, w ResponseWriter) error {
	h, pattern, params := r.Match(req.Segments)
	if h == nil {
		return ErrNotFound(fmt.Sprintf("unknown path: %s", req.Path()))
	}
	req.Route = pattern
	for k, v := range params {
		req.Params[k] = v
	}
	logger := r.logger.With("request", req.ID, "route", pattern)
	return h(req, w, logger)
}
