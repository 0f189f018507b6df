// Package dispatch services forwarded requests arriving on a transport
// session and sends their replies.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Alia5/usbridge/frame"
	"github.com/Alia5/usbridge/internal/metrics"
	"github.com/Alia5/usbridge/internal/router"
)

// DefaultReplyTimeout bounds each write of a reply.
const DefaultReplyTimeout = 10 * time.Minute

// ErrUnknownCommand is logged for packets with a command other than
// frame.CommandForwardRequest. The packet is dropped.
var ErrUnknownCommand = errors.New("unknown command")

// Transport is the packet exchange the dispatcher runs on.
type Transport interface {
	Receive(ctx context.Context, timeout time.Duration) (*frame.Packet, error)
	Send(ctx context.Context, p *frame.Packet, timeout time.Duration) error
}

// Router handles one parsed request.
type Router interface {
	Route(req *router.Request, w router.ResponseWriter) error
}

// Dispatcher reads packets and routes forwarded requests.
type Dispatcher struct {
	transport    Transport
	router       Router
	logger       *slog.Logger
	metrics      *metrics.Metrics
	replyTimeout time.Duration
}

type Option func(*Dispatcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithReplyTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.replyTimeout = t }
}

func New(t Transport, r Router, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:    t,
		router:       r,
		logger:       logger,
		replyTimeout: DefaultReplyTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Serve handles packets until the transport fails or ctx is cancelled.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		if err := d.HandleNext(ctx); err != nil {
			return err
		}
	}
}

// HandleNext receives and handles one packet. Framing errors and unknown
// commands are logged and swallowed; any other error is returned.
func (d *Dispatcher) HandleNext(ctx context.Context) error {
	p, err := d.transport.Receive(ctx, 0)
	if err != nil {
		if errors.Is(err, frame.ErrFraming) {
			d.logger.Error("failed to read packet", "error", err)
			d.metrics.RecordFramingError()
			return nil
		}
		return err
	}

	if p.Command != frame.CommandForwardRequest {
		d.logger.Error("dropping packet", "error", fmt.Errorf("%w: %d", ErrUnknownCommand, p.Command))
		d.metrics.RecordUnknownCommand()
		return nil
	}
	d.logger.Debug("received command", "command", p.Command, "bytes", len(p.Payload))
	return d.forward(ctx, p)
}

func (d *Dispatcher) forward(ctx context.Context, p *frame.Packet) error {
	id := uuid.NewString()
	logger := d.logger.With("request", id)
	started := time.Now()
	w := &replyWriter{}
	route, outcome := "", "ok"

	req, err := router.ParseRequest(ctx, p.Payload)
	if err != nil {
		outcome = "bad_request"
		logger.Error("invalid request", "error", err)
		w.set(problem(err))
	} else {
		req.ID = id
		logger.Info("request", "url", req.URL)
		if err := d.router.Route(req, w); err != nil {
			outcome = "error"
			logger.Error("request failed", "url", req.URL, "error", err)
			if w.buf == nil {
				w.set(problem(err))
			}
		}
		route = req.Route
	}
	if route == "" {
		route = "unmatched"
	}
	d.metrics.RecordRequest(route, outcome, time.Since(started))

	if w.buf == nil {
		logger.Debug("handler wrote no reply")
		return nil
	}
	reply := &frame.Packet{Header: p.Header.Reply(len(w.buf)), Payload: w.buf}
	logger.Debug("sending reply", "bytes", len(w.buf))
	return d.transport.Send(ctx, reply, d.replyTimeout)
}

func problem(err error) []byte {
	b, mErr := json.Marshal(router.WrapError(err))
	if mErr != nil {
		return []byte(`{"status":500,"title":"Internal Server Error"}`)
	}
	return b
}

// replyWriter keeps only the last non-empty write.
type replyWriter struct {
	buf []byte
}

func (w *replyWriter) set(b []byte) {
	if len(b) > 0 {
		w.buf = b
	}
}

func (w *replyWriter) Write(p []byte) (int, error) {
	w.set(p)
	return len(p), nil
}

func (w *replyWriter) WriteString(s string) (int, error) {
	w.set([]byte(s))
	return len(s), nil
}
