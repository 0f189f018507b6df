// Package transport moves whole frames over a pair of bulk endpoints.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Alia5/usbridge/frame"
	"github.com/Alia5/usbridge/internal/log"
	"github.com/Alia5/usbridge/internal/metrics"
	"github.com/Alia5/usbridge/usb"
)

var (
	// ErrTimeout is returned when no complete header arrived in time.
	ErrTimeout = errors.New("timed out waiting for packet header")
	// ErrPayloadTooLarge is returned when a header announces more than the
	// configured maximum payload, or more than this platform can address.
	ErrPayloadTooLarge = frame.ErrPayloadTooLarge
)

// Session sends and receives packets over one IN and one OUT endpoint. It is
// not safe for concurrent use.
type Session struct {
	in         usb.InEndpoint
	out        usb.OutEndpoint
	logger     *slog.Logger
	rawLogger  log.RawLogger
	metrics    *metrics.Metrics
	maxPayload uint64
}

// Option configures a Session.
type Option func(*Session)

// WithRawLogger dumps every transfer to l.
func WithRawLogger(l log.RawLogger) Option {
	return func(s *Session) { s.rawLogger = l }
}

// WithMetrics records packet counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithMaxPayload rejects headers announcing more than n payload bytes.
// Zero means unbounded.
func WithMaxPayload(n uint64) Option {
	return func(s *Session) { s.maxPayload = n }
}

// New creates a session over the given endpoints.
func New(in usb.InEndpoint, out usb.OutEndpoint, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		in:        in,
		out:       out,
		logger:    logger,
		rawLogger: log.NewRaw(nil),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Receive reads one packet. Only the header wait is bounded by timeout
// (zero waits forever); once a header announced a payload, the payload read
// has no deadline and completes or fails with the endpoint.
func (s *Session) Receive(ctx context.Context, timeout time.Duration) (*frame.Packet, error) {
	var hdr [frame.HeaderSize]byte

	hctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, timeout)
	}
	s.trace(ctx, "recv", "header", 0, frame.HeaderSize)
	err := s.readFull(hctx, hdr[:])
	cancel()
	if err != nil {
		if timeout > 0 && ctx.Err() == nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	s.rawLogger.Log(log.DeviceToHost, "header", hdr[:])

	h, err := frame.DecodeHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if s.maxPayload > 0 && h.PayloadSize > s.maxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.PayloadSize, s.maxPayload)
	}

	s.trace(ctx, "recv", "payload", frame.HeaderSize, int(h.PayloadSize))
	payload, err := frame.ReadPayload(endpointReader{ctx: ctx, in: s.in}, h.PayloadSize)
	if err != nil {
		return nil, fmt.Errorf("read payload (%d bytes): %w", h.PayloadSize, err)
	}
	p := &frame.Packet{Header: h, Payload: payload}
	s.rawLogger.Log(log.DeviceToHost, "payload", p.Payload)
	s.trace(ctx, "recv", "done", frame.HeaderSize+len(p.Payload), 0)
	s.metrics.RecordPacket(metrics.DirRecv, h.Command, frame.HeaderSize+len(p.Payload))
	return p, nil
}

// Send writes the header (auxiliary fields zeroed) and then the payload.
// Each of the two writes is bounded by timeout; zero means no deadline.
func (s *Session) Send(ctx context.Context, p *frame.Packet, timeout time.Duration) error {
	hdr := frame.EncodeHeader(frame.Header{Command: p.Command, PayloadSize: uint64(len(p.Payload))})

	s.trace(ctx, "send", "header", 0, frame.HeaderSize)
	if err := s.writeAll(ctx, timeout, hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	s.rawLogger.Log(log.HostToDevice, "header", hdr[:])

	if len(p.Payload) > 0 {
		s.trace(ctx, "send", "payload", frame.HeaderSize, len(p.Payload))
		if err := s.writeAll(ctx, timeout, p.Payload); err != nil {
			return fmt.Errorf("write payload (%d bytes): %w", len(p.Payload), err)
		}
		s.rawLogger.Log(log.HostToDevice, "payload", p.Payload)
	}
	s.trace(ctx, "send", "done", frame.HeaderSize+len(p.Payload), 0)
	s.metrics.RecordPacket(metrics.DirSend, p.Command, frame.HeaderSize+len(p.Payload))
	return nil
}

func (s *Session) readFull(ctx context.Context, buf []byte) error {
	n := 0
	for n < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := s.in.ReadContext(ctx, buf[n:])
		n += m
		if err != nil {
			if n == len(buf) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w (%d/%d bytes)", ctxErr, n, len(buf))
			}
			return err
		}
	}
	return nil
}

// endpointReader adapts an IN endpoint to io.Reader under ctx.
type endpointReader struct {
	ctx context.Context
	in  usb.InEndpoint
}

func (r endpointReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.in.ReadContext(r.ctx, p)
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
	}
	return n, err
}

func (s *Session) writeAll(ctx context.Context, timeout time.Duration, buf []byte) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	n, err := s.out.WriteContext(ctx, buf)
	if err != nil {
		return err
	}
	if n < len(buf) {
		return fmt.Errorf("%w: %d/%d bytes", io.ErrShortWrite, n, len(buf))
	}
	return nil
}

func (s *Session) trace(ctx context.Context, dir, stage string, done, pending int) {
	s.logger.Log(ctx, log.LevelTrace, "USB "+dir, "stage", stage, "bytes", done, "pending", pending)
}
