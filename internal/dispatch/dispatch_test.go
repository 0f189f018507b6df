package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/usbridge/apitypes"
	"github.com/Alia5/usbridge/frame"
	"github.com/Alia5/usbridge/internal/dispatch"
	"github.com/Alia5/usbridge/internal/metrics"
	"github.com/Alia5/usbridge/internal/router"
	th "github.com/Alia5/usbridge/internal/testing"
	"github.com/Alia5/usbridge/internal/transport"
)

var errUnplugged = errors.New("device unplugged")

type harness struct {
	in      *th.FakeIn
	out     *th.FakeOut
	router  *th.RecordingRouter
	metrics *metrics.Metrics
	d       *dispatch.Dispatcher
}

func newHarness(handle func(*router.Request, router.ResponseWriter) error) *harness {
	h := &harness{
		in:      th.NewFakeIn(7),
		out:     th.NewFakeOut(),
		router:  &th.RecordingRouter{Handle: handle},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	s := transport.New(h.in, h.out, slog.Default())
	h.d = dispatch.New(s, h.router, slog.Default(), dispatch.WithMetrics(h.metrics))
	return h
}

// serve runs the dispatcher until the fed input is exhausted.
func (h *harness) serve(t *testing.T) []*frame.Packet {
	t.Helper()
	h.in.Fail(errUnplugged)
	err := h.d.Serve(context.Background())
	require.ErrorIs(t, err, errUnplugged)
	pkts, err := h.out.Packets()
	require.NoError(t, err)
	return pkts
}

func TestForward_LastWriteWins(t *testing.T) {
	h := newHarness(func(req *router.Request, w router.ResponseWriter) error {
		_, _ = w.WriteString("first")
		_, _ = w.Write(nil)
		_, _ = w.WriteString("second")
		_, _ = w.WriteString("")
		return nil
	})
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/files"))

	pkts := h.serve(t)
	require.Len(t, pkts, 1)
	assert.Equal(t, uint32(frame.CommandForwardRequest), pkts[0].Command)
	assert.Equal(t, "second", string(pkts[0].Payload))
	assert.Equal(t, 2, h.out.Writes())
	assert.Equal(t, []string{"/api/files"}, h.router.URLs())
}

func TestForward_NoWriteNoReply(t *testing.T) {
	h := newHarness(nil)
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/ping"))
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/ping"))

	pkts := h.serve(t)
	assert.Empty(t, pkts)
	assert.Len(t, h.router.URLs(), 2)
}

func TestUnknownCommandThenValid(t *testing.T) {
	h := newHarness(func(req *router.Request, w router.ResponseWriter) error {
		_, err := w.WriteString("pong")
		return err
	})
	h.in.FeedPacket(2, []byte("/ignored"))
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/ping"))

	pkts := h.serve(t)
	require.Len(t, pkts, 1)
	assert.Equal(t, "pong", string(pkts[0].Payload))
	assert.Equal(t, []string{"/api/ping"}, h.router.URLs())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.UnknownCommandsTotal))
}

func TestFramingErrorContinues(t *testing.T) {
	h := newHarness(func(req *router.Request, w router.ResponseWriter) error {
		_, err := w.WriteString("ok")
		return err
	})
	garbage := make([]byte, frame.HeaderSize)
	garbage[0] = 0x13
	h.in.Feed(garbage)
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/ping"))

	pkts := h.serve(t)
	require.Len(t, pkts, 1)
	assert.Equal(t, "ok", string(pkts[0].Payload))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FramingErrorsTotal))
}

func TestRouterErrorBecomesProblemReply(t *testing.T) {
	h := newHarness(func(req *router.Request, w router.ResponseWriter) error {
		return router.ErrNotFound("nothing here")
	})
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/nope"))

	pkts := h.serve(t)
	require.Len(t, pkts, 1)
	var ae apitypes.ApiError
	require.NoError(t, json.Unmarshal(pkts[0].Payload, &ae))
	assert.Equal(t, 404, ae.Status)
	assert.Equal(t, "nothing here", ae.Detail)
}

func TestRouterErrorAfterWriteKeepsWrite(t *testing.T) {
	h := newHarness(func(req *router.Request, w router.ResponseWriter) error {
		_, _ = w.WriteString("partial")
		return errors.New("late failure")
	})
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/x"))

	pkts := h.serve(t)
	require.Len(t, pkts, 1)
	assert.Equal(t, "partial", string(pkts[0].Payload))
}

func TestInvalidPayloadGetsBadRequest(t *testing.T) {
	h := newHarness(nil)
	h.in.FeedPacket(frame.CommandForwardRequest, []byte{0xff, 0xfe})

	pkts := h.serve(t)
	require.Len(t, pkts, 1)
	var ae apitypes.ApiError
	require.NoError(t, json.Unmarshal(pkts[0].Payload, &ae))
	assert.Equal(t, 400, ae.Status)
	assert.Empty(t, h.router.URLs())
}

func TestSendErrorPropagates(t *testing.T) {
	h := newHarness(func(req *router.Request, w router.ResponseWriter) error {
		_, err := w.WriteString("x")
		return err
	})
	h.out.Err = errUnplugged
	h.in.FeedPacket(frame.CommandForwardRequest, []byte("/api/ping"))

	err := h.d.HandleNext(context.Background())
	assert.ErrorIs(t, err, errUnplugged)
}

func TestServe_ContextCancelled(t *testing.T) {
	h := newHarness(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.d.Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
