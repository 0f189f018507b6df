package apiclient_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	apiclient "github.com/Alia5/usbridge/apiclient"
	apitypes "github.com/Alia5/usbridge/apitypes"
	"github.com/Alia5/usbridge/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient constructs a client backed by a simple in-memory responder.
// responses maps paths to raw JSON payloads. If err is non-nil, every request
// returns that error, simulating dial failures.
func testClient(responses map[string]string, err error) *apiclient.Client {
	return apiclient.WithTransport(apiclient.NewMockTransport(func(path string) (string, error) {
		if err != nil {
			return "", err
		}
		return responses[path], nil
	}))
}

func TestHighLevelClient(t *testing.T) {
	tests := []struct {
		name       string
		responses  map[string]string
		err        error
		call       func(c *apiclient.Client) (any, error)
		wantErr    string
		assertFunc func(t *testing.T, got any)
	}{
		{
			name:      "status success",
			responses: map[string]string{"status": `{"server":"usbridge","version":"1","link":"servicing","transfers":[{"description":"a.nsp","progress":5,"size":10,"elapsed":1,"speed":5,"id":"x","slot":0}]}`},
			call:      func(c *apiclient.Client) (any, error) { return c.Status(context.Background()) },
			assertFunc: func(t *testing.T, got any) {
				st, ok := got.(*apitypes.StatusResponse)
				require.True(t, ok)
				assert.Equal(t, "servicing", st.Link)
				require.Len(t, st.Transfers, 1)
				assert.Equal(t, int64(5), st.Transfers[0].Progress)
			},
		},
		{
			name:      "problem response",
			responses: map[string]string{"status": `{"status":404,"title":"Not Found","detail":"nope"}`},
			call:      func(c *apiclient.Client) (any, error) { return c.Status(context.Background()) },
			wantErr:   "404 Not Found: nope",
		},
		{
			name:      "empty response",
			responses: map[string]string{},
			call:      func(c *apiclient.Client) (any, error) { return c.Health(context.Background()) },
			wantErr:   "empty response",
		},
		{
			name:      "invalid json",
			responses: map[string]string{"health": `{`},
			call:      func(c *apiclient.Client) (any, error) { return c.Health(context.Background()) },
			wantErr:   "decode",
		},
		{
			name:    "transport error",
			err:     errors.New("dial: connection refused"),
			call:    func(c *apiclient.Client) (any, error) { return c.Status(context.Background()) },
			wantErr: "connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(tt.responses, tt.err)
			got, err := tt.call(c)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.assertFunc(t, got)
		})
	}
}

func TestClient_AgainstStatusServer(t *testing.T) {
	report := func() apitypes.StatusResponse {
		return apitypes.StatusResponse{Server: "usbridge", Link: "disconnected", Transfers: []apitypes.ProgressRecord{}}
	}
	srv := httptest.NewServer(status.NewRouter(report, nil, slog.Default()))
	defer srv.Close()

	c := apiclient.New(strings.TrimPrefix(srv.URL, "http://"))
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "disconnected", st.Link)

	_, err = apiclient.WithTransport(apiclient.NewTransport(srv.URL)).Status(context.Background())
	require.NoError(t, err)
}

func TestTransport_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(status.NewRouter(func() apitypes.StatusResponse { return apitypes.StatusResponse{} }, nil, slog.Default()))
	defer srv.Close()

	_, err := apiclient.NewTransport(srv.URL).DoCtx(context.Background(), "/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
