package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/usbridge/apitypes"
	"github.com/Alia5/usbridge/internal/router"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		segments []string
		query    map[string]string
	}{
		{
			name:     "plain path",
			raw:      "/api/files",
			segments: []string{"api", "files"},
			query:    map[string]string{},
		},
		{
			name:     "empty segments dropped",
			raw:      "/api///download/0100000000010000/",
			segments: []string{"api", "download", "0100000000010000"},
			query:    map[string]string{},
		},
		{
			name:     "first value wins",
			raw:      "/api/download/x?start=10&end=20&start=99",
			segments: []string{"api", "download", "x"},
			query:    map[string]string{"start": "10", "end": "20"},
		},
		{
			name:     "blank values skipped",
			raw:      "/a?x=&x=2&y=",
			segments: []string{"a"},
			query:    map[string]string{"x": "2"},
		},
		{
			name:     "relative path",
			raw:      "api/ping",
			segments: []string{"api", "ping"},
			query:    map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := router.ParseRequest(context.Background(), []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.segments, req.Segments)
			assert.Equal(t, tt.query, req.Query)
			assert.Equal(t, tt.raw, req.URL)
		})
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	for _, raw := range [][]byte{{0xff, 0xfe, '/'}, []byte("%zz/x")} {
		_, err := router.ParseRequest(context.Background(), raw)
		require.Error(t, err)
		var ae *apitypes.ApiError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, 400, ae.Status)
	}
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, router.WrapError(nil))

	nf := router.ErrNotFound("x")
	assert.Same(t, nf, router.WrapError(nf))

	wrapped := router.WrapError(errors.New("disk on fire"))
	assert.Equal(t, 500, wrapped.Status)
	assert.Equal(t, "disk on fire", wrapped.Detail)
}
