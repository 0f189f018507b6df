package usb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/usbridge/usb"
)

func TestEndpointDescriptor_Methods(t *testing.T) {
	in := usb.EndpointDescriptor{BEndpointAddress: 0x81, BMAttributes: usb.EndpointTypeBulk, WMaxPacketSize: 512}
	out := usb.EndpointDescriptor{BEndpointAddress: 0x01, BMAttributes: usb.EndpointTypeBulk, WMaxPacketSize: 512}
	intr := usb.EndpointDescriptor{BEndpointAddress: 0x82, BMAttributes: usb.EndpointTypeIntr}

	assert.True(t, in.IsIn())
	assert.False(t, in.IsOut())
	assert.True(t, in.IsBulk())
	assert.Equal(t, 1, in.Number())
	assert.True(t, out.IsOut())
	assert.False(t, intr.IsBulk())
	assert.Equal(t, "ep1 IN (0x81, max 512)", in.String())
}

func TestSelectBulkPair(t *testing.T) {
	bulkIn := usb.EndpointDescriptor{BEndpointAddress: 0x81, BMAttributes: usb.EndpointTypeBulk}
	bulkOut := usb.EndpointDescriptor{BEndpointAddress: 0x01, BMAttributes: usb.EndpointTypeBulk}
	intrIn := usb.EndpointDescriptor{BEndpointAddress: 0x83, BMAttributes: usb.EndpointTypeIntr}

	tests := []struct {
		name    string
		eps     []usb.EndpointDescriptor
		wantErr bool
	}{
		{name: "in and out", eps: []usb.EndpointDescriptor{intrIn, bulkOut, bulkIn}},
		{name: "only interrupt in", eps: []usb.EndpointDescriptor{intrIn, bulkOut}, wantErr: true},
		{name: "only in", eps: []usb.EndpointDescriptor{bulkIn}, wantErr: true},
		{name: "empty", eps: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out, err := usb.SelectBulkPair(tt.eps)
			if tt.wantErr {
				assert.ErrorIs(t, err, usb.ErrMissingEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, bulkIn, in)
			assert.Equal(t, bulkOut, out)
		})
	}
}
