package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Alia5/usbridge/internal/log"
)

func TestRawLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := log.NewRaw(&buf)

	l.Log(log.DeviceToHost, "header", []byte{0x12, 0x12, 0xab})
	l.Log(log.HostToDevice, "payload", nil)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "D->H header: 3 bytes, hex: 12 12 ab")
}

func TestRawLogger_NilWriter(t *testing.T) {
	l := log.NewRaw(nil)
	assert.NotPanics(t, func() { l.Log(log.HostToDevice, "header", []byte{1}) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.LevelTrace, log.ParseLevel("trace"))
	assert.Equal(t, "INFO", log.ParseLevel("bogus").String())
}
