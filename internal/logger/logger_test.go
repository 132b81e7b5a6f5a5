package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentLogging_NoPanic(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	c := With("test")
	c.Infof("hello %s", "world")
	c.Warnf("careful")
	c.Errorf("boom")
	c.Debugf("verbose") // below default level, should not panic

	assert.NotEmpty(t, buf.String())
}

func TestFields_AttachesKeys(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	With("test").Fields(map[string]any{"symbol": "BTCUSDT"}).Infof("scanning")
	assert.Contains(t, buf.String(), "BTCUSDT")
}
