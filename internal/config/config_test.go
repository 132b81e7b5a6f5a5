package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadTrading_Defaults(t *testing.T) {
	t.Setenv("POSITION_SIZE", "")
	tr := LoadTrading()
	assert.Equal(t, 100.0, tr.PositionSize)
	assert.Equal(t, 10, tr.Leverage)
	assert.Equal(t, 45.0, tr.MinWinRate)
	assert.Equal(t, 20, tr.MinTrades)
}

func TestLoadTrading_Override(t *testing.T) {
	t.Setenv("MIN_WIN_RATE", "50")
	t.Setenv("MIN_TRADES", "30")
	tr := LoadTrading()
	assert.Equal(t, 50.0, tr.MinWinRate)
	assert.Equal(t, 30, tr.MinTrades)
}

func TestLoadBroker_Defaults(t *testing.T) {
	b := LoadBroker()
	assert.Equal(t, "localhost", b.Host)
	assert.Equal(t, 5672, b.Port)
}
