package xerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_IsCategory(t *testing.T) {
	err := Wrap(DataGap, "only %d candles, need %d", 10, 30)
	assert.True(t, errors.Is(err, DataGap))
	assert.False(t, errors.Is(err, ContractViolation))
	assert.Equal(t, "only 10 candles, need 30", err.Error())
}
