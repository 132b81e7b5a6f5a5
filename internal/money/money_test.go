package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	s := ToString(100.456789123)
	assert.Equal(t, 100.45678912, FromString(s))
}

func TestFromString_Empty(t *testing.T) {
	assert.Equal(t, 0.0, FromString(""))
	assert.Equal(t, 0.0, FromString("not-a-number"))
}
