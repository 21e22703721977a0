package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPairKey(t *testing.T) {
	assert.Equal(t, "a:b", CanonicalPairKey("a", "b"))
	assert.Equal(t, "a:b", CanonicalPairKey("b", "a"))
	assert.Equal(t, CanonicalPairKey("user-1", "user-2"), CanonicalPairKey("user-2", "user-1"))
}

func TestOrderPair(t *testing.T) {
	low, high := OrderPair("zeta", "alpha")
	assert.Equal(t, "alpha", low)
	assert.Equal(t, "zeta", high)

	low, high = OrderPair("alpha", "zeta")
	assert.Equal(t, "alpha", low)
	assert.Equal(t, "zeta", high)
}
