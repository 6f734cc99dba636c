package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDs(t *testing.T) {
	assert.NotEqual(t, New(), New())
	assert.Len(t, Short(), 8)
	assert.Equal(t, "abc", Prefix("abc"))
	assert.Equal(t, "01234567", Prefix("0123456789"))
	token := Token()
	assert.Len(t, token, 64)
	assert.NotContains(t, token, "-")
}
