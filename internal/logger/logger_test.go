package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	assert.NoError(t, SetLevel("debug"))
	assert.Equal(t, "debug", Level())
	Get("tracker").WithField("seq", 1).Debug("segment created")
	assert.Contains(t, buf.String(), "component=tracker")
	assert.Contains(t, buf.String(), "seq=1")
	assert.Error(t, SetLevel("loud"))
	assert.NoError(t, SetLevel("info"))
}
