package fmtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytes_RendersBinaryUnits(t *testing.T) {
	assert.Equal(t, "0 B", Bytes(0))
	assert.Equal(t, "1.0 KiB", Bytes(1024))
	assert.Equal(t, "128 MiB", Bytes(128*1024*1024))
}

func TestDuration_SubSecondAsMilliseconds(t *testing.T) {
	assert.Equal(t, "250ms", Duration(250*time.Millisecond))
}

func TestDuration_SecondsAndAbove(t *testing.T) {
	assert.Equal(t, "1.5s", Duration(1500*time.Millisecond))
	assert.Equal(t, "1m30s", Duration(90*time.Second))
}
