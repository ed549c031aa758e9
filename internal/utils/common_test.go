package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMinDuration(t *testing.T) {
	assert.Equal(t, time.Second, MinDuration(time.Second, time.Minute))
	assert.Equal(t, time.Second, MinDuration(time.Minute, time.Second))
}

func TestRemoveControlCharacters(t *testing.T) {
	assert.Equal(t, "hello world", RemoveControlCharacters("hello\x00 world\x07"))
	assert.Equal(t, "line1\nline2\ttab", RemoveControlCharacters("line1\nline2\ttab"))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "call mom tomorrow", CollapseWhitespace("  call   mom \n tomorrow "))
	assert.Equal(t, "", CollapseWhitespace("   "))
}
