package utilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSnowflakeIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewSnowflakeID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewKSUIDLength(t *testing.T) {
	assert.Len(t, NewKSUID(), 27)
}
