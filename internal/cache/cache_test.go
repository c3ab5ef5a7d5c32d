package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.SetTTL("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestExpiry(t *testing.T) {
	c := New[string, string](time.Minute)

	c.Set("k", "v", time.Now().Add(-time.Second))
	_, ok := c.Get("k")
	assert.False(t, ok)

	// the expired entry is dropped, not just hidden
	c.mu.RLock()
	_, present := c.data["k"]
	c.mu.RUnlock()
	assert.False(t, present)
}

func TestOverwrite(t *testing.T) {
	c := New[string, int](time.Minute)

	c.SetTTL("k", 1)
	c.SetTTL("k", 2)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
