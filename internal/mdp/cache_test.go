package mdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsStableAndDistinguishesFrames(t *testing.T) {
	a := fingerprint("echo", []string{"ab", "c"})
	b := fingerprint("echo", []string{"ab", "c"})
	c := fingerprint("echo", []string{"a", "bc"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestFingerprintIncludesServiceName(t *testing.T) {
	a := fingerprint("echo", []string{"x"})
	b := fingerprint("greet", []string{"x"})
	assert.NotEqual(t, a, b)
}

func TestResponseCacheGetSet(t *testing.T) {
	c := NewResponseCache(10).(*lruResponseCache)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("fp1", []string{"reply"}, time.Minute)
	payload, ok := c.Get("fp1")
	assert.True(t, ok)
	assert.Equal(t, []string{"reply"}, payload)
}

func TestResponseCacheExpiry(t *testing.T) {
	c := NewResponseCache(10).(*lruResponseCache)
	defer c.Close()

	c.Set("fp1", []string{"reply"}, time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := c.Get("fp1")
	assert.False(t, ok)
}

func TestResponseCacheNoExpiryWhenTTLZero(t *testing.T) {
	c := NewResponseCache(10).(*lruResponseCache)
	defer c.Close()

	c.Set("fp1", []string{"reply"}, 0)
	time.Sleep(time.Millisecond)

	payload, ok := c.Get("fp1")
	assert.True(t, ok)
	assert.Equal(t, []string{"reply"}, payload)
}
