package mdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequestOptsDefaults(t *testing.T) {
	opts := parseRequestOpts("r1", "")
	assert.Equal(t, "r1", opts.rid)
	assert.Equal(t, 0, opts.retry)
	assert.False(t, opts.persist)
	assert.Equal(t, int64(0), opts.cacheTTLMS)
}

func TestParseRequestOptsOverrides(t *testing.T) {
	opts := parseRequestOpts("r1", `{"timeout":1000,"retry":3,"persist":true,"cache":5000}`)
	assert.Equal(t, int64(1000), opts.timeoutMS)
	assert.Equal(t, 3, opts.retry)
	assert.True(t, opts.persist)
	assert.Equal(t, int64(5000), opts.cacheTTLMS)
}

func TestParseRequestOptsMalformedFallsBackToDefaults(t *testing.T) {
	defaults := parseRequestOpts("r1", "")
	malformed := parseRequestOpts("r1", "{not json")
	assert.Equal(t, defaults.timeoutMS, malformed.timeoutMS)
	assert.Equal(t, defaults.retry, malformed.retry)
	assert.Equal(t, defaults.persist, malformed.persist)
}

func TestParseReplyCacheTTL(t *testing.T) {
	assert.Equal(t, int64(0), parseReplyCacheTTL(""))
	assert.Equal(t, int64(0), parseReplyCacheTTL("{bad"))
	assert.Equal(t, int64(2000), parseReplyCacheTTL(`{"cache":2000}`))
}

func TestApplyHeartbeatOpts(t *testing.T) {
	w := newWorker("w1", "echo")
	original := w.concurrency

	applyHeartbeatOpts(w, "")
	assert.Equal(t, original, w.concurrency)

	applyHeartbeatOpts(w, "{bad")
	assert.Equal(t, original, w.concurrency)

	applyHeartbeatOpts(w, `{"concurrency":5}`)
	assert.Equal(t, 5, w.concurrency)
}
