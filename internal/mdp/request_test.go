package mdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestExpired(t *testing.T) {
	r := newRequest("client-1", "echo", []string{"hi"}, requestOpts{rid: "r1", timeoutMS: 10})
	assert.False(t, r.expired(r.ts))
	assert.True(t, r.expired(r.ts.Add(20*time.Millisecond)))
}

func TestRequestNoTimeout(t *testing.T) {
	r := newRequest("client-1", "echo", []string{"hi"}, requestOpts{rid: "r1", timeoutMS: -1})
	assert.False(t, r.expired(r.ts.Add(24*time.Hour)))
}

func TestRequestRejectTracking(t *testing.T) {
	r := newRequest("client-1", "echo", nil, requestOpts{rid: "r1"})
	assert.False(t, r.rejectedBy("worker-1"))
	r.addReject("worker-1")
	assert.True(t, r.rejectedBy("worker-1"))
	assert.False(t, r.rejectedBy("worker-2"))
}

func TestRequestTable(t *testing.T) {
	table := newRequestTable()
	r := newRequest("client-1", "echo", nil, requestOpts{rid: "r1"})

	table.put(r)
	assert.Equal(t, 1, table.len())

	got, ok := table.get("r1")
	assert.True(t, ok)
	assert.Equal(t, r, got)

	table.delete("r1")
	assert.Equal(t, 0, table.len())

	_, ok = table.get("r1")
	assert.False(t, ok)
}
