package mdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerEligibility(t *testing.T) {
	w := newWorker("w1", "echo")
	assert.True(t, w.eligible())

	w.concurrency = 1
	w.assign("r1")
	assert.False(t, w.eligible())

	w.unassign("r1")
	assert.True(t, w.eligible())
}

func TestWorkerUnboundedConcurrency(t *testing.T) {
	w := newWorker("w1", "echo")
	w.concurrency = -1
	for i := 0; i < 1000; i++ {
		w.assign("r")
	}
	assert.True(t, w.eligible())
}

func TestWorkerRegistry(t *testing.T) {
	reg := newWorkerRegistry()
	w := newWorker("w1", "echo")
	reg.put(w)

	got, ok := reg.get("w1")
	assert.True(t, ok)
	assert.Same(t, w, got)
	assert.Equal(t, 1, reg.len())

	reg.delete("w1")
	assert.Equal(t, 0, reg.len())
}

func TestServiceQueue(t *testing.T) {
	s := newService("echo")
	r1 := newRequest("c1", "echo", nil, requestOpts{rid: "r1"})
	r2 := newRequest("c1", "echo", nil, requestOpts{rid: "r2"})

	s.enqueue(r1)
	s.enqueue(r2)

	got, ok := s.dequeue()
	assert.True(t, ok)
	assert.Equal(t, "r1", got.rid)

	got, ok = s.dequeue()
	assert.True(t, ok)
	assert.Equal(t, "r2", got.rid)

	_, ok = s.dequeue()
	assert.False(t, ok)
}

func TestServiceWorkerSet(t *testing.T) {
	s := newService("echo")
	s.addWorker("w1")
	s.addWorker("w1") // duplicate, ignored
	s.addWorker("w2")
	assert.Equal(t, []string{"w1", "w2"}, s.workers)

	s.removeWorker("w1")
	assert.Equal(t, []string{"w2"}, s.workers)
}

func TestServiceRegistryWildcardMatching(t *testing.T) {
	reg := newServiceRegistry()
	reg.require("audio.*").addWorker("w1")
	reg.require("audio.transcode")

	wildcards := reg.wildcardsMatching("audio.transcode")
	assert.Len(t, wildcards, 1)
	assert.Equal(t, "audio.*", wildcards[0].name)

	concretes := reg.concreteServicesMatching("audio.*")
	assert.Len(t, concretes, 1)
	assert.Equal(t, "audio.transcode", concretes[0].name)

	assert.Empty(t, reg.wildcardsMatching("video.transcode"))
}

func TestServiceRegistryRequireIsLazyAndIdempotent(t *testing.T) {
	reg := newServiceRegistry()
	first := reg.require("echo")
	second := reg.require("echo")
	assert.Same(t, first, second)

	_, ok := reg.get("missing")
	assert.False(t, ok)
}
