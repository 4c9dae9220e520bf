package mdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker() (*Broker, *memChannel) {
	ch := newMemChannel()
	b := NewBroker(DefaultOptions(), ch, nil, NewMemoryPersistence())
	return b, ch
}

func TestWorkerPickLoadPrefersLeastBusy(t *testing.T) {
	b, _ := newTestBroker()
	w1 := newWorker("w1", "echo")
	w2 := newWorker("w2", "echo")
	w1.assign("r1")
	b.workers.put(w1)
	b.workers.put(w2)

	svc := b.services.require("echo")
	svc.addWorker("w1")
	svc.addWorker("w2")

	picked := b.workerPick(svc, ModeLoad)
	require.NotNil(t, picked)
	assert.Equal(t, "w2", picked.id)
}

func TestWorkerPickSkipsIneligible(t *testing.T) {
	b, _ := newTestBroker()
	w1 := newWorker("w1", "echo")
	w1.concurrency = 1
	w1.assign("r1")
	b.workers.put(w1)

	svc := b.services.require("echo")
	svc.addWorker("w1")

	assert.Nil(t, b.workerPick(svc, ModeLoad))
}

func TestSelectPairOwnPool(t *testing.T) {
	b, _ := newTestBroker()
	w := newWorker("w1", "echo")
	b.workers.put(w)
	svc := b.services.require("echo")
	svc.addWorker("w1")
	svc.enqueue(newRequest("c1", "echo", nil, requestOpts{rid: "r1"}))

	queueSvc, picked, ok := b.selectPair("echo", ModeLoad)
	require.True(t, ok)
	assert.Equal(t, "echo", queueSvc.name)
	assert.Equal(t, "w1", picked.id)
}

func TestSelectPairWildcardWorkerServesConcreteQueue(t *testing.T) {
	b, _ := newTestBroker()
	w := newWorker("w1", "audio.*")
	b.workers.put(w)
	b.services.require("audio.*").addWorker("w1")

	concrete := b.services.require("audio.transcode")
	concrete.enqueue(newRequest("c1", "audio.transcode", nil, requestOpts{rid: "r1"}))

	queueSvc, picked, ok := b.selectPair("audio.transcode", ModeLoad)
	require.True(t, ok)
	assert.Equal(t, "audio.transcode", queueSvc.name)
	assert.Equal(t, "w1", picked.id)
}

func TestSelectPairNoMatch(t *testing.T) {
	b, _ := newTestBroker()
	_, _, ok := b.selectPair("nothing", ModeLoad)
	assert.False(t, ok)
}

func TestValidateExpiredDrops(t *testing.T) {
	b, _ := newTestBroker()
	w := newWorker("w1", "echo")
	r := newRequest("c1", "echo", nil, requestOpts{rid: "r1", timeoutMS: 10})

	outcome := b.validate(r, w, r.ts.Add(time.Second))
	assert.Equal(t, outcomeDrop, outcome)
}

func TestValidateRejectCeiling(t *testing.T) {
	b, _ := newTestBroker()
	b.cfg.RejectAttempts = 2
	w := newWorker("w1", "echo")
	r := newRequest("c1", "echo", nil, requestOpts{rid: "r1", timeoutMS: -1})
	r.addReject("w1")
	r.attempts = 2

	assert.Equal(t, outcomeRequeueRand, b.validate(r, w, time.Now()))
}

func TestValidateFreshRequestIsValid(t *testing.T) {
	b, _ := newTestBroker()
	w := newWorker("w1", "echo")
	r := newRequest("c1", "echo", nil, requestOpts{rid: "r1", timeoutMS: -1})
	r.attempts = 1

	assert.Equal(t, outcomeValid, b.validate(r, w, time.Now()))
}

// A sole eligible worker that has already rejected the request past
// RejectAttempts can never validate it: dispatchMode must bounce the
// request back to its queue and schedule a reentry rather than looping
// on the same (request, worker) pair forever.
func TestDispatchModeStopsAfterRequeueRandInsteadOfLivelocking(t *testing.T) {
	b, _ := newTestBroker()
	b.cfg.RejectAttempts = 1

	w := newWorker("w1", "echo")
	b.workers.put(w)
	svc := b.services.require("echo")
	svc.addWorker("w1")

	r := newRequest("c1", "echo", nil, requestOpts{rid: "r1", timeoutMS: -1})
	r.addReject("w1")
	r.attempts = 1
	svc.enqueue(r)

	done := make(chan struct{})
	go func() {
		b.dispatchMode("echo", ModeLoad)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatchMode did not return; likely livelocked on outcomeRequeueRand")
	}

	require.Len(t, svc.queue, 1)
	assert.Equal(t, "r1", svc.queue[0].rid)
	assert.Contains(t, b.pendingReentry, "echo")
	assert.Equal(t, uint64(1), b.metrics.Requeued)
}
