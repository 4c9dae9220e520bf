package mdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMMIServiceReportsKnownAndUnknown(t *testing.T) {
	b, _ := newTestBroker()
	b.workers.put(newWorker("w1", "echo"))
	b.services.require("echo").addWorker("w1")

	code, _ := b.mmiService([]string{"echo"})
	assert.Equal(t, mmiCodeOK, code)

	code, _ = b.mmiService([]string{"missing"})
	assert.Equal(t, mmiCodeNotFound, code)

	code, _ = b.mmiService(nil)
	assert.Equal(t, mmiCodeNotFound, code)
}

func TestMMIWorkersCountsPerServiceAndTotal(t *testing.T) {
	b, _ := newTestBroker()
	b.workers.put(newWorker("w1", "echo"))
	b.workers.put(newWorker("w2", "echo"))
	b.services.require("echo").addWorker("w1")
	b.services.require("echo").addWorker("w2")

	code, body := b.mmiWorkers([]string{"echo"})
	assert.Equal(t, mmiCodeOK, code)
	assert.Equal(t, "2", body)

	code, body = b.mmiWorkers(nil)
	assert.Equal(t, mmiCodeOK, code)
	assert.Equal(t, "2", body)

	code, body = b.mmiWorkers([]string{"missing"})
	assert.Equal(t, mmiCodeNotFound, code)
	assert.Equal(t, "0", body)
}

func TestMMIHeartbeatReportsConfiguredIntervalMS(t *testing.T) {
	b, _ := newTestBroker()
	code, body := b.mmiHeartbeat(nil)
	assert.Equal(t, mmiCodeOK, code)
	assert.Equal(t, "2500", body)
}

func TestMMIBrokerReportsJSONCounts(t *testing.T) {
	b, _ := newTestBroker()
	b.workers.put(newWorker("w1", "echo"))
	b.services.require("echo").addWorker("w1")

	code, body := b.mmiBroker()
	assert.Equal(t, mmiCodeOK, code)
	assert.Contains(t, body, `"services":1`)
	assert.Contains(t, body, `"workers":1`)
}

func TestHandleMMIRequestRepliesWithoutTouchingAnyQueue(t *testing.T) {
	b, ch := newTestBroker()
	b.workers.put(newWorker("w1", "echo"))
	b.services.require("echo").addWorker("w1")

	b.handle([]string{"c1", Client, WRequest, MMIService, "rid-1", "echo", ""})

	sent := ch.outbox()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"c1", Client, MMIService, "rid-1", mmiCodeOK, ""}, sent[0])

	// mmi.* is never a real service: it gets no queue or worker pool.
	_, ok := b.services.get(MMIService)
	assert.False(t, ok)
}
