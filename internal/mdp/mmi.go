package mdp

import (
	"encoding/json"
	"strconv"
)

// handleMMI answers one of the Majordomo Management Interface pseudo
// services directly from the event loop, without ever touching a
// worker pool or a service queue: mmi.* never has registered workers of
// its own.
func (b *Broker) handleMMI(r *request) {
	var code, body string
	switch r.service {
	case MMIService:
		code, body = b.mmiService(r.payload)
	case MMIWorkers:
		code, body = b.mmiWorkers(r.payload)
	case MMIHeartbeat:
		code, body = b.mmiHeartbeat(r.payload)
	case MMIBroker:
		code, body = b.mmiBroker()
	default:
		code, body = mmiCodeNotImplemented, ""
	}

	b.replyToClient(r.clientID, r.service, r.rid, []string{code, body})
}

// mmiService answers whether a named service currently has at least one
// registered worker.
func (b *Broker) mmiService(payload []string) (string, string) {
	if len(payload) < 1 || payload[0] == "" {
		return mmiCodeNotFound, ""
	}
	svc, ok := b.services.get(payload[0])
	if !ok || len(svc.workers) == 0 {
		return mmiCodeNotFound, ""
	}
	return mmiCodeOK, ""
}

// mmiWorkers reports the worker count for a named service, or for every
// service when no name is given.
func (b *Broker) mmiWorkers(payload []string) (string, string) {
	if len(payload) >= 1 && payload[0] != "" {
		svc, ok := b.services.get(payload[0])
		if !ok {
			return mmiCodeNotFound, "0"
		}
		return mmiCodeOK, strconv.Itoa(len(svc.workers))
	}
	return mmiCodeOK, strconv.Itoa(b.workers.len())
}

// mmiHeartbeat reports the configured heartbeat interval in milliseconds.
func (b *Broker) mmiHeartbeat([]string) (string, string) {
	return mmiCodeOK, strconv.FormatInt(int64(b.cfg.HeartbeatInterval/1_000_000), 10)
}

type mmiBrokerInfo struct {
	InstanceID string `json:"instance_id"`
	Services   int    `json:"services"`
	Workers    int    `json:"workers"`
	Requests   int    `json:"requests"`
}

// mmiBroker reports a small JSON snapshot of broker-wide counts,
// identified by this broker's own instance id.
func (b *Broker) mmiBroker() (string, string) {
	info := mmiBrokerInfo{
		InstanceID: b.instanceID,
		Services:   len(b.services.all()),
		Workers:    b.workers.len(),
		Requests:   b.requests.len(),
	}
	body, err := json.Marshal(info)
	if err != nil {
		return mmiCodeNotImplemented, ""
	}
	return mmiCodeOK, string(body)
}
