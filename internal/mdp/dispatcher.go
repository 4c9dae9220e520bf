package mdp

import (
	"math/rand"
	"sort"
	"sync/atomic"
	"time"
)

// dispatchMetrics are the atomic counters re-homing the concern behind
// core/mdp/performance.go's PerformanceMetrics. That file's
// ConnectionPool and MessageBatcher had no second outbound socket left
// to manage once the broker settled on a single ROUTER FrameChannel, so
// only the counting concern survives, scoped to what the dispatch loop
// actually does.
type dispatchMetrics struct {
	Assigned  uint64 `json:"assigned"`
	CacheHits uint64 `json:"cacheHits"`
	Dropped   uint64 `json:"dropped"`
	Requeued  uint64 `json:"requeued"`
	Rejected  uint64 `json:"rejected"`
}

func (m *dispatchMetrics) snapshot() dispatchMetrics {
	return dispatchMetrics{
		Assigned:  atomic.LoadUint64(&m.Assigned),
		CacheHits: atomic.LoadUint64(&m.CacheHits),
		Dropped:   atomic.LoadUint64(&m.Dropped),
		Requeued:  atomic.LoadUint64(&m.Requeued),
		Rejected:  atomic.LoadUint64(&m.Rejected),
	}
}

// validateOutcome is the result of validating a popped request against
// a candidate worker.
type validateOutcome int

const (
	outcomeValid validateOutcome = iota
	outcomeDrop
	outcomeRequeueRand
)

// validate checks a candidate (request, worker) pair before assignment:
// a request is dropped once expired, bounced back to the
// queue once its reject ceiling is hit, or cleared to assign.
func (b *Broker) validate(r *request, w *worker, now time.Time) validateOutcome {
	if r.expired(now) {
		return outcomeDrop
	}
	if r.rejectedBy(w.id) && r.attempts >= b.cfg.RejectAttempts {
		return outcomeRequeueRand
	}
	return outcomeValid
}

// workerPick implements the worker-selection policies:
// "load" favors the worker with the fewest in-flight requests, "rand"
// picks uniformly among eligible workers. Ties in "load" resolve by
// worker id so the mode is deterministic in tests.
func (b *Broker) workerPick(svc *service, mode string) *worker {
	var eligible []*worker
	for _, id := range svc.workers {
		w, ok := b.workers.get(id)
		if !ok || !w.eligible() {
			continue
		}
		eligible = append(eligible, w)
	}
	if len(eligible) == 0 {
		return nil
	}

	if mode == ModeRand {
		return eligible[rand.Intn(len(eligible))]
	}

	sort.Slice(eligible, func(i, j int) bool {
		if len(eligible[i].rids) != len(eligible[j].rids) {
			return len(eligible[i].rids) < len(eligible[j].rids)
		}
		return eligible[i].id < eligible[j].id
	})
	return eligible[0]
}

// selectPair matches a service's own
// queue against its own workers first, then falls back to wildcard
// pairing in whichever direction applies to name.
func (b *Broker) selectPair(name, mode string) (queueSvc *service, w *worker, ok bool) {
	svc, exists := b.services.get(name)
	if !exists {
		return nil, nil, false
	}

	if len(svc.workers) > 0 && len(svc.queue) > 0 {
		if picked := b.workerPick(svc, mode); picked != nil {
			return svc, picked, true
		}
	}

	if isWildcard(name) {
		if len(svc.workers) == 0 {
			return nil, nil, false
		}
		for _, candidate := range b.services.concreteServicesMatching(name) {
			if len(candidate.queue) == 0 {
				continue
			}
			if picked := b.workerPick(svc, mode); picked != nil {
				return candidate, picked, true
			}
		}
		return nil, nil, false
	}

	if len(svc.queue) == 0 {
		return nil, nil, false
	}
	for _, wildcardSvc := range b.services.wildcardsMatching(name) {
		if len(wildcardSvc.workers) == 0 {
			continue
		}
		if picked := b.workerPick(wildcardSvc, mode); picked != nil {
			return svc, picked, true
		}
	}
	return nil, nil, false
}

// dispatch drives the dispatch loop for one service name using the
// broker's configured default worker-pick policy.
func (b *Broker) dispatch(name string) {
	b.dispatchMode(name, b.cfg.DispatchMode)
}

// dispatchMode is dispatch with an explicit starting policy, used both
// for the normal path and for the immediate rand re-dispatch after a
// W_REPLY_REJECT. A request bounced back to its queue by validate's
// outcomeRequeueRand stops the synchronous loop immediately rather than
// looping back around: the same request would otherwise keep being the
// head of its own queue against the same eligible worker set and never
// stop failing validation, livelocking the event loop. Bounding work to
// one pass per tick and letting scheduleReentry/drainReentries pick the
// service back up next tick is exactly the §5 "single deferred re-entry
// per dispatcher call" contract this broker promises.
func (b *Broker) dispatchMode(name, mode string) {
	currentMode := mode

	for {
		queueSvc, w, ok := b.selectPair(name, currentMode)
		if !ok {
			return
		}

		r, ok := queueSvc.dequeue()
		if !ok {
			return
		}
		r.attempts++

		switch b.validate(r, w, time.Now()) {
		case outcomeDrop:
			atomic.AddUint64(&b.metrics.Dropped, 1)
			b.dropRequest(r)
		case outcomeRequeueRand:
			atomic.AddUint64(&b.metrics.Requeued, 1)
			queueSvc.enqueue(r)
			b.scheduleReentry(name)
			return
		default:
			atomic.AddUint64(&b.metrics.Assigned, 1)
			b.assign(r.service, w, r)
		}
	}
}

// scheduleReentry records that name needs another dispatch pass without
// recursing synchronously.
func (b *Broker) scheduleReentry(name string) {
	if b.pendingReentry == nil {
		b.pendingReentry = make(map[string]struct{})
	}
	b.pendingReentry[name] = struct{}{}
}

// drainReentries runs these once per event-loop tick, in rand mode so a
// requeued request is not handed straight back to the least-loaded
// worker that rejected it.
func (b *Broker) drainReentries() {
	if len(b.pendingReentry) == 0 {
		return
	}
	pending := b.pendingReentry
	b.pendingReentry = nil
	for name := range pending {
		b.dispatchMode(name, ModeRand)
	}
}

// assign books a chosen (request, worker) pair: a cache hit short-
// circuits straight to a client reply and never touches the worker or
// the request table; a
// miss books the request against the worker and, if requested, the
// persistence controller.
func (b *Broker) assign(displayService string, w *worker, r *request) {
	if b.cache != nil && r.hash != "" {
		if payload, hit := b.cache.Get(r.hash); hit {
			atomic.AddUint64(&b.metrics.CacheHits, 1)
			b.replyToClient(r.clientID, displayService, r.rid, payload)
			return
		}
	}

	r.workerID = w.id
	b.requests.put(r)
	w.assign(r.rid)
	b.persistRequest(r)

	frames := append([]string{w.id, Worker, WRequest, r.clientID, displayService, r.rid}, r.payload...)
	b.sendFrames(frames)
}

// dropRequest removes a request from any table/persistence bookkeeping
// without replying, used when a request is found to be expired during
// dispatch or is lost with its worker and has no retry budget left.
func (b *Broker) dropRequest(r *request) {
	b.requests.delete(r.rid)
	if r.persist && b.persistence != nil {
		_ = b.persistence.RDel(r.rid)
	}
}
