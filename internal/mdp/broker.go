package mdp

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Options configures a Broker.
type Options struct {
	Endpoint          string
	DispatchMode      string        // ModeLoad or ModeRand, default ModeLoad
	RejectAttempts    int           // rattempts: reject ceiling before requeue-rand
	CacheEnabled      bool          // cache: whether reply caching is active at all
	CacheMaxEntries   int
	HeartbeatInterval time.Duration // heartbeat tick period
}

// DefaultOptions returns the recommended default broker options.
func DefaultOptions() Options {
	return Options{
		DispatchMode:      ModeLoad,
		RejectAttempts:    DefaultRetryAttempts,
		CacheEnabled:      false,
		CacheMaxEntries:   10000,
		HeartbeatInterval: DefaultHeartbeat,
	}
}

// Broker is the single-threaded event loop: one FrameChannel, in-memory
// registries for workers/services/requests, and pluggable cache/
// persistence controllers. Every exported
// method that touches broker state is meant to be called only from the
// Run loop's own goroutine; nothing here takes a lock because nothing
// else is meant to call in concurrently, mirroring core/mdp/broker.go's
// single-poller design.
type Broker struct {
	cfg        Options
	instanceID string
	channel    FrameChannel

	workers  *workerRegistry
	services *serviceRegistry
	requests *requestTable

	cache       ResponseCache
	persistence PersistenceController

	metrics        dispatchMetrics
	pendingReentry map[string]struct{}

	lastTick    time.Time
	snapshotReq chan chan Snapshot
}

// NewBroker wires a Broker around an already-constructed transport,
// cache, and persistence controller, so tests can substitute memChannel
// and in-memory implementations without touching ZeroMQ or SQLite.
func NewBroker(cfg Options, channel FrameChannel, cache ResponseCache, persistence PersistenceController) *Broker {
	if cfg.DispatchMode == "" {
		cfg.DispatchMode = ModeLoad
	}
	if cfg.RejectAttempts <= 0 {
		cfg.RejectAttempts = DefaultRetryAttempts
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeat
	}

	b := &Broker{
		cfg:         cfg,
		instanceID:  uuid.NewString(),
		channel:     channel,
		workers:     newWorkerRegistry(),
		services:    newServiceRegistry(),
		requests:    newRequestTable(),
		cache:       cache,
		persistence: persistence,
		lastTick:    time.Now(),
		snapshotReq: make(chan chan Snapshot, 1),
	}
	b.restoreFromPersistence()
	return b
}

// restoreFromPersistence loads every durable request row once at
// startup and re-enqueues it on its service's queue, per spec.md §4.6's
// "returned once at broker startup to repopulate queues." A row
// persisted while merely queued (never assigned) is recovered exactly
// this way; one persisted mid-assignment comes back as freshly queued
// too, since no worker from a prior process lifetime can still hold it.
func (b *Broker) restoreFromPersistence() {
	if b.persistence == nil {
		return
	}
	rows, err := b.persistence.RGetAll()
	if err != nil {
		log.WithError(err).Warn("mdp: failed to load persisted requests at startup")
		return
	}
	for _, row := range rows {
		r := fromPersisted(row)
		b.services.require(r.service).enqueue(r)
	}
	if len(rows) > 0 {
		log.WithField("count", len(rows)).Info("mdp: restored persisted requests")
	}
}

// Bind constructs a production Broker bound to endpoint over a real
// ROUTER socket. Callers wanting a test double should build a Broker
// with NewBroker and a memChannel directly instead.
func Bind(cfg Options, cache ResponseCache, persistence PersistenceController) (*Broker, error) {
	channel, err := NewCZMQChannel(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return NewBroker(cfg, channel, cache, persistence), nil
}

// Run is the broker's event loop: poll for one message,
// handle it to completion, tick the heartbeat clock, drain any deferred
// dispatch re-entries, repeat until stop is closed. Every step runs on
// this single goroutine, so handlers never interleave.
func (b *Broker) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		frames, err := b.channel.Recv(100 * time.Millisecond)
		if err != nil {
			log.WithError(err).Warn("mdp: recv error, continuing")
		} else if frames != nil {
			b.handle(frames)
		}

		b.tickHeartbeat()
		b.drainReentries()
		b.serveSnapshotRequests()
	}
}

// serveSnapshotRequests answers any pending Snapshot() calls from the event
// loop goroutine itself, since the registries it reads carry no locks
// of their own.
func (b *Broker) serveSnapshotRequests() {
	for {
		select {
		case reply := <-b.snapshotReq:
			reply <- b.computeSnapshot()
		default:
			return
		}
	}
}

// handle dispatches an inbound frame sequence to the client or worker
// protocol handler by its second frame.
func (b *Broker) handle(frames []string) {
	sender, rest := unwrap(frames)
	if len(rest) < 1 {
		return
	}
	header, rest := popStr(rest)

	switch header {
	case Client:
		b.clientMsg(sender, rest)
	case Worker:
		b.workerMsg(sender, rest)
	default:
		log.WithField("header", header).Warn("mdp: unrecognized protocol header")
	}
}

// clientMsg is the client-side command table:
// W_REQUEST submits new work, W_HEARTBEAT forwards a liveness signal to
// the worker already holding the named rid.
func (b *Broker) clientMsg(clientID string, rest []string) {
	if len(rest) < 1 {
		return
	}
	command, rest := popStr(rest)

	switch command {
	case WRequest:
		b.clientRequest(clientID, rest)
	case WHeartbeat:
		b.clientHeartbeat(clientID, rest)
	default:
		log.WithField("command", command).Warn("mdp: unrecognized client command")
	}
}

// clientRequest handles the Client -> W_REQUEST case:
// build a request record from (service, rid, payload frames, opts
// JSON), short-circuit to MMI if the service name
// names one, else enqueue and dispatch.
func (b *Broker) clientRequest(clientID string, rest []string) {
	if len(rest) < 2 {
		return
	}
	serviceName := rest[0]
	rid := rest[1]
	body := rest[2:]

	var optsJSON string
	payload := body
	if n := len(body); n > 0 {
		optsJSON = body[n-1]
		payload = body[:n-1]
	}

	opts := parseRequestOpts(rid, optsJSON)
	r := newRequest(clientID, serviceName, payload, opts)

	if isMMIService(serviceName) {
		b.handleMMI(r)
		return
	}

	if b.cfg.CacheEnabled && opts.cacheTTLMS > 0 {
		r.hash = fingerprint(serviceName, payload)
	}

	svc := b.services.require(serviceName)
	svc.enqueue(r)
	b.persistRequest(r)
	b.dispatch(serviceName)
}

// clientHeartbeat handles the Client -> W_HEARTBEAT case:
// if rid is currently assigned to a worker, forward a heartbeat frame
// to that worker carrying the original client identity, so the worker
// can detect an abandoned client on its own terms. A rid that is
// unknown, unassigned, or owned by a different client is silently
// ignored rather than treated as a protocol violation, since a client
// racing its own request's completion against a heartbeat is routine.
func (b *Broker) clientHeartbeat(clientID string, rest []string) {
	if len(rest) < 1 {
		return
	}
	rid := rest[0]

	r, ok := b.requests.get(rid)
	if !ok || r.workerID == "" || r.clientID != clientID {
		return
	}
	b.sendFrames([]string{r.workerID, Worker, WHeartbeat, clientID, rid})
}

// workerMsg is the worker-side command table.
func (b *Broker) workerMsg(workerID string, rest []string) {
	if len(rest) < 1 {
		return
	}
	command, rest := popStr(rest)

	existing, known := b.workers.get(workerID)

	switch command {
	case WReady:
		if len(rest) < 1 {
			return
		}
		serviceName := rest[0]
		if known {
			// Duplicate READY from a live worker id is a protocol
			// violation; disconnect rather than silently re-register.
			b.disconnectWorker(workerID)
			return
		}
		if serviceName == "" {
			b.disconnectWorker(workerID)
			return
		}
		w := newWorker(workerID, serviceName)
		b.workers.put(w)
		svc := b.services.require(serviceName)
		svc.addWorker(workerID)
		b.dispatch(serviceName)

	case WReply, WReplyPartial:
		if !known {
			b.disconnectWorker(workerID)
			return
		}
		if len(rest) < 3 {
			return
		}
		clientID, rest := popStr(rest)
		rid, rest := popStr(rest)

		r, ok := b.requests.get(rid)
		if !ok || r.workerID != workerID || r.clientID != clientID {
			b.disconnectWorker(workerID)
			return
		}

		var optsJSON string
		payload := rest
		if n := len(rest); n > 0 {
			optsJSON = rest[n-1]
			payload = rest[:n-1]
		}

		existing.resetLiveness()
		b.replyToClient(clientID, r.service, rid, payload)

		if command == WReply {
			b.finishRequest(existing, r, payload, optsJSON)
		}

	case WReplyReject:
		if !known {
			b.disconnectWorker(workerID)
			return
		}
		if len(rest) < 2 {
			return
		}
		_, rest = popStr(rest)
		rid, _ := popStr(rest)

		r, ok := b.requests.get(rid)
		if !ok || r.workerID != workerID {
			b.disconnectWorker(workerID)
			return
		}

		existing.resetLiveness()
		atomic.AddUint64(&b.metrics.Rejected, 1)
		existing.unassign(rid)
		r.addReject(workerID)
		r.workerID = ""
		b.requests.delete(rid)

		svc, _ := b.services.get(r.service)
		svc.enqueue(r)
		b.persistRequest(r)
		b.dispatchMode(r.service, ModeRand)

	case WHeartbeat:
		if !known {
			b.disconnectWorker(workerID)
			return
		}
		existing.resetLiveness()
		if len(rest) > 0 {
			applyHeartbeatOpts(existing, rest[0])
		}

	case WDisconnect:
		if known {
			b.removeWorker(existing)
		}

	default:
		log.WithField("command", command).Warn("mdp: unrecognized worker command")
	}
}

// finishRequest completes a non-partial reply: optionally cache it,
// release the worker slot, forget the request, then invoke the
// dispatcher on the freed slot.
func (b *Broker) finishRequest(w *worker, r *request, payload []string, optsJSON string) {
	if b.cfg.CacheEnabled && r.hash != "" {
		ttl := parseReplyCacheTTL(optsJSON)
		if ttl == 0 && r.cacheTTL > 0 {
			ttl = r.cacheTTL
		}
		if ttl > 0 && b.cache != nil {
			b.cache.Set(r.hash, payload, time.Duration(ttl)*time.Millisecond)
		}
	}
	w.unassign(r.rid)
	b.requests.delete(r.rid)
	if r.persist && b.persistence != nil {
		_ = b.persistence.RDel(r.rid)
	}
	b.dispatch(w.service)
}

// tickHeartbeat decrements every worker's liveness once per interval,
// purges workers whose liveness has gone negative, and sends a
// heartbeat frame to everyone still alive.
func (b *Broker) tickHeartbeat() {
	if time.Since(b.lastTick) < b.cfg.HeartbeatInterval {
		return
	}
	b.lastTick = time.Now()

	for _, w := range b.workers.all() {
		w.liveness--
		if w.liveness < 0 {
			b.removeWorker(w)
			continue
		}
		b.sendFrames([]string{w.id, Worker, WHeartbeat})
	}
}

// removeWorker drops a lost worker from its service pool, and for
// every request it was holding,
// either requeue (if retry budget remains) or drop it.
func (b *Broker) removeWorker(w *worker) {
	b.workers.delete(w.id)
	if svc, ok := b.services.get(w.service); ok {
		svc.removeWorker(w.id)
	}

	for _, rid := range append([]string(nil), w.rids...) {
		r, ok := b.requests.get(rid)
		if !ok {
			continue
		}
		b.requests.delete(rid)
		r.workerID = ""

		if r.retry > 0 {
			r.retry--
			if svc, ok := b.services.get(r.service); ok {
				svc.enqueue(r)
				b.persistRequest(r)
				b.dispatch(r.service)
			}
		} else {
			b.dropRequest(r)
		}
	}
}

// disconnectWorker tells a misbehaving or unknown worker to go away and
// forgets it if it was known.
func (b *Broker) disconnectWorker(workerID string) {
	err := NewMDPError(CodeProtocolViolation, "disconnecting worker", ErrProtocolViolation).
		WithContext("worker_id", workerID)
	log.WithError(err).Debug("mdp: protocol violation")

	b.sendFrames([]string{workerID, Worker, WDisconnect})
	if w, ok := b.workers.get(workerID); ok {
		b.removeWorker(w)
	}
}

func (b *Broker) replyToClient(clientID, service, rid string, payload []string) {
	frames := append([]string{clientID, Client, service, rid}, payload...)
	b.sendFrames(frames)
}

func (b *Broker) sendFrames(frames []string) {
	if err := b.channel.Send(frames); err != nil {
		log.WithError(err).Warn("mdp: send error")
	}
}

// Close releases the broker's transport and controllers.
func (b *Broker) Close() error {
	if b.cache != nil {
		if closer, ok := b.cache.(*lruResponseCache); ok {
			closer.Close()
		}
	}
	if b.persistence != nil {
		_ = b.persistence.Close()
	}
	return b.channel.Close()
}

// ServiceInfo is one service's admin-surface summary.
type ServiceInfo struct {
	Name    string `json:"name"`
	Workers int    `json:"workers"`
	Queued  int    `json:"queued"`
}

// WorkerInfo is one worker's admin-surface summary.
type WorkerInfo struct {
	ID          string `json:"id"`
	Service     string `json:"service"`
	Liveness    int    `json:"liveness"`
	InFlight    int    `json:"in_flight"`
	Concurrency int    `json:"concurrency"`
}

// Stats is the admin-surface snapshot of broker-wide counters.
type Stats struct {
	InstanceID string          `json:"instance_id"`
	Services   int             `json:"services"`
	Workers    int             `json:"workers"`
	Requests   int             `json:"requests"`
	Metrics    dispatchMetrics `json:"metrics"`
}

// Snapshot is the full admin-surface view of broker state.
type Snapshot struct {
	Stats    Stats         `json:"stats"`
	Services []ServiceInfo `json:"services"`
	Workers  []WorkerInfo  `json:"workers"`
}

// Snapshot is safe to call from any goroutine (the admin HTTP server's
// included): it hands a reply channel to the event loop and blocks for
// its answer rather than touching broker state directly, since the
// registries carry no locks of their own.
func (b *Broker) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	b.snapshotReq <- reply
	return <-reply
}

func (b *Broker) computeSnapshot() Snapshot {
	services := make([]ServiceInfo, 0, len(b.services.byName))
	for _, s := range b.services.all() {
		services = append(services, ServiceInfo{
			Name:    s.name,
			Workers: len(s.workers),
			Queued:  len(s.queue),
		})
	}

	workers := make([]WorkerInfo, 0, b.workers.len())
	for _, w := range b.workers.all() {
		workers = append(workers, WorkerInfo{
			ID:          w.id,
			Service:     w.service,
			Liveness:    w.liveness,
			InFlight:    len(w.rids),
			Concurrency: w.concurrency,
		})
	}

	return Snapshot{
		Stats: Stats{
			InstanceID: b.instanceID,
			Services:   len(b.services.all()),
			Workers:    b.workers.len(),
			Requests:   b.requests.len(),
			Metrics:    b.metrics.snapshot(),
		},
		Services: services,
		Workers:  workers,
	}
}
