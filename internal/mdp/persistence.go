package mdp

import (
	"sync"
	"time"
)

// PersistedRequest is the durable shape of a request record. It intentionally mirrors the
// subset of *request fields a durable store needs to repopulate queues
// on restart; transient dispatch bookkeeping (rejects, attempts) is not
// persisted since a restart always starts those over.
type PersistedRequest struct {
	Rid       string
	Service   string
	ClientID  string
	Payload   []string
	TimeoutMS int64
	Retry     int
	CacheTTL  int64
	Hash      string
	TsUnixMS  int64
}

// toPersisted converts a request into the durable shape a
// PersistenceController stores.
func toPersisted(r *request) PersistedRequest {
	return PersistedRequest{
		Rid:       r.rid,
		Service:   r.service,
		ClientID:  r.clientID,
		Payload:   r.payload,
		TimeoutMS: r.timeoutMS,
		Retry:     r.retry,
		CacheTTL:  r.cacheTTL,
		Hash:      r.hash,
		TsUnixMS:  r.ts.UnixMilli(),
	}
}

// fromPersisted rebuilds a queued *request from its durable shape. It
// carries none of the transient dispatch bookkeeping (attempts,
// rejects, worker assignment) a live request accrues, since none of
// that survives a restart: the record always comes back as freshly
// queued, never as already assigned.
func fromPersisted(p PersistedRequest) *request {
	return &request{
		rid:       p.Rid,
		service:   p.Service,
		clientID:  p.ClientID,
		rejects:   make(map[string]struct{}),
		hash:      p.Hash,
		timeoutMS: p.TimeoutMS,
		retry:     p.Retry,
		persist:   true,
		cacheTTL:  p.CacheTTL,
		ts:        time.UnixMilli(p.TsUnixMS),
		payload:   p.Payload,
	}
}

// persistRequest mirrors r to the persistence controller if persistence
// was requested for it. Called both on enqueue (spec requires rset on
// enqueue) and on assignment/re-assignment, so a request sitting in a
// service queue behind a busy worker pool is still recoverable via
// RGetAll after a crash.
func (b *Broker) persistRequest(r *request) {
	if !r.persist || b.persistence == nil {
		return
	}
	_ = b.persistence.RSet(toPersisted(r))
}

// PersistenceController is the pluggable durability capability set.
// All operations may be asynchronous; the broker treats callbacks as
// happening on the event loop.
type PersistenceController interface {
	RSet(req PersistedRequest) error
	RDel(rid string) error
	RGet(rid string) (PersistedRequest, bool, error)
	RGetAll() ([]PersistedRequest, error)
	Close() error
}

// memoryPersistence is the default volatile implementation, shaped
// after core/mdp/persistence.go's MemoryPersistenceStore.
type memoryPersistence struct {
	mu     sync.RWMutex
	byRid  map[string]PersistedRequest
	closed bool
}

// NewMemoryPersistence creates the default in-memory persistence
// controller.
func NewMemoryPersistence() PersistenceController {
	return &memoryPersistence{byRid: make(map[string]PersistedRequest)}
}

func (m *memoryPersistence) RSet(req PersistedRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPersistenceClosed
	}
	m.byRid[req.Rid] = req
	return nil
}

func (m *memoryPersistence) RDel(rid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPersistenceClosed
	}
	delete(m.byRid, rid)
	return nil
}

func (m *memoryPersistence) RGet(rid string) (PersistedRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return PersistedRequest{}, false, ErrPersistenceClosed
	}
	req, ok := m.byRid[rid]
	return req, ok, nil
}

func (m *memoryPersistence) RGetAll() ([]PersistedRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrPersistenceClosed
	}
	out := make([]PersistedRequest, 0, len(m.byRid))
	for _, req := range m.byRid {
		out = append(out, req)
	}
	return out, nil
}

func (m *memoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.byRid = nil
	return nil
}
