// Package mdp implements the broker core of the Majordomo Protocol:
// service and worker registries, per-service request queues, the
// worker-selection dispatcher, the request lifecycle, the heartbeat
// liveness protocol, and the optional response cache.
//
// See http://rfc.zeromq.org/spec:7 for the protocol this is derived
// from; this package implements a single fixed wire version rather
// than the RFC's v0.1/v0.2 pair.
package mdp

import "time"

// Protocol header frames. Every inbound/outbound message's second
// frame (after the router-prepended sender identity and empty
// delimiter) carries one of these.
const (
	// Client is the protocol tag clients use.
	Client = "MDPC01"

	// Worker is the protocol tag workers use.
	Worker = "MDPW01"
)

// Command frames, sent as the third frame of a message.
const (
	WReady        = "READY"
	WRequest      = "REQUEST"
	WReply        = "REPLY"
	WReplyPartial = "REPLY_PARTIAL"
	WReplyReject  = "REPLY_REJECT"
	WHeartbeat    = "HEARTBEAT"
	WDisconnect   = "DISCONNECT"
)

// Defaults for broker configuration.
const (
	// DefaultHeartbeat is the tick period for the liveness loop.
	DefaultHeartbeat = 2500 * time.Millisecond

	// HeartbeatLiveness is the number of missed heartbeat ticks a
	// worker tolerates before being purged.
	HeartbeatLiveness = 3

	// DefaultRetryAttempts is the dispatch-attempt ceiling against
	// rejecting workers; past it, a request popped for a worker that
	// already rejected it goes back to its queue for a rand-mode
	// re-dispatch instead of being assigned.
	DefaultRetryAttempts = 5

	// DefaultConcurrency is a worker's assignment ceiling when it
	// doesn't advertise one of its own. -1 means unbounded.
	DefaultConcurrency = 100

	// DefaultRequestTimeout is applied when a client omits opts.timeout.
	DefaultRequestTimeout = 60 * time.Second
)

// Worker-selection modes.
const (
	ModeLoad = "load"
	ModeRand = "rand"
)

// Wildcard service names end in this suffix.
const wildcardSuffix = "*"

// MMI (Majordomo Management Interface) constants. MMI is a set of
// pseudo-services answered by the broker itself, outside the normal
// worker-dispatch path.
const (
	mmiNamespace          = "mmi."
	MMIService            = "mmi.service"
	MMIWorkers            = "mmi.workers"
	MMIHeartbeat          = "mmi.heartbeat"
	MMIBroker             = "mmi.broker"
	mmiCodeOK             = "200"
	mmiCodeNotFound       = "404"
	mmiCodeNotImplemented = "501"
)
