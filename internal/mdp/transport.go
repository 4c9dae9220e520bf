package mdp

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// FrameChannel is an opaque frame channel: an asynchronous,
// router-style transport that prepends sender identity and delivers
// ordered multi-part messages per peer. The broker core only ever
// talks to this interface, never to a concrete socket type, so the
// event loop in broker.go is fully testable against memChannel without
// a real ZeroMQ context.
type FrameChannel interface {
	// Recv waits up to timeout for one message. A nil slice with a nil
	// error means the wait elapsed with nothing received.
	Recv(timeout time.Duration) ([]string, error)
	// Send transmits one message, routed by its leading identity frame.
	Send(frames []string) error
	Close() error
}

// czmqChannel is the production FrameChannel, a ZeroMQ ROUTER socket,
// grounded on core/mdp/broker.go's Bind/Run (czmq.NewRouter + a
// single-socket czmq.Poller).
type czmqChannel struct {
	sock   *czmq.Sock
	poller *czmq.Poller
}

// NewCZMQChannel binds a ROUTER socket at endpoint and returns the
// channel wrapping it.
func NewCZMQChannel(endpoint string) (FrameChannel, error) {
	sock, err := czmq.NewRouter(endpoint)
	if err != nil {
		return nil, err
	}
	sock.SetOption(czmq.SockSetRcvhwm(500000))

	poller, err := czmq.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, err
	}

	log.WithFields(log.Fields{"endpoint": endpoint}).Info("broker bound ROUTER socket")

	return &czmqChannel{sock: sock, poller: poller}, nil
}

func (c *czmqChannel) Recv(timeout time.Duration) ([]string, error) {
	sock, err := c.poller.Wait(int(timeout / time.Millisecond))
	if err != nil {
		return nil, err
	}
	if sock == nil {
		return nil, nil
	}
	raw, err := sock.RecvMessage()
	if err != nil {
		return nil, err
	}
	return bytesToStrings(raw), nil
}

func (c *czmqChannel) Send(frames []string) error {
	if c.sock == nil {
		// Transport send failure while socket is absent: suppress it,
		// never crash the event loop over a send.
		return nil
	}
	return c.sock.SendMessage(stringsToBytes(frames))
}

func (c *czmqChannel) Close() error {
	if c.poller != nil {
		c.poller.Destroy()
		c.poller = nil
	}
	if c.sock != nil {
		c.sock.Destroy()
		c.sock = nil
	}
	return nil
}

// memChannel is an in-process FrameChannel test double: a queue of
// inbound messages plus a recorder of outbound ones. It stands in for
// real client and worker libraries well enough to drive the broker's
// own event-loop unit tests deterministically.
type memChannel struct {
	inbound chan []string
	sent    [][]string
	closed  bool
}

func newMemChannel() *memChannel {
	return &memChannel{inbound: make(chan []string, 256)}
}

// deliver queues a message as if it had arrived over the wire.
func (m *memChannel) deliver(frames []string) {
	m.inbound <- frames
}

func (m *memChannel) Recv(timeout time.Duration) ([]string, error) {
	select {
	case frames := <-m.inbound:
		return frames, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (m *memChannel) Send(frames []string) error {
	if m.closed {
		return errors.New("mdp: send on closed channel")
	}
	m.sent = append(m.sent, frames)
	return nil
}

func (m *memChannel) Close() error {
	m.closed = true
	return nil
}

// outbox drains and returns every frame sequence sent so far.
func (m *memChannel) outbox() [][]string {
	out := m.sent
	m.sent = nil
	return out
}
