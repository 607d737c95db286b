// Package socket is the duplex socket abstraction shared by both runtimes.
// A Connection owns one native handle and its own listener registry, so
// event registration and removal behave the same on either backend.
package socket

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/promise"
)

// ReadyState follows the WebSocket numbering.
type ReadyState int

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	}
	return fmt.Sprintf("ReadyState(%d)", int(s))
}

// EventType names a connection event.
type EventType string

const (
	EventOpen    EventType = "open"
	EventClose   EventType = "close"
	EventMessage EventType = "message"
	EventError   EventType = "error"
)

// Event is passed to listeners. Code and Reason are set for close, Data for
// message and Err for error.
type Event struct {
	Type   EventType
	Code   int
	Reason string
	Data   Data
	Err    *hosterr.Error
}

// Listener receives events on the host's event loop.
type Listener func(Event)

// Data is a frame payload: Text, Binary or View.
type Data interface {
	isData()
}

// Text is a UTF-8 text frame.
type Text string

// Binary is a binary frame.
type Binary []byte

// View is a window into Buffer. It is sent as a binary frame of exactly
// Length bytes starting at Offset.
type View struct {
	Buffer []byte
	Offset int
	Length int
}

func (Text) isData()   {}
func (Binary) isData() {}
func (View) isData()   {}

var (
	ErrInsecureURL      = errors.New("socket: url must use the wss scheme")
	ErrUnsupportedEvent = errors.New("socket: unsupported event type")
	ErrInvalidClose     = errors.New("socket: invalid close arguments")
	ErrInvalidView      = errors.New("socket: view out of range")
)

// maxCloseReason is the close reason limit in UTF-8 bytes.
const maxCloseReason = 123

// transport is the backend binding of one native handle. Payloads are
// always Text or Binary.
type transport interface {
	send(d Data) *promise.Future[struct{}]
	close(code int, reason string)
}

type registration struct {
	id uint64
	fn Listener
}

// Connection is one duplex socket. Its ready state only moves forward and
// CLOSED is terminal.
type Connection struct {
	id  string
	url string

	mu        sync.Mutex
	state     ReadyState
	protocol  string
	t         transport
	nextID    uint64
	listeners map[EventType][]registration
}

func newConnection(rawURL string) *Connection {
	return &Connection{
		id:        uuid.NewString(),
		url:       rawURL,
		listeners: make(map[EventType][]registration),
	}
}

func (c *Connection) bind(t transport) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// ID returns a process-unique identifier.
func (c *Connection) ID() string { return c.id }

// URL returns the URL the connection was opened with.
func (c *Connection) URL() string { return c.url }

// ReadyState returns the current state.
func (c *Connection) ReadyState() ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Protocol returns the negotiated sub-protocol, empty before open.
func (c *Connection) Protocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocol
}

// AddEventListener registers l for typ. The returned func removes exactly
// this registration and may be called more than once.
func (c *Connection) AddEventListener(typ EventType, l Listener) (remove func(), err error) {
	switch typ {
	case EventOpen, EventClose, EventMessage, EventError:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, string(typ))
	}
	if l == nil {
		return func() {}, nil
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[typ] = append(c.listeners[typ], registration{id: id, fn: l})
	c.mu.Unlock()

	return func() { c.removeListener(typ, id) }, nil
}

func (c *Connection) removeListener(typ EventType, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.listeners[typ]
	for i, r := range list {
		if r.id == id {
			c.listeners[typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// OnOpen registers fn for the open event.
func (c *Connection) OnOpen(fn func()) func() {
	remove, _ := c.AddEventListener(EventOpen, func(Event) { fn() })
	return remove
}

// OnClose registers fn for the close event.
func (c *Connection) OnClose(fn func(code int, reason string)) func() {
	remove, _ := c.AddEventListener(EventClose, func(ev Event) { fn(ev.Code, ev.Reason) })
	return remove
}

// OnMessage registers fn for incoming frames.
func (c *Connection) OnMessage(fn func(Data)) func() {
	remove, _ := c.AddEventListener(EventMessage, func(ev Event) { fn(ev.Data) })
	return remove
}

// OnError registers fn for error events.
func (c *Connection) OnError(fn func(*hosterr.Error)) func() {
	remove, _ := c.AddEventListener(EventError, func(ev Event) { fn(ev.Err) })
	return remove
}

func (c *Connection) dispatch(ev Event) {
	c.mu.Lock()
	list := append([]registration(nil), c.listeners[ev.Type]...)
	c.mu.Unlock()
	for _, r := range list {
		r.fn(ev)
	}
}

// Send transmits data. The future fails when the connection is not OPEN.
func (c *Connection) Send(data Data) *promise.Future[struct{}] {
	payload, err := normalize(data)
	if err != nil {
		return promise.Rejected[struct{}](err)
	}
	c.mu.Lock()
	state, t := c.state, c.t
	c.mu.Unlock()
	if state != Open || t == nil {
		return promise.Rejected[struct{}](hosterr.New(hosterr.KindGeneric, "socket: send while "+state.String()))
	}
	return t.send(payload)
}

// normalize turns a View into a zero-offset Binary of exactly Length bytes.
func normalize(data Data) (Data, error) {
	switch d := data.(type) {
	case Text:
		return d, nil
	case Binary:
		return d, nil
	case View:
		if d.Offset < 0 || d.Length < 0 || d.Offset > len(d.Buffer) || d.Length > len(d.Buffer)-d.Offset {
			return nil, fmt.Errorf("%w: offset %d length %d buffer %d", ErrInvalidView, d.Offset, d.Length, len(d.Buffer))
		}
		out := make(Binary, d.Length)
		copy(out, d.Buffer[d.Offset:d.Offset+d.Length])
		return out, nil
	case nil:
		return nil, fmt.Errorf("socket: nil data")
	}
	return nil, fmt.Errorf("socket: unsupported data type %T", data)
}

// Close starts the closing handshake. Code 0 sends the default 1000. The
// state is CLOSING when Close returns; calling it again does nothing. An
// error is returned only for invalid arguments, leaving the state as is.
func (c *Connection) Close(code int, reason string) error {
	if code != 0 && code != 1000 && (code < 3000 || code > 4999) {
		return fmt.Errorf("%w: code %d must be 1000 or in 3000-4999", ErrInvalidClose, code)
	}
	if len(reason) > maxCloseReason {
		return fmt.Errorf("%w: reason is %d bytes, limit %d", ErrInvalidClose, len(reason), maxCloseReason)
	}
	c.mu.Lock()
	if c.state >= Closing {
		c.mu.Unlock()
		return nil
	}
	c.state = Closing
	t := c.t
	c.mu.Unlock()
	if t != nil {
		t.close(code, reason)
	}
	return nil
}

// The methods below are called by backends on the host loop.

func (c *Connection) opened(protocol string) {
	c.mu.Lock()
	if c.state != Connecting {
		c.mu.Unlock()
		return
	}
	c.state = Open
	c.protocol = protocol
	c.mu.Unlock()
	c.dispatch(Event{Type: EventOpen})
}

func (c *Connection) received(d Data) {
	if c.ReadyState() == Closed {
		return
	}
	c.dispatch(Event{Type: EventMessage, Data: d})
}

func (c *Connection) failed(err *hosterr.Error) {
	if c.ReadyState() == Closed {
		return
	}
	c.dispatch(Event{Type: EventError, Err: err})
}

func (c *Connection) closed(code int, reason string) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	c.mu.Unlock()
	c.dispatch(Event{Type: EventClose, Code: code, Reason: reason})
}
