// Package webhost implements the browser-like host natives in Go: a DOM
// WebSocket with EventTarget semantics, localStorage, fetch with abort, an
// origin-private file system and crypto.getRandomValues. Events are delivered
// on the host's event loop.
package webhost

import (
	"sync"

	"github.com/cryguy/dualstd/internal/hosterr"
)

// Event is implemented by every event dispatched through an EventTarget.
type Event interface {
	EventType() string
}

// OpenEvent is dispatched when a WebSocket connects.
type OpenEvent struct{}

func (OpenEvent) EventType() string { return "open" }

// MessageEvent carries a received frame. Data is a string for text frames;
// binary frames are a *Blob or []byte depending on the socket's BinaryType.
type MessageEvent struct {
	Data any
}

func (MessageEvent) EventType() string { return "message" }

// CloseEvent is dispatched once when a WebSocket reaches CLOSED.
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
}

func (CloseEvent) EventType() string { return "close" }

// ErrorEvent is dispatched before an abnormal close.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) EventType() string { return "error" }

// EventListener is registered by pointer; RemoveEventListener matches the
// same pointer, like a DOM callback reference.
type EventListener struct {
	HandleEvent func(Event)
}

// NewListener wraps fn in an EventListener.
func NewListener(fn func(Event)) *EventListener {
	return &EventListener{HandleEvent: fn}
}

// EventTarget keeps listeners per event type in registration order.
type EventTarget struct {
	mu        sync.Mutex
	listeners map[string][]*EventListener
}

// AddEventListener registers l for typ. Registering the same listener twice
// is a no-op.
func (t *EventTarget) AddEventListener(typ string, l *EventListener) {
	if l == nil || l.HandleEvent == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners == nil {
		t.listeners = make(map[string][]*EventListener)
	}
	for _, existing := range t.listeners[typ] {
		if existing == l {
			return
		}
	}
	t.listeners[typ] = append(t.listeners[typ], l)
}

// RemoveEventListener detaches l from typ.
func (t *EventTarget) RemoveEventListener(typ string, l *EventListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.listeners[typ]
	for i, existing := range list {
		if existing == l {
			t.listeners[typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// DispatchEvent calls the listeners registered when dispatch starts.
func (t *EventTarget) DispatchEvent(ev Event) {
	t.mu.Lock()
	list := append([]*EventListener(nil), t.listeners[ev.EventType()]...)
	t.mu.Unlock()
	for _, l := range list {
		l.HandleEvent(ev)
	}
}

// Blob is the default in-memory representation of binary frames.
type Blob struct {
	data []byte
	Type string
}

// NewBlob copies data into a Blob.
func NewBlob(data []byte, typ string) *Blob {
	return &Blob{data: append([]byte(nil), data...), Type: typ}
}

func (b *Blob) Size() int { return len(b.data) }

// Bytes returns a copy of the blob contents.
func (b *Blob) Bytes() []byte { return append([]byte(nil), b.data...) }

func domError(name, msg string) *hosterr.DOMException {
	return &hosterr.DOMException{Name: name, Message: msg}
}
