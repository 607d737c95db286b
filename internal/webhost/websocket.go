package webhost

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/cryguy/dualstd/internal/eventloop"
)

// WebSocket ready states.
const (
	CONNECTING = 0
	OPEN       = 1
	CLOSING    = 2
	CLOSED     = 3
)

// Binary types accepted by WebSocket.SetBinaryType.
const (
	BinaryTypeBlob        = "blob"
	BinaryTypeArrayBuffer = "arraybuffer"
)

// closeHandshakeTimeout bounds how long a closing socket waits for the peer.
const closeHandshakeTimeout = 5 * time.Second

// writeTimeout bounds a single frame write.
const writeTimeout = 5 * time.Second

// DialConfig carries the transport settings a browser would take from its
// own environment.
type DialConfig struct {
	Header          http.Header
	TLSClientConfig *tls.Config
	ReadLimit       int64
}

// outgoing is one queued frame.
type outgoing struct {
	typ  websocket.MessageType
	data []byte
}

// WebSocket is a DOM WebSocket backed by coder/websocket. All events are
// dispatched on the loop.
type WebSocket struct {
	EventTarget

	url  string
	loop *eventloop.EventLoop

	mu         sync.Mutex
	readyState int
	binaryType string
	protocol   string
	conn       *websocket.Conn
	cancel     context.CancelFunc
	writes     chan outgoing
	closeSent  bool
	closeCode  int
	closeWhy   string
	closed     bool // close event dispatched
	closeTimer int  // loop timer bounding the close handshake, 0 if none
}

// NewWebSocket validates rawURL and starts connecting in the background. It
// fails synchronously with a SyntaxError like the DOM constructor.
func NewWebSocket(loop *eventloop.EventLoop, rawURL string, protocols []string, cfg DialConfig) (*WebSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domError("SyntaxError", "The URL '"+rawURL+"' is invalid.")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, domError("SyntaxError", "The URL's scheme must be either 'ws' or 'wss'. '"+u.Scheme+"' is not allowed.")
	}
	if u.Fragment != "" {
		return nil, domError("SyntaxError", "The URL contains a fragment identifier ('"+u.Fragment+"').")
	}
	seen := make(map[string]bool, len(protocols))
	for _, p := range protocols {
		if p == "" || seen[p] {
			return nil, domError("SyntaxError", "The subprotocol '"+p+"' is invalid or duplicated.")
		}
		seen[p] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	ws := &WebSocket{
		url:        u.String(),
		loop:       loop,
		readyState: CONNECTING,
		binaryType: BinaryTypeBlob,
		cancel:     cancel,
		writes:     make(chan outgoing, 64),
	}
	go ws.connect(ctx, protocols, cfg)
	return ws, nil
}

func (ws *WebSocket) connect(ctx context.Context, protocols []string, cfg DialConfig) {
	opts := &websocket.DialOptions{
		HTTPHeader:   cfg.Header,
		Subprotocols: protocols,
	}
	if cfg.TLSClientConfig != nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: cfg.TLSClientConfig},
		}
	}
	conn, _, err := websocket.Dial(ctx, ws.url, opts)
	if err != nil {
		ws.loop.Post(func() {
			ws.finish(1006, "", false, true)
		})
		return
	}
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}

	ws.loop.Post(func() {
		ws.mu.Lock()
		if ws.readyState != CONNECTING {
			// close() ran while the handshake was in flight.
			ws.mu.Unlock()
			_ = conn.CloseNow()
			ws.finish(1006, "", false, true)
			return
		}
		ws.readyState = OPEN
		ws.conn = conn
		ws.protocol = conn.Subprotocol()
		ws.mu.Unlock()

		go ws.readLoop(ctx, conn)
		go ws.writeLoop(ctx, conn)
		ws.DispatchEvent(OpenEvent{})
	})
}

func (ws *WebSocket) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			ws.readFailed(err)
			return
		}
		ws.loop.Post(func() {
			ws.mu.Lock()
			if ws.closed {
				ws.mu.Unlock()
				return
			}
			binaryType := ws.binaryType
			ws.mu.Unlock()

			var payload any
			switch {
			case typ == websocket.MessageText:
				payload = string(data)
			case binaryType == BinaryTypeArrayBuffer:
				payload = data
			default:
				payload = NewBlob(data, "")
			}
			ws.DispatchEvent(MessageEvent{Data: payload})
		})
	}
}

func (ws *WebSocket) readFailed(err error) {
	var ce websocket.CloseError
	code, reason, clean, fail := 1006, "", false, true
	if errors.As(err, &ce) {
		code, reason, clean, fail = int(ce.Code), ce.Reason, true, false
	} else {
		ws.mu.Lock()
		if ws.closeSent {
			// Our own close completed before the peer's frame surfaced.
			code, reason, clean, fail = ws.closeCode, ws.closeWhy, true, false
			if code == 0 {
				code = int(websocket.StatusNoStatusRcvd)
			}
		}
		ws.mu.Unlock()
	}
	ws.loop.Post(func() {
		ws.finish(code, reason, clean, fail)
	})
}

func (ws *WebSocket) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case msg := <-ws.writes:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, msg.typ, msg.data)
			cancel()
			if err != nil {
				log.Printf("dualstd: ws send error: %v", err)
				_ = conn.CloseNow()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// finish moves the socket to CLOSED and dispatches close (preceded by error
// when fail is set). It runs on the loop and only acts once.
func (ws *WebSocket) finish(code int, reason string, clean, fail bool) {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.closed = true
	ws.readyState = CLOSED
	cancel := ws.cancel
	timer := ws.closeTimer
	ws.mu.Unlock()
	cancel()
	if timer != 0 {
		ws.loop.ClearTimer(timer)
	}

	if fail {
		ws.DispatchEvent(ErrorEvent{Message: "WebSocket connection to '" + ws.url + "' failed"})
	}
	ws.DispatchEvent(CloseEvent{Code: code, Reason: reason, WasClean: clean})
}

// URL returns the resolved socket URL.
func (ws *WebSocket) URL() string { return ws.url }

// ReadyState returns the current DOM ready state.
func (ws *WebSocket) ReadyState() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.readyState
}

// Protocol returns the negotiated subprotocol, empty before open.
func (ws *WebSocket) Protocol() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.protocol
}

// BinaryType returns "blob" (the default) or "arraybuffer".
func (ws *WebSocket) BinaryType() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.binaryType
}

// SetBinaryType selects how binary frames are delivered. Unknown values are
// ignored, as in the DOM.
func (ws *WebSocket) SetBinaryType(t string) {
	if t != BinaryTypeBlob && t != BinaryTypeArrayBuffer {
		return
	}
	ws.mu.Lock()
	ws.binaryType = t
	ws.mu.Unlock()
}

// Send queues a frame. data is a string, []byte or *Blob. Sending while
// CONNECTING is an InvalidStateError; sending after close is silently
// dropped.
func (ws *WebSocket) Send(data any) error {
	var msg outgoing
	switch d := data.(type) {
	case string:
		msg = outgoing{typ: websocket.MessageText, data: []byte(d)}
	case []byte:
		msg = outgoing{typ: websocket.MessageBinary, data: append([]byte(nil), d...)}
	case *Blob:
		msg = outgoing{typ: websocket.MessageBinary, data: d.Bytes()}
	default:
		return domError("TypeError", "Failed to execute 'send' on 'WebSocket': unsupported data type.")
	}

	ws.mu.Lock()
	state := ws.readyState
	ws.mu.Unlock()
	switch state {
	case CONNECTING:
		return domError("InvalidStateError", "Failed to execute 'send' on 'WebSocket': Still in CONNECTING state.")
	case OPEN:
		select {
		case ws.writes <- msg:
		default:
			return domError("QuotaExceededError", "Failed to execute 'send' on 'WebSocket': send buffer is full.")
		}
	}
	return nil
}

// Close starts the closing handshake. code 0 sends a close frame without a
// status. Closing an already closing or closed socket does nothing.
func (ws *WebSocket) Close(code int, reason string) error {
	if code != 0 && code != 1000 && (code < 3000 || code > 4999) {
		return domError("InvalidAccessError", "The close code must be either 1000, or between 3000 and 4999.")
	}
	if len(reason) > 123 {
		return domError("SyntaxError", "The close reason must not be greater than 123 UTF-8 bytes.")
	}

	ws.mu.Lock()
	switch ws.readyState {
	case CLOSING, CLOSED:
		ws.mu.Unlock()
		return nil
	case CONNECTING:
		ws.readyState = CLOSING
		cancel := ws.cancel
		ws.mu.Unlock()
		cancel()
		return nil
	}
	ws.readyState = CLOSING
	ws.closeSent = true
	ws.closeCode = code
	ws.closeWhy = reason
	conn := ws.conn
	// The read loop reports the close; this bounds a silent peer.
	ws.closeTimer = ws.loop.SetTimeout(closeHandshakeTimeout, func() {
		ws.finish(1006, "", false, false)
	})
	ws.mu.Unlock()

	status := websocket.StatusCode(code)
	if code == 0 {
		status = websocket.StatusNoStatusRcvd
	}
	go func() {
		if err := conn.Close(status, reason); err != nil {
			_ = conn.CloseNow()
		}
	}()
	return nil
}
