package minihost

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cryguy/dualstd/internal/core"
)

const (
	defaultConnectTimeout = 60 * time.Second
	socketWriteTimeout    = 10 * time.Second
	socketCloseTimeout    = 5 * time.Second
)

// ConnectSocketOption configures connectSocket. Success fires once the task
// exists, not when the socket opens.
type ConnectSocketOption struct {
	URL       string
	Header    map[string]string
	Protocols []string
	Timeout   int // milliseconds
	core.Callbacks[struct{}]
}

func (o ConnectSocketOption) WithCallbacks(cb core.Callbacks[struct{}]) ConnectSocketOption {
	o.Callbacks = cb
	return o
}

// SendSocketMessageOption carries a string or []byte frame.
type SendSocketMessageOption struct {
	Data any
	core.Callbacks[struct{}]
}

func (o SendSocketMessageOption) WithCallbacks(cb core.Callbacks[struct{}]) SendSocketMessageOption {
	o.Callbacks = cb
	return o
}

// CloseSocketOption configures SocketTask.Close. Code 0 sends 1000.
type CloseSocketOption struct {
	Code   int
	Reason string
	core.Callbacks[struct{}]
}

func (o CloseSocketOption) WithCallbacks(cb core.Callbacks[struct{}]) CloseSocketOption {
	o.Callbacks = cb
	return o
}

// OnOpenResult is passed to the onOpen handler.
type OnOpenResult struct {
	Header   map[string]string
	Protocol string
}

// OnCloseResult is passed to the onClose handler.
type OnCloseResult struct {
	Code   int
	Reason string
}

// OnMessageResult carries a string for text frames and []byte for binary.
type OnMessageResult struct {
	Data any
}

type socketState int

const (
	taskConnecting socketState = iota
	taskOpen
	taskClosing
	taskClosed
)

type socketWrite struct {
	typ  int
	data []byte
	cb   core.Callbacks[struct{}]
}

// SocketTask is the handle returned by ConnectSocket. Each OnX setter holds
// a single handler; a later call replaces the earlier one and there is no
// way to remove it.
type SocketTask struct {
	ID string

	host *Host

	mu           sync.Mutex
	state        socketState
	conn         *websocket.Conn
	cancel       context.CancelFunc
	writes       chan socketWrite
	pendingClose *CloseSocketOption
	closeSent    bool
	closeCode    int
	closeReason  string
	closeTimer   int // loop timer bounding the close handshake, 0 if none
	finished     bool

	onOpen    func(OnOpenResult)
	onClose   func(OnCloseResult)
	onMessage func(OnMessageResult)
	onError   func(core.GeneralCallbackResult)
}

// ConnectSocket creates a SocketTask and starts connecting.
func (h *Host) ConnectSocket(opts ConnectSocketOption) *SocketTask {
	ctx, cancel := context.WithCancel(context.Background())
	t := &SocketTask{
		ID:     uuid.NewString(),
		host:   h,
		cancel: cancel,
		writes: make(chan socketWrite, 256),
	}

	u, err := url.Parse(opts.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		cancel()
		t.state = taskClosed
		t.finished = true
		fail(h, opts.Callbacks, "connectSocket:fail invalid url \""+opts.URL+"\"", 0)
		return t
	}
	succeed(h, opts.Callbacks, struct{}{})

	timeout := defaultConnectTimeout
	if opts.Timeout > 0 {
		timeout = time.Duration(opts.Timeout) * time.Millisecond
	}
	header := make(http.Header, len(opts.Header))
	for k, v := range opts.Header {
		header.Set(k, v)
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     opts.Protocols,
		TLSClientConfig:  h.cfg.TLSClientConfig,
		Proxy:            http.ProxyFromEnvironment,
	}
	go t.connect(ctx, dialer, u.String(), header)
	return t
}

func (t *SocketTask) connect(ctx context.Context, dialer *websocket.Dialer, rawURL string, header http.Header) {
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		t.finish(1006, "", "connectSocket:fail "+err.Error())
		return
	}
	conn.SetReadLimit(t.host.cfg.MessageLimit())

	t.mu.Lock()
	t.conn = conn
	pending := t.pendingClose
	if t.state == taskConnecting {
		t.state = taskOpen
	}
	t.mu.Unlock()

	go t.writeLoop(ctx, conn)
	go t.readLoop(conn)

	if pending != nil {
		t.startClose(conn, *pending)
		return
	}

	res := OnOpenResult{Header: make(map[string]string), Protocol: conn.Subprotocol()}
	if resp != nil {
		for k, vals := range resp.Header {
			if len(vals) > 0 {
				res.Header[k] = vals[0]
			}
		}
	}
	t.host.post(func() {
		if h := t.openHandler(); h != nil {
			h(res)
		}
	})
}

func (t *SocketTask) readLoop(conn *websocket.Conn) {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				t.finish(ce.Code, ce.Text, "")
				return
			}
			t.mu.Lock()
			sent, code, reason := t.closeSent, t.closeCode, t.closeReason
			t.mu.Unlock()
			if sent {
				t.finish(code, reason, "")
				return
			}
			t.finish(1006, "", "onSocketError: "+err.Error())
			return
		}
		res := OnMessageResult{Data: data}
		if typ == websocket.TextMessage {
			res.Data = string(data)
		}
		t.host.post(func() {
			t.mu.Lock()
			done := t.finished
			t.mu.Unlock()
			if done {
				return
			}
			if h := t.messageHandler(); h != nil {
				h(res)
			}
		})
	}
}

// errMsgSocketClosed fails writes still queued when the socket goes away.
const errMsgSocketClosed = "sendSocketMessage:fail socket closed"

func (t *SocketTask) writeLoop(ctx context.Context, conn *websocket.Conn) {
	defer t.failQueued()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		select {
		case w := <-t.writes:
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if err := conn.WriteMessage(w.typ, w.data); err != nil {
				fail(t.host, w.cb, "sendSocketMessage:fail "+err.Error(), 0)
				continue
			}
			succeed(t.host, w.cb, struct{}{})
		case <-ctx.Done():
			return
		}
	}
}

// failQueued settles every write that never reached the wire. Send pushes
// under mu and only while open, so nothing is queued after this drains.
func (t *SocketTask) failQueued() {
	var dropped []socketWrite
	t.mu.Lock()
	for len(t.writes) > 0 {
		dropped = append(dropped, <-t.writes)
	}
	t.mu.Unlock()
	for _, w := range dropped {
		fail(t.host, w.cb, errMsgSocketClosed, 0)
	}
}

// finish closes the transport and reports onError (when errMsg is set) and
// onClose exactly once.
func (t *SocketTask) finish(code int, reason, errMsg string) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.state = taskClosed
	conn := t.conn
	timer := t.closeTimer
	t.mu.Unlock()
	t.cancel()
	if timer != 0 {
		t.host.loop.ClearTimer(timer)
	}
	if conn != nil {
		_ = conn.Close()
	}

	t.host.post(func() {
		if errMsg != "" {
			if h := t.errorHandler(); h != nil {
				h(core.GeneralCallbackResult{ErrMsg: errMsg})
			}
		}
		if h := t.closeHandler(); h != nil {
			h(OnCloseResult{Code: code, Reason: reason})
		}
	})
}

// Send queues a frame. Data must be a string or []byte.
func (t *SocketTask) Send(opts SendSocketMessageOption) any {
	var w socketWrite
	switch d := opts.Data.(type) {
	case string:
		w = socketWrite{typ: websocket.TextMessage, data: []byte(d)}
	case []byte:
		w = socketWrite{typ: websocket.BinaryMessage, data: d}
	default:
		fail(t.host, opts.Callbacks, "sendSocketMessage:fail parameter error: data should be String or ArrayBuffer", 0)
		return nil
	}
	w.cb = opts.Callbacks

	t.mu.Lock()
	open := t.state == taskOpen
	queued := false
	if open {
		select {
		case t.writes <- w:
			queued = true
		default:
		}
	}
	t.mu.Unlock()
	switch {
	case !open:
		fail(t.host, opts.Callbacks, "sendSocketMessage:fail WebSocket is not connected", 0)
	case !queued:
		fail(t.host, opts.Callbacks, "sendSocketMessage:fail send buffer is full", 0)
	}
	return nil
}

// Close starts the closing handshake.
func (t *SocketTask) Close(opts CloseSocketOption) any {
	t.mu.Lock()
	switch t.state {
	case taskClosing, taskClosed:
		t.mu.Unlock()
		succeed(t.host, opts.Callbacks, struct{}{})
		return nil
	case taskConnecting:
		t.state = taskClosing
		t.pendingClose = &opts
		t.mu.Unlock()
		succeed(t.host, opts.Callbacks, struct{}{})
		return nil
	}
	t.state = taskClosing
	conn := t.conn
	t.mu.Unlock()
	t.startClose(conn, opts)
	return nil
}

func (t *SocketTask) startClose(conn *websocket.Conn, opts CloseSocketOption) {
	code := opts.Code
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	t.mu.Lock()
	t.closeSent = true
	t.closeCode = code
	t.closeReason = opts.Reason
	t.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, opts.Reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(socketWriteTimeout)); err != nil {
		fail(t.host, opts.Callbacks, "closeSocket:fail "+err.Error(), 0)
		t.finish(1006, "", "onSocketError: "+err.Error())
		return
	}
	succeed(t.host, opts.Callbacks, struct{}{})
	t.mu.Lock()
	if !t.finished {
		t.closeTimer = t.host.loop.SetTimeout(socketCloseTimeout, func() {
			t.finish(code, opts.Reason, "")
		})
	}
	t.mu.Unlock()
}

// OnOpen sets the open handler, replacing any earlier one.
func (t *SocketTask) OnOpen(fn func(OnOpenResult)) {
	t.mu.Lock()
	t.onOpen = fn
	t.mu.Unlock()
}

// OnClose sets the close handler, replacing any earlier one.
func (t *SocketTask) OnClose(fn func(OnCloseResult)) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// OnMessage sets the message handler, replacing any earlier one.
func (t *SocketTask) OnMessage(fn func(OnMessageResult)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

// OnError sets the error handler, replacing any earlier one.
func (t *SocketTask) OnError(fn func(core.GeneralCallbackResult)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

func (t *SocketTask) openHandler() func(OnOpenResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onOpen
}

func (t *SocketTask) closeHandler() func(OnCloseResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onClose
}

func (t *SocketTask) messageHandler() func(OnMessageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onMessage
}

func (t *SocketTask) errorHandler() func(core.GeneralCallbackResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onError
}
