package socket

import (
	"net/http"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

type webBackend struct {
	win *webhost.Window
}

func (b *webBackend) open(c *Connection, rawURL string, opts ConnectOptions) (transport, error) {
	var header http.Header
	if len(opts.Headers) > 0 {
		header = make(http.Header, len(opts.Headers))
		for k, v := range opts.Headers {
			header.Set(k, v)
		}
	}
	ws, err := b.win.NewWebSocket(rawURL, opts.Protocols, header)
	if err != nil {
		return nil, hosterr.From(core.RuntimeWeb, err)
	}
	// Host A delivers Blobs by default; Binary must look the same on both
	// runtimes.
	ws.SetBinaryType(webhost.BinaryTypeArrayBuffer)

	ws.AddEventListener("open", webhost.NewListener(func(webhost.Event) {
		c.opened(ws.Protocol())
	}))
	ws.AddEventListener("message", webhost.NewListener(func(ev webhost.Event) {
		me, ok := ev.(webhost.MessageEvent)
		if !ok {
			return
		}
		switch d := me.Data.(type) {
		case string:
			c.received(Text(d))
		case []byte:
			c.received(Binary(d))
		case *webhost.Blob:
			c.received(Binary(d.Bytes()))
		}
	}))
	ws.AddEventListener("error", webhost.NewListener(func(ev webhost.Event) {
		msg := ""
		if ee, ok := ev.(webhost.ErrorEvent); ok {
			msg = ee.Message
		}
		c.failed(hosterr.FromDOMException("", msg))
	}))
	ws.AddEventListener("close", webhost.NewListener(func(ev webhost.Event) {
		ce, _ := ev.(webhost.CloseEvent)
		c.closed(ce.Code, ce.Reason)
	}))
	return &webTransport{ws: ws}, nil
}

type webTransport struct {
	ws *webhost.WebSocket
}

// send hands the frame to the native. The DOM send has no completion
// signal, so a queued frame counts as acknowledged.
func (t *webTransport) send(d Data) *promise.Future[struct{}] {
	var payload any
	switch v := d.(type) {
	case Text:
		payload = string(v)
	case Binary:
		payload = []byte(v)
	}
	if err := t.ws.Send(payload); err != nil {
		return promise.Rejected[struct{}](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(struct{}{})
}

func (t *webTransport) close(code int, reason string) {
	if code == 0 {
		code = 1000
	}
	_ = t.ws.Close(code, reason)
}
