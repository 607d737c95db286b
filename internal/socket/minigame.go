package socket

import (
	"log"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
)

// noStatus is reported when the MiniGame host gives close code 0.
const noStatus = 1005

type miniBackend struct {
	host *minihost.Host
}

// open creates the SocketTask and claims each of its single-slot handlers
// once; listeners live on the Connection.
func (b *miniBackend) open(c *Connection, rawURL string, opts ConnectOptions) (transport, error) {
	task := b.host.ConnectSocket(minihost.ConnectSocketOption{
		URL:       rawURL,
		Header:    opts.Headers,
		Protocols: opts.Protocols,
	})
	task.OnOpen(func(res minihost.OnOpenResult) {
		c.opened(res.Protocol)
	})
	task.OnMessage(func(res minihost.OnMessageResult) {
		switch d := res.Data.(type) {
		case string:
			c.received(Text(d))
		case []byte:
			c.received(Binary(d))
		}
	})
	task.OnError(func(res core.GeneralCallbackResult) {
		c.failed(hosterr.FromCallbackResult(res))
	})
	task.OnClose(func(res minihost.OnCloseResult) {
		code := res.Code
		if code == 0 {
			code = noStatus
		}
		c.closed(code, res.Reason)
	})
	return &miniTransport{
		task:    task,
		sendFn:  promise.Promisify[minihost.SendSocketMessageOption, struct{}](task.Send),
		closeFn: promise.Promisify[minihost.CloseSocketOption, struct{}](task.Close),
	}, nil
}

type miniTransport struct {
	task    *minihost.SocketTask
	sendFn  func(minihost.SendSocketMessageOption) *promise.Future[struct{}]
	closeFn func(minihost.CloseSocketOption) *promise.Future[struct{}]
}

func (t *miniTransport) send(d Data) *promise.Future[struct{}] {
	var payload any
	switch v := d.(type) {
	case Text:
		payload = string(v)
	case Binary:
		payload = []byte(v)
	}
	return t.sendFn(minihost.SendSocketMessageOption{Data: payload})
}

func (t *miniTransport) close(code int, reason string) {
	if code == 0 {
		code = 1000
	}
	t.closeFn(minihost.CloseSocketOption{Code: code, Reason: reason}).Then(func(r promise.Result[struct{}]) {
		if r.Err != nil {
			log.Printf("dualstd: socket %s close error: %v", t.task.ID, r.Err)
		}
	})
}
