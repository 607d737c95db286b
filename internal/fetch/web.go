package fetch

import (
	"bytes"
	"errors"
	"io"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

const readChunk = 32 * 1024

type webFetcher struct {
	win   *webhost.Window
	limit int64
}

func (f *webFetcher) Fetch(rawURL string, init *Init) *Task {
	var in Init
	if init != nil {
		in = *init
	}
	ctrl := webhost.NewAbortController()
	t := &Task{res: promise.New[*Response](), abort: func() { ctrl.Abort(nil) }}

	head := f.win.Fetcher.Fetch(rawURL, webhost.RequestInit{
		Method:  in.Method,
		Headers: in.Headers,
		Body:    in.Body,
		Signal:  ctrl.Signal(),
		Timeout: in.Timeout,
	})
	head.Then(func(r promise.Result[*webhost.Response]) {
		if r.Err != nil {
			t.res.Reject(hosterr.From(core.RuntimeWeb, r.Err))
			return
		}
		if in.OnHeaders != nil {
			resp, onHeaders := r.Value, in.OnHeaders
			f.win.Loop.Post(func() { onHeaders(resp.Status, resp.Headers) })
		}
		f.readBody(t, r.Value, in.OnChunk)
	})
	return t
}

// readBody drains resp on the calling goroutine. Chunks and the final
// settlement are posted to the loop so handlers see them in order.
func (f *webFetcher) readBody(t *Task, resp *webhost.Response, onChunk func([]byte)) {
	defer func() { _ = resp.Body.Close() }()
	loop := f.win.Loop

	var buf bytes.Buffer
	chunk := make([]byte, readChunk)
	body := io.LimitReader(resp.Body, f.limit+1)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if int64(buf.Len()) > f.limit {
				loop.PostOrRun(func() {
					t.res.Reject(hosterr.New(hosterr.KindGeneric, "fetch: response body exceeds limit"))
				})
				return
			}
			if onChunk != nil {
				data := append([]byte(nil), chunk[:n]...)
				loop.Post(func() { onChunk(data) })
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			loop.PostOrRun(func() { t.res.Reject(hosterr.From(core.RuntimeWeb, err)) })
			return
		}
	}

	out := &Response{
		Status:     resp.Status,
		StatusText: statusText(resp.Status, resp.StatusText),
		Headers:    resp.Headers,
		Body:       buf.Bytes(),
	}
	loop.PostOrRun(func() { t.res.Resolve(out) })
}
