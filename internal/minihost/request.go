package minihost

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cryguy/dualstd/internal/core"
)

// requestChunkSize is the read size used when EnableChunked is set.
const requestChunkSize = 16 * 1024

// RequestSuccess is the success payload of Request.
type RequestSuccess struct {
	StatusCode int
	Header     map[string]string
	Data       []byte
}

// RequestOption configures Request.
type RequestOption struct {
	URL           string
	Method        string
	Header        map[string]string
	Data          []byte
	Timeout       int // milliseconds
	EnableChunked bool
	core.Callbacks[RequestSuccess]
}

func (o RequestOption) WithCallbacks(cb core.Callbacks[RequestSuccess]) RequestOption {
	o.Callbacks = cb
	return o
}

// ChunkResult is passed to OnChunkReceived handlers.
type ChunkResult struct {
	Data []byte
}

// HeadersResult is passed to OnHeadersReceived handlers.
type HeadersResult struct {
	StatusCode int
	Header     map[string]string
}

// RequestTask is the handle returned by Request.
type RequestTask struct {
	host   *Host
	cancel context.CancelFunc

	mu        sync.Mutex
	aborted   bool
	onChunk   func(ChunkResult)
	onHeaders func(HeadersResult)
}

// Request performs an HTTP request. Fail messages follow the native:
// "request:fail abort", "request:fail timeout", "request:fail <reason>".
func (h *Host) Request(opts RequestOption) *RequestTask {
	timeout := time.Duration(h.cfg.FetchTimeout()) * time.Second
	if opts.Timeout > 0 {
		timeout = time.Duration(opts.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t := &RequestTask{host: h, cancel: cancel}

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(opts.Data) > 0 {
		body = bytes.NewReader(opts.Data)
	}
	req, err := http.NewRequestWithContext(ctx, method, opts.URL, body)
	if err != nil {
		cancel()
		fail(h, opts.Callbacks, "request:fail invalid url", 0)
		return t
	}
	for k, v := range opts.Header {
		req.Header.Set(k, v)
	}

	go t.run(ctx, req, opts)
	return t
}

func (t *RequestTask) run(ctx context.Context, req *http.Request, opts RequestOption) {
	defer t.cancel()
	h := t.host

	resp, err := h.httpClient.Do(req)
	if err != nil {
		fail(h, opts.Callbacks, t.failMessage(ctx, err), 0)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	header := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		header[k] = strings.Join(vals, ", ")
	}
	h.post(func() {
		if fn := t.headersHandler(); fn != nil {
			fn(HeadersResult{StatusCode: resp.StatusCode, Header: header})
		}
	})

	limit := h.cfg.ResponseLimit()
	var buf bytes.Buffer
	chunk := make([]byte, requestChunkSize)
	reader := io.LimitReader(resp.Body, limit+1)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if int64(buf.Len()) > limit {
				fail(h, opts.Callbacks, "request:fail response body exceeds limit", 0)
				return
			}
			if opts.EnableChunked {
				data := append([]byte(nil), chunk[:n]...)
				h.post(func() {
					if fn := t.chunkHandler(); fn != nil {
						fn(ChunkResult{Data: data})
					}
				})
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fail(h, opts.Callbacks, t.failMessage(ctx, err), 0)
			return
		}
	}

	succeed(h, opts.Callbacks, RequestSuccess{
		StatusCode: resp.StatusCode,
		Header:     header,
		Data:       buf.Bytes(),
	})
}

func (t *RequestTask) failMessage(ctx context.Context, err error) string {
	t.mu.Lock()
	aborted := t.aborted
	t.mu.Unlock()
	switch {
	case aborted:
		return "request:fail abort"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "request:fail timeout"
	default:
		return "request:fail " + err.Error()
	}
}

// Abort cancels the request. The fail callback reports "request:fail abort".
func (t *RequestTask) Abort() {
	t.mu.Lock()
	if t.aborted {
		t.mu.Unlock()
		return
	}
	t.aborted = true
	t.mu.Unlock()
	t.cancel()
}

// OnChunkReceived sets the chunk handler (EnableChunked requests only).
func (t *RequestTask) OnChunkReceived(fn func(ChunkResult)) {
	t.mu.Lock()
	t.onChunk = fn
	t.mu.Unlock()
}

// OnHeadersReceived sets the headers handler.
func (t *RequestTask) OnHeadersReceived(fn func(HeadersResult)) {
	t.mu.Lock()
	t.onHeaders = fn
	t.mu.Unlock()
}

func (t *RequestTask) chunkHandler() func(ChunkResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onChunk
}

func (t *RequestTask) headersHandler() func(HeadersResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onHeaders
}
