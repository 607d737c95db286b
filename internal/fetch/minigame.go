package fetch

import (
	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
)

type miniFetcher struct {
	host *minihost.Host
}

// Fetch installs callbacks directly: request returns a RequestTask, which
// rules out promisifying it.
func (f *miniFetcher) Fetch(rawURL string, init *Init) *Task {
	var in Init
	if init != nil {
		in = *init
	}
	res := promise.New[*Response]()
	task := f.host.Request(minihost.RequestOption{
		URL:           rawURL,
		Method:        in.Method,
		Header:        in.Headers,
		Data:          in.Body,
		Timeout:       int(in.Timeout.Milliseconds()),
		EnableChunked: in.OnChunk != nil,
		Callbacks: core.Callbacks[minihost.RequestSuccess]{
			Success: func(r minihost.RequestSuccess) {
				res.Resolve(&Response{
					Status:     r.StatusCode,
					StatusText: statusText(r.StatusCode, ""),
					Headers:    lowerKeys(r.Header),
					Body:       r.Data,
				})
			},
			Fail: func(r core.GeneralCallbackResult) {
				res.Reject(hosterr.FromCallbackResult(r))
			},
		},
	})
	if in.OnHeaders != nil {
		onHeaders := in.OnHeaders
		task.OnHeadersReceived(func(r minihost.HeadersResult) { onHeaders(r.StatusCode, lowerKeys(r.Header)) })
	}
	if in.OnChunk != nil {
		onChunk := in.OnChunk
		task.OnChunkReceived(func(r minihost.ChunkResult) { onChunk(r.Data) })
	}
	return &Task{res: res, abort: task.Abort}
}
