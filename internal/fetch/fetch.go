// Package fetch issues HTTP requests through the runtime's network native:
// window.fetch on the Web runtime and request on the MiniGame runtime.
package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

// Init configures one request.
type Init struct {
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration // 0 uses the runtime default

	// OnChunk receives body bytes as they arrive, on the host loop. The
	// full body is still delivered in Response.
	OnChunk func([]byte)

	// OnHeaders receives the status and lower-cased headers before the body
	// is read, on the host loop.
	OnHeaders func(status int, headers map[string]string)
}

// Response is a fully read response. Header names are lower case.
type Response struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Body       []byte
}

// Fetcher is implemented once per runtime.
type Fetcher interface {
	Fetch(rawURL string, init *Init) *Task
}

// Task is one in-flight request.
type Task struct {
	res     *promise.Future[*Response]
	aborted atomic.Bool
	abort   func()
}

// Response returns the future of the whole response. Abort settles it with
// an AbortError and a timeout with a TimeoutError.
func (t *Task) Response() *promise.Future[*Response] { return t.res }

// Abort cancels the request. Only the first call has an effect.
func (t *Task) Abort() {
	if !t.aborted.CompareAndSwap(false, true) {
		return
	}
	t.abort()
}

// Aborted reports whether Abort was called.
func (t *Task) Aborted() bool { return t.aborted.Load() }

// New binds the implementation for cfg.Runtime.
func New(cfg core.Config, win *webhost.Window, host *minihost.Host) (Fetcher, error) {
	switch cfg.Runtime {
	case core.RuntimeWeb:
		if win == nil {
			return nil, errors.New("fetch: web runtime without a window")
		}
		return &webFetcher{win: win, limit: cfg.ResponseLimit()}, nil
	case core.RuntimeMiniGame:
		if host == nil {
			return nil, errors.New("fetch: minigame runtime without a host")
		}
		return &miniFetcher{host: host}, nil
	}
	return nil, fmt.Errorf("fetch: unknown runtime %v", cfg.Runtime)
}

func statusText(code int, given string) string {
	if given != "" {
		return given
	}
	return http.StatusText(code)
}

func lowerKeys(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}
