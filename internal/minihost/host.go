// Package minihost implements the MiniGame runtime natives in Go: one
// options value per call with success/fail/complete callbacks, task objects
// with single-slot onX setters, and callbacks delivered on the runtime's
// event loop.
package minihost

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/eventloop"
)

// Host is one MiniGame runtime instance.
type Host struct {
	loop *eventloop.EventLoop
	cfg  core.Config

	storeMu   sync.Mutex
	store     map[string]string
	storeSize int

	httpClient *http.Client
	fsm        func() *FileSystemManager
	userDir    string
}

// New starts a runtime. User files live under {DataDir}/minigame/usr; with
// no DataDir the file system manager is unavailable.
func New(cfg core.Config) *Host {
	h := &Host{
		loop:  eventloop.New(cfg.OnUncaught),
		cfg:   cfg,
		store: make(map[string]string),
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSClientConfig != nil {
		transport.TLSClientConfig = cfg.TLSClientConfig.Clone()
	}
	h.httpClient = &http.Client{Transport: transport}
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "minigame", "usr")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("dualstd: minigame user dir unavailable: %v", err)
		} else {
			h.userDir = dir
		}
	}
	h.fsm = sync.OnceValue(func() *FileSystemManager {
		return &FileSystemManager{host: h, root: h.userDir}
	})
	return h
}

// Loop returns the runtime's event loop.
func (h *Host) Loop() *eventloop.EventLoop { return h.loop }

// ErrMsgRuntimeClosed is reported to callbacks whose result arrives after
// Close.
const ErrMsgRuntimeClosed = "fail runtime closed"

// post delivers fn on the loop and reports whether the loop accepted it.
func (h *Host) post(fn func()) bool { return h.loop.Post(fn) }

// succeed delivers a success callback on the loop. Once the runtime is
// closed the callback fails with ErrMsgRuntimeClosed instead, on the
// calling goroutine.
func succeed[R any](h *Host, cb core.Callbacks[R], res R) {
	if !h.post(func() { cb.Succeed(res) }) {
		cb.Failed(core.GeneralCallbackResult{ErrMsg: ErrMsgRuntimeClosed})
	}
}

// fail delivers a fail callback on the loop, or directly once the runtime
// is closed.
func fail[R any](h *Host, cb core.Callbacks[R], msg string, code int) {
	res := core.GeneralCallbackResult{ErrMsg: msg, ErrCode: code}
	if !h.post(func() { cb.Failed(res) }) {
		cb.Failed(res)
	}
}

// Close stops the runtime's loop.
func (h *Host) Close() error {
	h.loop.Close()
	return nil
}
