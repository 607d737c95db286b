package webhost

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/eventloop"
)

// Window bundles the Web natives of one origin around a shared event loop.
type Window struct {
	Loop         *eventloop.EventLoop
	LocalStorage *LocalStorage
	Fetcher      *Fetcher
	FileSystem   *FileSystem

	cfg core.Config
}

// NewWindow opens the origin's storage and file system under cfg.DataDir.
// With no DataDir, storage is in memory and FileSystem is nil.
func NewWindow(cfg core.Config) (*Window, error) {
	loop := eventloop.New(cfg.OnUncaught)
	w := &Window{Loop: loop, cfg: cfg}

	storageDir := ""
	if cfg.DataDir != "" {
		storageDir = filepath.Join(cfg.DataDir, "web")
	}
	ls, err := OpenLocalStorage(storageDir, cfg.StorageQuota())
	if err != nil {
		loop.Close()
		return nil, err
	}
	w.LocalStorage = ls

	fetcher, err := NewFetcher(loop, cfg.TLSClientConfig, time.Duration(cfg.FetchTimeout())*time.Second)
	if err != nil {
		_ = ls.Close()
		loop.Close()
		return nil, err
	}
	w.Fetcher = fetcher

	if cfg.DataDir != "" {
		fsys, err := OpenFileSystem(filepath.Join(cfg.DataDir, "web", "opfs"))
		if err != nil {
			_ = ls.Close()
			loop.Close()
			return nil, err
		}
		w.FileSystem = fsys
	}
	return w, nil
}

// NewWebSocket is the `new WebSocket(url, protocols)` constructor of this
// window.
func (w *Window) NewWebSocket(rawURL string, protocols []string, header http.Header) (*WebSocket, error) {
	return NewWebSocket(w.Loop, rawURL, protocols, DialConfig{
		Header:          header,
		TLSClientConfig: w.cfg.TLSClientConfig,
		ReadLimit:       w.cfg.MessageLimit(),
	})
}

// Close stops the loop and releases storage.
func (w *Window) Close() error {
	w.Loop.Close()
	return w.LocalStorage.Close()
}
