// Package fs is a sandboxed file system over the runtime's storage: the
// origin-private file system on the Web runtime and the FileSystemManager
// user directory on the MiniGame runtime. Paths are slash-separated and
// relative to the sandbox root.
package fs

import (
	"errors"
	"fmt"
	"time"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

// FileInfo describes one entry.
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// FS is implemented once per runtime. Mkdir on an existing directory
// succeeds and Exists reports a missing path as false rather than an error.
type FS interface {
	Mkdir(p string, recursive bool) *promise.Future[struct{}]
	WriteFile(p string, data []byte) *promise.Future[struct{}]
	ReadFile(p string) *promise.Future[[]byte]
	Remove(p string) *promise.Future[struct{}]
	Stat(p string) *promise.Future[FileInfo]
	Exists(p string) *promise.Future[bool]
}

// ErrUnavailable is returned by every operation when the runtime has no
// backing directory.
var ErrUnavailable = errors.New("fs: no data directory configured")

// New binds the implementation for cfg.Runtime.
func New(cfg core.Config, win *webhost.Window, host *minihost.Host) (FS, error) {
	switch cfg.Runtime {
	case core.RuntimeWeb:
		if win == nil {
			return nil, errors.New("fs: web runtime without a window")
		}
		return &webFS{fsys: win.FileSystem}, nil
	case core.RuntimeMiniGame:
		if host == nil {
			return nil, errors.New("fs: minigame runtime without a host")
		}
		return newMiniFS(host.GetFileSystemManager()), nil
	}
	return nil, fmt.Errorf("fs: unknown runtime %v", cfg.Runtime)
}

// ensure turns the already-exists condition into success.
func ensure(f *promise.Future[struct{}]) *promise.Future[struct{}] {
	out := promise.New[struct{}]()
	f.Then(func(r promise.Result[struct{}]) {
		out.Settle(promise.Result[struct{}]{Err: hosterr.IgnoreAlreadyExists(r.Err)})
	})
	return out
}

// exists maps NotFound to false.
func exists(f *promise.Future[struct{}]) *promise.Future[bool] {
	out := promise.New[bool]()
	f.Then(func(r promise.Result[struct{}]) {
		switch {
		case r.Err == nil:
			out.Resolve(true)
		case errors.Is(r.Err, hosterr.ErrNotFound):
			out.Resolve(false)
		default:
			out.Reject(r.Err)
		}
	})
	return out
}
