package fs

import (
	"path"
	"time"

	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
)

type miniFS struct {
	mkdir     func(minihost.MkdirOption) *promise.Future[struct{}]
	writeFile func(minihost.WriteFileOption) *promise.Future[struct{}]
	readFile  func(minihost.ReadFileOption) *promise.Future[minihost.ReadFileSuccess]
	unlink    func(minihost.UnlinkOption) *promise.Future[struct{}]
	rmdir     func(minihost.RmdirOption) *promise.Future[struct{}]
	stat      func(minihost.StatOption) *promise.Future[minihost.StatSuccess]
	access    func(minihost.AccessOption) *promise.Future[struct{}]
}

func newMiniFS(m *minihost.FileSystemManager) *miniFS {
	return &miniFS{
		mkdir:     promise.Promisify[minihost.MkdirOption, struct{}](m.Mkdir),
		writeFile: promise.Promisify[minihost.WriteFileOption, struct{}](m.WriteFile),
		readFile:  promise.Promisify[minihost.ReadFileOption, minihost.ReadFileSuccess](m.ReadFile),
		unlink:    promise.Promisify[minihost.UnlinkOption, struct{}](m.Unlink),
		rmdir:     promise.Promisify[minihost.RmdirOption, struct{}](m.Rmdir),
		stat:      promise.Promisify[minihost.StatOption, minihost.StatSuccess](m.Stat),
		access:    promise.Promisify[minihost.AccessOption, struct{}](m.Access),
	}
}

// userPath maps a sandbox path into the user data directory.
func userPath(p string) string {
	return minihost.UserDataPath + path.Clean("/"+p)
}

func (m *miniFS) Mkdir(p string, recursive bool) *promise.Future[struct{}] {
	return ensure(m.mkdir(minihost.MkdirOption{DirPath: userPath(p), Recursive: recursive}))
}

func (m *miniFS) WriteFile(p string, data []byte) *promise.Future[struct{}] {
	return m.writeFile(minihost.WriteFileOption{FilePath: userPath(p), Data: data})
}

func (m *miniFS) ReadFile(p string) *promise.Future[[]byte] {
	return promise.Map(m.readFile(minihost.ReadFileOption{FilePath: userPath(p)}), func(r minihost.ReadFileSuccess) []byte {
		return r.Data
	})
}

// Remove stats first: the native splits files (unlink) from directories
// (rmdir).
func (m *miniFS) Remove(p string) *promise.Future[struct{}] {
	full := userPath(p)
	out := promise.New[struct{}]()
	m.stat(minihost.StatOption{Path: full}).Then(func(r promise.Result[minihost.StatSuccess]) {
		if r.Err != nil {
			out.Reject(r.Err)
			return
		}
		var next *promise.Future[struct{}]
		if r.Value.Stats.IsDirectory() {
			next = m.rmdir(minihost.RmdirOption{DirPath: full, Recursive: true})
		} else {
			next = m.unlink(minihost.UnlinkOption{FilePath: full})
		}
		next.Then(func(r promise.Result[struct{}]) { out.Settle(r) })
	})
	return out
}

func (m *miniFS) Stat(p string) *promise.Future[FileInfo] {
	full := userPath(p)
	return promise.Map(m.stat(minihost.StatOption{Path: full}), func(r minihost.StatSuccess) FileInfo {
		return FileInfo{
			Name:    path.Base(full),
			Size:    r.Stats.Size,
			IsDir:   r.Stats.IsDirectory(),
			ModTime: time.Unix(r.Stats.LastModifiedTime, 0),
		}
	})
}

func (m *miniFS) Exists(p string) *promise.Future[bool] {
	return exists(m.access(minihost.AccessOption{Path: userPath(p)}))
}
