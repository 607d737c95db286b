package minihost

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cryguy/dualstd/internal/core"
)

// UserDataPath is the prefix of the writable user directory.
const UserDataPath = "wxfile://usr"

// Native error codes of the file system manager.
const (
	ErrCodeNoSuchFile    = 1300002
	ErrCodeAlreadyExists = 1301005
	ErrCodePermission    = 1300013
)

// FileSystemManager is the process-wide file system handle.
type FileSystemManager struct {
	host *Host
	root string
}

// GetFileSystemManager returns the memoized manager.
func (h *Host) GetFileSystemManager() *FileSystemManager { return h.fsm() }

// MkdirOption creates DirPath.
type MkdirOption struct {
	DirPath   string
	Recursive bool
	core.Callbacks[struct{}]
}

func (o MkdirOption) WithCallbacks(cb core.Callbacks[struct{}]) MkdirOption {
	o.Callbacks = cb
	return o
}

// WriteFileOption writes Data (string or []byte) to FilePath.
type WriteFileOption struct {
	FilePath string
	Data     any
	core.Callbacks[struct{}]
}

func (o WriteFileOption) WithCallbacks(cb core.Callbacks[struct{}]) WriteFileOption {
	o.Callbacks = cb
	return o
}

// ReadFileSuccess carries the file contents. Without an encoding the native
// returns binary data.
type ReadFileSuccess struct {
	Data []byte
}

// ReadFileOption reads FilePath.
type ReadFileOption struct {
	FilePath string
	core.Callbacks[ReadFileSuccess]
}

func (o ReadFileOption) WithCallbacks(cb core.Callbacks[ReadFileSuccess]) ReadFileOption {
	o.Callbacks = cb
	return o
}

// UnlinkOption removes a file.
type UnlinkOption struct {
	FilePath string
	core.Callbacks[struct{}]
}

func (o UnlinkOption) WithCallbacks(cb core.Callbacks[struct{}]) UnlinkOption {
	o.Callbacks = cb
	return o
}

// RmdirOption removes a directory.
type RmdirOption struct {
	DirPath   string
	Recursive bool
	core.Callbacks[struct{}]
}

func (o RmdirOption) WithCallbacks(cb core.Callbacks[struct{}]) RmdirOption {
	o.Callbacks = cb
	return o
}

// Stats is the success payload of Stat.
type Stats struct {
	Size             int64
	LastModifiedTime int64 // unix seconds
	dir              bool
}

// IsDirectory reports whether the path is a directory.
func (s Stats) IsDirectory() bool { return s.dir }

// StatSuccess wraps Stats.
type StatSuccess struct {
	Stats Stats
}

// StatOption stats Path.
type StatOption struct {
	Path string
	core.Callbacks[StatSuccess]
}

func (o StatOption) WithCallbacks(cb core.Callbacks[StatSuccess]) StatOption {
	o.Callbacks = cb
	return o
}

// AccessOption checks that Path exists.
type AccessOption struct {
	Path string
	core.Callbacks[struct{}]
}

func (o AccessOption) WithCallbacks(cb core.Callbacks[struct{}]) AccessOption {
	o.Callbacks = cb
	return o
}

// resolve maps a wxfile://usr path to the host directory.
func (m *FileSystemManager) resolve(api, p string) (string, string, int) {
	if m.root == "" {
		return "", api + ":fail file system unavailable", 0
	}
	rel, ok := strings.CutPrefix(p, UserDataPath)
	if !ok || (rel != "" && rel[0] != '/') {
		return "", fmt.Sprintf("%s:fail permission denied, open %q", api, p), ErrCodePermission
	}
	clean := path.Clean("/" + rel)
	return filepath.Join(m.root, filepath.FromSlash(clean)), "", 0
}

func fsFail(api, p string, err error) (string, int) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Sprintf("%s:fail no such file or directory, %s %s", api, api, p), ErrCodeNoSuchFile
	case errors.Is(err, fs.ErrExist):
		return fmt.Sprintf("%s:fail file already exists, %s %s", api, api, p), ErrCodeAlreadyExists
	case errors.Is(err, fs.ErrPermission):
		return fmt.Sprintf("%s:fail permission denied, %s %s", api, api, p), ErrCodePermission
	}
	return api + ":fail " + err.Error(), 0
}

// Mkdir creates a directory. An existing path fails with "file already
// exists" even when Recursive is set.
func (m *FileSystemManager) Mkdir(opts MkdirOption) any {
	h := m.host
	full, msg, code := m.resolve("mkdir", opts.DirPath)
	if msg != "" {
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	if _, err := os.Stat(full); err == nil {
		msg, code := fsFail("mkdir", opts.DirPath, fs.ErrExist)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	var err error
	if opts.Recursive {
		err = os.MkdirAll(full, 0o755)
	} else {
		err = os.Mkdir(full, 0o755)
	}
	if err != nil {
		msg, code := fsFail("mkdir", opts.DirPath, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	succeed(h, opts.Callbacks, struct{}{})
	return nil
}

// WriteFile writes a whole file. The parent directory must exist.
func (m *FileSystemManager) WriteFile(opts WriteFileOption) any {
	h := m.host
	full, msg, code := m.resolve("writeFile", opts.FilePath)
	if msg != "" {
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	var data []byte
	switch d := opts.Data.(type) {
	case string:
		data = []byte(d)
	case []byte:
		data = d
	default:
		fail(h, opts.Callbacks, "writeFile:fail parameter error: data should be String or ArrayBuffer", 0)
		return nil
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		msg, code := fsFail("writeFile", opts.FilePath, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	succeed(h, opts.Callbacks, struct{}{})
	return nil
}

// ReadFile reads a whole file as binary.
func (m *FileSystemManager) ReadFile(opts ReadFileOption) any {
	h := m.host
	full, msg, code := m.resolve("readFile", opts.FilePath)
	if msg != "" {
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		msg, code := fsFail("readFile", opts.FilePath, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	succeed(h, opts.Callbacks, ReadFileSuccess{Data: data})
	return nil
}

// Unlink removes a file. Directories are rejected.
func (m *FileSystemManager) Unlink(opts UnlinkOption) any {
	h := m.host
	full, msg, code := m.resolve("unlink", opts.FilePath)
	if msg != "" {
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	info, err := os.Lstat(full)
	if err != nil {
		msg, code := fsFail("unlink", opts.FilePath, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	if info.IsDir() {
		fail(h, opts.Callbacks, "unlink:fail operation not permitted, unlink "+opts.FilePath, 0)
		return nil
	}
	if err := os.Remove(full); err != nil {
		msg, code := fsFail("unlink", opts.FilePath, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	succeed(h, opts.Callbacks, struct{}{})
	return nil
}

// Rmdir removes a directory; non-empty directories need Recursive.
func (m *FileSystemManager) Rmdir(opts RmdirOption) any {
	h := m.host
	full, msg, code := m.resolve("rmdir", opts.DirPath)
	if msg != "" {
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	if _, err := os.Lstat(full); err != nil {
		msg, code := fsFail("rmdir", opts.DirPath, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	var err error
	if opts.Recursive {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil {
		msg, code := fsFail("rmdir", opts.DirPath, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	succeed(h, opts.Callbacks, struct{}{})
	return nil
}

// Stat describes a path.
func (m *FileSystemManager) Stat(opts StatOption) any {
	h := m.host
	full, msg, code := m.resolve("stat", opts.Path)
	if msg != "" {
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	info, err := os.Stat(full)
	if err != nil {
		msg, code := fsFail("stat", opts.Path, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	succeed(h, opts.Callbacks, StatSuccess{Stats: Stats{
		Size:             info.Size(),
		LastModifiedTime: info.ModTime().Unix(),
		dir:              info.IsDir(),
	}})
	return nil
}

// Access succeeds when Path exists.
func (m *FileSystemManager) Access(opts AccessOption) any {
	h := m.host
	full, msg, code := m.resolve("access", opts.Path)
	if msg != "" {
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	if _, err := os.Stat(full); err != nil {
		msg, code := fsFail("access", opts.Path, err)
		fail(h, opts.Callbacks, msg, code)
		return nil
	}
	succeed(h, opts.Callbacks, struct{}{})
	return nil
}
