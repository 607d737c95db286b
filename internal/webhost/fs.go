package webhost

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FileSystem is an origin-private file system rooted at a directory. Paths
// are slash-separated and may not escape the root.
type FileSystem struct {
	root string
}

// FileStat describes one entry.
type FileStat struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// OpenFileSystem creates root if needed.
func OpenFileSystem(root string) (*FileSystem, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating file system root: %w", err)
	}
	return &FileSystem{root: root}, nil
}

func (f *FileSystem) resolve(p string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	if clean == "/" && p != "/" && p != "" && p != "." {
		return "", domError("TypeError", "Name is not allowed.")
	}
	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

// fsError maps os errors onto the DOMException names the OPFS uses, keeping
// the os message so it can be classified downstream.
func fsError(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return domError("NotFoundError", op+": "+err.Error())
	case errors.Is(err, fs.ErrExist):
		return domError("InvalidModificationError", op+": "+err.Error())
	case errors.Is(err, fs.ErrPermission):
		return domError("NotAllowedError", op+": "+err.Error())
	default:
		return domError("UnknownError", op+": "+err.Error())
	}
}

// Mkdir creates a directory. Without recursive, the parent must exist and
// the directory must not.
func (f *FileSystem) Mkdir(p string, recursive bool) error {
	full, err := f.resolve(p)
	if err != nil {
		return err
	}
	if recursive {
		err = os.MkdirAll(full, 0755)
	} else {
		err = os.Mkdir(full, 0755)
	}
	if err != nil {
		return fsError("mkdir", err)
	}
	return nil
}

// WriteFile creates or truncates a file.
func (f *FileSystem) WriteFile(p string, data []byte) error {
	full, err := f.resolve(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return fsError("writeFile", err)
	}
	return nil
}

// ReadFile returns a file's contents.
func (f *FileSystem) ReadFile(p string) ([]byte, error) {
	full, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fsError("readFile", err)
	}
	return data, nil
}

// Remove deletes a file or a directory tree.
func (f *FileSystem) Remove(p string) error {
	full, err := f.resolve(p)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(full); err != nil {
		return fsError("remove", err)
	}
	if err := os.RemoveAll(full); err != nil {
		return fsError("remove", err)
	}
	return nil
}

// Stat describes an entry.
func (f *FileSystem) Stat(p string) (FileStat, error) {
	full, err := f.resolve(p)
	if err != nil {
		return FileStat{}, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return FileStat{}, fsError("stat", err)
	}
	return FileStat{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()}, nil
}
