package fs

import (
	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

type webFS struct {
	fsys *webhost.FileSystem // nil without a data directory
}

func settleWeb(err error) *promise.Future[struct{}] {
	if err != nil {
		return promise.Rejected[struct{}](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(struct{}{})
}

func (w *webFS) Mkdir(p string, recursive bool) *promise.Future[struct{}] {
	if w.fsys == nil {
		return promise.Rejected[struct{}](ErrUnavailable)
	}
	return ensure(settleWeb(w.fsys.Mkdir(p, recursive)))
}

func (w *webFS) WriteFile(p string, data []byte) *promise.Future[struct{}] {
	if w.fsys == nil {
		return promise.Rejected[struct{}](ErrUnavailable)
	}
	return settleWeb(w.fsys.WriteFile(p, data))
}

func (w *webFS) ReadFile(p string) *promise.Future[[]byte] {
	if w.fsys == nil {
		return promise.Rejected[[]byte](ErrUnavailable)
	}
	data, err := w.fsys.ReadFile(p)
	if err != nil {
		return promise.Rejected[[]byte](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(data)
}

func (w *webFS) Remove(p string) *promise.Future[struct{}] {
	if w.fsys == nil {
		return promise.Rejected[struct{}](ErrUnavailable)
	}
	return settleWeb(w.fsys.Remove(p))
}

func (w *webFS) Stat(p string) *promise.Future[FileInfo] {
	if w.fsys == nil {
		return promise.Rejected[FileInfo](ErrUnavailable)
	}
	st, err := w.fsys.Stat(p)
	if err != nil {
		return promise.Rejected[FileInfo](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(FileInfo{Name: st.Name, Size: st.Size, IsDir: st.IsDir, ModTime: st.ModTime})
}

func (w *webFS) Exists(p string) *promise.Future[bool] {
	if w.fsys == nil {
		return promise.Rejected[bool](ErrUnavailable)
	}
	_, err := w.fsys.Stat(p)
	return exists(settleWeb(err))
}
