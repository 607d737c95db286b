// Package storage is a small key/value store over the runtime's persistent
// storage: localStorage on the Web runtime and the storage natives on the
// MiniGame runtime.
package storage

import (
	"errors"
	"fmt"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
	"github.com/cryguy/dualstd/internal/minihost"
	"github.com/cryguy/dualstd/internal/promise"
	"github.com/cryguy/dualstd/internal/webhost"
)

// Storage is implemented once per runtime. Get on a missing key fails with
// a NotFoundError on both.
type Storage interface {
	Set(key, value string) *promise.Future[struct{}]
	Get(key string) *promise.Future[string]
	Remove(key string) *promise.Future[struct{}]
	Clear() *promise.Future[struct{}]
	Length() *promise.Future[int]
	Keys() *promise.Future[[]string] // sorted
}

// New binds the implementation for cfg.Runtime.
func New(cfg core.Config, win *webhost.Window, host *minihost.Host) (Storage, error) {
	switch cfg.Runtime {
	case core.RuntimeWeb:
		if win == nil {
			return nil, errors.New("storage: web runtime without a window")
		}
		return &webStorage{ls: win.LocalStorage}, nil
	case core.RuntimeMiniGame:
		if host == nil {
			return nil, errors.New("storage: minigame runtime without a host")
		}
		return newMiniStorage(host), nil
	}
	return nil, fmt.Errorf("storage: unknown runtime %v", cfg.Runtime)
}

type webStorage struct {
	ls *webhost.LocalStorage
}

func (s *webStorage) Set(key, value string) *promise.Future[struct{}] {
	if err := s.ls.SetItem(key, value); err != nil {
		return promise.Rejected[struct{}](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(struct{}{})
}

func (s *webStorage) Get(key string) *promise.Future[string] {
	v, ok, err := s.ls.GetItem(key)
	if err != nil {
		return promise.Rejected[string](hosterr.From(core.RuntimeWeb, err))
	}
	if !ok {
		// getItem returns null; report it like the MiniGame runtime does.
		return promise.Rejected[string](hosterr.New(hosterr.KindNotFound, "storage: data not found: "+key))
	}
	return promise.Resolved(v)
}

func (s *webStorage) Remove(key string) *promise.Future[struct{}] {
	if err := s.ls.RemoveItem(key); err != nil {
		return promise.Rejected[struct{}](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(struct{}{})
}

func (s *webStorage) Clear() *promise.Future[struct{}] {
	if err := s.ls.Clear(); err != nil {
		return promise.Rejected[struct{}](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(struct{}{})
}

func (s *webStorage) Length() *promise.Future[int] {
	n, err := s.ls.Length()
	if err != nil {
		return promise.Rejected[int](hosterr.From(core.RuntimeWeb, err))
	}
	return promise.Resolved(n)
}

func (s *webStorage) Keys() *promise.Future[[]string] {
	keys, err := s.ls.Keys()
	if err != nil {
		return promise.Rejected[[]string](hosterr.From(core.RuntimeWeb, err))
	}
	if keys == nil {
		keys = []string{}
	}
	return promise.Resolved(keys)
}

// miniStorage holds the promisified natives, built once.
type miniStorage struct {
	set    func(minihost.SetStorageOption) *promise.Future[struct{}]
	get    func(minihost.GetStorageOption) *promise.Future[minihost.GetStorageSuccess]
	remove func(minihost.RemoveStorageOption) *promise.Future[struct{}]
	clear  func(minihost.ClearStorageOption) *promise.Future[struct{}]
	info   func(minihost.GetStorageInfoOption) *promise.Future[minihost.StorageInfo]
}

func newMiniStorage(h *minihost.Host) *miniStorage {
	return &miniStorage{
		set:    promise.Promisify[minihost.SetStorageOption, struct{}](h.SetStorage),
		get:    promise.Promisify[minihost.GetStorageOption, minihost.GetStorageSuccess](h.GetStorage),
		remove: promise.Promisify[minihost.RemoveStorageOption, struct{}](h.RemoveStorage),
		clear:  promise.Promisify[minihost.ClearStorageOption, struct{}](h.ClearStorage),
		info:   promise.Promisify[minihost.GetStorageInfoOption, minihost.StorageInfo](h.GetStorageInfo),
	}
}

func (s *miniStorage) Set(key, value string) *promise.Future[struct{}] {
	return s.set(minihost.SetStorageOption{Key: key, Data: value})
}

func (s *miniStorage) Get(key string) *promise.Future[string] {
	return promise.Map(s.get(minihost.GetStorageOption{Key: key}), func(r minihost.GetStorageSuccess) string {
		return r.Data
	})
}

func (s *miniStorage) Remove(key string) *promise.Future[struct{}] {
	return s.remove(minihost.RemoveStorageOption{Key: key})
}

func (s *miniStorage) Clear() *promise.Future[struct{}] {
	return s.clear(minihost.ClearStorageOption{})
}

func (s *miniStorage) Length() *promise.Future[int] {
	return promise.Map(s.info(minihost.GetStorageInfoOption{}), func(r minihost.StorageInfo) int {
		return len(r.Keys)
	})
}

func (s *miniStorage) Keys() *promise.Future[[]string] {
	return promise.Map(s.info(minihost.GetStorageInfoOption{}), func(r minihost.StorageInfo) []string {
		if r.Keys == nil {
			return []string{}
		}
		return r.Keys
	})
}
