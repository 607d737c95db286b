package minihost

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/promise"
)

// SetStorageOption stores Data under Key.
type SetStorageOption struct {
	Key  string
	Data string
	core.Callbacks[struct{}]
}

func (o SetStorageOption) WithCallbacks(cb core.Callbacks[struct{}]) SetStorageOption {
	o.Callbacks = cb
	return o
}

// GetStorageSuccess is the success payload of GetStorage.
type GetStorageSuccess struct {
	Data string
}

// GetStorageOption reads Key.
type GetStorageOption struct {
	Key string
	core.Callbacks[GetStorageSuccess]
}

func (o GetStorageOption) WithCallbacks(cb core.Callbacks[GetStorageSuccess]) GetStorageOption {
	o.Callbacks = cb
	return o
}

// RemoveStorageOption deletes Key.
type RemoveStorageOption struct {
	Key string
	core.Callbacks[struct{}]
}

func (o RemoveStorageOption) WithCallbacks(cb core.Callbacks[struct{}]) RemoveStorageOption {
	o.Callbacks = cb
	return o
}

// ClearStorageOption deletes every key.
type ClearStorageOption struct {
	core.Callbacks[struct{}]
}

func (o ClearStorageOption) WithCallbacks(cb core.Callbacks[struct{}]) ClearStorageOption {
	o.Callbacks = cb
	return o
}

// StorageInfo reports sizes in KB, like the native.
type StorageInfo struct {
	Keys        []string
	CurrentSize int
	LimitSize   int
}

// GetStorageInfoOption requests StorageInfo.
type GetStorageInfoOption struct {
	core.Callbacks[StorageInfo]
}

func (o GetStorageInfoOption) WithCallbacks(cb core.Callbacks[StorageInfo]) GetStorageInfoOption {
	o.Callbacks = cb
	return o
}

// settle reports through callbacks when any are set, otherwise through the
// returned future (the native promise form used when no callback is passed).
func settle[R any](h *Host, cb core.Callbacks[R], res R, errMsg string) any {
	if cb.Empty() {
		f := promise.New[R]()
		ok := h.post(func() {
			if errMsg != "" {
				f.Reject(errors.New(errMsg))
				return
			}
			f.Resolve(res)
		})
		if !ok {
			f.Reject(errors.New(ErrMsgRuntimeClosed))
		}
		return f
	}
	if errMsg != "" {
		fail(h, cb, errMsg, 0)
		return nil
	}
	succeed(h, cb, res)
	return nil
}

// SetStorage stores a value, failing when the quota would be exceeded.
func (h *Host) SetStorage(opts SetStorageOption) any {
	if opts.Key == "" {
		return settle(h, opts.Callbacks, struct{}{}, "setStorage:fail parameter error: key should not be empty")
	}
	h.storeMu.Lock()
	prev, had := h.store[opts.Key]
	next := h.storeSize + len(opts.Key) + len(opts.Data)
	if had {
		next -= len(opts.Key) + len(prev)
	}
	if next > h.cfg.StorageQuota() {
		h.storeMu.Unlock()
		return settle(h, opts.Callbacks, struct{}{}, fmt.Sprintf("setStorage:fail exceed storage max size %dMB", h.cfg.StorageQuota()>>20))
	}
	h.store[opts.Key] = opts.Data
	h.storeSize = next
	h.storeMu.Unlock()
	return settle(h, opts.Callbacks, struct{}{}, "")
}

// GetStorage reads a value; a missing key fails with "data not found".
func (h *Host) GetStorage(opts GetStorageOption) any {
	h.storeMu.Lock()
	v, ok := h.store[opts.Key]
	h.storeMu.Unlock()
	if !ok {
		return settle(h, opts.Callbacks, GetStorageSuccess{}, "getStorage:fail data not found")
	}
	return settle(h, opts.Callbacks, GetStorageSuccess{Data: v}, "")
}

// RemoveStorage deletes a key. Missing keys succeed.
func (h *Host) RemoveStorage(opts RemoveStorageOption) any {
	h.storeMu.Lock()
	if prev, ok := h.store[opts.Key]; ok {
		h.storeSize -= len(opts.Key) + len(prev)
		delete(h.store, opts.Key)
	}
	h.storeMu.Unlock()
	return settle(h, opts.Callbacks, struct{}{}, "")
}

// ClearStorage deletes every key.
func (h *Host) ClearStorage(opts ClearStorageOption) any {
	h.storeMu.Lock()
	h.store = make(map[string]string)
	h.storeSize = 0
	h.storeMu.Unlock()
	return settle(h, opts.Callbacks, struct{}{}, "")
}

// GetStorageInfo reports the stored keys and sizes.
func (h *Host) GetStorageInfo(opts GetStorageInfoOption) any {
	h.storeMu.Lock()
	keys := make([]string, 0, len(h.store))
	for k := range h.store {
		keys = append(keys, k)
	}
	size := h.storeSize
	h.storeMu.Unlock()
	sort.Strings(keys)
	return settle(h, opts.Callbacks, StorageInfo{
		Keys:        keys,
		CurrentSize: (size + 1023) / 1024,
		LimitSize:   h.cfg.StorageQuota() / 1024,
	}, "")
}
