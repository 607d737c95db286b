package minihost

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/promise"
)

// maxRandomValues is the largest Length GetRandomValues accepts.
const maxRandomValues = 1024 * 1024

// RandomValuesSuccess carries the random bytes.
type RandomValuesSuccess struct {
	RandomValues []byte
}

// GetRandomValuesOption requests Length random bytes.
type GetRandomValuesOption struct {
	Length int
	core.Callbacks[RandomValuesSuccess]
}

func (o GetRandomValuesOption) WithCallbacks(cb core.Callbacks[RandomValuesSuccess]) GetRandomValuesOption {
	o.Callbacks = cb
	return o
}

// GetRandomValues always returns a *promise.Future, whether or not callbacks
// are set; callbacks fire as well.
func (h *Host) GetRandomValues(opts GetRandomValuesOption) any {
	f := promise.New[RandomValuesSuccess]()
	cb := opts.Callbacks
	ok := h.post(func() {
		if opts.Length <= 0 || opts.Length > maxRandomValues {
			msg := fmt.Sprintf("getRandomValues:fail invalid length %d", opts.Length)
			cb.Failed(core.GeneralCallbackResult{ErrMsg: msg})
			f.Reject(errors.New(msg))
			return
		}
		buf := make([]byte, opts.Length)
		if _, err := rand.Read(buf); err != nil {
			msg := "getRandomValues:fail " + err.Error()
			cb.Failed(core.GeneralCallbackResult{ErrMsg: msg})
			f.Reject(errors.New(msg))
			return
		}
		res := RandomValuesSuccess{RandomValues: buf}
		cb.Succeed(res)
		f.Resolve(res)
	})
	if !ok {
		cb.Failed(core.GeneralCallbackResult{ErrMsg: ErrMsgRuntimeClosed})
		f.Reject(errors.New(ErrMsgRuntimeClosed))
	}
	return f
}
