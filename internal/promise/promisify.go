package promise

import (
	"fmt"

	"github.com/cryguy/dualstd/internal/core"
	"github.com/cryguy/dualstd/internal/hosterr"
)

// CallbackOptions is implemented by MiniGame option values. O embeds
// core.Callbacks[R] (which provides Hooks) and returns a shallow copy of
// itself from WithCallbacks.
type CallbackOptions[O any, R any] interface {
	Hooks() core.Callbacks[R]
	WithCallbacks(cb core.Callbacks[R]) O
}

// Native is the MiniGame calling convention: one options value, a return of
// nil (callback path) or a *Future[R] (promise path).
type Native[O any] func(opts O) any

// Promisify turns a callback-style native into one returning a Future. The
// caller's own callbacks on opts still fire. A native that returns anything
// other than nil or a *Future[R] panics: the value would otherwise be lost.
func Promisify[O CallbackOptions[O, R], R any](fn Native[O]) func(O) *Future[R] {
	return func(opts O) *Future[R] {
		f := New[R]()
		user := opts.Hooks()
		wrapped := opts.WithCallbacks(core.Callbacks[R]{
			Success: func(res R) {
				f.Resolve(res)
				if user.Success != nil {
					user.Success(res)
				}
			},
			Fail: func(res core.GeneralCallbackResult) {
				f.Reject(hosterr.FromCallbackResult(res))
				if user.Fail != nil {
					user.Fail(res)
				}
			},
			Complete: user.Complete,
		})

		switch ret := fn(wrapped).(type) {
		case nil:
		case *Future[R]:
			if ret == nil {
				break
			}
			ret.Then(func(r Result[R]) {
				if r.Err != nil {
					r.Err = hosterr.From(core.RuntimeMiniGame, r.Err)
				}
				f.Settle(r)
			})
		default:
			panic(fmt.Sprintf("promise: native returned unsupported value of type %T", ret))
		}
		return f
	}
}
