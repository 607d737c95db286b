package core

// GeneralCallbackResult is the failure value every MiniGame native hands to
// its fail callback.
type GeneralCallbackResult struct {
	ErrMsg  string
	ErrCode int
}

// Callbacks is the success/fail/complete triple carried by MiniGame native
// option values. Option structs embed it.
type Callbacks[R any] struct {
	Success  func(res R)
	Fail     func(err GeneralCallbackResult)
	Complete func()
}

// Hooks returns the callbacks as set by the caller.
func (c Callbacks[R]) Hooks() Callbacks[R] { return c }

// Succeed invokes Success then Complete, skipping nil members.
func (c Callbacks[R]) Succeed(res R) {
	if c.Success != nil {
		c.Success(res)
	}
	if c.Complete != nil {
		c.Complete()
	}
}

// Failed invokes Fail then Complete, skipping nil members.
func (c Callbacks[R]) Failed(err GeneralCallbackResult) {
	if c.Fail != nil {
		c.Fail(err)
	}
	if c.Complete != nil {
		c.Complete()
	}
}

// Empty reports whether no callback is set.
func (c Callbacks[R]) Empty() bool {
	return c.Success == nil && c.Fail == nil && c.Complete == nil
}
