package webhost

import (
	"sync"
	"time"

	"github.com/cryguy/dualstd/internal/eventloop"
)

// AbortSignal reports an abort once. Listeners registered with OnAbort run
// once, on the goroutine that aborts.
type AbortSignal struct {
	mu        sync.Mutex
	aborted   bool
	reason    error
	done      chan struct{}
	listeners []func()
	stop      func() // cancels a pending timeout, nil otherwise
}

func newAbortSignal() *AbortSignal {
	return &AbortSignal{done: make(chan struct{})}
}

// Aborted reports whether the signal fired.
func (s *AbortSignal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the abort reason, nil before abort.
func (s *AbortSignal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done is closed when the signal fires.
func (s *AbortSignal) Done() <-chan struct{} { return s.done }

// OnAbort registers fn to run once on abort. It runs immediately when the
// signal already fired.
func (s *AbortSignal) OnAbort(fn func()) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		fn()
		return
	}
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *AbortSignal) abort(reason error) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = reason
	listeners := s.listeners
	s.listeners = nil
	close(s.done)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// AbortController owns an AbortSignal.
type AbortController struct {
	signal *AbortSignal
}

// NewAbortController returns a controller with a fresh signal.
func NewAbortController() *AbortController {
	return &AbortController{signal: newAbortSignal()}
}

// Signal returns the controlled signal.
func (c *AbortController) Signal() *AbortSignal { return c.signal }

// Abort fires the signal with an AbortError (or reason when non-nil). Later
// calls are no-ops.
func (c *AbortController) Abort(reason error) {
	if reason == nil {
		reason = domError("AbortError", "The operation was aborted.")
	}
	c.signal.abort(reason)
}

// AbortSignalTimeout returns a signal that fires with a TimeoutError after d.
// The timer runs on loop, so closing the loop cancels it.
func AbortSignalTimeout(loop *eventloop.EventLoop, d time.Duration) *AbortSignal {
	s := newAbortSignal()
	id := loop.SetTimeout(d, func() {
		s.abort(domError("TimeoutError", "The operation timed out."))
	})
	s.stop = func() { loop.ClearTimer(id) }
	return s
}

// release cancels the signal's pending timeout, if any.
func (s *AbortSignal) release() {
	if s.stop != nil {
		s.stop()
	}
}

// AbortSignalAny returns a signal that fires when any of signals fires, with
// that signal's reason.
func AbortSignalAny(signals ...*AbortSignal) *AbortSignal {
	out := newAbortSignal()
	for _, s := range signals {
		if s == nil {
			continue
		}
		s := s
		s.OnAbort(func() { out.abort(s.Reason()) })
	}
	return out
}
