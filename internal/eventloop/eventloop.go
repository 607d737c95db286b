package eventloop

import (
	"bytes"
	"log"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// timerEntry represents a pending SetTimeout callback.
type timerEntry struct {
	timer   *time.Timer
	id      int
	fn      func()
	cleared bool
}

// EventLoop runs host callbacks one at a time on a single goroutine, in the
// order they were posted. I/O goroutines never touch host state directly;
// they post tasks here.
type EventLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	timers  map[int]*timerEntry
	nextID  int
	closed  bool
	stopped chan struct{}
	loopID  uint64 // goroutine running the loop

	onUncaught func(v any)
}

// New creates and starts an EventLoop. onUncaught receives values recovered
// from panicking tasks; nil logs them.
func New(onUncaught func(v any)) *EventLoop {
	el := &EventLoop{
		tasks:      queue.New(),
		timers:     make(map[int]*timerEntry),
		stopped:    make(chan struct{}),
		onUncaught: onUncaught,
	}
	el.cond = sync.NewCond(&el.mu)
	go el.run()
	return el
}

// Post schedules fn to run on the loop. It returns false once the loop is
// closed.
func (el *EventLoop) Post(fn func()) bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.closed {
		return false
	}
	el.tasks.Add(fn)
	el.cond.Signal()
	return true
}

// PostOrRun posts fn, or runs it on the calling goroutine once the loop is
// closed. It is for settling results that must not be dropped.
func (el *EventLoop) PostOrRun(fn func()) {
	if !el.Post(fn) {
		fn()
	}
}

// SetTimeout runs fn on the loop after delay and returns the timer ID.
// Close cancels timers that have not fired.
func (el *EventLoop) SetTimeout(delay time.Duration, fn func()) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.nextID++
	entry := &timerEntry{id: el.nextID, fn: fn}
	if el.closed {
		return entry.id
	}
	el.timers[entry.id] = entry
	entry.timer = time.AfterFunc(delay, func() { el.fireTimer(entry) })
	return entry.id
}

// fireTimer runs on the time package's goroutine and hands the callback to
// the loop.
func (el *EventLoop) fireTimer(entry *timerEntry) {
	el.Post(func() {
		el.mu.Lock()
		if entry.cleared {
			el.mu.Unlock()
			return
		}
		delete(el.timers, entry.id)
		el.mu.Unlock()
		entry.fn()
	})
}

// ClearTimer cancels a timer by ID. Unknown or fired IDs are ignored.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if t, ok := el.timers[id]; ok {
		t.cleared = true
		t.timer.Stop()
		delete(el.timers, id)
	}
}

// Close stops accepting tasks, cancels timers and waits for queued tasks to
// finish. Called from a task, it returns at once and the loop exits after
// that task returns.
func (el *EventLoop) Close() {
	el.mu.Lock()
	if !el.closed {
		el.closed = true
		for id, t := range el.timers {
			t.cleared = true
			t.timer.Stop()
			delete(el.timers, id)
		}
		el.cond.Signal()
	}
	onLoop := el.loopID != 0 && el.loopID == goroutineID()
	el.mu.Unlock()
	if onLoop {
		return
	}
	<-el.stopped
}

// Done is closed once the loop has exited.
func (el *EventLoop) Done() <-chan struct{} { return el.stopped }

// goroutineID parses the current goroutine's id from its stack header
// ("goroutine 42 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}

func (el *EventLoop) run() {
	defer close(el.stopped)
	el.mu.Lock()
	el.loopID = goroutineID()
	el.mu.Unlock()
	for {
		el.mu.Lock()
		for el.tasks.Length() == 0 && !el.closed {
			el.cond.Wait()
		}
		if el.tasks.Length() == 0 {
			el.mu.Unlock()
			return
		}
		fn := el.tasks.Remove().(func())
		el.mu.Unlock()

		el.runTask(fn)
	}
}

// runTask isolates a panicking task so the remaining queue still drains.
func (el *EventLoop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			el.reportUncaught(r)
		}
	}()
	fn()
}

func (el *EventLoop) reportUncaught(v any) {
	if el.onUncaught != nil {
		el.onUncaught(v)
		return
	}
	log.Printf("dualstd: uncaught exception in host callback: %v", v)
}
