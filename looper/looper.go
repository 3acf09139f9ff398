// Package looper runs tasks one at a time on a single goroutine.
//
// A Loop is the control thread of a call: every event source (sensor samples,
// Bluetooth signals, headset hotplug, engine callbacks) posts a task and the
// loop executes those tasks strictly in order, so state owned by the loop is
// never touched concurrently.
package looper

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrQuit = errors.New("looper: loop has quit")

type Loop struct {
	name string

	mu    sync.Mutex
	queue []func()
	quit  bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	inTask   atomic.Bool
}

func New(name string) *Loop {
	return &Loop{
		name: name,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling it more than once is a no-op.
func (l *Loop) Start() {
	if l.started.Swap(true) {
		return
	}
	go l.run()
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if l.quit || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			task := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.inTask.Store(true)
			task()
			l.inTask.Store(false)
		}
	}
}

// Post queues fn and returns false if the loop has quit.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// PostDelayed queues fn after d. The returned cancel func guarantees fn will
// not run once it returns, provided it is called from the loop itself.
func (l *Loop) PostDelayed(d time.Duration, fn func()) (cancel func()) {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be called
// from a task running on the same loop.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrQuit
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrQuit
	}
}

// InTask reports whether the loop is currently executing a task.
func (l *Loop) InTask() bool { return l.inTask.Load() }

// Quit stops the loop. Queued tasks that have not started are dropped.
func (l *Loop) Quit() {
	l.mu.Lock()
	l.quit = true
	l.queue = nil
	l.mu.Unlock()
	l.stopOnce.Do(func() { close(l.stop) })
}

// Wait blocks until the loop goroutine has exited.
func (l *Loop) Wait() {
	if !l.started.Load() {
		return
	}
	<-l.done
}
