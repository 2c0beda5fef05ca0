// Package looper runs tasks one after another on a single dedicated goroutine.
package looper

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

var ErrQuitting = errors.New("looper is quitting")

// Looper executes posted tasks in order on its own goroutine.
// The queue is unbounded; Post never blocks.
type Looper struct {
	name string
	log  *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	quitting bool

	done chan struct{}
}

// New starts a looper goroutine.
func New(name string, logger *slog.Logger) *Looper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Looper{
		name: name,
		log:  logger.With("looper", name),
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.loop()
	return l
}

func (l *Looper) Name() string {
	return l.name
}

// Post enqueues task. It fails with ErrQuitting once Quit or QuitSafely was called.
func (l *Looper) Post(task func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quitting {
		return ErrQuitting
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return nil
}

// QuitSafely stops accepting tasks; tasks already queued still run.
func (l *Looper) QuitSafely() {
	l.quit(true)
}

// Quit stops accepting tasks and discards the queued ones.
// A task currently running is not interrupted.
func (l *Looper) Quit() {
	l.quit(false)
}

func (l *Looper) quit(drain bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quitting {
		return
	}
	l.quitting = true
	if !drain {
		if n := len(l.queue); n > 0 {
			l.log.Warn("Discarding queued tasks", "count", n)
		}
		l.queue = nil
	}
	l.cond.Signal()
}

// Done is closed once the looper goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the looper goroutine has exited.
func (l *Looper) Wait() {
	<-l.done
}

func (l *Looper) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) == 0 && !l.quitting {
		l.cond.Wait()
	}
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Looper) loop() {
	defer close(l.done)
	l.log.Debug("Looper started")
	for {
		task, ok := l.next()
		if !ok {
			l.log.Debug("Looper stopped")
			return
		}
		l.run(task)
	}
}

func (l *Looper) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
