// Package engine owns the single Tesseract handle of the process and the
// worker goroutine every call into it runs on.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/johbar/tesseract-ocr-bridge/internal/looper"
	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap"
)

var (
	ErrDetached        = errors.New("engine is not attached")
	ErrAlreadyAttached = errors.New("engine is already attached")
)

// Factory constructs an engine handle. It is called on the worker goroutine.
type Factory func() (tesswrap.Engine, error)

// Task is run on the worker with exclusive access to the engine.
type Task func(api tesswrap.Engine)

// Manager binds one engine handle to one worker.
// The handle is only ever passed to tasks running on that worker.
type Manager struct {
	newEngine Factory
	log       *slog.Logger

	mu     sync.Mutex
	worker *looper.Looper

	// accessed on the worker only
	api tesswrap.Engine
}

// NewManager returns a detached Manager. A nil factory means tesswrap.New.
func NewManager(factory Factory, logger *slog.Logger) *Manager {
	if factory == nil {
		factory = tesswrap.New
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{newEngine: factory, log: logger}
}

// Attach starts the worker and constructs the engine on it.
// It returns once construction finished.
func (m *Manager) Attach() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.worker != nil {
		return ErrAlreadyAttached
	}
	worker := looper.New("tesseract", m.log)
	created := make(chan error, 1)
	_ = worker.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				created <- fmt.Errorf("constructing engine: %v", r)
			}
		}()
		api, err := m.newEngine()
		if err != nil {
			created <- err
			return
		}
		m.api = api
		created <- nil
	})
	if err := <-created; err != nil {
		worker.Quit()
		worker.Wait()
		return fmt.Errorf("creating tesseract engine: %w", err)
	}
	m.worker = worker
	m.log.Info("Engine attached", "backend", tesswrap.Backend, "version", tesswrap.Version)
	return nil
}

// Attached reports whether requests are currently accepted.
func (m *Manager) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worker != nil
}

// Submit queues task on the worker. Tasks run in submission order.
func (m *Manager) Submit(task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.worker == nil {
		return ErrDetached
	}
	err := m.worker.Post(func() {
		if m.api == nil {
			m.log.Warn("Dropping task: engine already released")
			return
		}
		task(m.api)
	})
	if err != nil {
		return ErrDetached
	}
	return nil
}

// Detach rejects further submissions, releases the engine on the worker after
// all queued tasks ran and waits for the worker to stop.
func (m *Manager) Detach() {
	m.mu.Lock()
	worker := m.worker
	m.worker = nil
	if worker != nil {
		_ = worker.Post(func() {
			m.api.Recycle()
			m.api = nil
		})
		worker.QuitSafely()
	}
	m.mu.Unlock()

	if worker == nil {
		return
	}
	worker.Wait()
	m.log.Info("Engine detached")
}
