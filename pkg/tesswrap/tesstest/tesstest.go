// Package tesstest provides an in-memory tesswrap.Engine that records every
// call made to it. It is meant for tests of code driving an engine.
package tesstest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap"
)

// Call is one recorded engine method invocation.
type Call struct {
	Method string
	Args   []any
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Method, c.Args)
}

// Engine is a fake tesswrap.Engine.
// The exported hooks may be set before the engine is handed to the code under
// test; they are read without synchronisation afterwards.
type Engine struct {
	// InitErr is returned by Init.
	InitErr error
	// RejectVariables lists variable names SetVariable refuses.
	RejectVariables []string
	// Recognize produces the text for an image; it may panic to simulate a
	// fault inside the engine. Defaults to "text:<image>".
	Recognize func(image string, hocr bool) (string, error)
	// Delay is slept inside every recognition.
	Delay time.Duration

	mu       sync.Mutex
	calls    []Call
	recycled bool

	active     atomic.Int32
	overlapped atomic.Bool

	image string
}

var _ tesswrap.Engine = (*Engine)(nil)

// ErrRecycled is returned (or panicked) on use after Recycle.
var ErrRecycled = errors.New("engine used after recycle")

func (e *Engine) record(method string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recycled {
		panic(ErrRecycled)
	}
	e.calls = append(e.calls, Call{Method: method, Args: args})
}

func (e *Engine) enter() func() {
	if e.active.Add(1) > 1 {
		e.overlapped.Store(true)
	}
	return func() { e.active.Add(-1) }
}

func (e *Engine) Init(datapath, language string, oem tesswrap.OEM) error {
	defer e.enter()()
	e.record("Init", datapath, language, oem)
	e.image = ""
	return e.InitErr
}

func (e *Engine) SetPageSegMode(psm tesswrap.PSM) error {
	defer e.enter()()
	e.record("SetPageSegMode", psm)
	return nil
}

func (e *Engine) SetVariable(name, value string) bool {
	defer e.enter()()
	e.record("SetVariable", name, value)
	for _, n := range e.RejectVariables {
		if n == name {
			return false
		}
	}
	return true
}

func (e *Engine) SetImage(path string) error {
	defer e.enter()()
	e.record("SetImage", path)
	e.image = path
	return nil
}

func (e *Engine) GetUTF8Text() (string, error) {
	defer e.enter()()
	e.record("GetUTF8Text")
	return e.recognize(false)
}

func (e *Engine) GetHOCRText(page int) (string, error) {
	defer e.enter()()
	e.record("GetHOCRText", page)
	return e.recognize(true)
}

func (e *Engine) recognize(hocr bool) (string, error) {
	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	if e.Recognize != nil {
		return e.Recognize(e.image, hocr)
	}
	if hocr {
		return "<div class='ocr_page'>" + e.image + "</div>", nil
	}
	return "text:" + e.image, nil
}

func (e *Engine) Recycle() {
	e.record("Recycle")
	e.mu.Lock()
	e.recycled = true
	e.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]Call, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// Methods returns the names of the recorded calls.
func (e *Engine) Methods() []string {
	calls := e.Calls()
	methods := make([]string, len(calls))
	for i, c := range calls {
		methods[i] = c.Method
	}
	return methods
}

// Recycled reports whether Recycle was called.
func (e *Engine) Recycled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recycled
}

// Overlapped reports whether two engine calls ever ran at the same time.
func (e *Engine) Overlapped() bool {
	return e.overlapped.Load()
}

// Factory returns a constructor handing out e, counting invocations in n.
func (e *Engine) Factory(n *atomic.Int32) func() (tesswrap.Engine, error) {
	return func() (tesswrap.Engine, error) {
		if n != nil {
			n.Add(1)
		}
		return e, nil
	}
}
