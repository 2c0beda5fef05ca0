// Package channel implements a named method channel: callers invoke methods
// by name with JSON arguments and receive exactly one reply through a Result.
package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
)

// MethodCall is a method invocation arriving at the channel.
type MethodCall struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Result receives the reply to a MethodCall.
// Exactly one of its methods should be called, once.
type Result interface {
	Success(result string)
	Error(code, message, details string)
	NotImplemented()
}

// MethodCallHandler handles calls received on a channel.
type MethodCallHandler interface {
	OnMethodCall(call MethodCall, result Result)
}

// MethodCallHandlerFunc adapts a function to MethodCallHandler.
type MethodCallHandlerFunc func(call MethodCall, result Result)

func (f MethodCallHandlerFunc) OnMethodCall(call MethodCall, result Result) {
	f(call, result)
}

// MethodChannel dispatches calls to the currently registered handler.
// Calls arriving while no handler is set are answered with NotImplemented.
type MethodChannel struct {
	name string
	log  *slog.Logger

	mu      sync.RWMutex
	handler MethodCallHandler
}

func New(name string, logger *slog.Logger) *MethodChannel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MethodChannel{name: name, log: logger.With("channel", name)}
}

func (c *MethodChannel) Name() string {
	return c.name
}

// SetMethodCallHandler registers h. A nil h unregisters the current handler.
func (c *MethodChannel) SetMethodCallHandler(h MethodCallHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// HasHandler reports whether a handler is registered.
func (c *MethodChannel) HasHandler() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler != nil
}

// Invoke passes call to the registered handler. result is wrapped so that only
// its first reply is delivered.
func (c *MethodChannel) Invoke(call MethodCall, result Result) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	result = Once(result, c.log.With("method", call.Method))
	if h == nil {
		c.log.Debug("No handler registered", "method", call.Method)
		result.NotImplemented()
		return
	}
	h.OnMethodCall(call, result)
}

// Call invokes call and waits for its reply or for ctx to be done.
// The method keeps running when ctx ends first; its reply is dropped.
func (c *MethodChannel) Call(ctx context.Context, call MethodCall) (Response, error) {
	reply := NewReply()
	c.Invoke(call, reply)
	return reply.Wait(ctx)
}
