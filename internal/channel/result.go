package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ErrorReply is the error branch of a Response.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *ErrorReply) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is a reply captured by a Reply.
type Response struct {
	Text           string
	Err            *ErrorReply
	NotImplemented bool
}

// Reply is a Result that hands its first reply to a waiting goroutine.
type Reply struct {
	ch chan Response
}

func NewReply() *Reply {
	return &Reply{ch: make(chan Response, 1)}
}

func (r *Reply) send(resp Response) {
	select {
	case r.ch <- resp:
	default:
	}
}

func (r *Reply) Success(result string) {
	r.send(Response{Text: result})
}

func (r *Reply) Error(code, message, details string) {
	r.send(Response{Err: &ErrorReply{Code: code, Message: message, Details: details}})
}

func (r *Reply) NotImplemented() {
	r.send(Response{NotImplemented: true})
}

// Wait blocks until a reply arrived or ctx is done.
func (r *Reply) Wait(ctx context.Context) (Response, error) {
	select {
	case resp := <-r.ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

type onceResult struct {
	Result
	log  *slog.Logger
	mu   sync.Mutex
	sent bool
}

// Once wraps result so that replies after the first one are dropped and logged.
func Once(result Result, logger *slog.Logger) Result {
	if o, ok := result.(*onceResult); ok {
		return o
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &onceResult{Result: result, log: logger}
}

func (o *onceResult) first(kind string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sent {
		o.log.Warn("Reply already submitted", "dropped", kind)
		return false
	}
	o.sent = true
	return true
}

func (o *onceResult) Success(result string) {
	if o.first("success") {
		o.Result.Success(result)
	}
}

func (o *onceResult) Error(code, message, details string) {
	if o.first("error:" + code) {
		o.Result.Error(code, message, details)
	}
}

func (o *onceResult) NotImplemented() {
	if o.first("notImplemented") {
		o.Result.NotImplemented()
	}
}
