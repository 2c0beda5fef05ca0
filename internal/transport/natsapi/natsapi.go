// Package natsapi exposes the method channel as a NATS micro service.
package natsapi

import (
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/johbar/tesseract-ocr-bridge/internal/channel"
	"github.com/johbar/tesseract-ocr-bridge/internal/dispatcher"
)

const (
	ServiceName = "tesseract-ocr"
	QueueGroup  = "tesseract-ocr"
	// GroupName prefixes the subjects of all endpoints.
	GroupName = "ocr"
	// InvokeEndpoint accepts a {"method","arguments"} envelope.
	InvokeEndpoint = "invoke"
)

// Invoker is implemented by *channel.MethodChannel.
type Invoker interface {
	Invoke(call channel.MethodCall, result channel.Result)
}

// RegisterNatsService adds the OCR service to nc. Replies are sent when the
// engine finished; handlers never block the subscription.
func RegisterNatsService(nc *nats.Conn, ch Invoker, log *slog.Logger) (micro.Service, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	svc, err := micro.AddService(nc, micro.Config{
		Name:        ServiceName,
		Version:     "1.0.0",
		Description: "Recognizes text in images with Tesseract",
	})
	if err != nil {
		return nil, err
	}
	h := &handler{ch: ch, log: log}
	group := svc.AddGroup(GroupName)
	for _, method := range []string{dispatcher.MethodExtractText, dispatcher.MethodExtractHocr} {
		err = group.AddEndpoint(method,
			micro.HandlerFunc(h.method(method)),
			micro.WithEndpointQueueGroup(QueueGroup))
		if err != nil {
			svc.Stop()
			return nil, err
		}
	}
	err = group.AddEndpoint(InvokeEndpoint,
		micro.HandlerFunc(h.invoke),
		micro.WithEndpointQueueGroup(QueueGroup))
	if err != nil {
		svc.Stop()
		return nil, err
	}
	log.Info("NATS service registered", "name", ServiceName, "group", GroupName)
	return svc, nil
}

type handler struct {
	ch  Invoker
	log *slog.Logger
}

// method handles requests carrying the arguments of method as payload.
func (h *handler) method(method string) micro.HandlerFunc {
	return func(req micro.Request) {
		h.log.Debug("Received NATS request", "subject", req.Subject(), "method", method)
		h.ch.Invoke(channel.MethodCall{Method: method, Arguments: req.Data()}, &result{req: req, method: method, log: h.log})
	}
}

// invoke handles {"method","arguments"} envelopes.
func (h *handler) invoke(req micro.Request) {
	var call channel.MethodCall
	if err := json.Unmarshal(req.Data(), &call); err != nil {
		if err := req.Error(dispatcher.CodeInvalidArgs, "decoding envelope: "+err.Error(), nil); err != nil {
			h.log.Error("Could not respond", "err", err)
		}
		return
	}
	h.log.Debug("Received NATS request", "subject", req.Subject(), "method", call.Method)
	h.ch.Invoke(call, &result{req: req, method: call.Method, log: h.log})
}

// result responds to a NATS request.
type result struct {
	req    micro.Request
	method string
	log    *slog.Logger
}

func (r *result) Success(text string) {
	contentType := "text/plain; charset=utf-8"
	if r.method == dispatcher.MethodExtractHocr {
		contentType = "text/html; charset=utf-8"
	}
	err := r.req.Respond([]byte(text), micro.WithHeaders(micro.Headers{"Content-Type": {contentType}}))
	r.check(err)
}

func (r *result) Error(code, message, details string) {
	var data []byte
	if details != "" {
		data = []byte(details)
	}
	r.check(r.req.Error(code, message, data))
}

func (r *result) NotImplemented() {
	r.check(r.req.Error(dispatcher.CodeNotImplemented, "method not implemented: "+r.method, nil))
}

func (r *result) check(err error) {
	if err != nil {
		r.log.Error("Could not respond to NATS request", "method", r.method, "err", err)
	}
}
