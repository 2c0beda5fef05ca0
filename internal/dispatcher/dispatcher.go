// Package dispatcher turns method calls into extraction tasks on the engine
// worker and relays their outcome back on the main looper.
package dispatcher

import (
	"expvar"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/johbar/tesseract-ocr-bridge/internal/cache"
	"github.com/johbar/tesseract-ocr-bridge/internal/channel"
	"github.com/johbar/tesseract-ocr-bridge/internal/engine"
	"github.com/johbar/tesseract-ocr-bridge/internal/looper"
	"github.com/johbar/tesseract-ocr-bridge/pkg/dehyphenator"
	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap"
)

// Method names understood by the dispatcher.
const (
	MethodExtractText = "extractText"
	MethodExtractHocr = "extractHocr"
)

// Outcomes counts replies by kind; exposed on /debug/vars.
var Outcomes = expvar.NewMap("tesseract_outcomes")

// Options configure a Dispatcher. The zero value is usable.
type Options struct {
	Cache cache.Cache
	// TessdataPrefix is used for requests without tessData.
	TessdataPrefix string
	Logger         *slog.Logger
}

// Dispatcher handles extractText and extractHocr calls.
type Dispatcher struct {
	engines *engine.Manager
	main    *looper.Looper
	cache   cache.Cache
	log     *slog.Logger

	tessdataPrefix string
}

// New returns a Dispatcher submitting tasks to engines and delivering replies
// on main.
func New(engines *engine.Manager, main *looper.Looper, opts Options) *Dispatcher {
	d := &Dispatcher{
		engines:        engines,
		main:           main,
		cache:          opts.Cache,
		log:            opts.Logger,
		tessdataPrefix: opts.TessdataPrefix,
	}
	if d.cache == nil {
		d.cache = &cache.NopCache{}
	}
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}
	return d
}

// OnMethodCall implements channel.MethodCallHandler.
func (d *Dispatcher) OnMethodCall(call channel.MethodCall, result channel.Result) {
	switch call.Method {
	case MethodExtractText:
		d.handleExtract(call, result, PlainText)
	case MethodExtractHocr:
		d.handleExtract(call, result, HOCR)
	default:
		Outcomes.Add(CodeNotImplemented, 1)
		result.NotImplemented()
	}
}

func (d *Dispatcher) handleExtract(call channel.MethodCall, result channel.Result, kind OutputKind) {
	log := d.log.With("req", uuid.NewString(), "method", call.Method)
	req, err := DecodeRequest(call.Arguments)
	if err != nil {
		d.fail(result, invalidArgs(err), log)
		return
	}
	if req.TessData == "" {
		req.TessData = d.tessdataPrefix
	}
	params, err := req.Normalize(kind)
	if err != nil {
		d.fail(result, invalidArgs(err), log)
		return
	}
	d.extract(params, result, log)
}

// Extract submits a normalized request. result receives exactly one reply on
// the main looper.
func (d *Dispatcher) Extract(p Params, result channel.Result) {
	d.extract(p, result, d.log.With("req", uuid.NewString(), "output", p.Output.String()))
}

func (d *Dispatcher) extract(p Params, result channel.Result, log *slog.Logger) {
	result = channel.Once(result, log)
	log.Debug("Extraction requested", "image", p.ImagePath, "language", p.Language, "oem", p.OEM, "psm", p.PSM)

	var key string
	if !cache.IsNop(d.cache) {
		var text string
		var hit bool
		if key, text, hit = d.lookup(p, log); hit {
			Outcomes.Add("cache-hit", 1)
			d.post(func() { result.Success(text) }, log)
			return
		}
	}

	err := d.engines.Submit(func(api tesswrap.Engine) {
		d.run(api, p, result, key, log)
	})
	if err != nil {
		log.Warn("Rejected extraction", "err", err)
		d.fail(result, &Error{Kind: KindEngine, Message: err.Error(), Err: err}, log)
	}
}

// lookup returns the cache key of p and the cached text, if any.
// Failures are logged and treated as a miss; key is empty if none could be computed.
func (d *Dispatcher) lookup(p Params, log *slog.Logger) (key, text string, hit bool) {
	params, err := json.Marshal(p)
	if err != nil {
		log.Warn("Could not encode cache key", "err", err)
		return "", "", false
	}
	key, err = cache.Key(p.ImagePath, params)
	if err != nil {
		// the engine reports the unreadable image
		log.Debug("No cache key", "err", err)
		return "", "", false
	}
	text, hit, err = d.cache.Get(key)
	if err != nil {
		log.Warn("Cache lookup failed", "err", err, "key", key)
		return key, "", false
	}
	if hit {
		log.Debug("Serving text from cache", "key", key)
	}
	return key, text, hit
}

// run executes on the engine worker.
func (d *Dispatcher) run(api tesswrap.Engine, p Params, result channel.Result, key string, log *slog.Logger) {
	start := time.Now()
	replied := false
	defer func() {
		if r := recover(); r != nil {
			d.fail(result, panicError(r), log)
		}
	}()

	if err := api.Init(p.TessData, p.Language, p.OEM); err != nil {
		// The caller learns about the failure now, yet the remaining steps
		// still run on the engine and their reply is dropped.
		// TODO: decide whether an init failure should abort the request.
		log.Warn("Engine init failed, continuing", "err", err)
		d.fail(result, initError(p, err), log)
		replied = true
	}
	if err := api.SetPageSegMode(p.PSM); err != nil {
		d.fail(result, engineError(err), log)
		return
	}
	for _, v := range p.Variables {
		if !api.SetVariable(v.Name, v.Value) {
			log.Warn("Engine rejected variable", "name", v.Name, "value", v.Value)
		}
	}
	if err := api.SetImage(p.ImagePath); err != nil {
		d.fail(result, engineError(err), log)
		return
	}

	var text string
	var err error
	if p.Output == HOCR {
		text, err = api.GetHOCRText(0)
	} else {
		text, err = api.GetUTF8Text()
	}
	if err == nil && p.Dehyphenate {
		if joined, derr := dehyphenator.String(text, false); derr != nil {
			log.Warn("Dehyphenation failed, returning text as recognized", "err", derr)
		} else {
			text = joined
		}
	}
	if err != nil {
		d.fail(result, engineError(err), log)
		return
	}
	log.Info("Recognition finished", "image", p.ImagePath, "chars", len(text), "duration", time.Since(start), "afterInitFailure", replied)

	if !replied {
		Outcomes.Add("success", 1)
		if key != "" {
			go d.store(key, text, log)
		}
	}
	d.post(func() { result.Success(text) }, log)
}

func (d *Dispatcher) store(key, text string, log *slog.Logger) {
	for i := 0; i <= 3; i++ {
		err := d.cache.Put(key, text)
		if err == nil {
			return
		}
		log.Warn("Could not save text to cache", "retries", i, "key", key, "err", err)
	}
}

func (d *Dispatcher) fail(result channel.Result, e *Error, log *slog.Logger) {
	Outcomes.Add(e.Code(), 1)
	if e.Kind == KindEngine && e.Trace != "" {
		log.Error("Extraction failed", "err", e.Message)
	}
	d.post(func() { result.Error(e.Code(), e.Message, e.Trace) }, log)
}

// post delivers a reply on the main looper. If the main looper is already
// gone the reply is delivered on the current goroutine.
func (d *Dispatcher) post(reply func(), log *slog.Logger) {
	if d.main == nil {
		reply()
		return
	}
	if err := d.main.Post(reply); err != nil {
		log.Debug("Main looper stopped, replying directly")
		reply()
	}
}
