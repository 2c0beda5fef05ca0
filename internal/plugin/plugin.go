// Package plugin ties the engine manager, the main looper and the dispatcher
// to a host's attach and detach lifecycle.
package plugin

import (
	"log/slog"
	"sync"

	"github.com/johbar/tesseract-ocr-bridge/internal/cache"
	"github.com/johbar/tesseract-ocr-bridge/internal/channel"
	"github.com/johbar/tesseract-ocr-bridge/internal/dispatcher"
	"github.com/johbar/tesseract-ocr-bridge/internal/engine"
	"github.com/johbar/tesseract-ocr-bridge/internal/looper"
)

// ChannelName is the name of the method channel the plugin listens on.
const ChannelName = "tesseract_ocr"

type Options struct {
	// Factory constructs the engine; nil selects the backend of this build.
	Factory engine.Factory
	Cache   cache.Cache
	// TessdataPrefix is used for requests without tessData.
	TessdataPrefix string
	Logger         *slog.Logger
}

// Plugin owns one engine for the time it is attached.
type Plugin struct {
	opts    Options
	log     *slog.Logger
	channel *channel.MethodChannel

	mu         sync.Mutex
	main       *looper.Looper
	engines    *engine.Manager
	dispatcher *dispatcher.Dispatcher
}

func New(opts Options) *Plugin {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Plugin{
		opts:    opts,
		log:     opts.Logger,
		channel: channel.New(ChannelName, opts.Logger),
	}
}

// Channel returns the channel the plugin answers on. Transports invoke
// methods on it.
func (p *Plugin) Channel() *channel.MethodChannel {
	return p.channel
}

// Attach starts the main looper, constructs the engine on its worker and
// registers the dispatcher on the channel. Requests are accepted once Attach
// returned without error.
func (p *Plugin) Attach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engines != nil {
		return engine.ErrAlreadyAttached
	}
	main := looper.New("main", p.log)
	engines := engine.NewManager(p.opts.Factory, p.log)
	if err := engines.Attach(); err != nil {
		main.QuitSafely()
		main.Wait()
		return err
	}
	p.main = main
	p.engines = engines
	p.dispatcher = dispatcher.New(engines, main, dispatcher.Options{
		Cache:          p.opts.Cache,
		TessdataPrefix: p.opts.TessdataPrefix,
		Logger:         p.log,
	})
	p.channel.SetMethodCallHandler(p.dispatcher)
	p.log.Info("Plugin attached", "channel", ChannelName)
	return nil
}

// Detach unregisters the handler, waits for queued requests, releases the
// engine and stops the main looper after it delivered all pending replies.
// Calls arriving afterwards are answered with NotImplemented.
func (p *Plugin) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engines == nil {
		return
	}
	p.channel.SetMethodCallHandler(nil)
	p.engines.Detach()
	p.main.QuitSafely()
	p.main.Wait()
	p.main, p.engines, p.dispatcher = nil, nil, nil
	p.log.Info("Plugin detached", "channel", ChannelName)
}

// Attached reports whether the plugin currently owns an engine.
func (p *Plugin) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engines != nil && p.engines.Attached()
}

// Dispatcher returns the active dispatcher or nil if detached.
func (p *Plugin) Dispatcher() *dispatcher.Dispatcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatcher
}
