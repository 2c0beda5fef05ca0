package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/johbar/tesseract-ocr-bridge/internal/cache"
	natsconn "github.com/johbar/tesseract-ocr-bridge/internal/cache/nats"
	"github.com/johbar/tesseract-ocr-bridge/internal/config"
	"github.com/johbar/tesseract-ocr-bridge/internal/plugin"
	"github.com/johbar/tesseract-ocr-bridge/internal/transport/httpapi"
	"github.com/johbar/tesseract-ocr-bridge/internal/transport/natsapi"
	"github.com/johbar/tesseract-ocr-bridge/pkg/tesswrap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve OCR requests over HTTP and NATS",
		Long: `Serve OCR requests over HTTP and NATS until interrupted.
The service is configured with TES_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewTesConfigFromEnv()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf)
		},
	}
}

func serve(ctx context.Context, conf *config.TesConfig) error {
	logger := conf.NewLogger()
	if os.Getenv("GOMEMLIMIT") != "" {
		logger.Info("GOMEMLIMIT", "Bytes", debug.SetMemoryLimit(-1), "MBytes", debug.SetMemoryLimit(-1)/1024/1024)
	}
	if buildinfo, ok := debug.ReadBuildInfo(); ok {
		logger.Debug("Info", "buildinfo", buildinfo)
	}
	if !tesswrap.Initialized {
		logger.Warn("Tesseract is not available. Every request will fail.", "backend", tesswrap.Backend)
	}
	logger.Info("Using tesseract", "backend", tesswrap.Backend, "version", tesswrap.Version)

	nc, shutdownNats, err := natsconn.Connect(*conf, logger)
	if err != nil {
		if conf.FailWithoutJetstream || conf.NoHttp {
			return err
		}
		logger.Warn("Continuing without NATS", "err", err)
		nc, shutdownNats = nil, func() {}
	}
	defer shutdownNats()

	var textCache cache.Cache = &cache.NopCache{}
	if conf.Cache && nc != nil {
		c, err := cache.New(*conf, logger, nc)
		switch {
		case err == nil:
			textCache = c
		case conf.FailWithoutJetstream:
			return err
		default:
			logger.Warn("Cache disabled", "err", err)
		}
	}

	p := plugin.New(plugin.Options{
		Cache:          textCache,
		TessdataPrefix: conf.TessdataPrefix,
		Logger:         logger,
	})
	if err := p.Attach(); err != nil {
		return err
	}
	defer p.Detach()

	if nc == nil && conf.NoHttp {
		return errors.New("NATS not connected and HTTP disabled")
	}
	g, ctx := errgroup.WithContext(ctx)
	if nc != nil {
		svc, err := natsapi.RegisterNatsService(nc, p.Channel(), logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return svc.Stop()
		})
	}
	if !conf.NoHttp {
		srv := httpapi.New(p.Channel(), httpapi.Options{
			MaxImageSize: int64(conf.MaxImageSizeBytes),
			Health: func() httpapi.Health {
				return httpapi.Health{Backend: tesswrap.Backend, Version: tesswrap.Version, Attached: p.Attached()}
			},
			Logger: logger,
		})
		g.Go(func() error {
			return srv.ListenAndServe(ctx, conf.SrvAddr)
		})
	} else {
		logger.Info("Service started with no HTTP endpoints. Waiting for interrupt.")
	}
	err = g.Wait()
	logger.Info("Shutting down", "err", err)
	return err
}
