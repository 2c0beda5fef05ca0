package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go-simpler.org/env"
)

// TesConfig represents the configuration of this service
type TesConfig struct {
	// Name of the object store bucket in NATS caching recognized text. Default: TES_OCR_TEXTS
	Bucket string `env:"TES_BUCKET" default:"TES_OCR_TEXTS"`
	// Cache recognized text in the NATS object store. Default: false
	Cache bool `env:"TES_CACHE" default:"false"`
	// wether to expose embedded NATS server to other clients. Default: false
	ExposeNats bool `env:"TES_EXPOSE_NATS" default:"false"`
	// Add source info to log statement. Default: false
	Debug bool `env:"TES_DEBUG" default:"false"`
	// If true the service will exit with an error if NATS or JetStream can't be connected
	FailWithoutJetstream bool `env:"TES_FAIL_WITHOUT_JS" default:"true"`
	// Log level (DEBUG, INFO, WARN, ERROR)
	LogLevelStr string `env:"TES_LOG_LEVEL" default:"INFO"`
	LogLevel    slog.Level
	// Maximum size of an uploaded image
	MaxImageSize      string `env:"TES_MAX_IMAGE_SIZE" default:"50MiB"`
	MaxImageSizeBytes uint64
	// NATS max msg size (embedded server only)
	NatsMaxPayload int32 `env:"TES_MAX_PAYLOAD" default:"8388608"`
	// embedded NATS server storage location. Default: /tmp/nats
	NatsStoreDir string `env:"TES_NATS_STORE_DIR"`
	// embedded NATS server host/ip address, if exposed. Default: localhost
	NatsHost string `env:"TES_NATS_HOST" default:"localhost"`
	// embedded NATS server port, if exposed. Default: 4222
	NatsPort int `env:"TES_NATS_PORT" default:"4222"`
	// External NATS URL, e.g. nats://localhost:4222
	NatsUrl string `env:"TES_NATS_URL"`
	// Timeout for the external NATS connection
	NatsTimeout time.Duration `env:"TES_NATS_TIMEOUT" default:"15s"`
	// NatsConnectRetries is the number of attempts to connect to external NATS server(s)
	NatsConnectRetries int `env:"TES_NATS_CONNECT_RETRIES" default:"10"`
	// if true, disable HTTP Server in favor of NATS Microservice interface
	NoHttp bool `env:"TES_NO_HTTP" default:"false"`
	// if true, neither connect to nor embed NATS
	NoNats bool `env:"TES_NO_NATS" default:"false"`
	// How many replicas of the bucket to create. Default: 1
	Replicas int `env:"TES_REPLICAS" default:"1"`
	// HTTP listen address and/or port. Default: ':8080'
	SrvAddr string `env:"TES_HOST_PORT" default:":8080"`
	// tessdata directory used when a request does not name one.
	// Falls back to TESSDATA_PREFIX.
	TessdataPrefix string `env:"TES_TESSDATA_PREFIX"`
}

// NewTesConfigFromEnv returns a service config object
// populated with defaults and values from environment vars
func NewTesConfigFromEnv() (*TesConfig, error) {
	var cfg TesConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, err
	}
	err := cfg.LogLevel.UnmarshalText([]byte(cfg.LogLevelStr))
	if err != nil {
		return nil, fmt.Errorf("parsing log level from env: %w", err)
	}
	if cfg.Debug {
		cfg.LogLevel = slog.LevelDebug
	}
	maxSize, err := humanize.ParseBytes(cfg.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("parsing max image size from env: %w", err)
	}
	cfg.MaxImageSizeBytes = maxSize
	if cfg.TessdataPrefix == "" {
		cfg.TessdataPrefix = os.Getenv("TESSDATA_PREFIX")
	}
	return &cfg, nil
}

// NewLogger returns the JSON logger configured by cfg.
func (cfg *TesConfig) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.Debug,
	}))
}
