//go:build no_embedded_nats

package nats

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/johbar/tesseract-ocr-bridge/internal/config"
)

const NatsEmbedded bool = false

func ConnectToEmbeddedNatsServer(_ config.TesConfig, _ *slog.Logger) (*nats.Conn, func(), error) {
	return nil, nil, errNatsNotEmbedded
}
