// Package nats connects the service to an external NATS server or starts an
// embedded one.
package nats

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/johbar/tesseract-ocr-bridge/internal/config"
)

var errNatsNotEmbedded = errors.New("NATS has not been embedded in this build")

// Connect returns a NATS connection as configured by conf: an external server
// if NatsUrl is set, the embedded one otherwise. shutdown closes the
// connection and stops the embedded server, if any.
// With NoNats set, Connect returns a nil connection and no error.
func Connect(conf config.TesConfig, log *slog.Logger) (nc *nats.Conn, shutdown func(), err error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if conf.NoNats {
		log.Info("NATS disabled")
		return nil, func() {}, nil
	}
	if conf.NatsUrl != "" {
		nc, err = SetupNatsConnection(conf, log)
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { _ = nc.Drain() }, nil
	}
	return ConnectToEmbeddedNatsServer(conf, log)
}

// SetupNatsConnection connects the service to an external NATS server,
// retrying up to NatsConnectRetries times.
func SetupNatsConnection(conf config.TesConfig, log *slog.Logger) (*nats.Conn, error) {
	var nc *nats.Conn
	var err error
	var attempts int = 0

	log.Info("Try connecting to NATS", "url", conf.NatsUrl, "timeoutSecs", conf.NatsTimeout.Seconds(), "count", attempts)
	for nc == nil {
		attempts++
		nc, err = nats.Connect(conf.NatsUrl, nats.Name("tesseract-ocr-bridge"), nats.Timeout(conf.NatsTimeout))
		if err != nil {
			log.Error("Connecting to NATS failed",
				"url", conf.NatsUrl,
				"timeoutSecs", conf.NatsTimeout.Seconds(),
				"err", err,
				"count", attempts,
				"maxRetries", conf.NatsConnectRetries)
			if attempts > conf.NatsConnectRetries {
				log.Error("Connecting to NATS failed. Retry count exceeded", "err", err, "maxRetries", conf.NatsConnectRetries)
				return nil, err
			}
			time.Sleep(time.Second)
		} else {
			return nc, nil
		}
	}

	return nc, err
}
