//go:build !no_embedded_nats

package nats

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/johbar/tesseract-ocr-bridge/internal/config"
)

const NatsEmbedded bool = true

// ConnectToEmbeddedNatsServer starts a JetStream enabled NATS server in this
// process and connects to it in-process. The server accepts TCP clients only
// if ExposeNats is set.
func ConnectToEmbeddedNatsServer(conf config.TesConfig, log *slog.Logger) (*nats.Conn, func(), error) {
	ns, err := server.NewServer(
		&server.Options{
			JetStream:  true,
			MaxPayload: conf.NatsMaxPayload,
			TLS:        false,
			DontListen: !conf.ExposeNats,
			Host:       conf.NatsHost,
			Port:       conf.NatsPort,
			StoreDir:   conf.NatsStoreDir,
			NoSigs:     true,
		})
	if err != nil {
		return nil, nil, err
	}
	if conf.Debug {
		ns.ConfigureLogger()
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, nil, errors.New("embedded NATS not ready")
	}
	log.Info("Embedded NATS server started", "exposed", conf.ExposeNats, "storeDir", ns.StoreDir())

	nc, err := nats.Connect("", nats.InProcessServer(ns), nats.Name("tesseract-ocr-bridge"))
	if err != nil {
		ns.Shutdown()
		return nil, nil, err
	}
	shutdown := func() {
		_ = nc.Drain()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
	return nc, shutdown, nil
}
