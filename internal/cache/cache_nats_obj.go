package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johbar/tesseract-ocr-bridge/internal/config"
)

type ObjectStoreCache struct {
	jetstream.ObjectStore
	nc  *nats.Conn
	js  jetstream.JetStream
	log *slog.Logger
}

func New(conf config.TesConfig, log *slog.Logger, nc *nats.Conn) (*ObjectStoreCache, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if nc == nil {
		return nil, errors.New("no connection to NATS")
	}
	js, err := setupJetstream(conf, nc, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Storage:     jetstream.FileStorage,
		Bucket:      conf.Bucket,
		Description: "Text recognized by tesseract, keyed by image and parameters",
		Compression: true,
		Replicas:    conf.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing NATS object store: %w", err)
	}
	log.Info("NATS object store initialized.", "bucket", conf.Bucket)
	return &ObjectStoreCache{store, nc, js, log}, nil
}

func setupJetstream(conf config.TesConfig, nc *nats.Conn, log *slog.Logger) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		log.Error("Error when initializing NATS JetStream", "err", err.Error())
		return nil, err
	}

	for attempts := 0; attempts <= conf.NatsConnectRetries; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err = js.AccountInfo(ctx)
		cancel()
		if err == nil {
			return js, nil
		}
		if errors.Is(err, jetstream.ErrJetStreamNotEnabled) || errors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount) {
			return nil, err
		}
		log.Error("NATS JetStream check failed. Is JetStream enabled in external NATS server(s)?",
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("retry count exceeded: %w", err)
}

func (store *ObjectStoreCache) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := store.GetBytes(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("retrieving object %s from object store: %w", key, err)
	}
	return string(data), true, nil
}

func (store *ObjectStoreCache) Put(key, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	info, err := store.PutBytes(ctx, key, []byte(text))
	if err != nil {
		return fmt.Errorf("saving object %s: %w", key, err)
	}
	store.log.Debug("Saved text in NATS object store bucket", "key", key, "chunks", info.Chunks, "size", info.Size)
	return nil
}
