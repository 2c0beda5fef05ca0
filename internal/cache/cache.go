// Package cache stores recognized text keyed by image content and
// recognition parameters.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

type Cache interface {
	// Get returns the cached text for key; ok is false on a miss.
	Get(key string) (text string, ok bool, err error)
	Put(key, text string) error
}

// Key hashes the image at imagePath together with params.
func Key(imagePath string, params []byte) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("opening image for cache key: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing image %s: %w", imagePath, err)
	}
	h.Write([]byte{0})
	h.Write(params)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type NopCache struct{}

func (c *NopCache) Get(key string) (string, bool, error) {
	return "", false, nil
}

func (c *NopCache) Put(key, text string) error {
	return nil
}

// IsNop reports whether c does not cache anything.
func IsNop(c Cache) bool {
	if c == nil {
		return true
	}
	_, nop := c.(*NopCache)
	return nop
}
