package cache

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/synth"
)

// Client wraps a synth.Client, answering repeated requests from the cache.
// Errors are never cached.
type Client struct {
	inner  synth.Client
	cache  *Cache
	model  string
	format string
	log    *log.Logger
}

// NewClient caches inner's responses. model and format are part of every
// key so changing either invalidates old audio.
func NewClient(inner synth.Client, c *Cache, model, format string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		inner:  inner,
		cache:  c,
		model:  model,
		format: format,
		log:    logger.WithPrefix("cache"),
	}
}

// Synthesize implements synth.Client.
func (c *Client) Synthesize(ctx context.Context, text, voice, credential string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := Key(c.model, c.format, voice, text)
	if audio, level, ok := c.cache.Get(key); ok {
		c.log.Debug("synthesis cache hit", "key", key, "level", level, "bytes", len(audio))
		return audio, nil
	}

	audio, err := c.inner.Synthesize(ctx, text, voice, credential)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(key, audio); err != nil {
		c.log.Warn("could not cache audio", "key", key, "err", err)
	}
	return audio, nil
}
