package render

import (
	"context"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"metaverse/internal/pkg/logx"
)

// Image is anything a Canvas can draw.
type Image interface {
	Bounds() image.Rectangle
}

// Loader fetches the image stored at path.
type Loader func(ctx context.Context, path string) (Image, error)

type cacheEntry struct {
	img    Image
	err    error
	loaded bool
}

// ImageCache loads images in the background the first time they are asked for.
// Get never blocks, so a frame can always be drawn with whatever is ready.
type ImageCache struct {
	ctx    context.Context
	cancel context.CancelFunc
	load   Loader
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	wg      sync.WaitGroup
}

// NewImageCache creates a cache whose loads stop when ctx is canceled or the
// cache is closed.
func NewImageCache(ctx context.Context, load Loader, logger *zerolog.Logger) *ImageCache {
	ctx, cancel := context.WithCancel(ctx)
	c := &ImageCache{
		ctx:     ctx,
		cancel:  cancel,
		load:    load,
		entries: make(map[string]*cacheEntry),
	}
	if logger != nil {
		c.logger = logger.With().Str("component", "image_cache").Logger()
	} else {
		c.logger = logx.Component("image_cache")
	}
	return c
}

// Get returns the image for path if it has finished loading, and starts the
// load on first use. Failed loads are not retried.
func (c *ImageCache) Get(path string) (Image, bool) {
	if path == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		return e.img, e.loaded && e.err == nil
	}

	if c.ctx.Err() != nil {
		return nil, false
	}

	e := &cacheEntry{}
	c.entries[path] = e

	c.wg.Add(1)
	go c.fetch(path, e)

	return nil, false
}

func (c *ImageCache) fetch(path string, e *cacheEntry) {
	defer c.wg.Done()

	img, err := c.load(c.ctx, path)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Failed to load image")
	}

	c.mu.Lock()
	e.img, e.err, e.loaded = img, err, true
	c.mu.Unlock()
}

// GetAll returns the images for paths in order, or false if any is not ready.
// Every missing image is requested.
func (c *ImageCache) GetAll(paths ...string) ([]Image, bool) {
	out := make([]Image, len(paths))
	ready := true
	for i, p := range paths {
		img, ok := c.Get(p)
		if !ok {
			ready = false
			continue
		}
		out[i] = img
	}
	if !ready {
		return nil, false
	}
	return out, true
}

// Wait blocks until every load started so far has finished.
func (c *ImageCache) Wait() {
	c.wg.Wait()
}

// Close cancels pending loads and waits for them to return.
func (c *ImageCache) Close() {
	c.cancel()
	c.wg.Wait()
}
