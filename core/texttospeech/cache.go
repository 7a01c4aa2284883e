package texttospeech

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/luminaedu/lumina-core/core/audio"
)

// Cache memoizes successful synthesis results and coalesces concurrent
// requests for the same text, so a clip requested by both the player and the
// prefetcher costs a single gateway call. Failed requests are not cached.
type Cache struct {
	synthesizer Synthesizer

	mu       sync.Mutex
	entries  map[cacheKey][]byte
	inflight map[cacheKey]*inflightSynthesis
}

type cacheKey struct {
	text     string
	language string
}

type inflightSynthesis struct {
	done  chan struct{}
	audio []byte
	err   error
}

func NewCache(synthesizer Synthesizer) *Cache {
	return &Cache{
		synthesizer: synthesizer,
		entries:     map[cacheKey][]byte{},
		inflight:    map[cacheKey]*inflightSynthesis{},
	}
}

func (c *Cache) Synthesize(ctx context.Context, text string, opts ...SynthesisOption) ([]byte, error) {
	options := SynthesisOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	key := cacheKey{text: text, language: options.Language}

	c.mu.Lock()
	if audio, ok := c.entries[key]; ok {
		c.mu.Unlock()
		trace.SpanFromContext(ctx).AddEvent("synthesis cache hit")
		return audio, nil
	}

	if pending, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-pending.done:
			return pending.audio, pending.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	pending := &inflightSynthesis{done: make(chan struct{})}
	c.inflight[key] = pending
	c.mu.Unlock()

	pending.audio, pending.err = c.synthesizer.Synthesize(ctx, text, opts...)

	c.mu.Lock()
	delete(c.inflight, key)
	if pending.err == nil {
		c.entries[key] = pending.audio
	}
	c.mu.Unlock()
	close(pending.done)

	return pending.audio, pending.err
}

func (c *Cache) EncodingInfo() audio.EncodingInfo {
	return c.synthesizer.EncodingInfo()
}

// Lookup reports a cached clip without triggering synthesis.
func (c *Cache) Lookup(text string, opts ...SynthesisOption) ([]byte, bool) {
	options := SynthesisOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	audio, ok := c.entries[cacheKey{text: text, language: options.Language}]
	return audio, ok
}

// Clear drops every cached clip. In-flight synthesis is unaffected; its
// result will still be stored when it completes.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[cacheKey][]byte{}
}
